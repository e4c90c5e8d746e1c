package models

import "gorm.io/gorm"

// Fixed storage keys for the credential pair. Keep values stable: they are
// the on-disk contract with earlier versions of the client.
const (
	KeyAccessToken  = "sipcall_access_token"
	KeyRefreshToken = "sipcall_refresh_token"
)

// CredentialStore persists the token pair in the settings table. It
// implements the api.TokenStore interface.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Load returns the stored pair, or empty strings when nothing is stored.
func (s *CredentialStore) Load() (access, refresh string, err error) {
	access, err = GetValue(s.db, KeyAccessToken)
	if err != nil {
		return "", "", err
	}
	refresh, err = GetValue(s.db, KeyRefreshToken)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Save stores the pair. The refresh token row is only written when one is
// present, so a rotation that omits it keeps the previous value.
func (s *CredentialStore) Save(access, refresh string) error {
	if err := SetValue(s.db, KeyAccessToken, access); err != nil {
		return err
	}
	if refresh == "" {
		return nil
	}
	return SetValue(s.db, KeyRefreshToken, refresh)
}

// Clear removes both rows.
func (s *CredentialStore) Clear() error {
	if err := DeleteValue(s.db, KeyAccessToken); err != nil {
		return err
	}
	return DeleteValue(s.db, KeyRefreshToken)
}
