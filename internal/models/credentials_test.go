package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCredentialsTestDB(t *testing.T) *gorm.DB {
	return setupTestDBWithSilentLogger(t, &Setting{})
}

func TestCredentialStore_LoadEmpty(t *testing.T) {
	store := NewCredentialStore(setupCredentialsTestDB(t))

	access, refresh, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestCredentialStore_SaveAndLoad(t *testing.T) {
	store := NewCredentialStore(setupCredentialsTestDB(t))

	require.NoError(t, store.Save("access-1", "refresh-1"))

	access, refresh, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-1", access)
	assert.Equal(t, "refresh-1", refresh)
}

func TestCredentialStore_RotationKeepsRefreshToken(t *testing.T) {
	store := NewCredentialStore(setupCredentialsTestDB(t))

	require.NoError(t, store.Save("access-1", "refresh-1"))
	// A refresh response may rotate only the access token.
	require.NoError(t, store.Save("access-2", ""))

	access, refresh, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-2", access)
	assert.Equal(t, "refresh-1", refresh)
}

func TestCredentialStore_SaveOverwrites(t *testing.T) {
	store := NewCredentialStore(setupCredentialsTestDB(t))

	require.NoError(t, store.Save("access-1", "refresh-1"))
	require.NoError(t, store.Save("access-2", "refresh-2"))

	access, refresh, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-2", access)
	assert.Equal(t, "refresh-2", refresh)

	var count int64
	store.db.Model(&Setting{}).Count(&count)
	assert.Equal(t, int64(2), count, "rotation reuses the same rows")
}

func TestCredentialStore_Clear(t *testing.T) {
	store := NewCredentialStore(setupCredentialsTestDB(t))

	require.NoError(t, store.Save("access-1", "refresh-1"))
	require.NoError(t, store.Clear())

	access, refresh, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, access)
	assert.Empty(t, refresh)

	// Clearing an already-empty store is fine.
	require.NoError(t, store.Clear())
}
