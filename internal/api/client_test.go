package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-100-precent/sipcall/pkg/cache"
)

type memStore struct {
	access  string
	refresh string
	loadErr error
	saveErr error
	cleared bool
}

func (m *memStore) Load() (string, string, error) {
	return m.access, m.refresh, m.loadErr
}

func (m *memStore) Save(access, refresh string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.access = access
	if refresh != "" {
		m.refresh = refresh
	}
	return nil
}

func (m *memStore) Clear() error {
	m.access = ""
	m.refresh = ""
	m.cleared = true
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRequestRefreshAndRetry(t *testing.T) {
	var profileHits, refreshHits int32

	mux := http.NewServeMux()
	mux.HandleFunc("/user/profile", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&profileHits, 1)
		if r.Header.Get("Authorization") != "Bearer new-access" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, UserProfile{ID: "u1", Email: "u1@example.com"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshHits, 1)
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "old-refresh", req.RefreshToken)
		writeJSON(w, http.StatusOK, AuthResponse{AccessToken: "new-access", RefreshToken: "new-refresh"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &memStore{access: "old-access", refresh: "old-refresh"}
	c := NewClient(Options{BaseURL: srv.URL, Store: store})

	profile, err := c.UserProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", profile.Email)

	assert.Equal(t, int32(2), atomic.LoadInt32(&profileHits), "original request plus exactly one retry")
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshHits))
	assert.Equal(t, "new-access", store.access)
	assert.Equal(t, "new-refresh", store.refresh)
}

func TestRefreshFailureClearsCredential(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "refresh token revoked"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &memStore{access: "old-access", refresh: "old-refresh"}
	c := NewClient(Options{BaseURL: srv.URL, Store: store})

	_, err := c.UserProfile(context.Background())
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)

	assert.False(t, c.IsAuthenticated())
	assert.True(t, store.cleared)
	assert.Empty(t, store.access)
	assert.Empty(t, store.refresh)
}

func TestAtMostOneRefreshPerRequest(t *testing.T) {
	var refreshHits int32

	mux := http.NewServeMux()
	mux.HandleFunc("/user/profile", func(w http.ResponseWriter, r *http.Request) {
		// Always 401, even with the rotated token.
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "nope"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshHits, 1)
		writeJSON(w, http.StatusOK, AuthResponse{AccessToken: "rotated", RefreshToken: "rotated-r"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &memStore{access: "a", refresh: "r"}
	c := NewClient(Options{BaseURL: srv.URL, Store: store})

	_, err := c.UserProfile(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr, "second 401 is final, not another refresh")
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshHits))
}

func TestNoRefreshWithoutRefreshToken(t *testing.T) {
	var refreshHits int32

	mux := http.NewServeMux()
	mux.HandleFunc("/user/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshHits, 1)
		writeJSON(w, http.StatusOK, AuthResponse{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Store: &memStore{access: "a"}})

	_, err := c.UserProfile(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, int32(0), atomic.LoadInt32(&refreshHits))
}

func TestHTTPErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    interface{}
		wantMsg string
	}{
		{
			name:    "server detail",
			status:  http.StatusInternalServerError,
			body:    map[string]string{"detail": "trunk unavailable"},
			wantMsg: "trunk unavailable",
		},
		{
			name:    "no detail",
			status:  http.StatusServiceUnavailable,
			body:    map[string]string{},
			wantMsg: "HTTP 503: Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			defer srv.Close()

			c := NewClient(Options{BaseURL: srv.URL, Store: &memStore{access: "a"}})
			_, err := c.InitiateCall(context.Background(), "+15551234567", "", false)

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.wantMsg, httpErr.Error())
		})
	}
}

func TestTransportErrorSkipsRefresh(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listens anymore

	store := &memStore{access: "a", refresh: "r"}
	c := NewClient(Options{BaseURL: url, Store: store})

	_, err := c.UserProfile(context.Background())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)

	// The credential must survive a network failure untouched.
	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, "a", store.access)
	assert.False(t, store.cleared)
}

func TestRequestHeaders(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r
		writeJSON(w, http.StatusOK, CallStatusResponse{Status: "ringing"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Store: &memStore{access: "tok-123"}})
	_, err := c.CallStatus(context.Background(), "c1")
	require.NoError(t, err)

	r := <-seen
	assert.Equal(t, http.MethodGet, r.Method)
	assert.Equal(t, "/call-status/c1", r.URL.Path)
	assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
	assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
	assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
	assert.Zero(t, r.ContentLength, "GET carries no body")
}

func TestUnauthenticatedRequestOmitsBearer(t *testing.T) {
	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, CallStatusResponse{Status: "ringing"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Store: &memStore{}})
	_, err := c.CallStatus(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, <-seen)
}

func TestAuthenticate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code        string `json:"code"`
			RedirectURI string `json:"redirect_uri"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "oauth-code", req.Code)
		assert.Equal(t, "https://cloud.example.com/apps/sipcall", req.RedirectURI)
		writeJSON(w, http.StatusOK, AuthResponse{AccessToken: "acc", RefreshToken: "ref", TokenType: "bearer", ExpiresIn: 3600})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &memStore{}
	c := NewClient(Options{BaseURL: srv.URL, Store: store})
	require.False(t, c.IsAuthenticated())

	resp, err := c.Authenticate(context.Background(), "oauth-code", "https://cloud.example.com/apps/sipcall")
	require.NoError(t, err)
	assert.Equal(t, "acc", resp.AccessToken)
	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, "acc", store.access)
	assert.Equal(t, "ref", store.refresh)
}

func TestAuthenticateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad code"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Store: &memStore{}})
	_, err := c.Authenticate(context.Background(), "bogus", "uri")
	require.Error(t, err)
	assert.False(t, c.IsAuthenticated())
}

func TestCallHistoryQuery(t *testing.T) {
	seen := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		seen <- map[string]string{
			"limit":     q.Get("limit"),
			"offset":    q.Get("offset"),
			"from_date": q.Get("from_date"),
			"to_date":   q.Get("to_date"),
		}
		writeJSON(w, http.StatusOK, CallHistoryPage{
			Calls:      []CallHistoryItem{{CallID: "c9", DestinationNumber: "+15550001111", Status: "completed"}},
			TotalCount: 42,
			HasMore:    true,
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Store: &memStore{access: "a"}})
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	page, err := c.CallHistory(context.Background(), 25, 5, &from, &to)
	require.NoError(t, err)

	q := <-seen
	assert.Equal(t, "25", q["limit"])
	assert.Equal(t, "5", q["offset"])
	assert.Equal(t, "2025-06-01T00:00:00Z", q["from_date"])
	assert.Equal(t, "2025-06-30T00:00:00Z", q["to_date"])

	assert.Len(t, page.Calls, 1)
	assert.Equal(t, 42, page.TotalCount)
	assert.True(t, page.HasMore)
}

func TestCallControlBodies(t *testing.T) {
	type captured struct {
		path string
		body map[string]interface{}
	}
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		seen <- captured{path: r.URL.Path, body: body}
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Store: &memStore{access: "a"}})
	ctx := context.Background()

	require.NoError(t, c.SetMute(ctx, "c1", true))
	got := <-seen
	assert.Equal(t, "/call/c1/mute", got.path)
	assert.Equal(t, map[string]interface{}{"muted": true}, got.body)

	require.NoError(t, c.SetHold(ctx, "c1", true))
	got = <-seen
	assert.Equal(t, "/call/c1/hold", got.path)
	assert.Equal(t, map[string]interface{}{"hold": true}, got.body)

	require.NoError(t, c.Hangup(ctx, "c1"))
	got = <-seen
	assert.Equal(t, "/call/c1/hangup", got.path)
	assert.Nil(t, got.body)
}

func TestUserProfileCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		writeJSON(w, http.StatusOK, UserProfile{ID: "u1", DisplayName: "Pat"})
	}))
	defer srv.Close()

	c := NewClient(Options{
		BaseURL: srv.URL,
		Store:   &memStore{access: "a"},
		Cache:   cache.NewLocalCache(cache.Config{}),
	})
	ctx := context.Background()

	first, err := c.UserProfile(ctx)
	require.NoError(t, err)
	second, err := c.UserProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second read served from cache")

	// A credential change invalidates the cached profile.
	c.ClearCredential()
	c.SaveCredential("b", "rb")
	_, err = c.UserProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestLoadCredentialFailureIsNonFatal(t *testing.T) {
	store := &memStore{loadErr: errors.New("disk gone")}
	c := NewClient(Options{BaseURL: "http://localhost:0", Store: store})
	assert.False(t, c.IsAuthenticated())
}
