package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/code-100-precent/sipcall/pkg/cache"
	"github.com/code-100-precent/sipcall/pkg/logger"
	"go.uber.org/zap"
)

const profileCacheKey = "user_profile"

// TokenStore persists the credential pair across process restarts. Load must
// return empty strings (not an error) when nothing is stored.
type TokenStore interface {
	Load() (access, refresh string, err error)
	Save(access, refresh string) error
	Clear() error
}

// Options 客户端配置
type Options struct {
	BaseURL string
	// Timeout bounds each round trip; zero disables it.
	Timeout time.Duration
	Store   TokenStore
	Cache   cache.Cache

	// ProfileCacheTTL controls how long /user/profile responses are served
	// from cache. Zero uses a one minute default.
	ProfileCacheTTL time.Duration
}

// Client talks to the sipcall backend. It owns the bearer credential: it
// attaches it to every request, refreshes it at most once per request on a
// 401, and persists it through the TokenStore.
type Client struct {
	baseURL  string
	http     *resty.Client
	store    TokenStore
	cache    cache.Cache
	cacheTTL time.Duration

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

// NewClient builds a client and loads any persisted credential. A missing or
// unreadable credential leaves the client unauthenticated; that is not an
// error.
func NewClient(opts Options) *Client {
	httpc := resty.New().SetBaseURL(opts.BaseURL)
	if opts.Timeout > 0 {
		httpc.SetTimeout(opts.Timeout)
	}
	ttl := opts.ProfileCacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &Client{
		baseURL:  opts.BaseURL,
		http:     httpc,
		store:    opts.Store,
		cache:    opts.Cache,
		cacheTTL: ttl,
	}
	c.loadCredential()
	return c
}

func (c *Client) loadCredential() {
	if c.store == nil {
		return
	}
	access, refresh, err := c.store.Load()
	if err != nil {
		logger.Warn("failed to load stored credential", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.accessToken = access
	c.refreshToken = refresh
	c.mu.Unlock()
}

// SaveCredential updates the in-memory credential and persists it. A
// persistence failure is logged only; the credential stays usable for the
// process lifetime.
func (c *Client) SaveCredential(access, refresh string) {
	c.mu.Lock()
	c.accessToken = access
	if refresh != "" {
		c.refreshToken = refresh
	}
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.Delete(profileCacheKey)
	}
	if c.store == nil {
		return
	}
	if err := c.store.Save(access, refresh); err != nil {
		logger.Warn("failed to persist credential", zap.Error(err))
	}
}

// ClearCredential drops the credential from memory and storage.
func (c *Client) ClearCredential() {
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.Delete(profileCacheKey)
	}
	if c.store == nil {
		return
	}
	if err := c.store.Clear(); err != nil {
		logger.Warn("failed to clear stored credential", zap.Error(err))
	}
}

// IsAuthenticated reports whether an access token is currently held.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken != ""
}

// Authenticate exchanges an OAuth2 authorization code for the initial
// credential pair and persists it.
func (c *Client) Authenticate(ctx context.Context, code, redirectURI string) (*AuthResponse, error) {
	var out AuthResponse
	err := requests.URL(c.baseURL + "/auth").
		BodyJSON(&authRequest{Code: code, RedirectURI: redirectURI}).
		Header("Content-Type", "application/json").
		ToJSON(&out).Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	c.SaveCredential(out.AccessToken, out.RefreshToken)
	return &out, nil
}

// RefreshCredential exchanges the stored refresh token for a new pair. It
// never returns an error: any failure leaves the credential untouched and
// reports false.
func (c *Client) RefreshCredential(ctx context.Context) bool {
	c.mu.RLock()
	refresh := c.refreshToken
	c.mu.RUnlock()
	if refresh == "" {
		return false
	}

	var out AuthResponse
	err := requests.URL(c.baseURL + "/auth/refresh").
		BodyJSON(&refreshRequest{RefreshToken: refresh}).
		Header("Content-Type", "application/json").
		ToJSON(&out).Fetch(ctx)
	if err != nil {
		logger.Warn("token refresh failed", zap.Error(err))
		return false
	}
	c.SaveCredential(out.AccessToken, out.RefreshToken)
	return true
}

// request performs one authenticated round trip. On a 401 it refreshes the
// credential once and retries once; the retried response is taken as final
// whatever its status. On refresh failure the credential is cleared and an
// AuthenticationError returned.
func (c *Client) request(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode() == http.StatusUnauthorized && c.hasRefreshToken() {
		if c.RefreshCredential(ctx) {
			resp, err = c.send(ctx, method, path, body)
			if err != nil {
				return &TransportError{Op: method + " " + path, Err: err}
			}
		} else {
			c.ClearCredential()
			return &AuthenticationError{Message: "authentication failed, please log in again"}
		}
	}

	if !resp.IsSuccess() {
		return httpErrorFrom(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*resty.Response, error) {
	r := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Request-ID", uuid.NewString())

	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()
	if token != "" {
		r.SetHeader("Authorization", "Bearer "+token)
	}

	// JSON body only on mutating methods.
	if body != nil && (method == http.MethodPost || method == http.MethodPut) {
		r.SetBody(body)
	}

	return r.Execute(method, path)
}

func (c *Client) hasRefreshToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshToken != ""
}

func httpErrorFrom(resp *resty.Response) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(resp.Body(), &payload)
	return &HTTPError{StatusCode: resp.StatusCode(), Detail: payload.Detail}
}

// InitiateCall asks the backend to place a call.
func (c *Client) InitiateCall(ctx context.Context, destination, callerID string, privacyMode bool) (*CallResponse, error) {
	var out CallResponse
	body := &callRequest{DestinationNumber: destination, CallerID: callerID, PrivacyMode: privacyMode}
	if err := c.request(ctx, http.MethodPost, "/call", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CallStatus fetches the current status of a call.
func (c *Client) CallStatus(ctx context.Context, callID string) (*CallStatusResponse, error) {
	var out CallStatusResponse
	path := "/call-status/" + url.PathEscape(callID)
	if err := c.request(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Hangup terminates a call.
func (c *Client) Hangup(ctx context.Context, callID string) error {
	path := fmt.Sprintf("/call/%s/hangup", url.PathEscape(callID))
	return c.request(ctx, http.MethodPost, path, nil, nil)
}

// SetMute sets the mute state of a call.
func (c *Client) SetMute(ctx context.Context, callID string, muted bool) error {
	path := fmt.Sprintf("/call/%s/mute", url.PathEscape(callID))
	return c.request(ctx, http.MethodPost, path, &muteRequest{Muted: muted}, nil)
}

// SetHold sets the hold state of a call.
func (c *Client) SetHold(ctx context.Context, callID string, hold bool) error {
	path := fmt.Sprintf("/call/%s/hold", url.PathEscape(callID))
	return c.request(ctx, http.MethodPost, path, &holdRequest{Hold: hold}, nil)
}

// CallHistory fetches a page of call history, most recent first.
func (c *Client) CallHistory(ctx context.Context, limit, offset int, from, to *time.Time) (*CallHistoryPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	if from != nil {
		params.Set("from_date", from.UTC().Format(time.RFC3339))
	}
	if to != nil {
		params.Set("to_date", to.UTC().Format(time.RFC3339))
	}

	var out CallHistoryPage
	if err := c.request(ctx, http.MethodGet, "/call-history?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserProfile fetches the authenticated user's profile, served from cache
// when a recent copy exists.
func (c *Client) UserProfile(ctx context.Context) (*UserProfile, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(profileCacheKey); ok {
			if p, ok := v.(*UserProfile); ok {
				return p, nil
			}
		}
	}

	var out UserProfile
	if err := c.request(ctx, http.MethodGet, "/user/profile", nil, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(profileCacheKey, &out, c.cacheTTL)
	}
	return &out, nil
}
