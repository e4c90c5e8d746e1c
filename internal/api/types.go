package api

import "time"

// AuthResponse 认证响应
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

type authRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type callRequest struct {
	DestinationNumber string `json:"destination_number"`
	CallerID          string `json:"caller_id,omitempty"`
	PrivacyMode       bool   `json:"privacy_mode"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

type holdRequest struct {
	Hold bool `json:"hold"`
}

// CallResponse is returned by call initiation.
type CallResponse struct {
	CallID            string    `json:"call_id"`
	CallUUID          string    `json:"call_uuid,omitempty"`
	Status            string    `json:"status"`
	DestinationNumber string    `json:"destination_number"`
	InitiatedAt       time.Time `json:"initiated_at,omitempty"`
}

// CallStatusResponse is the polled view of a live call.
type CallStatusResponse struct {
	CallID          string     `json:"call_id,omitempty"`
	Status          string     `json:"status"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	QualityScore    *float64   `json:"quality_score,omitempty"`
	LastUpdated     *time.Time `json:"last_updated,omitempty"`
}

// CallHistoryItem 通话历史条目
type CallHistoryItem struct {
	CallID            string    `json:"call_id"`
	DestinationNumber string    `json:"destination_number"`
	Status            string    `json:"status"`
	InitiatedAt       time.Time `json:"initiated_at"`
	DurationSeconds   *int      `json:"duration_seconds,omitempty"`
	CostCents         *int      `json:"cost_cents,omitempty"`
	QualityScore      *float64  `json:"quality_score,omitempty"`
}

// CallHistoryPage is a page of history entries, most recent first. Derived
// data only; safe to discard and re-fetch.
type CallHistoryPage struct {
	Calls      []CallHistoryItem `json:"calls"`
	TotalCount int               `json:"total_count"`
	HasMore    bool              `json:"has_more"`
}

// UserProfile 用户信息
type UserProfile struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}
