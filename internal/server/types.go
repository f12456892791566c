package server

import (
	"github.com/aman-zulfiqar/referral-swap/internal/referral"
	"github.com/aman-zulfiqar/referral-swap/internal/swapengine"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK bool `json:"ok"`
}

// SwapRequest is the body of POST /v1/swap. input_amount is a base-10
// string in input smallest units.
type SwapRequest = swapengine.SwapRequest

// RegisterRequest creates a referral code
type RegisterRequest struct {
	Code  string `json:"code"`
	Owner string `json:"owner"`
}

// ReferralListResponse lists codes for one owner
type ReferralListResponse struct {
	Owner string           `json:"owner"`
	Items []*referral.Code `json:"items"`
}

// ValidateResponse mirrors the oracle answer
type ValidateResponse struct {
	Code string `json:"code"`
	referral.Validation
}

// PositionResponse is a code's leaderboard rank; Rank is omitted when the
// code is not ranked.
type PositionResponse struct {
	Code   string  `json:"code"`
	Ranked bool    `json:"ranked"`
	Rank   *uint32 `json:"rank,omitempty"`
}

// PauseResponse reports the pause flag after a toggle
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// AIAskRequest represents a natural language query request
type AIAskRequest struct {
	Question string `json:"question"` // Natural language question about swap history
	Model    string `json:"model"`    // Optional AI model override
}

// AIAskResponse represents the response from an AI query
type AIAskResponse struct {
	SQL     string   `json:"sql"`
	Answer  string   `json:"answer"`
	Rows    int      `json:"rows"`
	Recipes []string `json:"recipes,omitempty"`
	TookMs  int64    `json:"took_ms"`
}
