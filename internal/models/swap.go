package models

import "time"

// SwapEvent is the record of a committed swap, published on pub/sub and
// appended to the history store. Amounts are base-10 strings in smallest units.
type SwapEvent struct {
	ExecutionID   string    `json:"execution_id"`
	Timestamp     time.Time `json:"timestamp"`
	InputAmount   string    `json:"input_amount"`
	BaseScaled    string    `json:"base_scaled"`
	UserBonus     string    `json:"user_bonus"`
	ReferrerBonus string    `json:"referrer_bonus"`
	TotalToUser   string    `json:"total_to_user"`
	TotalMinted   string    `json:"total_minted"`
	Rate          string    `json:"rate"`
	Code          string    `json:"code,omitempty"`
	Referrer      string    `json:"referrer,omitempty"`

	// Leaderboard outcome, empty when no code was used
	LeaderboardAction string `json:"leaderboard_action,omitempty"` // e.g. "new_entry", "position_up"
	Position          uint32 `json:"position,omitempty"`
	Evicted           string `json:"evicted,omitempty"`
}
