package swapengine

import (
	"time"

	"github.com/aman-zulfiqar/referral-swap/internal/leaderboard"
	"github.com/aman-zulfiqar/referral-swap/internal/ledger"
	"github.com/aman-zulfiqar/referral-swap/internal/num"
)

// SwapResult is returned for a committed swap
type SwapResult struct {
	ExecutionID string    `json:"execution_id"`
	Timestamp   time.Time `json:"timestamp"`

	InputAmount   num.Uint128 `json:"input_amount"`
	BaseScaled    num.Uint128 `json:"base_scaled"`
	UserBonus     num.Uint128 `json:"user_bonus"`
	ReferrerBonus num.Uint128 `json:"referrer_bonus"`
	TotalToUser   num.Uint128 `json:"total_to_user"`
	TotalMinted   num.Uint128 `json:"total_minted"`
	RateUsed      num.Decimal `json:"rate_used"`

	// Set only when a referral code was used
	Code              *string             `json:"code,omitempty"`
	Referrer          *string             `json:"referrer,omitempty"`
	LeaderboardChange *leaderboard.Change `json:"leaderboard_change,omitempty"`
}

// Simulation is a read-only preview. A code the oracle cannot confirm,
// for any reason, previews as no referral.
type Simulation struct {
	InputAmount   num.Uint128 `json:"input_amount"`
	ReferralValid bool        `json:"referral_valid"`
	Referrer      *string     `json:"referrer,omitempty"`
	Quote
}

// CodeStatsView is a code's stats with its owner.
type CodeStatsView struct {
	Code  string `json:"code"`
	Owner string `json:"owner"`
	ledger.CodeStats
}

// LeaderboardRow is one ranked entry with owner and stats.
type LeaderboardRow struct {
	Rank  uint32 `json:"rank"`
	Code  string `json:"code"`
	Owner string `json:"owner"`
	ledger.CodeStats
}

type LeaderboardPage struct {
	Entries []LeaderboardRow `json:"entries"`
	HasMore bool             `json:"has_more"`
}

// UnknownOwner is reported when the oracle cannot resolve a listed code.
const UnknownOwner = "unknown"
