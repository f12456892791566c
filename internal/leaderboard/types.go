package leaderboard

import (
	"context"
	"errors"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
)

const (
	// DefaultCapacity is K, the number of ranked codes kept.
	DefaultCapacity = 50

	DefaultLimit = 50
	MaxLimit     = 50
)

// ErrCorrupt reports a broken list: a dangling link, a missing node or
// stats row, an inconsistent back-link, or a walk longer than capacity.
var ErrCorrupt = errors.New("leaderboard: corrupt state")

// Kind tags what an Upsert did.
type Kind string

const (
	NewEntry     Kind = "new_entry"
	PositionUp   Kind = "position_up"
	PositionDown Kind = "position_down"
	NoChange     Kind = "no_change"
	NotQualified Kind = "not_qualified"
)

// Change is the outcome of an Upsert. Position is 1-indexed and zero only
// for NotQualified. Evicted names the code pushed out of a full list.
type Change struct {
	Kind     Kind    `json:"kind"`
	Position uint32  `json:"position,omitempty"`
	Evicted  *string `json:"evicted,omitempty"`
}

// Hint claims the code belongs directly after InsertAfter. A hint with a
// nil InsertAfter claims the head. Hints are checked before use.
type Hint struct {
	InsertAfter *string `json:"insert_after,omitempty"`
}

// HintOutcome classifies a supplied hint for metrics.
type HintOutcome string

const (
	HintNone    HintOutcome = "none"
	HintValid   HintOutcome = "valid"
	HintTooHigh HintOutcome = "too_high"
	HintTooLow  HintOutcome = "too_low"
	HintUnknown HintOutcome = "unknown"
)

// Entry is one ranked row returned by Range.
type Entry struct {
	Rank   uint32      `json:"rank"`
	Code   string      `json:"code"`
	Reward num.Uint128 `json:"total_rewards_earned"`
}

// RewardSource supplies the ranking key. The ledger implements it; a miss
// must wrap storage.ErrNotFound.
type RewardSource interface {
	RewardOf(ctx context.Context, code string) (num.Uint128, error)
}

type Config struct {
	Capacity int               // defaults to DefaultCapacity
	OnHint   func(HintOutcome) // optional
}

// node is the persisted link row. Absence is a nil pointer, never an
// empty-string sentinel.
type node struct {
	Prev *string `json:"prev,omitempty"`
	Next *string `json:"next,omitempty"`
}
