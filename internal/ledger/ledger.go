package ledger

import (
	"context"
	"fmt"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
)

const (
	statsPrefix = "stats:code:"
	globalKey   = "stats:global"
)

// CodeStats are the per-code accumulators. Rows are created on first use
// and never removed.
type CodeStats struct {
	TotalRewardsEarned num.Uint128 `json:"total_rewards_earned"`
	TotalUserBonuses   num.Uint128 `json:"total_user_bonuses"`
	TotalSwaps         uint64      `json:"total_swaps"`
}

// GlobalStats aggregate every swap.
type GlobalStats struct {
	TotalInputReceived       num.Uint128 `json:"total_input_received"`
	TotalMinted              num.Uint128 `json:"total_minted"`
	TotalReferralBonusMinted num.Uint128 `json:"total_referral_bonus_minted"`
	TotalReferralSwaps       uint64      `json:"total_referral_swaps"`
	UniqueCodesUsed          uint64      `json:"unique_codes_used"`
}

// GlobalDelta is what one swap adds to GlobalStats.
type GlobalDelta struct {
	InputReceived       num.Uint128
	Minted              num.Uint128
	ReferralBonusMinted num.Uint128
	ReferralSwap        bool
	NewCode             bool
}

// Ledger is a view over a storage handle. It holds no state of its own, so
// a Ledger built on a batch sees and produces only that batch's writes.
type Ledger struct {
	kv storage.KV
}

func New(kv storage.KV) *Ledger {
	return &Ledger{kv: kv}
}

// RecordSwap loads (or defaults) the code's stats, accumulates one swap and
// writes the row back. created reports whether this was the first swap.
func (l *Ledger) RecordSwap(ctx context.Context, code string, userBonus, referrerReward num.Uint128) (CodeStats, bool, error) {
	var st CodeStats
	found, err := storage.GetJSON(ctx, l.kv, statsKey(code), &st)
	if err != nil {
		return CodeStats{}, false, err
	}

	if st.TotalRewardsEarned, err = st.TotalRewardsEarned.Add(referrerReward); err != nil {
		return CodeStats{}, false, fmt.Errorf("rewards for %s: %w", code, err)
	}
	if st.TotalUserBonuses, err = st.TotalUserBonuses.Add(userBonus); err != nil {
		return CodeStats{}, false, fmt.Errorf("user bonuses for %s: %w", code, err)
	}
	st.TotalSwaps++

	if err := storage.PutJSON(ctx, l.kv, statsKey(code), st); err != nil {
		return CodeStats{}, false, err
	}
	return st, !found, nil
}

// Get returns nil on a miss and never writes.
func (l *Ledger) Get(ctx context.Context, code string) (*CodeStats, error) {
	var st CodeStats
	found, err := storage.GetJSON(ctx, l.kv, statsKey(code), &st)
	if err != nil || !found {
		return nil, err
	}
	return &st, nil
}

// RewardOf returns the code's cumulative reward, or storage.ErrNotFound
// wrapped with the code when no row exists.
func (l *Ledger) RewardOf(ctx context.Context, code string) (num.Uint128, error) {
	st, err := l.Get(ctx, code)
	if err != nil {
		return num.Uint128{}, err
	}
	if st == nil {
		return num.Uint128{}, fmt.Errorf("stats for %q: %w", code, storage.ErrNotFound)
	}
	return st.TotalRewardsEarned, nil
}

func (l *Ledger) Globals(ctx context.Context) (GlobalStats, error) {
	var g GlobalStats
	if _, err := storage.GetJSON(ctx, l.kv, globalKey, &g); err != nil {
		return GlobalStats{}, err
	}
	return g, nil
}

func (l *Ledger) RecordGlobal(ctx context.Context, d GlobalDelta) (GlobalStats, error) {
	g, err := l.Globals(ctx)
	if err != nil {
		return GlobalStats{}, err
	}
	if g.TotalInputReceived, err = g.TotalInputReceived.Add(d.InputReceived); err != nil {
		return GlobalStats{}, fmt.Errorf("total input: %w", err)
	}
	if g.TotalMinted, err = g.TotalMinted.Add(d.Minted); err != nil {
		return GlobalStats{}, fmt.Errorf("total minted: %w", err)
	}
	if g.TotalReferralBonusMinted, err = g.TotalReferralBonusMinted.Add(d.ReferralBonusMinted); err != nil {
		return GlobalStats{}, fmt.Errorf("total referral bonus: %w", err)
	}
	if d.ReferralSwap {
		g.TotalReferralSwaps++
	}
	if d.NewCode {
		g.UniqueCodesUsed++
	}
	if err := storage.PutJSON(ctx, l.kv, globalKey, g); err != nil {
		return GlobalStats{}, err
	}
	return g, nil
}

func statsKey(code string) string {
	return statsPrefix + code
}
