package swapengine

import (
	"fmt"
	"time"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/referral"
)

// RiskConfig defines eligibility parameters
type RiskConfig struct {
	MinSwapAmount num.Uint128 // smallest accepted input, in input smallest units
	InitialSupply num.Uint128 // output supply before the first swap
}

// DefaultRiskConfig returns the production minimum of 1 input unit
// (6 decimals) and a 1e9-token (18 decimals) starting supply.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MinSwapAmount: num.NewUint128(1_000_000),
		InitialSupply: num.MustUint128("1000000000000000000000000000"),
	}
}

// RiskManager gates swaps on the window, the pause flag and the referral
// oracle's answer. The mint cap lives in Calculate so previews enforce it
// too.
type RiskManager struct {
	config   RiskConfig
	schedule *Schedule
}

func NewRiskManager(config RiskConfig, schedule *Schedule) *RiskManager {
	return &RiskManager{config: config, schedule: schedule}
}

// CheckWindow rejects paused swaps, swaps before the start, and swaps at
// or after the end.
func (rm *RiskManager) CheckWindow(now time.Time, paused bool) error {
	if paused {
		return ErrSwapPaused
	}
	st := rm.schedule.Status(now, paused)
	if !st.HasStarted {
		return fmt.Errorf("%w: starts in %ds", ErrSwapNotStarted, st.SecondsUntilStart)
	}
	if st.HasEnded {
		return ErrSwapEnded
	}
	return nil
}

// CheckReferral turns an oracle answer into the owner to credit.
func (rm *RiskManager) CheckReferral(code string, v referral.Validation) (string, error) {
	if !v.IsValidFormat {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	if !v.IsRegistered {
		return "", fmt.Errorf("%w: %q", ErrCodeNotRegistered, code)
	}
	if v.Owner == nil {
		return "", fmt.Errorf("%w: %q has no owner", ErrCodeNotRegistered, code)
	}
	return *v.Owner, nil
}

// Supply is the output supply the safety cap is measured against.
func (rm *RiskManager) Supply(minted num.Uint128) (num.Uint128, error) {
	return rm.config.InitialSupply.Add(minted)
}
