package swapengine

import (
	"errors"
	"fmt"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
)

// Validation failures. No state is written when any of these is returned.
var (
	ErrZeroAmount        = errors.New("swap: amount must be greater than zero")
	ErrBelowMinimum      = errors.New("swap: amount below minimum")
	ErrInvalidCode       = errors.New("swap: invalid referral code format")
	ErrCodeNotRegistered = errors.New("swap: referral code not registered")
	ErrSwapNotStarted    = errors.New("swap: swap period has not started")
	ErrSwapEnded         = errors.New("swap: swap period has ended")
	ErrSwapPaused        = errors.New("swap: swaps are paused")
	ErrZeroRate          = errors.New("swap: rate is zero")
	ErrInvalidDuration   = errors.New("swap: duration must be positive")
	ErrInvalidRatio      = errors.New("swap: invalid ratio")
)

// ErrSafetyLimit matches any *SafetyLimitError via errors.Is.
var ErrSafetyLimit = errors.New("swap: mint exceeds safety limit")

// SafetyLimitError carries the amounts behind a rejected mint.
type SafetyLimitError struct {
	Requested num.Uint128
	Limit     num.Uint128
}

func (e *SafetyLimitError) Error() string {
	return fmt.Sprintf("swap: mint of %s exceeds safety limit %s", e.Requested, e.Limit)
}

func (e *SafetyLimitError) Is(target error) bool {
	return target == ErrSafetyLimit
}
