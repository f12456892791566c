package swapengine

import (
	"fmt"

	"github.com/aman-zulfiqar/referral-swap/internal/leaderboard"
	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/referral"
)

// SwapRequest is the inbound swap. An empty or absent Code means no
// referral.
type SwapRequest struct {
	InputAmount num.Uint128       `json:"input_amount"`
	Code        *string           `json:"code,omitempty"`
	Hint        *leaderboard.Hint `json:"hint,omitempty"`
}

// parsedRequest is a SwapRequest after normalization.
type parsedRequest struct {
	amount num.Uint128
	code   string // "" when no referral
	hint   *leaderboard.Hint
}

func (p parsedRequest) hasReferral() bool { return p.code != "" }

type DecisionEngine struct {
	minAmount num.Uint128
}

func NewDecisionEngine(minAmount num.Uint128) *DecisionEngine {
	return &DecisionEngine{minAmount: minAmount}
}

func (de *DecisionEngine) ValidateRequest(req *SwapRequest) error {
	if req == nil {
		return fmt.Errorf("swap request is nil")
	}
	if req.InputAmount.IsZero() {
		return ErrZeroAmount
	}
	if req.InputAmount.LT(de.minAmount) {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, req.InputAmount, de.minAmount)
	}
	return nil
}

// ParseRequest validates and normalizes the code and hint. Hint codes are
// normalized too; a malformed hint code is dropped rather than rejected
// since hints never affect the outcome.
func (de *DecisionEngine) ParseRequest(req *SwapRequest) (*parsedRequest, error) {
	if err := de.ValidateRequest(req); err != nil {
		return nil, err
	}

	out := &parsedRequest{amount: req.InputAmount}
	if req.Code != nil && *req.Code != "" {
		c, err := referral.Normalize(*req.Code)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCode, *req.Code)
		}
		out.code = c
	}

	if out.hasReferral() && req.Hint != nil {
		out.hint = &leaderboard.Hint{}
		if req.Hint.InsertAfter != nil {
			if c, err := referral.Normalize(*req.Hint.InsertAfter); err == nil {
				out.hint.InsertAfter = &c
			} else {
				out.hint = nil
			}
		}
	}
	return out, nil
}
