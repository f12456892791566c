package swapengine

import (
	"fmt"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
)

// Ratio is numerator/denominator.
type Ratio struct {
	Num uint64 `json:"num"`
	Den uint64 `json:"den"`
}

func (r Ratio) validate(name string) error {
	if r.Den == 0 || r.Num > r.Den {
		return fmt.Errorf("%w: %s %d/%d", ErrInvalidRatio, name, r.Num, r.Den)
	}
	return nil
}

// CalcParams are the fixed conversion parameters.
type CalcParams struct {
	// ScaleAdjustment converts input smallest units into output smallest
	// units, 10^(output decimals - input decimals).
	ScaleAdjustment num.Uint128
	Bonus           Ratio // paid to the user and, separately, to the referrer
	SafetyCap       Ratio // of current output supply, per swap
}

func DefaultCalcParams() CalcParams {
	scale, _ := num.Pow10(12) // 6-decimal input, 18-decimal output
	return CalcParams{
		ScaleAdjustment: scale,
		Bonus:           Ratio{Num: 10, Den: 100},
		SafetyCap:       Ratio{Num: 5, Den: 100},
	}
}

func (p CalcParams) Validate() error {
	if p.ScaleAdjustment.IsZero() {
		return fmt.Errorf("%w: zero scale adjustment", ErrInvalidRatio)
	}
	if err := p.Bonus.validate("bonus"); err != nil {
		return err
	}
	return p.SafetyCap.validate("safety cap")
}

// Quote is the result of one conversion. Without a referral Bonus and
// ReferrerAmount are zero and UserTotal equals BaseScaled.
type Quote struct {
	BaseScaled     num.Uint128 `json:"base_scaled"`
	Bonus          num.Uint128 `json:"user_bonus"`
	UserTotal      num.Uint128 `json:"total_to_user"`
	ReferrerAmount num.Uint128 `json:"referrer_bonus"`
	TotalMint      num.Uint128 `json:"total_to_mint"`
	SafetyLimit    num.Uint128 `json:"safety_limit"`
	Rate           num.Decimal `json:"rate_used"`
}

// Calculate converts amount at rate. It divides before scaling so the
// intermediate stays in input units, and rejects a mint above
// floor(supply * cap). Pure: preview and execution share it.
func Calculate(p CalcParams, amount num.Uint128, rate num.Decimal, referral bool, supply num.Uint128) (*Quote, error) {
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}
	if rate.IsZero() {
		return nil, ErrZeroRate
	}

	base, err := amount.QuoDecimal(rate)
	if err != nil {
		return nil, fmt.Errorf("base amount: %w", err)
	}
	scaled, err := base.Mul(p.ScaleAdjustment)
	if err != nil {
		return nil, fmt.Errorf("scale base amount: %w", err)
	}

	q := &Quote{BaseScaled: scaled, UserTotal: scaled, TotalMint: scaled, Rate: rate}
	if referral {
		bonus, err := scaled.MulRatio(num.NewUint128(p.Bonus.Num), num.NewUint128(p.Bonus.Den))
		if err != nil {
			return nil, fmt.Errorf("referral bonus: %w", err)
		}
		if q.UserTotal, err = scaled.Add(bonus); err != nil {
			return nil, fmt.Errorf("user total: %w", err)
		}
		if q.TotalMint, err = q.UserTotal.Add(bonus); err != nil {
			return nil, fmt.Errorf("total mint: %w", err)
		}
		q.Bonus = bonus
		q.ReferrerAmount = bonus
	}

	limit, err := SafetyLimit(p, supply)
	if err != nil {
		return nil, err
	}
	q.SafetyLimit = limit
	if q.TotalMint.GT(limit) {
		return nil, &SafetyLimitError{Requested: q.TotalMint, Limit: limit}
	}
	return q, nil
}

// SafetyLimit is floor(supply * cap).
func SafetyLimit(p CalcParams, supply num.Uint128) (num.Uint128, error) {
	limit, err := supply.MulRatio(num.NewUint128(p.SafetyCap.Num), num.NewUint128(p.SafetyCap.Den))
	if err != nil {
		return num.Uint128{}, fmt.Errorf("safety limit: %w", err)
	}
	return limit, nil
}
