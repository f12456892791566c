package num

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DecimalPlaces is the fixed number of fractional digits carried by Decimal.
const DecimalPlaces = 18

var decimalOne = func() Uint128 {
	v, _ := Pow10(DecimalPlaces)
	return v
}()

// Decimal is an unsigned fixed-point number with 18 fractional digits,
// stored as an integer count of 1e-18 units. All division floors.
type Decimal struct {
	atomics Uint128
}

func ZeroDecimal() Decimal { return Decimal{} }
func OneDecimal() Decimal  { return Decimal{atomics: decimalOne} }

// DecimalFromAtomics wraps a raw 1e-18 unit count.
func DecimalFromAtomics(a Uint128) Decimal {
	return Decimal{atomics: a}
}

func DecimalFromUint(u Uint128) (Decimal, error) {
	a, err := u.Mul(decimalOne)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{atomics: a}, nil
}

// DecimalFromRatio returns floor(num / den) at 18 digits of precision.
func DecimalFromRatio(num, den Uint128) (Decimal, error) {
	a, err := num.MulRatio(decimalOne, den)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{atomics: a}, nil
}

// ParseDecimal accepts plain decimal notation ("1.5", "0.000001").
// Values with more than 18 fractional digits are rejected rather than
// rounded so configured rates are exact.
func ParseDecimal(s string) (Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Decimal{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return DecimalFromShopspring(d)
}

func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

func DecimalFromShopspring(d decimal.Decimal) (Decimal, error) {
	if d.IsNegative() {
		return Decimal{}, ErrNegative
	}
	shifted := d.Shift(DecimalPlaces)
	if !shifted.IsInteger() {
		return Decimal{}, ErrPrecision
	}
	a, err := Uint128FromBig(shifted.BigInt())
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{atomics: a}, nil
}

func (d Decimal) Atomics() Uint128 { return d.atomics }

func (d Decimal) Add(o Decimal) (Decimal, error) {
	a, err := d.atomics.Add(o.atomics)
	return Decimal{atomics: a}, err
}

func (d Decimal) Sub(o Decimal) (Decimal, error) {
	a, err := d.atomics.Sub(o.atomics)
	return Decimal{atomics: a}, err
}

// Mul returns floor(d * o).
func (d Decimal) Mul(o Decimal) (Decimal, error) {
	a, err := d.atomics.MulRatio(o.atomics, decimalOne)
	return Decimal{atomics: a}, err
}

// Quo returns floor(d / o).
func (d Decimal) Quo(o Decimal) (Decimal, error) {
	a, err := d.atomics.MulRatio(decimalOne, o.atomics)
	return Decimal{atomics: a}, err
}

// Floor drops the fractional part.
func (d Decimal) Floor() Uint128 {
	v, _ := d.atomics.Quo(decimalOne)
	return v
}

// QuoDecimal returns floor(a / d) computed as floor(a * 1e18 / atomics(d)).
func (a Uint128) QuoDecimal(d Decimal) (Uint128, error) {
	return a.MulRatio(decimalOne, d.atomics)
}

// MulDecimal returns floor(a * d).
func (a Uint128) MulDecimal(d Decimal) (Uint128, error) {
	return a.MulRatio(d.atomics, decimalOne)
}

func (d Decimal) Cmp(o Decimal) int    { return d.atomics.Cmp(o.atomics) }
func (d Decimal) Equal(o Decimal) bool { return d.atomics.EQ(o.atomics) }
func (d Decimal) LT(o Decimal) bool    { return d.atomics.LT(o.atomics) }
func (d Decimal) GT(o Decimal) bool    { return d.atomics.GT(o.atomics) }
func (d Decimal) IsZero() bool         { return d.atomics.IsZero() }

// Shopspring converts to shopspring/decimal for formatting and for drivers
// that accept it (the ClickHouse Decimal column type does).
func (d Decimal) Shopspring() decimal.Decimal {
	return decimal.NewFromBigInt(d.atomics.Big(), -DecimalPlaces)
}

// Big returns the atomics as *big.Int.
func (d Decimal) Big() *big.Int { return d.atomics.Big() }

func (d Decimal) String() string {
	return d.Shopspring().String()
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	v, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
