package num

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow     = errors.New("num: overflow")
	ErrUnderflow    = errors.New("num: underflow")
	ErrDivideByZero = errors.New("num: divide by zero")
	ErrNegative     = errors.New("num: negative value")
	ErrPrecision    = errors.New("num: too many fractional digits")
	ErrSyntax       = errors.New("num: invalid number")
)

// max128 is 2^128 - 1.
var max128 = func() uint256.Int {
	var m uint256.Int
	m.Lsh(uint256.NewInt(1), 128)
	m.SubUint64(&m, 1)
	return m
}()

// Uint128 is an unsigned 128-bit integer. Intermediates are computed in
// 256 bits, so a product of two Uint128 values never wraps before the range
// check.
type Uint128 struct {
	u uint256.Int
}

func NewUint128(v uint64) Uint128 {
	return Uint128{u: *uint256.NewInt(v)}
}

// Uint128FromString parses a base-10 string.
func Uint128FromString(s string) (Uint128, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Uint128{}, ErrSyntax
	}
	if strings.HasPrefix(s, "-") {
		return Uint128{}, ErrNegative
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Uint128{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return fromInt(v)
}

// MustUint128 panics on malformed input; meant for constants and tests.
func MustUint128(s string) Uint128 {
	v, err := Uint128FromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Uint128FromBig returns ErrOverflow when b does not fit.
func Uint128FromBig(b *big.Int) (Uint128, error) {
	if b.Sign() < 0 {
		return Uint128{}, ErrNegative
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Uint128{}, ErrOverflow
	}
	return fromInt(v)
}

// Pow10 returns 10^n.
func Pow10(n uint) (Uint128, error) {
	if n > 38 {
		return Uint128{}, ErrOverflow
	}
	var r uint256.Int
	r.Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
	return Uint128{u: r}, nil
}

func fromInt(v *uint256.Int) (Uint128, error) {
	if v.Gt(&max128) {
		return Uint128{}, ErrOverflow
	}
	return Uint128{u: *v}, nil
}

func (a Uint128) Add(b Uint128) (Uint128, error) {
	var r uint256.Int
	r.Add(&a.u, &b.u)
	return fromInt(&r)
}

func (a Uint128) Sub(b Uint128) (Uint128, error) {
	if a.u.Lt(&b.u) {
		return Uint128{}, ErrUnderflow
	}
	var r uint256.Int
	r.Sub(&a.u, &b.u)
	return Uint128{u: r}, nil
}

func (a Uint128) Mul(b Uint128) (Uint128, error) {
	var r uint256.Int
	r.Mul(&a.u, &b.u)
	return fromInt(&r)
}

// Quo is floor division.
func (a Uint128) Quo(b Uint128) (Uint128, error) {
	if b.u.IsZero() {
		return Uint128{}, ErrDivideByZero
	}
	var r uint256.Int
	r.Div(&a.u, &b.u)
	return Uint128{u: r}, nil
}

// MulRatio computes floor(a * num / den) with a 256-bit intermediate.
func (a Uint128) MulRatio(num, den Uint128) (Uint128, error) {
	if den.u.IsZero() {
		return Uint128{}, ErrDivideByZero
	}
	var r uint256.Int
	r.Mul(&a.u, &num.u)
	r.Div(&r, &den.u)
	return fromInt(&r)
}

// MulRatioCeil computes ceil(a * num / den) with a 256-bit intermediate.
func (a Uint128) MulRatioCeil(num, den Uint128) (Uint128, error) {
	if den.u.IsZero() {
		return Uint128{}, ErrDivideByZero
	}
	var prod, q, rem uint256.Int
	prod.Mul(&a.u, &num.u)
	q.DivMod(&prod, &den.u, &rem)
	if !rem.IsZero() {
		q.AddUint64(&q, 1)
	}
	return fromInt(&q)
}

func (a Uint128) Cmp(b Uint128) int { return a.u.Cmp(&b.u) }
func (a Uint128) LT(b Uint128) bool { return a.u.Lt(&b.u) }
func (a Uint128) GT(b Uint128) bool { return a.u.Gt(&b.u) }
func (a Uint128) LTE(b Uint128) bool {
	return !a.u.Gt(&b.u)
}
func (a Uint128) GTE(b Uint128) bool {
	return !a.u.Lt(&b.u)
}
func (a Uint128) EQ(b Uint128) bool { return a.u.Eq(&b.u) }
func (a Uint128) IsZero() bool      { return a.u.IsZero() }

// Big returns a copy as *big.Int.
func (a Uint128) Big() *big.Int {
	return a.u.ToBig()
}

func (a Uint128) String() string {
	return a.u.Dec()
}

// MarshalJSON encodes as a quoted decimal string; JSON numbers lose
// precision past 2^53 in most clients.
func (a Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Uint128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// accept bare numbers as well
		s = string(data)
	}
	v, err := Uint128FromString(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Uint128) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Uint128) UnmarshalText(data []byte) error {
	v, err := Uint128FromString(string(data))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
