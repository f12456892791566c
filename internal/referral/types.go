package referral

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("referral code not found")
	ErrInvalidCode  = errors.New("invalid referral code")
	ErrInvalidOwner = errors.New("invalid owner")
	ErrCodeTaken    = errors.New("referral code already registered")
	ErrOwnerLimit   = errors.New("owner has reached the referral code limit")
)

// MaxCodesPerOwner caps registrations per owner.
const MaxCodesPerOwner = 10

// Validation is the oracle's answer for one code.
type Validation struct {
	IsValidFormat bool    `json:"is_valid_format"`
	IsRegistered  bool    `json:"is_registered"`
	Owner         *string `json:"owner,omitempty"`
}

// Oracle validates referral codes. Implementations normalize the code
// before lookup. A malformed code is a normal answer (IsValidFormat false),
// not an error.
type Oracle interface {
	ValidateCode(ctx context.Context, code string) (Validation, error)
}

// Code is a registered referral code.
type Code struct {
	Code      string    `json:"code"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry is the writable side used by the admin API.
type Registry interface {
	Oracle
	Register(ctx context.Context, code, owner string) (*Code, error)
	Get(ctx context.Context, code string) (*Code, error)
	ListByOwner(ctx context.Context, owner string) ([]*Code, error)
	Delete(ctx context.Context, code string) error
}
