package storage

import (
	"context"
	"errors"
	"io"

	"github.com/aman-zulfiqar/referral-swap/internal/models"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("storage: key not found")

// ErrConflict is returned by a guarded commit when a value the batch read
// changed before the write landed. Nothing was written; the caller may
// rerun the whole operation.
var ErrConflict = errors.New("storage: read set changed before commit")

// Reader reads single keys
type Reader interface {
	// Get returns ErrNotFound when the key is absent
	Get(ctx context.Context, key string) ([]byte, error)
}

// KV is the handle components read and write state through.
// Ledger and leaderboard code never touch a backend directly; they are
// handed a KV, normally a *Batch.
type KV interface {
	Reader
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Op is one buffered mutation. Delete ops carry no value.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Store is a backend that applies a set of ops all-or-nothing
type Store interface {
	Reader

	// Commit applies every op or none of them
	Commit(ctx context.Context, ops []Op) error

	// Ping checks if the backend is reachable
	Ping(ctx context.Context) error

	io.Closer
}

// Read is a value a batch observed in its store. Found is false for a miss.
type Read struct {
	Key   string
	Value []byte
	Found bool
}

// GuardedStore is a Store shared by several writer processes. CommitIf
// applies ops only if every read still holds, else returns ErrConflict.
// Stores owned by one process rely on the caller serialising writers.
type GuardedStore interface {
	Store
	CommitIf(ctx context.Context, reads []Read, ops []Op) error
}

// SwapPublisher fans committed swaps out to live subscribers
type SwapPublisher interface {
	PublishSwap(ctx context.Context, swap *models.SwapEvent) error
}

// SwapStore defines the interface for persistent swap history
type SwapStore interface {
	// InsertSwap appends a committed swap
	InsertSwap(ctx context.Context, swap *models.SwapEvent) error

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}

// SwapHandler is a function that processes swap events
type SwapHandler func(*models.SwapEvent)
