package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Batch buffers writes over a Store. Reads see the batch's own pending
// writes first, so a multi-step operation observes its own state before
// anything is persisted. Nothing reaches the Store until Commit.
//
// The first store read of each key is remembered; over a GuardedStore the
// commit is rejected with ErrConflict if any of them has since changed.
type Batch struct {
	store   Store
	pending map[string]*Op
	order   []string
	reads   map[string]Read
}

func NewBatch(store Store) *Batch {
	return &Batch{store: store, pending: make(map[string]*Op), reads: make(map[string]Read)}
}

func (b *Batch) Get(ctx context.Context, key string) ([]byte, error) {
	if op, ok := b.pending[key]; ok {
		if op.Delete {
			return nil, ErrNotFound
		}
		return op.Value, nil
	}

	v, err := b.store.Get(ctx, key)
	switch {
	case err == nil:
		if _, seen := b.reads[key]; !seen {
			b.reads[key] = Read{Key: key, Value: append([]byte(nil), v...), Found: true}
		}
	case errors.Is(err, ErrNotFound):
		if _, seen := b.reads[key]; !seen {
			b.reads[key] = Read{Key: key}
		}
	}
	return v, err
}

func (b *Batch) Set(_ context.Context, key string, value []byte) error {
	b.put(Op{Key: key, Value: append([]byte(nil), value...)})
	return nil
}

func (b *Batch) Delete(_ context.Context, key string) error {
	b.put(Op{Key: key, Delete: true})
	return nil
}

func (b *Batch) put(op Op) {
	if _, ok := b.pending[op.Key]; !ok {
		b.order = append(b.order, op.Key)
	}
	b.pending[op.Key] = &op
}

// Ops returns pending mutations in first-write order.
func (b *Batch) Ops() []Op {
	out := make([]Op, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, *b.pending[k])
	}
	return out
}

func (b *Batch) Len() int { return len(b.order) }

// Reads returns the recorded store reads sorted by key.
func (b *Batch) Reads() []Read {
	out := make([]Read, 0, len(b.reads))
	for _, r := range b.reads {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Commit hands every pending op to the store in one call and clears the
// batch on success. On failure the batch is left intact.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.order) == 0 {
		return nil
	}

	var err error
	if gs, ok := b.store.(GuardedStore); ok {
		err = gs.CommitIf(ctx, b.Reads(), b.Ops())
	} else {
		err = b.store.Commit(ctx, b.Ops())
	}
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	b.Discard()
	return nil
}

// Discard drops pending writes and recorded reads.
func (b *Batch) Discard() {
	b.pending = make(map[string]*Op)
	b.order = nil
	b.reads = make(map[string]Read)
}

// GetJSON decodes the value at key into v. found is false on a miss.
func GetJSON(ctx context.Context, r Reader, key string, v any) (bool, error) {
	raw, err := r.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and writes it at key.
func PutJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return kv.Set(ctx, key, b)
}
