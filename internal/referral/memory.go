package referral

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry for tests and single-node runs.
type MemoryRegistry struct {
	mu    sync.RWMutex
	codes map[string]Code
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{codes: make(map[string]Code)}
}

func (m *MemoryRegistry) Register(_ context.Context, code, owner string) (*Code, error) {
	c, err := Normalize(code)
	if err != nil {
		return nil, err
	}
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[c]; ok {
		return nil, ErrCodeTaken
	}
	n := 0
	for _, rec := range m.codes {
		if rec.Owner == owner {
			n++
		}
	}
	if n >= MaxCodesPerOwner {
		return nil, ErrOwnerLimit
	}

	rec := Code{Code: c, Owner: owner, CreatedAt: time.Now().UTC()}
	m.codes[c] = rec
	return &rec, nil
}

func (m *MemoryRegistry) Get(_ context.Context, code string) (*Code, error) {
	c, err := Normalize(code)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.codes[c]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryRegistry) ListByOwner(_ context.Context, owner string) ([]*Code, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Code{}
	for _, rec := range m.codes {
		if rec.Owner == owner {
			r := rec
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryRegistry) Delete(_ context.Context, code string) error {
	c, err := Normalize(code)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, c)
	return nil
}

func (m *MemoryRegistry) ValidateCode(ctx context.Context, code string) (Validation, error) {
	return validateWith(ctx, code, m.Get)
}
