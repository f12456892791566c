package leaderboard

import (
	"context"
	"fmt"
)

// position walks from the head; zero means code is not listed.
func (ix *Index) position(ctx context.Context, code string) (uint32, error) {
	cur, err := ix.head(ctx)
	if err != nil {
		return 0, err
	}
	for rank := uint32(1); cur != nil; rank++ {
		if int(rank) > ix.capacity {
			return 0, fmt.Errorf("%w: list longer than capacity %d", ErrCorrupt, ix.capacity)
		}
		if *cur == code {
			return rank, nil
		}
		n, err := ix.linked(ctx, *cur)
		if err != nil {
			return 0, err
		}
		cur = n.Next
	}
	return 0, nil
}

// PositionOf returns the 1-indexed rank of code, or nil if it is not listed.
func (ix *Index) PositionOf(ctx context.Context, code string) (*uint32, error) {
	n, err := ix.getNode(ctx, code)
	if err != nil || n == nil {
		return nil, err
	}
	pos, err := ix.position(ctx, code)
	if err != nil {
		return nil, err
	}
	if pos == 0 {
		return nil, fmt.Errorf("%w: %q has a node but is unreachable from head", ErrCorrupt, code)
	}
	return &pos, nil
}

// Range pages forward from the entry after startAfter. An unknown or
// unlisted startAfter starts from the head. limit <= 0 means DefaultLimit
// and anything above MaxLimit is clamped.
func (ix *Index) Range(ctx context.Context, startAfter *string, limit int) ([]Entry, bool, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	started := true
	if startAfter != nil {
		n, err := ix.getNode(ctx, *startAfter)
		if err != nil {
			return nil, false, err
		}
		started = n == nil
	}

	cur, err := ix.head(ctx)
	if err != nil {
		return nil, false, err
	}
	out := make([]Entry, 0, limit)
	for rank := uint32(1); cur != nil; rank++ {
		if int(rank) > ix.capacity {
			return nil, false, fmt.Errorf("%w: list longer than capacity %d", ErrCorrupt, ix.capacity)
		}
		if started {
			if len(out) == limit {
				return out, true, nil
			}
			r, err := ix.rewardOf(ctx, *cur)
			if err != nil {
				return nil, false, err
			}
			out = append(out, Entry{Rank: rank, Code: *cur, Reward: r})
		} else if *cur == *startAfter {
			started = true
		}
		n, err := ix.linked(ctx, *cur)
		if err != nil {
			return nil, false, err
		}
		cur = n.Next
	}
	return out, false, nil
}

func (ix *Index) Size(ctx context.Context) (uint32, error) {
	return ix.size(ctx)
}

// Verify walks the whole list and checks every structural invariant:
// back-links, head/tail, non-increasing rewards, size. It returns the
// codes in rank order.
func (ix *Index) Verify(ctx context.Context) ([]string, error) {
	head, err := ix.head(ctx)
	if err != nil {
		return nil, err
	}
	tail, err := ix.tail(ctx)
	if err != nil {
		return nil, err
	}
	size, err := ix.size(ctx)
	if err != nil {
		return nil, err
	}
	if int(size) > ix.capacity {
		return nil, fmt.Errorf("%w: size %d above capacity %d", ErrCorrupt, size, ix.capacity)
	}
	if (head == nil) != (tail == nil) {
		return nil, fmt.Errorf("%w: head and tail disagree on emptiness", ErrCorrupt)
	}

	var (
		codes []string
		prev  *string
	)
	for cur := head; cur != nil; {
		if len(codes) >= ix.capacity {
			return nil, fmt.Errorf("%w: list longer than capacity %d", ErrCorrupt, ix.capacity)
		}
		n, err := ix.linked(ctx, *cur)
		if err != nil {
			return nil, err
		}
		if !sameCode(n.Prev, prev) {
			return nil, fmt.Errorf("%w: %q has wrong back-link", ErrCorrupt, *cur)
		}
		if prev != nil {
			pr, err := ix.rewardOf(ctx, *prev)
			if err != nil {
				return nil, err
			}
			cr, err := ix.rewardOf(ctx, *cur)
			if err != nil {
				return nil, err
			}
			if cr.GT(pr) {
				return nil, fmt.Errorf("%w: %q (%s) ranked below %q (%s)", ErrCorrupt, *cur, cr, *prev, pr)
			}
		}
		codes = append(codes, *cur)
		prev = cur
		cur = n.Next
	}

	if !sameCode(prev, tail) {
		return nil, fmt.Errorf("%w: tail does not match last node", ErrCorrupt)
	}
	if int(size) != len(codes) {
		return nil, fmt.Errorf("%w: size %d but %d reachable nodes", ErrCorrupt, size, len(codes))
	}
	return codes, nil
}

func sameCode(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
