package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
)

const (
	nodePrefix = "lb:node:"
	headKey    = "lb:head"
	tailKey    = "lb:tail"
	sizeKey    = "lb:size"
)

func nodeKey(code string) string { return nodePrefix + code }

func (ix *Index) getNode(ctx context.Context, code string) (*node, error) {
	var n node
	found, err := storage.GetJSON(ctx, ix.kv, nodeKey(code), &n)
	if err != nil || !found {
		return nil, err
	}
	return &n, nil
}

// linked loads a node that some other row points at; absence is corruption.
func (ix *Index) linked(ctx context.Context, code string) (*node, error) {
	n, err := ix.getNode(ctx, code)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: dangling link to %q", ErrCorrupt, code)
	}
	return n, nil
}

func (ix *Index) putNode(ctx context.Context, code string, n *node) error {
	return storage.PutJSON(ctx, ix.kv, nodeKey(code), n)
}

func (ix *Index) deleteNode(ctx context.Context, code string) error {
	return ix.kv.Delete(ctx, nodeKey(code))
}

func (ix *Index) getCell(ctx context.Context, key string) (*string, error) {
	var s string
	found, err := storage.GetJSON(ctx, ix.kv, key, &s)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

func (ix *Index) setCell(ctx context.Context, key string, v *string) error {
	if v == nil {
		return ix.kv.Delete(ctx, key)
	}
	return storage.PutJSON(ctx, ix.kv, key, *v)
}

func (ix *Index) head(ctx context.Context) (*string, error) { return ix.getCell(ctx, headKey) }
func (ix *Index) tail(ctx context.Context) (*string, error) { return ix.getCell(ctx, tailKey) }

func (ix *Index) setHead(ctx context.Context, v *string) error { return ix.setCell(ctx, headKey, v) }
func (ix *Index) setTail(ctx context.Context, v *string) error { return ix.setCell(ctx, tailKey, v) }

func (ix *Index) size(ctx context.Context) (uint32, error) {
	var n uint32
	if _, err := storage.GetJSON(ctx, ix.kv, sizeKey, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (ix *Index) setSize(ctx context.Context, n uint32) error {
	return storage.PutJSON(ctx, ix.kv, sizeKey, n)
}

// rewardOf resolves the ranking key of a linked code.
func (ix *Index) rewardOf(ctx context.Context, code string) (num.Uint128, error) {
	r, err := ix.rewards.RewardOf(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return num.Uint128{}, fmt.Errorf("%w: no reward for linked code %q", ErrCorrupt, code)
	}
	return r, err
}

// detach splices code out of the list and drops its node row.
func (ix *Index) detach(ctx context.Context, code string, n *node) error {
	if n.Prev != nil {
		pn, err := ix.linked(ctx, *n.Prev)
		if err != nil {
			return err
		}
		if pn.Next == nil || *pn.Next != code {
			return fmt.Errorf("%w: %q does not link forward to %q", ErrCorrupt, *n.Prev, code)
		}
		pn.Next = n.Next
		if err := ix.putNode(ctx, *n.Prev, pn); err != nil {
			return err
		}
	} else if err := ix.setHead(ctx, n.Next); err != nil {
		return err
	}

	if n.Next != nil {
		nn, err := ix.linked(ctx, *n.Next)
		if err != nil {
			return err
		}
		if nn.Prev == nil || *nn.Prev != code {
			return fmt.Errorf("%w: %q does not link back to %q", ErrCorrupt, *n.Next, code)
		}
		nn.Prev = n.Prev
		if err := ix.putNode(ctx, *n.Next, nn); err != nil {
			return err
		}
	} else if err := ix.setTail(ctx, n.Prev); err != nil {
		return err
	}

	if err := ix.deleteNode(ctx, code); err != nil {
		return err
	}
	size, err := ix.size(ctx)
	if err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("%w: size underflow removing %q", ErrCorrupt, code)
	}
	return ix.setSize(ctx, size-1)
}

// insertAfter links code after the given predecessor, or at the head when
// after is nil.
func (ix *Index) insertAfter(ctx context.Context, code string, after *string) error {
	self := code
	var next *string

	if after == nil {
		head, err := ix.head(ctx)
		if err != nil {
			return err
		}
		next = head
		if err := ix.setHead(ctx, &self); err != nil {
			return err
		}
	} else {
		an, err := ix.linked(ctx, *after)
		if err != nil {
			return err
		}
		next = an.Next
		an.Next = &self
		if err := ix.putNode(ctx, *after, an); err != nil {
			return err
		}
	}

	if next != nil {
		nn, err := ix.linked(ctx, *next)
		if err != nil {
			return err
		}
		nn.Prev = &self
		if err := ix.putNode(ctx, *next, nn); err != nil {
			return err
		}
	} else if err := ix.setTail(ctx, &self); err != nil {
		return err
	}

	if err := ix.putNode(ctx, code, &node{Prev: after, Next: next}); err != nil {
		return err
	}
	size, err := ix.size(ctx)
	if err != nil {
		return err
	}
	return ix.setSize(ctx, size+1)
}
