package leaderboard

import (
	"context"
	"fmt"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
)

// Index is the bounded, descending list of codes by cumulative reward,
// stored as linked node rows plus head, tail and size cells.
//
// Among equal rewards earlier arrivals rank higher: a code being placed
// goes after every entry whose reward is >= its own, and a code already
// listed only moves when it strictly passes a neighbour.
type Index struct {
	kv       storage.KV
	rewards  RewardSource
	capacity int
	onHint   func(HintOutcome)
}

func New(kv storage.KV, rewards RewardSource, cfg Config) *Index {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	return &Index{kv: kv, rewards: rewards, capacity: cfg.Capacity, onHint: cfg.OnHint}
}

func (ix *Index) Capacity() int { return ix.capacity }

// Upsert places code according to reward, which must equal what the
// RewardSource now reports for it. The hint only affects cost.
func (ix *Index) Upsert(ctx context.Context, code string, reward num.Uint128, hint *Hint) (Change, error) {
	existing, err := ix.getNode(ctx, code)
	if err != nil {
		return Change{}, err
	}

	var oldPos uint32
	if existing != nil {
		fits, err := ix.fits(ctx, existing, reward)
		if err != nil {
			return Change{}, err
		}
		pos, err := ix.position(ctx, code)
		if err != nil {
			return Change{}, err
		}
		if fits {
			return Change{Kind: NoChange, Position: pos}, nil
		}
		oldPos = pos
		if err := ix.detach(ctx, code, existing); err != nil {
			return Change{}, err
		}
	}

	var evicted *string
	if existing == nil {
		size, err := ix.size(ctx)
		if err != nil {
			return Change{}, err
		}
		if int(size) > ix.capacity {
			return Change{}, fmt.Errorf("%w: size %d above capacity %d", ErrCorrupt, size, ix.capacity)
		}
		if int(size) == ix.capacity {
			evicted, hint, err = ix.evictFor(ctx, reward, hint)
			if err != nil {
				return Change{}, err
			}
			if evicted == nil {
				return Change{Kind: NotQualified}, nil
			}
		}
	}

	after, err := ix.locate(ctx, reward, hint)
	if err != nil {
		return Change{}, err
	}
	if err := ix.insertAfter(ctx, code, after); err != nil {
		return Change{}, err
	}
	pos, err := ix.position(ctx, code)
	if err != nil {
		return Change{}, err
	}

	ch := Change{Position: pos, Evicted: evicted}
	switch {
	case existing == nil:
		ch.Kind = NewEntry
	case pos < oldPos:
		ch.Kind = PositionUp
	case pos > oldPos:
		ch.Kind = PositionDown
	default:
		ch.Kind = NoChange
	}
	return ch, nil
}

// fits reports whether a listed node can keep its slot at the new reward.
func (ix *Index) fits(ctx context.Context, n *node, reward num.Uint128) (bool, error) {
	if n.Prev != nil {
		pr, err := ix.rewardOf(ctx, *n.Prev)
		if err != nil {
			return false, err
		}
		if reward.GT(pr) {
			return false, nil
		}
	}
	if n.Next != nil {
		nr, err := ix.rewardOf(ctx, *n.Next)
		if err != nil {
			return false, err
		}
		if nr.GT(reward) {
			return false, nil
		}
	}
	return true, nil
}

// evictFor drops the tail when reward strictly beats it. It returns the
// evicted code (nil when the newcomer does not qualify) and the hint to
// continue with: a hint naming the evicted tail is redirected to the
// tail's former predecessor.
func (ix *Index) evictFor(ctx context.Context, reward num.Uint128, hint *Hint) (*string, *Hint, error) {
	tail, err := ix.tail(ctx)
	if err != nil {
		return nil, nil, err
	}
	if tail == nil {
		return nil, nil, fmt.Errorf("%w: full list without tail", ErrCorrupt)
	}
	tr, err := ix.rewardOf(ctx, *tail)
	if err != nil {
		return nil, nil, err
	}
	if !reward.GT(tr) {
		return nil, hint, nil
	}

	tn, err := ix.linked(ctx, *tail)
	if err != nil {
		return nil, nil, err
	}
	if err := ix.detach(ctx, *tail, tn); err != nil {
		return nil, nil, err
	}
	if hint != nil && hint.InsertAfter != nil && *hint.InsertAfter == *tail {
		hint = &Hint{InsertAfter: tn.Prev}
	}
	return tail, hint, nil
}

// locate returns the predecessor the new entry goes after (nil for head).
func (ix *Index) locate(ctx context.Context, reward num.Uint128, hint *Hint) (*string, error) {
	if hint == nil {
		ix.observe(HintNone)
		tail, err := ix.tail(ctx)
		if err != nil {
			return nil, err
		}
		return ix.walkUp(ctx, tail, reward)
	}

	if hint.InsertAfter == nil {
		head, err := ix.head(ctx)
		if err != nil {
			return nil, err
		}
		if head == nil {
			ix.observe(HintValid)
			return nil, nil
		}
		hr, err := ix.rewardOf(ctx, *head)
		if err != nil {
			return nil, err
		}
		if hr.LT(reward) {
			ix.observe(HintValid)
			return nil, nil
		}
		ix.observe(HintTooHigh)
		return ix.walkDown(ctx, *head, reward)
	}

	claimed := *hint.InsertAfter
	cn, err := ix.getNode(ctx, claimed)
	if err != nil {
		return nil, err
	}
	if cn == nil {
		ix.observe(HintUnknown)
		tail, err := ix.tail(ctx)
		if err != nil {
			return nil, err
		}
		return ix.walkUp(ctx, tail, reward)
	}

	cr, err := ix.rewardOf(ctx, claimed)
	if err != nil {
		return nil, err
	}
	if cr.LT(reward) {
		ix.observe(HintTooLow)
		return ix.walkUp(ctx, cn.Prev, reward)
	}
	if cn.Next == nil {
		ix.observe(HintValid)
		return &claimed, nil
	}
	nr, err := ix.rewardOf(ctx, *cn.Next)
	if err != nil {
		return nil, err
	}
	if nr.LT(reward) {
		ix.observe(HintValid)
		return &claimed, nil
	}
	ix.observe(HintTooHigh)
	return ix.walkDown(ctx, *cn.Next, reward)
}

// walkUp moves toward the head from start and returns the first code whose
// reward is >= reward, or nil when none is.
func (ix *Index) walkUp(ctx context.Context, start *string, reward num.Uint128) (*string, error) {
	cur := start
	for steps := 0; cur != nil; steps++ {
		if steps > ix.capacity {
			return nil, fmt.Errorf("%w: upward walk exceeded %d steps", ErrCorrupt, ix.capacity)
		}
		r, err := ix.rewardOf(ctx, *cur)
		if err != nil {
			return nil, err
		}
		if r.GTE(reward) {
			return cur, nil
		}
		n, err := ix.linked(ctx, *cur)
		if err != nil {
			return nil, err
		}
		cur = n.Prev
	}
	return nil, nil
}

// walkDown moves toward the tail from start, whose reward is known to be
// >= reward, and returns the last code whose reward is >= reward.
func (ix *Index) walkDown(ctx context.Context, start string, reward num.Uint128) (*string, error) {
	cur := start
	for steps := 0; ; steps++ {
		if steps > ix.capacity {
			return nil, fmt.Errorf("%w: downward walk exceeded %d steps", ErrCorrupt, ix.capacity)
		}
		n, err := ix.linked(ctx, cur)
		if err != nil {
			return nil, err
		}
		if n.Next == nil {
			return &cur, nil
		}
		nr, err := ix.rewardOf(ctx, *n.Next)
		if err != nil {
			return nil, err
		}
		if nr.LT(reward) {
			return &cur, nil
		}
		cur = *n.Next
	}
}

func (ix *Index) observe(o HintOutcome) {
	if ix.onHint != nil {
		ix.onHint(o)
	}
}
