package leaderboard

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRewards map[string]uint64

func (f fakeRewards) RewardOf(_ context.Context, code string) (num.Uint128, error) {
	r, ok := f[code]
	if !ok {
		return num.Uint128{}, fmt.Errorf("reward %q: %w", code, storage.ErrNotFound)
	}
	return num.NewUint128(r), nil
}

// countingKV counts mutations so tests can assert that a call wrote nothing.
type countingKV struct {
	storage.KV
	writes int
}

func (c *countingKV) Set(ctx context.Context, key string, value []byte) error {
	c.writes++
	return c.KV.Set(ctx, key, value)
}

func (c *countingKV) Delete(ctx context.Context, key string) error {
	c.writes++
	return c.KV.Delete(ctx, key)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	kv      *countingKV
	rewards fakeRewards
	ix      *Index
	hints   []HintOutcome
}

func newFixture(t *testing.T, capacity int) *fixture {
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		kv:      &countingKV{KV: storage.NewBatch(storage.NewMemStore())},
		rewards: fakeRewards{},
	}
	f.ix = New(f.kv, f.rewards, Config{
		Capacity: capacity,
		OnHint:   func(o HintOutcome) { f.hints = append(f.hints, o) },
	})
	return f
}

func (f *fixture) upsert(code string, reward uint64, hint *Hint) Change {
	f.t.Helper()
	f.rewards[code] = reward
	ch, err := f.ix.Upsert(f.ctx, code, num.NewUint128(reward), hint)
	require.NoError(f.t, err)
	return ch
}

func (f *fixture) order() []string {
	f.t.Helper()
	codes, err := f.ix.Verify(f.ctx)
	require.NoError(f.t, err)
	return codes
}

func after(code string) *Hint { return &Hint{InsertAfter: &code} }

func headHint() *Hint { return &Hint{} }

func TestUpsert_EmptyList(t *testing.T) {
	f := newFixture(t, 0)

	codes := f.order()
	assert.Empty(t, codes)

	ch := f.upsert("alice", 10, nil)
	assert.Equal(t, Change{Kind: NewEntry, Position: 1}, ch)
	assert.Equal(t, []string{"alice"}, f.order())

	head, err := f.ix.head(f.ctx)
	require.NoError(t, err)
	tail, err := f.ix.tail(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", *head)
	assert.Equal(t, "alice", *tail)
}

func TestUpsert_EmptyListWithHeadHint(t *testing.T) {
	f := newFixture(t, 0)
	ch := f.upsert("alice", 10, headHint())
	assert.Equal(t, NewEntry, ch.Kind)
	assert.Equal(t, []HintOutcome{HintValid}, f.hints)
}

func TestUpsert_SameRewardTwiceIsNoChange(t *testing.T) {
	f := newFixture(t, 0)
	f.upsert("a", 30, nil)
	f.upsert("b", 20, nil)
	f.upsert("c", 10, nil)

	before := f.kv.writes
	ch := f.upsert("b", 20, after("c"))
	assert.Equal(t, Change{Kind: NoChange, Position: 2}, ch)
	assert.Equal(t, before, f.kv.writes)

	ch = f.upsert("b", 20, nil)
	assert.Equal(t, NoChange, ch.Kind)
	assert.Equal(t, before, f.kv.writes)
}

func TestUpsert_PassingRewardImprovesRank(t *testing.T) {
	f := newFixture(t, 0)
	f.upsert("a", 30, nil)
	f.upsert("b", 20, nil)
	f.upsert("c", 10, nil)

	ch := f.upsert("c", 31, nil)
	assert.Equal(t, Change{Kind: PositionUp, Position: 1}, ch)
	assert.Equal(t, []string{"c", "a", "b"}, f.order())

	// equal to the predecessor is not a pass
	ch = f.upsert("b", 30, nil)
	assert.Equal(t, Change{Kind: NoChange, Position: 3}, ch)

	ch = f.upsert("b", 32, after("c"))
	assert.Equal(t, Change{Kind: PositionUp, Position: 1}, ch)
	assert.Equal(t, []string{"b", "c", "a"}, f.order())
}

func TestUpsert_TiesKeepArrivalOrder(t *testing.T) {
	f := newFixture(t, 0)
	f.upsert("first", 100, nil)
	f.upsert("second", 100, headHint())
	f.upsert("third", 100, after("first"))

	assert.Equal(t, []string{"first", "second", "third"}, f.order())
}

func TestUpsert_DecreaseMovesDown(t *testing.T) {
	f := newFixture(t, 0)
	f.upsert("a", 300, nil)
	f.upsert("b", 200, nil)
	f.upsert("c", 100, nil)

	ch := f.upsert("a", 150, nil)
	assert.Equal(t, Change{Kind: PositionDown, Position: 2}, ch)
	assert.Equal(t, []string{"b", "a", "c"}, f.order())
}

func fourEntries(t *testing.T) *fixture {
	f := newFixture(t, 0)
	f.upsert("a", 400, nil)
	f.upsert("b", 300, nil)
	f.upsert("c", 200, nil)
	f.upsert("d", 100, nil)
	f.hints = nil
	return f
}

func TestUpsert_HintMisdirectionConverges(t *testing.T) {
	want := []string{"a", "b", "x", "c", "d"}

	cases := []struct {
		name    string
		hint    *Hint
		outcome HintOutcome
	}{
		{"correct", after("b"), HintValid},
		{"too high", after("a"), HintTooHigh},
		{"too low", after("d"), HintTooLow},
		{"head claim", headHint(), HintTooHigh},
		{"unknown code", after("ghost"), HintUnknown},
		{"self", after("x"), HintUnknown},
		{"none", nil, HintNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := fourEntries(t)
			ch := f.upsert("x", 250, tc.hint)
			assert.Equal(t, Change{Kind: NewEntry, Position: 3}, ch)
			assert.Equal(t, want, f.order())
			assert.Equal(t, []HintOutcome{tc.outcome}, f.hints)
		})
	}
}

func TestUpsert_NewHeadAndTail(t *testing.T) {
	f := fourEntries(t)

	ch := f.upsert("top", 500, after("c"))
	assert.Equal(t, Change{Kind: NewEntry, Position: 1}, ch)

	ch = f.upsert("bottom", 50, after("top"))
	assert.Equal(t, Change{Kind: NewEntry, Position: 6}, ch)

	assert.Equal(t, []string{"top", "a", "b", "c", "d", "bottom"}, f.order())
}

func fill(f *fixture) {
	// c00 = 10 ... c49 = 500, inserted lowest first
	for i := 0; i < DefaultCapacity; i++ {
		f.upsert(fmt.Sprintf("c%02d", i), uint64(10*(i+1)), nil)
	}
	f.hints = nil
}

func TestUpsert_FullListEvictsMinimum(t *testing.T) {
	f := newFixture(t, 0)
	fill(f)

	ch := f.upsert("new", 15, nil)
	require.NotNil(t, ch.Evicted)
	assert.Equal(t, "c00", *ch.Evicted)
	assert.Equal(t, NewEntry, ch.Kind)
	assert.Equal(t, uint32(50), ch.Position)

	size, err := f.ix.Size(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultCapacity), size)

	pos, err := f.ix.PositionOf(f.ctx, "c00")
	require.NoError(t, err)
	assert.Nil(t, pos)

	codes := f.order()
	assert.Len(t, codes, DefaultCapacity)
	assert.Equal(t, "new", codes[len(codes)-1])
}

func TestUpsert_FullListRejectsNotGreater(t *testing.T) {
	f := newFixture(t, 0)
	fill(f)

	before := f.kv.writes
	ch := f.upsert("equal", 10, nil)
	assert.Equal(t, Change{Kind: NotQualified}, ch)
	ch = f.upsert("lower", 1, after("c49"))
	assert.Equal(t, Change{Kind: NotQualified}, ch)
	assert.Equal(t, before, f.kv.writes)
	assert.Empty(t, f.hints)

	assert.Len(t, f.order(), DefaultCapacity)
}

func TestUpsert_HintAtEvictedTailIsRedirected(t *testing.T) {
	f := newFixture(t, 0)
	fill(f)

	ch := f.upsert("new", 15, after("c00"))
	assert.Equal(t, uint32(50), ch.Position)
	assert.Equal(t, []HintOutcome{HintValid}, f.hints)

	codes := f.order()
	assert.Equal(t, []string{"c01", "new"}, codes[len(codes)-2:])
}

func TestUpsert_ListedCodeNeverEvictsWhenFull(t *testing.T) {
	f := newFixture(t, 0)
	fill(f)

	ch := f.upsert("c00", 1000, nil)
	assert.Equal(t, Change{Kind: PositionUp, Position: 1}, ch)
	assert.Nil(t, ch.Evicted)
	assert.Len(t, f.order(), DefaultCapacity)
}

func TestUpsert_SingleSlotCapacity(t *testing.T) {
	f := newFixture(t, 1)
	f.upsert("a", 10, nil)

	ch := f.upsert("b", 20, after("a"))
	require.NotNil(t, ch.Evicted)
	assert.Equal(t, "a", *ch.Evicted)
	assert.Equal(t, Change{Kind: NewEntry, Position: 1, Evicted: ch.Evicted}, ch)
	assert.Equal(t, []string{"b"}, f.order())
}

// refModel is a slice-based reference with the same tie rule.
type refModel struct {
	k       int
	order   []string
	rewards fakeRewards
}

func (m *refModel) upsert(code string) (Kind, uint32) {
	r := m.rewards[code]
	idx := -1
	for i, c := range m.order {
		if c == code {
			idx = i
		}
	}

	if idx >= 0 {
		fits := (idx == 0 || m.rewards[m.order[idx-1]] >= r) &&
			(idx == len(m.order)-1 || m.rewards[m.order[idx+1]] <= r)
		if fits {
			return NoChange, uint32(idx + 1)
		}
		m.order = append(m.order[:idx], m.order[idx+1:]...)
	} else if len(m.order) == m.k {
		if r <= m.rewards[m.order[len(m.order)-1]] {
			return NotQualified, 0
		}
		m.order = m.order[:len(m.order)-1]
	}

	pos := 0
	for pos < len(m.order) && m.rewards[m.order[pos]] >= r {
		pos++
	}
	m.order = append(m.order, "")
	copy(m.order[pos+1:], m.order[pos:])
	m.order[pos] = code

	switch {
	case idx < 0:
		return NewEntry, uint32(pos + 1)
	case pos < idx:
		return PositionUp, uint32(pos + 1)
	case pos > idx:
		return PositionDown, uint32(pos + 1)
	}
	return NoChange, uint32(pos + 1)
}

func TestUpsert_AdversarialHintsMatchReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, capacity := range []int{1, 3, DefaultCapacity} {
		t.Run(fmt.Sprintf("k=%d", capacity), func(t *testing.T) {
			f := newFixture(t, capacity)
			model := &refModel{k: capacity, rewards: f.rewards}

			codes := make([]string, 80)
			for i := range codes {
				codes[i] = fmt.Sprintf("code-%d", i)
			}

			for step := 0; step < 3000; step++ {
				code := codes[rng.Intn(len(codes))]
				reward := f.rewards[code]
				if rng.Intn(10) == 0 && reward > 0 {
					reward -= uint64(rng.Int63n(int64(reward)) + 1)
				} else {
					reward += uint64(rng.Intn(50) + 1)
				}

				var hint *Hint
				switch rng.Intn(5) {
				case 0:
				case 1:
					hint = headHint()
				case 2:
					hint = after("ghost")
				case 3:
					hint = after(code)
				default:
					if len(model.order) > 0 {
						hint = after(model.order[rng.Intn(len(model.order))])
					}
				}

				f.rewards[code] = reward
				wantKind, wantPos := model.upsert(code)

				ch, err := f.ix.Upsert(f.ctx, code, num.NewUint128(reward), hint)
				require.NoError(t, err, "step %d", step)
				require.Equal(t, wantKind, ch.Kind, "step %d code %s", step, code)
				require.Equal(t, wantPos, ch.Position, "step %d code %s", step, code)
				require.Equal(t, model.order, f.order(), "step %d", step)
			}
		})
	}
}

func TestRange_Pagination(t *testing.T) {
	f := fourEntries(t)

	page, more, err := f.ix.Range(f.ctx, nil, 2)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, page, 2)
	assert.Equal(t, Entry{Rank: 1, Code: "a", Reward: num.NewUint128(400)}, page[0])
	assert.Equal(t, "b", page[1].Code)

	last := page[1].Code
	page, more, err = f.ix.Range(f.ctx, &last, 2)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, page, 2)
	assert.Equal(t, uint32(3), page[0].Rank)
	assert.Equal(t, "d", page[1].Code)

	end := "d"
	page, more, err = f.ix.Range(f.ctx, &end, 10)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Empty(t, page)
}

func TestRange_UnknownStartAfterRestartsAtHead(t *testing.T) {
	f := fourEntries(t)
	ghost := "ghost"
	page, more, err := f.ix.Range(f.ctx, &ghost, 0)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, page, 4)
	assert.Equal(t, "a", page[0].Code)
}

func TestRange_ClampsLimit(t *testing.T) {
	f := newFixture(t, 0)
	fill(f)
	page, more, err := f.ix.Range(f.ctx, nil, 500)
	require.NoError(t, err)
	assert.Len(t, page, MaxLimit)
	assert.False(t, more)
}

func TestRange_Empty(t *testing.T) {
	f := newFixture(t, 0)
	page, more, err := f.ix.Range(f.ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.False(t, more)
}

func writeRaw(t *testing.T, f *fixture, key string, v any) {
	t.Helper()
	require.NoError(t, storage.PutJSON(f.ctx, f.kv, key, v))
}

func strp(s string) *string { return &s }

func TestCorrupt_DanglingLink(t *testing.T) {
	f := newFixture(t, 0)
	f.rewards["a"] = 100
	writeRaw(t, f, nodeKey("a"), node{Next: strp("ghost")})
	writeRaw(t, f, headKey, "a")
	writeRaw(t, f, tailKey, "a")
	writeRaw(t, f, sizeKey, 1)

	f.rewards["z"] = 50
	_, err := f.ix.Upsert(f.ctx, "z", num.NewUint128(50), nil)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = f.ix.Verify(f.ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCorrupt_MissingReward(t *testing.T) {
	f := newFixture(t, 0)
	writeRaw(t, f, nodeKey("a"), node{})
	writeRaw(t, f, headKey, "a")
	writeRaw(t, f, tailKey, "a")
	writeRaw(t, f, sizeKey, 1)

	f.rewards["z"] = 50
	_, err := f.ix.Upsert(f.ctx, "z", num.NewUint128(50), nil)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCorrupt_CycleIsBounded(t *testing.T) {
	f := newFixture(t, 0)
	f.rewards["a"] = 100
	f.rewards["b"] = 100
	writeRaw(t, f, nodeKey("a"), node{Prev: strp("b"), Next: strp("b")})
	writeRaw(t, f, nodeKey("b"), node{Prev: strp("a"), Next: strp("a")})
	writeRaw(t, f, headKey, "a")
	writeRaw(t, f, tailKey, "b")
	writeRaw(t, f, sizeKey, 2)

	_, _, err := f.ix.Range(f.ctx, nil, MaxLimit)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = f.ix.PositionOf(f.ctx, "zzz-not-there")
	assert.NoError(t, err)

	f.rewards["low"] = 1
	_, err = f.ix.Upsert(f.ctx, "low", num.NewUint128(1), after("a"))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = f.ix.Verify(f.ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCorrupt_BrokenBackLink(t *testing.T) {
	f := newFixture(t, 0)
	f.upsert("a", 30, nil)
	f.upsert("b", 20, nil)
	writeRaw(t, f, nodeKey("b"), node{Prev: strp("zzz")})

	_, err := f.ix.Verify(f.ctx)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = f.ix.Upsert(f.ctx, "b", num.NewUint128(40), nil)
	assert.ErrorIs(t, err, ErrCorrupt)
}
