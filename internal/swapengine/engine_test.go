package swapengine

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/referral-swap/internal/leaderboard"
	"github.com/aman-zulfiqar/referral-swap/internal/models"
	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/referral"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
)

var testStart = time.Unix(1_700_000_000, 0).UTC()

type flakyStore struct {
	*storage.MemStore
	failCommit bool
}

func (f *flakyStore) Commit(ctx context.Context, ops []storage.Op) error {
	if f.failCommit {
		return errors.New("disk full")
	}
	return f.MemStore.Commit(ctx, ops)
}

type recordingPublisher struct {
	events []*models.SwapEvent
	err    error
}

func (r *recordingPublisher) PublishSwap(_ context.Context, ev *models.SwapEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

type brokenOracle struct{}

func (brokenOracle) ValidateCode(context.Context, string) (referral.Validation, error) {
	return referral.Validation{}, errors.New("connection refused")
}

type engineFixture struct {
	engine   *Engine
	store    *flakyStore
	registry *referral.MemoryRegistry
	pub      *recordingPublisher
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	store := &flakyStore{MemStore: storage.NewMemStore()}
	reg := referral.NewMemoryRegistry()
	pub := &recordingPublisher{}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := DefaultEngineConfig()
	cfg.StartTime = testStart

	e, err := NewEngine(cfg, EngineDeps{Store: store, Oracle: reg, Publisher: pub, Logger: logger})
	require.NoError(t, err)

	for code, owner := range map[string]string{"alice": "owner-a", "bob": "owner-b", "carol": "owner-c"} {
		_, err := reg.Register(context.Background(), code, owner)
		require.NoError(t, err)
	}
	return &engineFixture{engine: e, store: store, registry: reg, pub: pub}
}

func (f *engineFixture) swap(t *testing.T, amount uint64, code string) *SwapResult {
	t.Helper()
	req := &SwapRequest{InputAmount: num.NewUint128(amount)}
	if code != "" {
		req.Code = &code
	}
	res, err := f.engine.Swap(context.Background(), req, testStart)
	require.NoError(t, err)
	return res
}

func TestEngine_SwapWithoutReferral(t *testing.T) {
	f := newEngineFixture(t)

	res := f.swap(t, 15_000_000, "")
	assert.Equal(t, e18(10).String(), res.BaseScaled.String())
	assert.Equal(t, e18(10).String(), res.TotalToUser.String())
	assert.True(t, res.UserBonus.IsZero())
	assert.Nil(t, res.Code)
	assert.Nil(t, res.LeaderboardChange)
	assert.NotEmpty(t, res.ExecutionID)

	stats, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "15000000", stats.TotalInputReceived.String())
	assert.Equal(t, e18(10).String(), stats.TotalMinted.String())
	assert.Zero(t, stats.TotalReferralSwaps)
}

func TestEngine_SwapWithReferral(t *testing.T) {
	f := newEngineFixture(t)

	res := f.swap(t, 15_000_000, "ALICE")
	assert.Equal(t, e18(11).String(), res.TotalToUser.String())
	assert.Equal(t, e18(1).String(), res.ReferrerBonus.String())
	require.NotNil(t, res.Code)
	assert.Equal(t, "alice", *res.Code)
	require.NotNil(t, res.Referrer)
	assert.Equal(t, "owner-a", *res.Referrer)
	require.NotNil(t, res.LeaderboardChange)
	assert.Equal(t, leaderboard.NewEntry, res.LeaderboardChange.Kind)
	assert.Equal(t, uint32(1), res.LeaderboardChange.Position)

	view, err := f.engine.CodeStats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "owner-a", view.Owner)
	assert.Equal(t, e18(1).String(), view.TotalRewardsEarned.String())
	assert.Equal(t, e18(1).String(), view.TotalUserBonuses.String())
	assert.Equal(t, uint64(1), view.TotalSwaps)

	stats, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, e18(12).String(), stats.TotalMinted.String())
	assert.Equal(t, e18(2).String(), stats.TotalReferralBonusMinted.String())
	assert.Equal(t, uint64(1), stats.TotalReferralSwaps)
	assert.Equal(t, uint64(1), stats.UniqueCodesUsed)

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, res.ExecutionID, ev.ExecutionID)
	assert.Equal(t, "alice", ev.Code)
	assert.Equal(t, "new_entry", ev.LeaderboardAction)
}

func TestEngine_LeaderboardChanges(t *testing.T) {
	f := newEngineFixture(t)

	f.swap(t, 15_000_000, "alice") // 1e18
	bob := f.swap(t, 45_000_000, "bob")
	assert.Equal(t, leaderboard.NewEntry, bob.LeaderboardChange.Kind)
	assert.Equal(t, uint32(1), bob.LeaderboardChange.Position)

	alice := f.swap(t, 45_000_000, "alice") // 4e18 > 3e18
	assert.Equal(t, leaderboard.PositionUp, alice.LeaderboardChange.Kind)
	assert.Equal(t, uint32(1), alice.LeaderboardChange.Position)

	again := f.swap(t, 1_500_000, "alice")
	assert.Equal(t, leaderboard.NoChange, again.LeaderboardChange.Kind)
	assert.Equal(t, uint32(1), again.LeaderboardChange.Position)

	page, err := f.engine.Leaderboard(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.False(t, page.HasMore)
	assert.Equal(t, "alice", page.Entries[0].Code)
	assert.Equal(t, "owner-a", page.Entries[0].Owner)
	assert.Equal(t, uint32(2), page.Entries[1].Rank)
	assert.Equal(t, "bob", page.Entries[1].Code)

	pos, err := f.engine.PositionOf(context.Background(), "BOB")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, uint32(2), *pos)

	problems, err := f.engine.Verify(context.Background())
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestEngine_OwnerUnknownAfterDeregistration(t *testing.T) {
	f := newEngineFixture(t)
	f.swap(t, 15_000_000, "carol")
	require.NoError(t, f.registry.Delete(context.Background(), "carol"))

	page, err := f.engine.Leaderboard(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, UnknownOwner, page.Entries[0].Owner)
}

func TestEngine_RejectionsWriteNothing(t *testing.T) {
	ctx := context.Background()
	str := func(s string) *string { return &s }

	tests := []struct {
		name string
		req  *SwapRequest
		now  time.Time
		want error
	}{
		{"zero amount", &SwapRequest{}, testStart, ErrZeroAmount},
		{"below minimum", &SwapRequest{InputAmount: num.NewUint128(999_999)}, testStart, ErrBelowMinimum},
		{"malformed code", &SwapRequest{InputAmount: num.NewUint128(15_000_000), Code: str("no spaces")}, testStart, ErrInvalidCode},
		{"unregistered code", &SwapRequest{InputAmount: num.NewUint128(15_000_000), Code: str("nobody")}, testStart, ErrCodeNotRegistered},
		{"before window", &SwapRequest{InputAmount: num.NewUint128(15_000_000)}, testStart.Add(-time.Second), ErrSwapNotStarted},
		{"after window", &SwapRequest{InputAmount: num.NewUint128(15_000_000)}, testStart.Add(8_640_000 * time.Second), ErrSwapEnded},
		{"over safety cap", &SwapRequest{InputAmount: num.MustUint128("100000000000000000000")}, testStart, ErrSafetyLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			_, err := f.engine.Swap(ctx, tt.req, tt.now)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.store.Keys())
			assert.Empty(t, f.pub.events)
		})
	}
}

func TestEngine_FailedCommitPersistsNothing(t *testing.T) {
	f := newEngineFixture(t)
	f.store.failCommit = true

	code := "alice"
	_, err := f.engine.Swap(context.Background(), &SwapRequest{InputAmount: num.NewUint128(15_000_000), Code: &code}, testStart)
	require.Error(t, err)
	assert.Zero(t, f.store.Keys())
	assert.Empty(t, f.pub.events)

	f.store.failCommit = false
	res := f.swap(t, 15_000_000, "alice")
	assert.Equal(t, leaderboard.NewEntry, res.LeaderboardChange.Kind)
}

func TestEngine_CorruptLeaderboardRollsBackLedger(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// Head names a code with no node row.
	require.NoError(t, f.store.MemStore.Commit(ctx, []storage.Op{{Key: "lb:head", Value: []byte(`"ghost"`)}, {Key: "lb:tail", Value: []byte(`"ghost"`)}, {Key: "lb:size", Value: []byte(`1`)}}))
	before := f.store.Keys()

	code := "alice"
	_, err := f.engine.Swap(ctx, &SwapRequest{InputAmount: num.NewUint128(15_000_000), Code: &code}, testStart)
	require.Error(t, err)
	assert.ErrorIs(t, err, leaderboard.ErrCorrupt)
	assert.Equal(t, before, f.store.Keys())

	_, err = f.engine.CodeStats(ctx, "alice")
	require.NoError(t, err, "registered code reports zero stats")
	view, _ := f.engine.CodeStats(ctx, "alice")
	assert.Zero(t, view.TotalSwaps)
}

func TestEngine_PauseResume(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.SetPaused(ctx, true))
	_, err := f.engine.Swap(ctx, &SwapRequest{InputAmount: num.NewUint128(15_000_000)}, testStart)
	assert.ErrorIs(t, err, ErrSwapPaused)

	st, err := f.engine.Status(ctx, testStart)
	require.NoError(t, err)
	assert.True(t, st.IsPaused)
	assert.False(t, st.IsActive)

	require.NoError(t, f.engine.SetPaused(ctx, false))
	f.swap(t, 15_000_000, "")
}

func TestEngine_HintsNeverChangeOutcome(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.swap(t, 45_000_000, "alice") // 3e18
	f.swap(t, 15_000_000, "bob")   // 1e18

	// carol at 2e18 belongs between alice and bob. Claim the head instead.
	code := "carol"
	res, err := f.engine.Swap(ctx, &SwapRequest{
		InputAmount: num.NewUint128(30_000_000),
		Code:        &code,
		Hint:        &leaderboard.Hint{},
	}, testStart)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), res.LeaderboardChange.Position)

	problems, err := f.engine.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestEngine_Simulate(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	sim, err := f.engine.Simulate(ctx, num.NewUint128(15_000_000), "alice", testStart)
	require.NoError(t, err)
	assert.True(t, sim.ReferralValid)
	assert.Equal(t, "owner-a", *sim.Referrer)
	assert.Equal(t, e18(11).String(), sim.UserTotal.String())

	sim, err = f.engine.Simulate(ctx, num.NewUint128(15_000_000), "nobody", testStart)
	require.NoError(t, err)
	assert.False(t, sim.ReferralValid)
	assert.Equal(t, e18(10).String(), sim.UserTotal.String())

	sim, err = f.engine.Simulate(ctx, num.NewUint128(15_000_000), "!!bad!!", testStart)
	require.NoError(t, err)
	assert.False(t, sim.ReferralValid)

	// Simulation never writes.
	assert.Zero(t, f.store.Keys())
}

func TestEngine_SimulateDegradesOnOracleError(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := DefaultEngineConfig()
	cfg.StartTime = testStart
	e, err := NewEngine(cfg, EngineDeps{Store: storage.NewMemStore(), Oracle: brokenOracle{}, Logger: logger})
	require.NoError(t, err)

	sim, err := e.Simulate(context.Background(), num.NewUint128(15_000_000), "alice", testStart)
	require.NoError(t, err)
	assert.False(t, sim.ReferralValid)
	assert.Nil(t, sim.Referrer)

	// The mutating path does not degrade.
	code := "alice"
	_, err = e.Swap(context.Background(), &SwapRequest{InputAmount: num.NewUint128(15_000_000), Code: &code}, testStart)
	require.Error(t, err)
}

func TestEngine_PublisherFailureDoesNotFailSwap(t *testing.T) {
	f := newEngineFixture(t)
	f.pub.err = errors.New("redis down")

	res := f.swap(t, 15_000_000, "alice")
	assert.NotNil(t, res)
	assert.Len(t, f.pub.events, 1)
}

func TestEngine_CodeStatsUnknown(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.CodeStats(context.Background(), "nobody")
	assert.ErrorIs(t, err, referral.ErrNotFound)

	_, err = f.engine.CodeStats(context.Background(), "not valid")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestEngine_CurrentRate(t *testing.T) {
	f := newEngineFixture(t)

	info, err := f.engine.CurrentRate(testStart.Add(4_320_000 * time.Second))
	require.NoError(t, err)
	assert.True(t, info.Rate.Equal(num.MustDecimal("2")))
	assert.Equal(t, int64(4_320_000), info.ElapsedSeconds)
	assert.Equal(t, int64(8_640_000), info.TotalSeconds)
}

func TestNewEngine_RequiresDeps(t *testing.T) {
	_, err := NewEngine(DefaultEngineConfig(), EngineDeps{Oracle: referral.NewMemoryRegistry()})
	assert.Error(t, err)

	_, err = NewEngine(DefaultEngineConfig(), EngineDeps{Store: storage.NewMemStore()})
	assert.Error(t, err)

	cfg := DefaultEngineConfig()
	cfg.Duration = 0
	_, err = NewEngine(cfg, EngineDeps{Store: storage.NewMemStore(), Oracle: referral.NewMemoryRegistry()})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

// sharedStore checks reads the way a store shared between processes does.
// beforeCommit runs once, ahead of the next guarded commit, to stand in for
// another process writing first.
type sharedStore struct {
	*storage.MemStore
	beforeCommit func()
	conflicts    int
}

func (s *sharedStore) CommitIf(ctx context.Context, reads []storage.Read, ops []storage.Op) error {
	if fn := s.beforeCommit; fn != nil {
		s.beforeCommit = nil
		fn()
	}
	for _, rd := range reads {
		cur, err := s.MemStore.Get(ctx, rd.Key)
		found := err == nil
		if found != rd.Found || (found && !bytes.Equal(cur, rd.Value)) {
			s.conflicts++
			return storage.ErrConflict
		}
	}
	return s.MemStore.Commit(ctx, ops)
}

func TestEngine_ReplaysSwapAfterConcurrentWriter(t *testing.T) {
	ctx := context.Background()
	store := &sharedStore{MemStore: storage.NewMemStore()}
	reg := referral.NewMemoryRegistry()
	_, err := reg.Register(ctx, "alice", "owner-a")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := DefaultEngineConfig()
	cfg.StartTime = testStart

	replicaA, err := NewEngine(cfg, EngineDeps{Store: store, Oracle: reg, Logger: logger})
	require.NoError(t, err)
	replicaB, err := NewEngine(cfg, EngineDeps{Store: store, Oracle: reg, Logger: logger})
	require.NoError(t, err)

	code := "alice"
	req := &SwapRequest{InputAmount: num.NewUint128(15_000_000), Code: &code}

	store.beforeCommit = func() {
		_, err := replicaB.Swap(ctx, req, testStart)
		require.NoError(t, err)
	}
	res, err := replicaA.Swap(ctx, req, testStart)
	require.NoError(t, err)
	assert.Equal(t, 1, store.conflicts)
	assert.Equal(t, leaderboard.NoChange, res.LeaderboardChange.Kind, "replayed swap sees the other writer's entry")

	view, err := replicaA.CodeStats(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, view.TotalSwaps)

	stats, err := replicaA.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalReferralSwaps)
	assert.EqualValues(t, 1, stats.UniqueCodesUsed)
	assert.Equal(t, "30000000", stats.TotalInputReceived.String())

	problems, err := replicaA.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestEngine_GivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	store := &alwaysStaleStore{MemStore: storage.NewMemStore()}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := DefaultEngineConfig()
	cfg.StartTime = testStart

	e, err := NewEngine(cfg, EngineDeps{Store: store, Oracle: referral.NewMemoryRegistry(), Logger: logger})
	require.NoError(t, err)

	_, err = e.Swap(ctx, &SwapRequest{InputAmount: num.NewUint128(15_000_000)}, testStart)
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, maxCommitAttempts, store.attempts)
	assert.Zero(t, store.Keys())
}

type alwaysStaleStore struct {
	*storage.MemStore
	attempts int
}

func (s *alwaysStaleStore) CommitIf(context.Context, []storage.Read, []storage.Op) error {
	s.attempts++
	return storage.ErrConflict
}
