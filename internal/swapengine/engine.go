package swapengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/referral-swap/internal/leaderboard"
	"github.com/aman-zulfiqar/referral-swap/internal/ledger"
	"github.com/aman-zulfiqar/referral-swap/internal/metrics"
	"github.com/aman-zulfiqar/referral-swap/internal/models"
	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/referral"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
)

const pausedKey = "swap:paused"

// Engine is the main orchestrator for swap operations
type Engine struct {
	mu sync.Mutex

	store     storage.Store
	oracle    referral.Oracle
	publisher storage.SwapPublisher
	history   storage.SwapStore
	metrics   *metrics.SwapMetrics
	logger    *logrus.Logger

	schedule       *Schedule
	calc           CalcParams
	decisionEngine *DecisionEngine
	riskManager    *RiskManager
	capacity       int
}

// EngineConfig holds the swap parameters
type EngineConfig struct {
	// Window and rate
	StartTime time.Time
	Duration  time.Duration
	StartRate num.Decimal
	EndRate   num.Decimal

	Calc CalcParams
	Risk RiskConfig

	LeaderboardCapacity int
}

// DefaultEngineConfig returns a 100-day window from now with the rate
// moving from 1.5 to 2.5 input units per output unit.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		StartTime:           time.Now().UTC().Truncate(time.Second),
		Duration:            8_640_000 * time.Second,
		StartRate:           num.MustDecimal("1.5"),
		EndRate:             num.MustDecimal("2.5"),
		Calc:                DefaultCalcParams(),
		Risk:                DefaultRiskConfig(),
		LeaderboardCapacity: leaderboard.DefaultCapacity,
	}
}

// EngineDeps are the collaborators. Store and Oracle are required;
// Publisher, History and Metrics may be nil.
type EngineDeps struct {
	Store     storage.Store
	Oracle    referral.Oracle
	Publisher storage.SwapPublisher
	History   storage.SwapStore
	Metrics   *metrics.SwapMetrics
	Logger    *logrus.Logger
}

// NewEngine creates a new swap engine
func NewEngine(cfg EngineConfig, deps EngineDeps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Oracle == nil {
		return nil, errors.New("engine: referral oracle is required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if err := cfg.Calc.Validate(); err != nil {
		return nil, err
	}

	schedule, err := NewSchedule(cfg.StartTime, cfg.Duration, cfg.StartRate, cfg.EndRate)
	if err != nil {
		return nil, fmt.Errorf("rate schedule: %w", err)
	}

	capacity := cfg.LeaderboardCapacity
	if capacity <= 0 {
		capacity = leaderboard.DefaultCapacity
	}

	return &Engine{
		store:          deps.Store,
		oracle:         deps.Oracle,
		publisher:      deps.Publisher,
		history:        deps.History,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		schedule:       schedule,
		calc:           cfg.Calc,
		decisionEngine: NewDecisionEngine(cfg.Risk.MinSwapAmount),
		riskManager:    NewRiskManager(cfg.Risk, schedule),
		capacity:       capacity,
	}, nil
}

// maxCommitAttempts bounds replays of a swap whose commit lost a race with
// another process sharing the store.
const maxCommitAttempts = 5

func (e *Engine) Schedule() *Schedule { return e.schedule }

// snapshot is a read handle over the store. Nothing written to it is ever
// committed.
func (e *Engine) snapshot() storage.KV { return storage.NewBatch(e.store) }

// views builds the ledger and leaderboard over one storage handle.
func (e *Engine) views(kv storage.KV) (*ledger.Ledger, *leaderboard.Index) {
	led := ledger.New(kv)
	cfg := leaderboard.Config{Capacity: e.capacity}
	if e.metrics != nil {
		cfg.OnHint = func(o leaderboard.HintOutcome) { e.metrics.ObserveHint(string(o)) }
	}
	return led, leaderboard.New(kv, led, cfg)
}

// Swap executes one conversion at now. Every write lands in a single batch
// that is committed last, so any error leaves the store untouched.
func (e *Engine) Swap(ctx context.Context, req *SwapRequest, now time.Time) (*SwapResult, error) {
	started := time.Now()
	res, err := e.swap(ctx, req, now)
	for attempt := 1; errors.Is(err, storage.ErrConflict) && attempt < maxCommitAttempts; attempt++ {
		e.logger.WithField("attempt", attempt).Debug("state changed by another writer, replaying swap")
		res, err = e.swap(ctx, req, now)
	}

	referred := req != nil && req.Code != nil && *req.Code != ""
	e.metrics.ObserveSwap(outcomeLabel(err), referred, time.Since(started))
	if err != nil {
		e.logger.WithError(err).WithField("referral", referred).Debug("swap rejected")
		return nil, err
	}

	e.deliver(ctx, res)
	return res, nil
}

func (e *Engine) swap(ctx context.Context, req *SwapRequest, now time.Time) (*SwapResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch := storage.NewBatch(e.store)
	defer batch.Discard()

	paused, err := e.paused(ctx, batch)
	if err != nil {
		return nil, err
	}
	if err := e.riskManager.CheckWindow(now, paused); err != nil {
		return nil, err
	}

	p, err := e.decisionEngine.ParseRequest(req)
	if err != nil {
		return nil, err
	}

	var owner string
	if p.hasReferral() {
		v, err := e.oracle.ValidateCode(ctx, p.code)
		if err != nil {
			return nil, fmt.Errorf("validate code %q: %w", p.code, err)
		}
		if owner, err = e.riskManager.CheckReferral(p.code, v); err != nil {
			return nil, err
		}
	}

	rate, err := e.schedule.RateAt(now)
	if err != nil {
		return nil, fmt.Errorf("current rate: %w", err)
	}

	led, board := e.views(batch)
	globals, err := led.Globals(ctx)
	if err != nil {
		return nil, err
	}
	supply, err := e.riskManager.Supply(globals.TotalMinted)
	if err != nil {
		return nil, fmt.Errorf("output supply: %w", err)
	}

	q, err := Calculate(e.calc, p.amount, rate, p.hasReferral(), supply)
	if err != nil {
		return nil, err
	}

	res := &SwapResult{
		ExecutionID:   uuid.NewString(),
		Timestamp:     now.UTC(),
		InputAmount:   p.amount,
		BaseScaled:    q.BaseScaled,
		UserBonus:     q.Bonus,
		ReferrerBonus: q.ReferrerAmount,
		TotalToUser:   q.UserTotal,
		TotalMinted:   q.TotalMint,
		RateUsed:      rate,
	}

	delta := ledger.GlobalDelta{InputReceived: p.amount, Minted: q.TotalMint}
	if p.hasReferral() {
		stats, created, err := led.RecordSwap(ctx, p.code, q.Bonus, q.ReferrerAmount)
		if err != nil {
			return nil, err
		}
		change, err := board.Upsert(ctx, p.code, stats.TotalRewardsEarned, p.hint)
		if err != nil {
			return nil, fmt.Errorf("leaderboard upsert %q: %w", p.code, err)
		}

		if delta.ReferralBonusMinted, err = q.Bonus.Add(q.ReferrerAmount); err != nil {
			return nil, fmt.Errorf("referral bonus minted: %w", err)
		}
		delta.ReferralSwap = true
		delta.NewCode = created

		code := p.code
		res.Code = &code
		res.Referrer = &owner
		res.LeaderboardChange = &change
	}

	if _, err := led.RecordGlobal(ctx, delta); err != nil {
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}

	if res.LeaderboardChange != nil {
		e.metrics.ObserveLeaderboard(string(res.LeaderboardChange.Kind))
	}
	return res, nil
}

// deliver fans a committed swap out to the publisher and the history
// store. Failures are logged; the swap has already happened.
func (e *Engine) deliver(ctx context.Context, res *SwapResult) {
	if e.publisher == nil && e.history == nil {
		return
	}
	ev := toEvent(res)
	log := e.logger.WithField("execution_id", res.ExecutionID)

	if e.publisher != nil {
		err := e.publisher.PublishSwap(ctx, ev)
		e.metrics.ObserveDelivery("pubsub", err)
		if err != nil {
			log.WithError(err).Warn("failed to publish swap")
		}
	}
	if e.history != nil {
		err := e.history.InsertSwap(ctx, ev)
		e.metrics.ObserveDelivery("history", err)
		if err != nil {
			log.WithError(err).Warn("failed to store swap history")
		}
	}
}

func toEvent(res *SwapResult) *models.SwapEvent {
	ev := &models.SwapEvent{
		ExecutionID:   res.ExecutionID,
		Timestamp:     res.Timestamp,
		InputAmount:   res.InputAmount.String(),
		BaseScaled:    res.BaseScaled.String(),
		UserBonus:     res.UserBonus.String(),
		ReferrerBonus: res.ReferrerBonus.String(),
		TotalToUser:   res.TotalToUser.String(),
		TotalMinted:   res.TotalMinted.String(),
		Rate:          res.RateUsed.String(),
	}
	if res.Code != nil {
		ev.Code = *res.Code
	}
	if res.Referrer != nil {
		ev.Referrer = *res.Referrer
	}
	if c := res.LeaderboardChange; c != nil {
		ev.LeaderboardAction = string(c.Kind)
		ev.Position = c.Position
		if c.Evicted != nil {
			ev.Evicted = *c.Evicted
		}
	}
	return ev
}

// Simulate previews a swap at now without writing. It ignores the window
// and pause flag, and a code that cannot be confirmed for any reason
// previews as no referral.
func (e *Engine) Simulate(ctx context.Context, amount num.Uint128, code string, now time.Time) (*Simulation, error) {
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}

	sim := &Simulation{InputAmount: amount}
	if c, err := referral.Normalize(code); err == nil {
		v, err := e.oracle.ValidateCode(ctx, c)
		if err != nil {
			e.logger.WithError(err).WithField("code", c).Debug("oracle unavailable during preview")
		} else if owner, err := e.riskManager.CheckReferral(c, v); err == nil {
			sim.ReferralValid = true
			sim.Referrer = &owner
		}
	}

	rate, err := e.schedule.RateAt(now)
	if err != nil {
		return nil, fmt.Errorf("current rate: %w", err)
	}
	globals, err := ledger.New(e.snapshot()).Globals(ctx)
	if err != nil {
		return nil, err
	}
	supply, err := e.riskManager.Supply(globals.TotalMinted)
	if err != nil {
		return nil, fmt.Errorf("output supply: %w", err)
	}

	q, err := Calculate(e.calc, amount, rate, sim.ReferralValid, supply)
	if err != nil {
		return nil, err
	}
	sim.Quote = *q
	return sim, nil
}

// CodeStats returns the code's stats with its owner. A code with no swaps
// but a registration reports zero stats; one with neither is not found.
func (e *Engine) CodeStats(ctx context.Context, code string) (*CodeStatsView, error) {
	c, err := referral.Normalize(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}

	st, err := ledger.New(e.snapshot()).Get(ctx, c)
	if err != nil {
		return nil, err
	}

	owner := e.ownerOf(ctx, c)
	if st == nil {
		if owner == UnknownOwner {
			return nil, fmt.Errorf("%w: %q", referral.ErrNotFound, c)
		}
		st = &ledger.CodeStats{}
	}
	return &CodeStatsView{Code: c, Owner: owner, CodeStats: *st}, nil
}

// Leaderboard pages through the ranked codes with owners and stats.
func (e *Engine) Leaderboard(ctx context.Context, startAfter *string, limit int) (*LeaderboardPage, error) {
	if startAfter != nil {
		c, err := referral.Normalize(*startAfter)
		if err != nil {
			startAfter = nil
		} else {
			startAfter = &c
		}
	}

	led, board := e.views(e.snapshot())
	entries, more, err := board.Range(ctx, startAfter, limit)
	if err != nil {
		return nil, err
	}

	page := &LeaderboardPage{Entries: make([]LeaderboardRow, 0, len(entries)), HasMore: more}
	for _, en := range entries {
		st, err := led.Get(ctx, en.Code)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, fmt.Errorf("%w: no stats for ranked code %q", leaderboard.ErrCorrupt, en.Code)
		}
		page.Entries = append(page.Entries, LeaderboardRow{
			Rank:      en.Rank,
			Code:      en.Code,
			Owner:     e.ownerOf(ctx, en.Code),
			CodeStats: *st,
		})
	}
	return page, nil
}

// PositionOf is the code's 1-indexed rank, nil when unranked.
func (e *Engine) PositionOf(ctx context.Context, code string) (*uint32, error) {
	c, err := referral.Normalize(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	_, board := e.views(e.snapshot())
	return board.PositionOf(ctx, c)
}

func (e *Engine) ownerOf(ctx context.Context, code string) string {
	v, err := e.oracle.ValidateCode(ctx, code)
	if err != nil || !v.IsRegistered || v.Owner == nil {
		return UnknownOwner
	}
	return *v.Owner
}

// Stats returns the global accumulators.
func (e *Engine) Stats(ctx context.Context) (ledger.GlobalStats, error) {
	return ledger.New(e.snapshot()).Globals(ctx)
}

func (e *Engine) Status(ctx context.Context, now time.Time) (Status, error) {
	paused, err := e.Paused(ctx)
	if err != nil {
		return Status{}, err
	}
	return e.schedule.Status(now, paused), nil
}

func (e *Engine) CurrentRate(now time.Time) (RateInfo, error) {
	return e.schedule.Info(now)
}

func (e *Engine) Paused(ctx context.Context) (bool, error) {
	return e.paused(ctx, e.store)
}

func (e *Engine) paused(ctx context.Context, r storage.Reader) (bool, error) {
	var paused bool
	if _, err := storage.GetJSON(ctx, r, pausedKey, &paused); err != nil {
		return false, fmt.Errorf("read pause flag: %w", err)
	}
	return paused, nil
}

// SetPaused persists the operator pause flag.
func (e *Engine) SetPaused(ctx context.Context, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch := storage.NewBatch(e.store)
	if err := storage.PutJSON(ctx, batch, pausedKey, paused); err != nil {
		return err
	}
	if err := batch.Commit(ctx); err != nil {
		return err
	}
	e.logger.WithField("paused", paused).Info("swap pause flag updated")
	return nil
}

// Verify checks the persisted leaderboard and returns any violations.
func (e *Engine) Verify(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, board := e.views(e.snapshot())
	return board.Verify(ctx)
}

// Ping checks every backend the engine writes to.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if e.history != nil {
		if err := e.history.Ping(ctx); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}
	return nil
}

// Close cleans up all resources
func (e *Engine) Close() error {
	var errs []error

	if e.history != nil {
		if err := e.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history close: %w", err))
		}
	}

	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}

	return nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSafetyLimit):
		return "safety_limit"
	case errors.Is(err, ErrSwapPaused), errors.Is(err, ErrSwapNotStarted), errors.Is(err, ErrSwapEnded):
		return "window"
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrCodeNotRegistered):
		return "referral"
	case errors.Is(err, ErrZeroAmount), errors.Is(err, ErrBelowMinimum):
		return "amount"
	case errors.Is(err, storage.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
