package swapengine

import (
	"fmt"
	"time"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
)

// Schedule is the swap window and its linearly interpolated rate. Time is
// taken at one-second granularity.
type Schedule struct {
	start     int64
	end       int64
	startRate num.Decimal
	endRate   num.Decimal
}

// NewSchedule rejects a non-positive duration and zero rates; the rate is
// used as a divisor.
func NewSchedule(start time.Time, duration time.Duration, startRate, endRate num.Decimal) (*Schedule, error) {
	secs := int64(duration / time.Second)
	if secs <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDuration, duration)
	}
	if startRate.IsZero() || endRate.IsZero() {
		return nil, ErrZeroRate
	}
	return &Schedule{
		start:     start.Unix(),
		end:       start.Unix() + secs,
		startRate: startRate,
		endRate:   endRate,
	}, nil
}

func (s *Schedule) Start() time.Time          { return time.Unix(s.start, 0).UTC() }
func (s *Schedule) End() time.Time            { return time.Unix(s.end, 0).UTC() }
func (s *Schedule) StartRate() num.Decimal    { return s.startRate }
func (s *Schedule) EndRate() num.Decimal      { return s.endRate }
func (s *Schedule) TotalSeconds() int64       { return s.end - s.start }
func (s *Schedule) elapsed(t time.Time) int64 { return clamp(t.Unix()-s.start, 0, s.end-s.start) }

// RateAt returns start + (end - start) * elapsed / total. The bounds are
// returned exactly; in between the result is rounded down. Increasing
// schedules floor the progress and then the delta; decreasing schedules
// subtract the exact delta rounded up.
func (s *Schedule) RateAt(t time.Time) (num.Decimal, error) {
	elapsed := s.elapsed(t)
	total := s.end - s.start
	switch elapsed {
	case 0:
		return s.startRate, nil
	case total:
		return s.endRate, nil
	}

	if s.endRate.GT(s.startRate) {
		progress, err := num.DecimalFromRatio(num.NewUint128(uint64(elapsed)), num.NewUint128(uint64(total)))
		if err != nil {
			return num.Decimal{}, err
		}
		diff, _ := s.endRate.Sub(s.startRate)
		delta, err := diff.Mul(progress)
		if err != nil {
			return num.Decimal{}, err
		}
		return s.startRate.Add(delta)
	}

	diff, _ := s.startRate.Sub(s.endRate)
	deltaAtoms, err := diff.Atomics().MulRatioCeil(num.NewUint128(uint64(elapsed)), num.NewUint128(uint64(total)))
	if err != nil {
		return num.Decimal{}, err
	}
	return s.startRate.Sub(num.DecimalFromAtomics(deltaAtoms))
}

// RateInfo is the rate at a point in time plus where that point sits in
// the window.
type RateInfo struct {
	Rate           num.Decimal `json:"rate"`
	ElapsedSeconds int64       `json:"elapsed_seconds"`
	TotalSeconds   int64       `json:"total_seconds"`
}

func (s *Schedule) Info(t time.Time) (RateInfo, error) {
	r, err := s.RateAt(t)
	if err != nil {
		return RateInfo{}, err
	}
	return RateInfo{Rate: r, ElapsedSeconds: s.elapsed(t), TotalSeconds: s.TotalSeconds()}, nil
}

// Status describes the window relative to t.
type Status struct {
	IsActive          bool      `json:"is_active"`
	HasStarted        bool      `json:"has_started"`
	HasEnded          bool      `json:"has_ended"`
	IsPaused          bool      `json:"is_paused"`
	SecondsRemaining  int64     `json:"seconds_remaining"`
	SecondsUntilStart int64     `json:"seconds_until_start"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
}

func (s *Schedule) Status(t time.Time, paused bool) Status {
	now := t.Unix()
	st := Status{
		HasStarted: now >= s.start,
		HasEnded:   now >= s.end,
		IsPaused:   paused,
		StartTime:  s.Start(),
		EndTime:    s.End(),
	}
	st.IsActive = st.HasStarted && !st.HasEnded && !paused
	if !st.HasEnded {
		st.SecondsRemaining = s.end - now
	}
	if !st.HasStarted {
		st.SecondsUntilStart = s.start - now
	}
	return st
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
