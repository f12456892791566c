package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SwapMetrics groups the engine's collectors.
type SwapMetrics struct {
	swaps       *prometheus.CounterVec
	latency     prometheus.Histogram
	leaderboard *prometheus.CounterVec
	hints       *prometheus.CounterVec
	events      *prometheus.CounterVec
}

var (
	swapOnce sync.Once
	swapReg  *SwapMetrics
)

// Swap returns the lazily-initialised swap metrics registered on the
// default registry.
func Swap() *SwapMetrics {
	swapOnce.Do(func() {
		swapReg = &SwapMetrics{
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "referral_swap",
				Subsystem: "engine",
				Name:      "swaps_total",
				Help:      "Swap attempts segmented by outcome and whether a referral code was used.",
			}, []string{"outcome", "referral"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "referral_swap",
				Subsystem: "engine",
				Name:      "swap_duration_seconds",
				Help:      "Time spent executing a swap including commit.",
				Buckets:   prometheus.DefBuckets,
			}),
			leaderboard: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "referral_swap",
				Subsystem: "leaderboard",
				Name:      "changes_total",
				Help:      "Leaderboard upsert outcomes by kind.",
			}, []string{"kind"}),
			hints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "referral_swap",
				Subsystem: "leaderboard",
				Name:      "hints_total",
				Help:      "Caller position hints by validation outcome.",
			}, []string{"outcome"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "referral_swap",
				Subsystem: "events",
				Name:      "delivery_total",
				Help:      "Post-commit event deliveries by sink and result.",
			}, []string{"sink", "result"}),
		}
		prometheus.MustRegister(
			swapReg.swaps,
			swapReg.latency,
			swapReg.leaderboard,
			swapReg.hints,
			swapReg.events,
		)
	})
	return swapReg
}

// ObserveSwap records one swap attempt.
func (m *SwapMetrics) ObserveSwap(outcome string, referral bool, took time.Duration) {
	if m == nil {
		return
	}
	ref := "false"
	if referral {
		ref = "true"
	}
	m.swaps.WithLabelValues(outcome, ref).Inc()
	m.latency.Observe(took.Seconds())
}

func (m *SwapMetrics) ObserveLeaderboard(kind string) {
	if m == nil {
		return
	}
	m.leaderboard.WithLabelValues(kind).Inc()
}

func (m *SwapMetrics) ObserveHint(outcome string) {
	if m == nil {
		return
	}
	m.hints.WithLabelValues(outcome).Inc()
}

// ObserveDelivery records a publish or history insert after commit.
func (m *SwapMetrics) ObserveDelivery(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.events.WithLabelValues(sink, result).Inc()
}
