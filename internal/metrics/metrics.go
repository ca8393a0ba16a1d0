// Package metrics exposes bidding and settlement counters for Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"auction-market/internal/biddingerrors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auction"

// Metrics owns its registry so several instances can coexist in tests.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	BidsAccepted       prometheus.Counter
	BidsRejected       *prometheus.CounterVec
	Settlements        *prometheus.CounterVec
	LockTimeouts       *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
}

// New registers all collectors, plus the Go runtime and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_accepted_total",
			Help:      "Bids recorded as the new highest bid.",
		}),
		BidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_rejected_total",
			Help:      "Bids refused, by reason.",
		}, []string{"reason"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settlement attempts, by outcome.",
		}, []string{"outcome"}),
		LockTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_timeouts_total",
			Help:      "Lock acquisitions that gave up waiting, by scope.",
		}, []string{"scope"}),
		SettlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Time spent settling one auction.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.BidsAccepted,
		m.BidsRejected,
		m.Settlements,
		m.LockTimeouts,
		m.SettlementDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBid counts a bid attempt by its result
func (m *Metrics) ObserveBid(err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.BidsAccepted.Inc()
		return
	}
	m.BidsRejected.WithLabelValues(RejectReason(err)).Inc()
}

// ObserveSettlement counts one settlement outcome and its duration
func (m *Metrics) ObserveSettlement(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(outcome).Inc()
	m.SettlementDuration.Observe(took.Seconds())
}

// LockTimeout counts a lock wait that expired. Its signature matches
// locker.Locker.OnTimeout.
func (m *Metrics) LockTimeout(scope string) {
	if m == nil {
		return
	}
	m.LockTimeouts.WithLabelValues(scope).Inc()
}

// RejectReason maps a bid error to a low-cardinality label
func RejectReason(err error) string {
	switch {
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return "too_low"
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return "closed"
	case errors.Is(err, biddingerrors.ErrSelfBid):
		return "self_bid"
	case errors.Is(err, biddingerrors.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return "not_found"
	case biddingerrors.IsRetryable(err):
		return "busy"
	default:
		return "error"
	}
}
