package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_lookups_total",
			Help: "Total ticket code lookups by outcome",
		},
		[]string{"outcome"},
	)

	lookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_lookup_duration_seconds",
			Help:    "Duration of authority lookups",
			Buckets: prometheus.DefBuckets,
		},
	)

	checkinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_checkins_total",
			Help: "Total admission attempts by outcome",
		},
		[]string{"outcome"},
	)

	claimContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkin_claim_contention_total",
			Help: "Check-in attempts that lost the per-code claim race",
		},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order lifecycle operations by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	syncPulls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_pulls_total",
			Help: "Background list pulls by result",
		},
		[]string{"result"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_sessions_active",
			Help: "Currently open verification dialogs",
		},
	)
)

func TrackLookup(outcome string, d time.Duration) {
	lookupsTotal.WithLabelValues(outcome).Inc()
	lookupDuration.Observe(d.Seconds())
}

func TrackCheckIn(outcome string) {
	checkinsTotal.WithLabelValues(outcome).Inc()
}

func TrackClaimContention() {
	claimContention.Inc()
}

func TrackOrderTransition(action, outcome string) {
	orderTransitions.WithLabelValues(action, outcome).Inc()
}

func TrackSyncPull(result string) {
	syncPulls.WithLabelValues(result).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
