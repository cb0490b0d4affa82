package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_http_requests_total",
		Help: "Total HTTP requests processed, labeled by route and status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"})

	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_transfers_total",
		Help: "Card-to-card transfers, labeled by outcome",
	}, []string{"result"})

	CardTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_card_status_transitions_total",
		Help: "Committed card status transitions, labeled by target status",
	}, []string{"status"})

	SweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bank_sweeper_expired_cards_total",
		Help: "Cards moved to EXPIRED by the expiration sweeper",
	})

	SweepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bank_sweeper_failures_total",
		Help: "Cards the expiration sweeper failed to update",
	})
)
