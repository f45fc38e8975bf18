package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth outcome labels.
const (
	AuthOK                = "ok"
	AuthMalformed         = "malformed"
	AuthInvalidCredential = "invalid_credential"
	AuthInternal          = "internal"
)

// Ledger transaction outcome labels.
const (
	TxCommitted = "committed"
	TxRejected  = "rejected"
	TxConflict  = "conflict"
	TxFailed    = "failed"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AuthOutcomes        *prometheus.CounterVec
	LookupDurationMs    *prometheus.HistogramVec
	LedgerTransactions  *prometheus.CounterVec
	LevelUps            prometheus.Counter
	EventsPublished     *prometheus.CounterVec
	EventStreamDegraded prometheus.Gauge
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		AuthOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "baryon_auth_outcomes_total",
			Help: "Bearer token authentications by outcome",
		}, []string{"result"}),
		LookupDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "baryon_auth_lookup_duration_ms",
			Help:    "Latency of key and identity lookups in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"store"}),
		LedgerTransactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "baryon_ledger_transactions_total",
			Help: "Ledger transactions by command and outcome",
		}, []string{"command", "outcome"}),
		LevelUps: factory.NewCounter(prometheus.CounterOpts{
			Name: "baryon_level_ups_total",
			Help: "LevelUp events emitted by committed mutations",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "baryon_player_events_published_total",
			Help: "Player event publications by outcome",
		}, []string{"outcome"}),
		EventStreamDegraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "baryon_event_stream_degraded",
			Help: "1 while the event stream circuit breaker is open",
		}),
	}
}

// IncAuth records one authentication outcome.
func (m *Metrics) IncAuth(result string) {
	if m == nil {
		return
	}
	m.AuthOutcomes.WithLabelValues(result).Inc()
}

// ObserveLookup records the latency of a key or identity lookup.
func (m *Metrics) ObserveLookup(store string, since time.Time) {
	if m == nil {
		return
	}
	m.LookupDurationMs.WithLabelValues(store).Observe(float64(time.Since(since).Microseconds()) / 1000.0)
}

// IncTransaction records one ledger transaction outcome.
func (m *Metrics) IncTransaction(command, outcome string) {
	if m == nil {
		return
	}
	m.LedgerTransactions.WithLabelValues(command, outcome).Inc()
}

// AddLevelUps counts emitted LevelUp events.
func (m *Metrics) AddLevelUps(n int) {
	if m == nil || n == 0 {
		return
	}
	m.LevelUps.Add(float64(n))
}

// IncPublished records one event publication outcome.
func (m *Metrics) IncPublished(outcome string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(outcome).Inc()
}

// SetStreamDegraded records the event stream breaker position.
func (m *Metrics) SetStreamDegraded(open bool) {
	if m == nil {
		return
	}
	if open {
		m.EventStreamDegraded.Set(1)
		return
	}
	m.EventStreamDegraded.Set(0)
}
