// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors updated by the room and game services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RoomsCreated   prometheus.Counter
	PlayersJoined  prometheus.Counter
	GamesStarted   *prometheus.CounterVec
	GamesFinished  prometheus.Counter
	MovesApplied   *prometheus.CounterVec
	CommitFailures *prometheus.CounterVec
	CommitLatency  prometheus.Histogram
}

// New builds the collectors and registers them on a private registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RoomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created",
		}),
		PlayersJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "players_joined_total",
			Help:      "Successful room joins",
		}),
		GamesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Games started, by difficulty and whether the puzzle fell back to a blank grid",
		}, []string{"difficulty", "degraded"}),
		GamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Games that reached a winner",
		}),
		MovesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_applied_total",
			Help:      "Committed moves by correctness",
		}, []string{"valid"}),
		CommitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_failures_total",
			Help:      "Atomic commits that did not apply, by reason",
		}, []string{"op", "reason"}),
		CommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_latency_seconds",
			Help:      "Read-modify-write latency of room transitions",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.RoomsCreated,
		m.PlayersJoined,
		m.GamesStarted,
		m.GamesFinished,
		m.MovesApplied,
		m.CommitFailures,
		m.CommitLatency,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncRoomsCreated() {
	if m != nil {
		m.RoomsCreated.Inc()
	}
}

func (m *Metrics) IncPlayersJoined() {
	if m != nil {
		m.PlayersJoined.Inc()
	}
}

func (m *Metrics) IncGamesStarted(difficulty string, degraded bool) {
	if m == nil {
		return
	}
	d := "false"
	if degraded {
		d = "true"
	}
	m.GamesStarted.WithLabelValues(difficulty, d).Inc()
}

func (m *Metrics) IncGamesFinished() {
	if m != nil {
		m.GamesFinished.Inc()
	}
}

func (m *Metrics) IncMoves(valid bool) {
	if m == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	m.MovesApplied.WithLabelValues(v).Inc()
}

func (m *Metrics) IncCommitFailure(op, reason string) {
	if m != nil {
		m.CommitFailures.WithLabelValues(op, reason).Inc()
	}
}

func (m *Metrics) ObserveCommit(start time.Time) {
	if m != nil {
		m.CommitLatency.Observe(time.Since(start).Seconds())
	}
}
