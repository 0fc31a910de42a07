// Package metrics exposes Prometheus instrumentation for the watcher. It is
// never wired into the per-invocation CLI — only the long-lived watcher
// process registers and serves metrics, when the config sets
// metrics.enabled and metrics.listen.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharedserver",
			Subsystem: "watcher",
			Name:      "starts_total",
			Help:      "Number of servers launched by use/admin start.",
		}, []string{"name"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharedserver",
			Subsystem: "watcher",
			Name:      "stops_total",
			Help:      "Number of servers stopped (grace expiry, or server exit including admin stop).",
		}, []string{"name", "reason"},
	)
	graceEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharedserver",
			Subsystem: "watcher",
			Name:      "grace_entries_total",
			Help:      "Number of times a name entered the GRACE state.",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharedserver",
			Subsystem: "watcher",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between Active/Grace/Stopped.",
		}, []string{"name", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sharedserver",
			Subsystem: "watcher",
			Name:      "current_state",
			Help:      "Current state of a name (1 = this state, 0 = not this state).",
		}, []string{"name", "state"},
	)
	refcountGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sharedserver",
			Subsystem: "watcher",
			Name:      "refcount",
			Help:      "Current client refcount for a name.",
		}, []string{"name"},
	)
	pollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sharedserver",
			Subsystem: "watcher",
			Name:      "poll_duration_seconds",
			Help:      "Wall time spent in one watcher tick.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStops, graceEntries, stateTransitions, currentState, refcountGauge, pollDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name, reason string) {
	if regOK.Load() {
		serverStops.WithLabelValues(name, reason).Inc()
	}
}

func IncGraceEntry(name string) {
	if regOK.Load() {
		graceEntries.WithLabelValues(name).Inc()
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		value := 0.0
		if active {
			value = 1.0
		}
		currentState.WithLabelValues(name, state).Set(value)
	}
}

func SetRefcount(name string, n int) {
	if regOK.Load() {
		refcountGauge.WithLabelValues(name).Set(float64(n))
	}
}

func ObservePollDuration(name string, seconds float64) {
	if regOK.Load() {
		pollDuration.WithLabelValues(name).Observe(seconds)
	}
}
