package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	childEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "everlast",
			Subsystem: "child",
			Name:      "events_total",
			Help:      "Number of lifecycle events published, by kind.",
		}, []string{"id", "event"},
	)
	restartsThrottled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "everlast",
			Subsystem: "child",
			Name:      "restarts_throttled_total",
			Help:      "Number of restarts refused by the restart-rate limiter.",
		}, []string{"id"},
	)
	children = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "everlast",
			Subsystem: "supervisor",
			Name:      "children",
			Help:      "Current number of occupied child slots.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "everlast",
			Subsystem: "child",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between child states.",
		}, []string{"id", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "everlast",
			Subsystem: "child",
			Name:      "current_state",
			Help:      "Current state of each child slot (1 = active state, 0 = inactive).",
		}, []string{"id", "index", "state"},
	)
)

var stateNames = []string{"starting", "running", "restarting", "stopping", "stopped"}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{childEvents, restartsThrottled, children, stateTransitions, currentStates}
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
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The helpers below no-op until Register has been called.

func ObserveEvent(kind, id string) {
	if regOK.Load() {
		childEvents.WithLabelValues(id, kind).Inc()
	}
}

func IncThrottled(id string) {
	if regOK.Load() {
		restartsThrottled.WithLabelValues(id).Inc()
	}
}

func SetChildren(n int) {
	if regOK.Load() {
		children.Set(float64(n))
	}
}

// RecordStateTransition counts the transition and moves the slot's
// current_state gauge to the new state.
func RecordStateTransition(id string, index int, from, to string) {
	if !regOK.Load() {
		return
	}
	if from != to {
		stateTransitions.WithLabelValues(id, from, to).Inc()
	}
	idx := strconv.Itoa(index)
	for _, st := range stateNames {
		v := 0.0
		if st == to {
			v = 1
		}
		currentStates.WithLabelValues(id, idx, st).Set(v)
	}
}

// ClearChild drops the per-slot gauges of a deleted child.
func ClearChild(id string, index int) {
	if !regOK.Load() {
		return
	}
	idx := strconv.Itoa(index)
	for _, st := range stateNames {
		currentStates.DeleteLabelValues(id, idx, st)
	}
}
