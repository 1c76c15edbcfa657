package protocol

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	outbound *prometheus.CounterVec
	inbound  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	late     *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	panics   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpui",
			Subsystem: "protocol",
			Name:      "outbound_requests_total",
			Help:      "Outbound requests by role, method and outcome.",
		}, []string{"role", "method", "outcome"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpui",
			Subsystem: "protocol",
			Name:      "inbound_requests_total",
			Help:      "Inbound requests by role, method and outcome.",
		}, []string{"role", "method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcpui",
			Subsystem: "protocol",
			Name:      "outbound_request_duration_seconds",
			Help:      "Time from sending a request until its outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role", "method"}),
		late: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpui",
			Subsystem: "protocol",
			Name:      "late_responses_total",
			Help:      "Responses that matched no pending request.",
		}, []string{"role"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpui",
			Subsystem: "protocol",
			Name:      "inbound_dropped_total",
			Help:      "Inbound messages dropped before dispatch, by reason.",
		}, []string{"role", "reason"}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpui",
			Subsystem: "protocol",
			Name:      "handler_panics_total",
			Help:      "Inbound handlers that panicked.",
		}, []string{"role"}),
	}
	if reg != nil {
		m.outbound = register(reg, m.outbound)
		m.inbound = register(reg, m.inbound)
		m.duration = register(reg, m.duration)
		m.late = register(reg, m.late)
		m.dropped = register(reg, m.dropped)
		m.panics = register(reg, m.panics)
	}
	return m
}

// register reuses an identical collector already registered by another
// Protocol on the same registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func outcomeOf(err error) string {
	var re *RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.As(err, &re):
		return "remote_error"
	}
	return "error"
}
