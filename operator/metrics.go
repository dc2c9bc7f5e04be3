package operator

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests        *prometheus.CounterVec
	outboundRequests    *prometheus.CounterVec
	inboundInstructions *prometheus.CounterVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec) {
	reqs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gems_operator_http_requests_total",
			Help: "Operator API requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)
	out := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gems_operator_outbound_requests_total",
			Help: "Outbound FMS and control requests by target and result",
		},
		[]string{"target", "result"},
	)
	in := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gems_operator_instructions_total",
			Help: "FMS instructions pulled by type and outcome",
		},
		[]string{"type", "outcome"},
	)
	return reqs, out, in
}

func init() {
	ResetMetrics(prometheus.DefaultRegisterer)
}

// ResetMetrics replaces the collectors and registers them on reg. Collectors
// already present on reg are reused.
func ResetMetrics(reg prometheus.Registerer) {
	httpRequests, outboundRequests, inboundInstructions = newCollectors()
	httpRequests = register(reg, httpRequests)
	outboundRequests = register(reg, outboundRequests)
	inboundInstructions = register(reg, inboundInstructions)
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
