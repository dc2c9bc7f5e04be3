package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/kfoerderer/gridcontrol-bems-sub001/core/metrics"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

// PromSink mirrors scheduler observations into Prometheus metrics.
type PromSink struct {
	publications *prometheus.CounterVec
	tasks        *prometheus.CounterVec
	expected     prometheus.Gauge
	deviation    prometheus.Histogram
	phase        *prometheus.GaugeVec
}

var phases = []string{"idle", "optimizing", "publishing", "awaiting_retry"}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.publications, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gems_sink_publication_events_total",
		Help: "Publication attempts observed by the metrics sink",
	}, []string{"kind", "result"})); err != nil {
		return nil, err
	}
	if s.tasks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gems_sink_task_events_total",
		Help: "Queue tasks that were dropped or failed",
	}, []string{"task_kind", "outcome"})); err != nil {
		return nil, err
	}
	if s.expected, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gems_expected_deviation_wh",
		Help: "Expected maximum deviation reported by the last compliance optimization",
	})); err != nil {
		return nil, err
	}
	if s.deviation, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gems_measured_deviation_wh",
		Help:    "Measured deviation from the committed schedule",
		Buckets: []float64{-1000, -500, -250, -100, 0, 100, 250, 500, 1000},
	})); err != nil {
		return nil, err
	}
	if s.phase, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gems_scheduler_phase",
		Help: "1 for the current scheduler phase, 0 otherwise",
	}, []string{"phase"})); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PromSink) RecordPublication(r coremetrics.PublicationRecord) error {
	s.publications.WithLabelValues(r.Kind, r.Result).Inc()
	return nil
}

func (s *PromSink) RecordTask(r coremetrics.TaskRecord) error {
	s.tasks.WithLabelValues(r.TaskKind, r.Outcome).Inc()
	return nil
}

func (s *PromSink) RecordOptimization(r coremetrics.OptimizationRecord) error {
	s.expected.Set(r.ExpectedDeviationWh)
	return nil
}

func (s *PromSink) RecordDeviation(r coremetrics.DeviationRecord) error {
	s.deviation.Observe(r.DeviationWh)
	return nil
}

func (s *PromSink) RecordPhase(r coremetrics.PhaseRecord) error {
	for _, p := range phases {
		v := 0.0
		if p == r.Phase {
			v = 1
		}
		s.phase.WithLabelValues(p).Set(v)
	}
	return nil
}

// StartPromServer serves /metrics from g on addr until ctx is canceled. A nil
// gatherer uses the default registry.
func StartPromServer(ctx context.Context, addr string, g prometheus.Gatherer, log logger.Logger) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if log == nil {
		log = logger.New("prometheus")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("prom server shutdown: %v", err)
		}
	}()
	log.Infof("serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
