// Package app wires the configured components into a running gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kfoerderer/gridcontrol-bems-sub001/app/plugins"
	"github.com/kfoerderer/gridcontrol-bems-sub001/config"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/clock"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/control"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	coremetrics "github.com/kfoerderer/gridcontrol-bems-sub001/core/metrics"
	coremon "github.com/kfoerderer/gridcontrol-bems-sub001/core/monitoring"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/journal"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/metrics"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/monitoring"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/mqtt"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/state"
	"github.com/kfoerderer/gridcontrol-bems-sub001/internal/eventbus"
	"github.com/kfoerderer/gridcontrol-bems-sub001/operator"
)

const listenerID = "scheduler"

// Service owns every long running component of the gateway.
type Service struct {
	Scheduler *scheduler.Scheduler
	Clock     clock.Clock

	cfg     *config.Config
	log     logger.Logger
	mon     coremon.Monitor
	mqtt    *mqtt.PahoClient
	inbound *mqtt.Inbound
	store   state.Backend
	journal journal.Store
	bus     *eventbus.TypedBus[scheduler.Event]
	sink    coremetrics.MetricsSink
	server  *operator.Server
	poller  *operator.Poller
	control control.Channel
}

// NewClock builds the configured time source.
func NewClock(cfg config.ClockConfig) (clock.Clock, error) {
	if cfg.Mode != "simulated" {
		return clock.NewReal(nil), nil
	}
	origin, err := cfg.Origin()
	if err != nil {
		return nil, err
	}
	if origin.IsZero() {
		origin = time.Now()
	}
	return clock.NewSimulated(nil, origin, cfg.Factor)
}

// New creates a Service from the configuration. Nothing runs until Run.
func New(cfg *config.Config) (*Service, error) {
	clk, err := NewClock(cfg.Clock)
	if err != nil {
		return nil, fmt.Errorf("clock: %w", err)
	}
	log := logger.NewWithClock("service", clk)

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	svc := &Service{Clock: clk, cfg: cfg, log: log, mon: mon, bus: eventbus.NewTyped[scheduler.Event]()}
	if err := svc.build(); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Service) build() error {
	cfg := s.cfg
	var err error
	if s.store, err = state.Open(cfg.State); err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	if s.journal, err = journal.Open(cfg.Journal); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return fmt.Errorf("metrics sinks: %w", err)
	}

	optimizers, err := plugins.BuildOptimizers(cfg.Components.Optimizers)
	if err != nil {
		return err
	}
	forecasters, err := plugins.BuildForecasters(cfg.Components.Forecasters)
	if err != nil {
		return err
	}

	if s.mqtt, err = mqtt.NewPahoClient(cfg.MQTT, logger.NewWithClock("mqtt_client", s.Clock)); err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	states := mqtt.NewStateCache(cfg.MQTT.TopicPrefix, logger.NewWithClock("state_cache", s.Clock))
	if err := states.Attach(s.mqtt); err != nil {
		return fmt.Errorf("state cache: %w", err)
	}

	var channel fms.Channel
	var fmsClient *operator.FMSClient
	if cfg.Operator.DebugFMS {
		channel = operator.NewDebugChannel(cfg.Operator.FMS.Site, logger.NewWithClock("fms_debug", s.Clock))
	} else {
		fmsClient, err = operator.NewFMSClient(cfg.Operator.FMS, nil, logger.NewWithClock("fms_client", s.Clock))
		if err != nil {
			return fmt.Errorf("fms client: %w", err)
		}
		channel = fmsClient
	}
	if cfg.Operator.Control.BaseURL != "" {
		cc, err := operator.NewControlClient(cfg.Operator.Control, nil, logger.NewWithClock("control_client", s.Clock))
		if err != nil {
			return fmt.Errorf("control client: %w", err)
		}
		s.control = cc
	}

	s.Scheduler, err = scheduler.New(cfg.Scheduler, scheduler.Deps{
		Clock:       s.Clock,
		Logger:      logger.NewWithClock("scheduler", s.Clock),
		Store:       s.store,
		FMS:         channel,
		Signals:     mqtt.NewSignalLayer(s.mqtt, cfg.MQTT.TopicPrefix),
		States:      states,
		Optimizers:  optimizers,
		Forecasters: forecasters,
		Journal:     s.journal,
		Bus:         s.bus,
	})
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	s.inbound = mqtt.NewInbound(cfg.MQTT.TopicPrefix, logger.NewWithClock("mqtt_inbound", s.Clock))
	s.inbound.AddEnabledListener(listenerID, s.Scheduler)
	s.inbound.AddREMSListener(listenerID, s.Scheduler)

	s.server = operator.NewServer(cfg.Operator.Server, operator.Deps{
		FMS:     s.Scheduler,
		Control: s.Scheduler,
		Status:  s.Scheduler,
		Journal: s.journal,
	}, logger.NewWithClock("operator", s.Clock))
	if fmsClient != nil {
		s.poller = operator.NewPoller(fmsClient, s.Scheduler, s.Clock, cfg.Operator.FMS.PollingPeriod, logger.NewWithClock("fms_poller", s.Clock))
	}
	return nil
}

// Run starts every component and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	defer coremon.Recover()

	collected := metrics.StartEventCollector(ctx, s.bus, s.sink, logger.NewWithClock("metrics", s.Clock))
	forwarded := StartAlertForwarder(ctx, s.bus, s.control, logger.NewWithClock("alerts", s.Clock))

	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, port, prometheus.DefaultGatherer, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
				coremon.CaptureException(err, map[string]string{"module": "prometheus"})
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- s.server.Run(ctx) }()

	if err := s.Scheduler.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer s.Scheduler.Stop()

	// REMS instructions are accepted only once the state is restored.
	if err := s.inbound.Attach(s.mqtt); err != nil {
		return fmt.Errorf("mqtt inbound: %w", err)
	}
	defer s.inbound.RemoveListener(listenerID)

	if s.poller != nil {
		s.poller.Start(ctx)
		defer s.poller.Stop()
	}
	s.log.Infof("gateway running")

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErr:
		if err != nil {
			err = fmt.Errorf("operator server: %w", err)
		}
	}
	s.bus.Close()
	<-collected
	<-forwarded
	return err
}

// Close releases the connections and stores. It is safe after a failed New.
func (s *Service) Close() error {
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.mon.Flush(time.Duration(s.cfg.Sentry.FlushSeconds) * time.Second)
	return errors.Join(errs...)
}
