package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/factory"
	coremetrics "github.com/kfoerderer/gridcontrol-bems-sub001/core/metrics"
)

func init() {
	mustRegister("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})
	// Served by the listener on metrics.prometheus_port.
	mustRegister("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})
	mustRegister("influx", newInfluxFromConf)
}

func mustRegister(name string, f factory.Factory[coremetrics.MetricsSink]) {
	if err := coremetrics.RegisterMetricsSink(name, f); err != nil {
		panic(err)
	}
}

func newInfluxFromConf(conf map[string]any) (coremetrics.MetricsSink, error) {
	var c InfluxConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	if c.URL == "" || c.Bucket == "" {
		return nil, errors.New("influx sink needs url and bucket")
	}
	if !c.Strict {
		return NewInfluxSinkWithFallback(c), nil
	}
	sink := NewInfluxSink(c)
	if err := sink.ping(); err != nil {
		sink.Close()
		return nil, fmt.Errorf("influx %s: %w", c.URL, err)
	}
	return sink, nil
}
