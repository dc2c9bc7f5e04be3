package metrics

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kfoerderer/gridcontrol-bems-sub001/core/metrics"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

// InfluxSink writes scheduler observations to InfluxDB using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
	site     string
}

// InfluxConfig configures an InfluxSink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	Site   string `json:"site"`
	// Strict fails sink creation on a failing health check instead of
	// falling back to a NopSink.
	Strict bool `json:"strict"`
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
		site:     cfg.Site,
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	if err := sink.ping(); err != nil {
		sink.log.Errorf("influx unavailable, metrics dropped: %v", err)
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := s.client.Health(ctx)
	if err != nil {
		return err
	}
	if health.Status != "pass" {
		return fmt.Errorf("health status %s", health.Status)
	}
	return nil
}

func (s *InfluxSink) write(p *write.Point) error {
	if s.site != "" {
		p.AddTag("site", s.site)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordPublication(r coremetrics.PublicationRecord) error {
	p := write.NewPointWithMeasurement("schedule_publication").
		AddTag("kind", r.Kind).
		AddTag("result", r.Result).
		AddField("error", r.Error).
		SetTime(r.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordOptimization(r coremetrics.OptimizationRecord) error {
	p := write.NewPointWithMeasurement("compliance_optimization").
		AddField("expected_deviation_wh", round3(r.ExpectedDeviationWh)).
		SetTime(r.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordDeviation(r coremetrics.DeviationRecord) error {
	p := write.NewPointWithMeasurement("schedule_deviation").
		AddField("deviation_wh", round3(r.DeviationWh)).
		SetTime(r.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordTask(r coremetrics.TaskRecord) error {
	p := write.NewPointWithMeasurement("queue_task").
		AddTag("task_kind", r.TaskKind).
		AddTag("outcome", r.Outcome)
	if r.Publication != "" {
		p = p.AddTag("publication", r.Publication)
	}
	p = p.AddField("task_id", r.TaskID).
		AddField("error", r.Error).
		SetTime(r.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordPhase(r coremetrics.PhaseRecord) error {
	p := write.NewPointWithMeasurement("scheduler_phase").
		AddField("phase", r.Phase).
		SetTime(r.Time)
	return s.write(p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
