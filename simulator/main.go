// Command simulator emulates a household with PV, load and a battery on the
// MQTT topics served by the gateway.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/clock"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	coremqtt "github.com/kfoerderer/gridcontrol-bems-sub001/core/mqtt"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/mqtt"
)

type options struct {
	Broker      string
	TopicPrefix string
	Interval    time.Duration
	Factor      float64
	Start       string
	Profile     string
	CapacityWh  float64
	ChargeW     float64
	DischargeW  float64
	PVPeakW     float64
	LoadFile    string
}

func main() {
	opts := parseFlags()
	log := logger.New("simulator")
	if err := run(opts, log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&o.TopicPrefix, "topic-prefix", coremqtt.DefaultPrefix, "MQTT topic prefix")
	flag.DurationVar(&o.Interval, "interval", 10*time.Second, "state publish interval in simulated time")
	flag.Float64Var(&o.Factor, "factor", 1, "simulation speed-up")
	flag.StringVar(&o.Start, "start", "", "RFC 3339 simulated start, empty for now")
	flag.StringVar(&o.Profile, "battery-profile", "", "predefined battery profile (small,medium,large)")
	flag.Float64Var(&o.CapacityWh, "capacity", 10000, "battery capacity Wh")
	flag.Float64Var(&o.ChargeW, "charge-rate", 5000, "charge rate W")
	flag.Float64Var(&o.DischargeW, "discharge-rate", 5000, "discharge rate W")
	flag.Float64Var(&o.PVPeakW, "pv-peak", 8000, "PV peak power W")
	flag.StringVar(&o.LoadFile, "load-file", "", "hourly load profile JSON")
	flag.Parse()
	applyBatteryProfile(&o)
	return o
}

func applyBatteryProfile(o *options) {
	switch o.Profile {
	case "small":
		o.CapacityWh, o.ChargeW, o.DischargeW = 5000, 2500, 2500
	case "medium":
		o.CapacityWh, o.ChargeW, o.DischargeW = 10000, 5000, 5000
	case "large":
		o.CapacityWh, o.ChargeW, o.DischargeW = 20000, 10000, 10000
	}
}

func newSite(o options) (*Site, error) {
	load := [24]float64{}
	for i := range load {
		load[i] = 400
	}
	if o.LoadFile != "" {
		data, err := os.ReadFile(o.LoadFile)
		if err != nil {
			return nil, err
		}
		var m map[string]float64
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("load file: %w", err)
		}
		load = LoadProfile(m)
	}
	return &Site{
		BatteryID:     "battery",
		ConsumptionID: "consumption",
		ProductionID:  "pv",
		Battery:       &Battery{CapacityWh: o.CapacityWh, Soc: 0.5, MaxChargeW: o.ChargeW, MaxDischargeW: o.DischargeW},
		LoadW:         load,
		PVPeakW:       o.PVPeakW,
	}, nil
}

func run(o options, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	origin := time.Now()
	if o.Start != "" {
		t, err := time.Parse(time.RFC3339, o.Start)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		origin = t
	}
	clk, err := clock.NewSimulated(nil, origin, o.Factor)
	if err != nil {
		return err
	}
	site, err := newSite(o)
	if err != nil {
		return err
	}
	client, err := mqtt.NewPahoClient(mqtt.Config{
		Broker:      o.Broker,
		ClientID:    fmt.Sprintf("gems-simulator-%d", time.Now().UnixNano()),
		TopicPrefix: o.TopicPrefix,
	}, log)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	sim := &simulation{site: site, pub: client, topics: coremqtt.NewTopics(o.TopicPrefix), clk: clk, log: log}
	if err := sim.attach(client); err != nil {
		return err
	}
	h := clk.ScheduleAtRate(func() { sim.tick(ctx, o.Interval) }, 0, o.Interval)
	defer h.Cancel()
	log.Infof("simulating site from %s at factor %.1f", origin.Format(time.RFC3339), o.Factor)
	<-ctx.Done()
	return nil
}

type simulation struct {
	site   *Site
	pub    mqtt.Publisher
	topics coremqtt.Topics
	clk    clock.Clock
	log    logger.Logger
}

type tasksMessage struct {
	DeviceID string             `json:"device_id"`
	Tasks    []model.DeviceTask `json:"tasks"`
}

func (s *simulation) attach(sub mqtt.Subscriber) error {
	return sub.Subscribe(s.topics.DeviceTasks(s.site.BatteryID), "tasks", s.onTasks)
}

func (s *simulation) onTasks(topic string, payload []byte) {
	var msg tasksMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.log.Warnf("invalid tasks on %s: %v", topic, err)
		return
	}
	for _, t := range msg.Tasks {
		if s.site.SetTask(t) {
			s.log.Infof("battery follows %d slot plan from %d", len(t.Power), t.StartingTime)
		}
	}
}

func (s *simulation) tick(ctx context.Context, dt time.Duration) {
	snap := s.site.Step(s.clk.Now(), dt)
	if err := s.publish(ctx, snap); err != nil {
		s.log.Warnf("publish state: %v", err)
	}
}

func (s *simulation) publish(ctx context.Context, snap Snapshot) error {
	if err := s.pub.PublishJSON(ctx, s.topics.DeviceState(snap.Provider.DeviceID), "state", true, snap.Provider); err != nil {
		return err
	}
	if err := s.pub.PublishJSON(ctx, s.topics.BatteryState(snap.Battery.DeviceID), "state", true, snap.Battery); err != nil {
		return err
	}
	for _, m := range snap.Meters {
		if err := s.pub.PublishJSON(ctx, s.topics.MeterMeasurement(m.DeviceID), "state", true, m); err != nil {
			return err
		}
	}
	return nil
}
