package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `version: 1
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "gems"
  username: "user"
  password: "pass"
  topic_prefix: "site1"
  qos:
    rems: 1
scheduler:
  slot_length: 900
  timezone: Europe/Berlin
  batteries: [bat1]
  fms_schedule_publishing_cron: "0 30 8"
clock:
  mode: simulated
  start: "2024-01-01T00:00:00Z"
  factor: 60
state:
  type: sqlite
  conf:
    path: /var/lib/gems/state.db
journal:
  backend: sqlite
  path: /var/lib/gems/journal.db
operator:
  server:
    addr: ":9000"
    token: "secret"
  fms:
    base_url: "https://fms.example.com"
    site: "vsp1"
    polling_period: 60
    auth:
      user: gems
      password: pw
metrics:
  prometheus_port: ":2112"
  sinks:
    - type: "nop"
components:
  optimizers:
    - type: mock
    - type: greedy
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "gems"},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "site1"},
		{"qos", cfg.MQTT.QoS["rems"], byte(1)},
		{"slot_length", cfg.Scheduler.SlotLength, int64(900)},
		{"cron", cfg.Scheduler.FMSSchedulePublishingCron, "0 30 8"},
		{"scheduler default", cfg.Scheduler.REMSDataProvisionInterval, int64(10)},
		{"clock.mode", cfg.Clock.Mode, "simulated"},
		{"clock.factor", cfg.Clock.Factor, 60.0},
		{"state.type", cfg.State.Type, "sqlite"},
		{"state.path", cfg.State.Conf["path"], "/var/lib/gems/state.db"},
		{"journal.backend", cfg.Journal.Backend, "sqlite"},
		{"operator.addr", cfg.Operator.Server.Addr, ":9000"},
		{"fms.site", cfg.Operator.FMS.Site, "vsp1"},
		{"fms.push_path", cfg.Operator.FMS.PushPath, "/push"},
		{"fms.polling", cfg.Operator.FMS.PollingPeriod, int64(60)},
		{"fms.auth.user", cfg.Operator.FMS.Auth.User, "gems"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"optimizers", len(cfg.Components.Optimizers), 2},
		{"sentry.flush", cfg.Sentry.FlushSeconds, 2},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{"operator": {"debug_fms": true}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Version != Version {
		t.Fatalf("version = %d", cfg.Version)
	}
	if cfg.Clock.Mode != "real" {
		t.Fatalf("clock mode = %s", cfg.Clock.Mode)
	}
	if cfg.State.Type != "file" {
		t.Fatalf("state type = %s", cfg.State.Type)
	}
	if cfg.Journal.Backend != "jsonl" {
		t.Fatalf("journal backend = %s", cfg.Journal.Backend)
	}
	if len(cfg.Components.Optimizers) != 1 || cfg.Components.Optimizers[0].Type != "greedy" {
		t.Fatalf("optimizers = %+v", cfg.Components.Optimizers)
	}
	if cfg.Scheduler.SlotLength != 900 {
		t.Fatalf("slot length = %d", cfg.Scheduler.SlotLength)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", "operator:\n  debug_fms: true\nmqtt:\n  broker: tcp://file:1883\n")
	t.Setenv("K_MQTT__BROKER", "tcp://env:1883")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://env:1883" {
		t.Fatalf("broker = %s", cfg.MQTT.Broker)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"unsupported format", "config.toml", `a = 1`},
		{"newer version", "config.json", `{"version": 2, "operator": {"debug_fms": true}}`},
		{"missing fms site", "config.json", `{"operator": {"fms": {"base_url": "http://fms"}}}`},
		{"bad slot", "config.json", `{"operator": {"debug_fms": true}, "scheduler": {"slot_length": 7}}`},
		{"bad clock mode", "config.json", `{"operator": {"debug_fms": true}, "clock": {"mode": "warp"}}`},
		{"bad clock start", "config.json", `{"operator": {"debug_fms": true}, "clock": {"mode": "simulated", "start": "yesterday"}}`},
		{"bad journal", "config.json", `{"operator": {"debug_fms": true}, "journal": {"backend": "csv"}}`},
		{"bad sample rate", "config.json", `{"operator": {"debug_fms": true}, "sentry": {"traces_sample_rate": 2}}`},
		{"bad control url", "config.json", `{"operator": {"debug_fms": true, "control": {"base_url": "mqtt://x"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.file, tt.data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
