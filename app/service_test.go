package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kfoerderer/gridcontrol-bems-sub001/config"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/clock"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/factory"
)

func TestNewClock(t *testing.T) {
	rc, err := NewClock(config.ClockConfig{Mode: "real"})
	require.NoError(t, err)
	assert.IsType(t, &clock.Real{}, rc)

	sim, err := NewClock(config.ClockConfig{Mode: "simulated", Start: "2024-01-01T00:00:00Z", Factor: 60})
	require.NoError(t, err)
	require.IsType(t, &clock.Simulated{}, sim)
	assert.InDelta(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), sim.Unix(), 120)

	_, err = NewClock(config.ClockConfig{Mode: "simulated", Factor: 0})
	assert.Error(t, err)
}

func TestNewRejectsUnknownOptimizer(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		State:    factory.ModuleConfig{Type: "file", Conf: map[string]any{"path": filepath.Join(dir, "state.json")}},
		Operator: config.OperatorConfig{DebugFMS: true},
		Components: config.ComponentsConfig{
			Optimizers: []config.PluginConfig{{Type: "quantum"}},
		},
	}
	cfg.Journal.Path = filepath.Join(dir, "journal.jsonl")
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantum")
}
