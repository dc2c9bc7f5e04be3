// Package state provides durable scheduler.Store backends. Every Save is
// atomic: a reader sees either the previous or the new document.
package state

import (
	"fmt"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/factory"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
)

// DefaultPath is the state file used when none is configured.
const DefaultPath = "persistence_scheduler.json"

// Backend is a closable scheduler.Store.
type Backend interface {
	scheduler.Store
	Close() error
}

// Registry holds the known backend factories.
var Registry = factory.NewRegistry[Backend]()

func init() {
	mustRegister("file", newFileFromConf)
	mustRegister("redis", newRedisFromConf)
	mustRegister("sqlite", newSQLiteFromConf)
	mustRegister("memory", func(map[string]any) (Backend, error) { return memoryBackend{&scheduler.MemoryStore{}}, nil })
}

func mustRegister(name string, f factory.Factory[Backend]) {
	if err := Registry.Register(name, f); err != nil {
		panic(err)
	}
}

// Open builds the backend selected by cfg. An empty type selects the file
// backend at DefaultPath.
func Open(cfg factory.ModuleConfig) (Backend, error) {
	if cfg.Type == "" {
		cfg.Type = "file"
	}
	b, err := Registry.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("state backend %s: %w", cfg.Type, err)
	}
	return b, nil
}

type memoryBackend struct{ *scheduler.MemoryStore }

func (memoryBackend) Close() error { return nil }
