// Package journal stores publication attempts for the operator API.
package journal

import (
	"context"
	"fmt"
	"sort"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
)

// Query filters journal entries. Zero values match everything. Limit keeps
// the newest entries.
type Query struct {
	From    int64
	To      int64
	Kind    model.PublicationKind
	Outcome string
	Limit   int
}

func (q Query) match(e scheduler.JournalEntry) bool {
	if q.From != 0 && e.Time < q.From {
		return false
	}
	if q.To != 0 && e.Time > q.To {
		return false
	}
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if q.Outcome != "" && e.Outcome != q.Outcome {
		return false
	}
	return true
}

// Store persists journal entries and supports querying.
type Store interface {
	scheduler.Journal
	Query(ctx context.Context, q Query) ([]scheduler.JournalEntry, error)
	Close() error
}

// Open creates the store selected by cfg.
func Open(cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "jsonl":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	}
	return nil, fmt.Errorf("unknown journal backend %s", cfg.Backend)
}

// limit sorts by time and keeps the newest n entries.
func limit(entries []scheduler.JournalEntry, n int) []scheduler.JournalEntry {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Time < entries[j].Time })
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}
