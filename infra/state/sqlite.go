package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/factory"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
)

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string `json:"path"`
}

// SQLiteStore keeps the state document in a single row.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS scheduler_state (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        version INTEGER NOT NULL,
        document TEXT NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func newSQLiteFromConf(conf map[string]any) (Backend, error) {
	var c SQLiteConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	if c.Path == "" {
		c.Path = "scheduler_state.db"
	}
	return NewSQLiteStore(c.Path)
}

// Load reads the row. An empty table yields a fresh state.
func (s *SQLiteStore) Load(ctx context.Context) (scheduler.State, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM scheduler_state WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return scheduler.NewState(), nil
	}
	if err != nil {
		return scheduler.State{}, fmt.Errorf("select state: %w", err)
	}
	return scheduler.DecodeState([]byte(doc))
}

// Save upserts the row inside a transaction.
func (s *SQLiteStore) Save(ctx context.Context, st scheduler.State) error {
	data, err := scheduler.EncodeState(st)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO scheduler_state (id, version, document) VALUES (1, ?, ?)
        ON CONFLICT(id) DO UPDATE SET version = excluded.version, document = excluded.document`,
		scheduler.StateVersion, string(data))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert state: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
