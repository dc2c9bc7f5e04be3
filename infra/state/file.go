package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/factory"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
)

// FileConfig configures the file backend.
type FileConfig struct {
	Path string `json:"path"`
}

// FileStore keeps the state as a JSON document on disk.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path, creating its directory.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &FileStore{path: path}, nil
}

func newFileFromConf(conf map[string]any) (Backend, error) {
	var c FileConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	return NewFileStore(c.Path)
}

// Path returns the state file location.
func (f *FileStore) Path() string { return f.path }

// Load reads the document. A missing file yields a fresh state.
func (f *FileStore) Load(context.Context) (scheduler.State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return scheduler.NewState(), nil
	}
	if err != nil {
		return scheduler.State{}, fmt.Errorf("read state: %w", err)
	}
	st, err := scheduler.DecodeState(data)
	if err != nil {
		return scheduler.State{}, fmt.Errorf("%s: %w", f.path, err)
	}
	return st, nil
}

// Save writes to a temporary file in the same directory, syncs it and
// renames it over the previous document.
func (f *FileStore) Save(_ context.Context, st scheduler.State) error {
	data, err := scheduler.EncodeState(st)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	name := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(fmt.Errorf("write state: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync state: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(name, f.path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("replace state: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Close is a no-op.
func (f *FileStore) Close() error { return nil }
