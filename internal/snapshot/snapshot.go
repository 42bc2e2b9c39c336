// Package snapshot mirrors subscriptions and channel preferences to JSON
// files so they survive the loss of the database.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sale_bot/internal/model"
	"sale_bot/internal/storage"
)

// DefaultDelay is how long Schedule waits for further changes before writing.
const DefaultDelay = 250 * time.Millisecond

const (
	subsFile  = "subscriptions.json"
	prefsFile = "channel_prefs.json"
)

// Source provides and accepts the persisted state.
type Source interface {
	ExportState(ctx context.Context) (storage.State, error)
	ImportState(ctx context.Context, st storage.State) error
}

// Snapshotter writes debounced state snapshots into a directory.
type Snapshotter struct {
	dir    string
	src    Source
	delay  time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
	write sync.Mutex
}

// New creates a Snapshotter that writes into dir.
func New(dir string, src Source, logger *slog.Logger) *Snapshotter {
	return &Snapshotter{dir: dir, src: src, delay: DefaultDelay, logger: logger}
}

// WithDelay overrides the debounce delay.
func (s *Snapshotter) WithDelay(d time.Duration) *Snapshotter {
	s.delay = d
	return s
}

// Schedule requests a snapshot. Calls within the delay window collapse
// into a single write.
func (s *Snapshotter) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		if err := s.save(context.Background()); err != nil {
			s.logger.Warn("snapshot failed", "dir", s.dir, "error", err)
		}
	})
}

// Flush cancels a pending snapshot and writes one immediately.
func (s *Snapshotter) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.save(ctx)
}

func (s *Snapshotter) save(ctx context.Context) error {
	s.write.Lock()
	defer s.write.Unlock()

	st, err := s.src.ExportState(ctx)
	if err != nil {
		return fmt.Errorf("export state: %w", err)
	}
	if st.Subscriptions == nil {
		st.Subscriptions = []model.Subscription{}
	}
	if st.Preferences == nil {
		st.Preferences = []model.ChannelPreferences{}
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := writeJSON(filepath.Join(s.dir, subsFile), st.Subscriptions); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.dir, prefsFile), st.Preferences); err != nil {
		return err
	}
	s.logger.Debug("snapshot saved", "dir", s.dir,
		"subscriptions", len(st.Subscriptions), "preferences", len(st.Preferences))
	return nil
}

// Restore loads the snapshot files, if present, into the source.
// Unreadable files are logged and skipped.
func (s *Snapshotter) Restore(ctx context.Context) (storage.State, error) {
	var st storage.State
	s.readJSON(filepath.Join(s.dir, subsFile), &st.Subscriptions)
	s.readJSON(filepath.Join(s.dir, prefsFile), &st.Preferences)
	if len(st.Subscriptions) == 0 && len(st.Preferences) == 0 {
		return st, nil
	}
	if err := s.src.ImportState(ctx, st); err != nil {
		return storage.State{}, fmt.Errorf("import state: %w", err)
	}
	s.logger.Info("state restored", "dir", s.dir,
		"subscriptions", len(st.Subscriptions), "preferences", len(st.Preferences))
	return st, nil
}

func (s *Snapshotter) readJSON(path string, dst any) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the configured state dir
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		s.logger.Warn("read snapshot", "path", path, "error", err)
		return
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("decode snapshot", "path", path, "error", err)
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
