package proof

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
)

// Watcher re-verifies proof artifacts when their evidence files change
// on disk, surfacing tampering as integrity_violation events without
// waiting for an explicit Verify call.
type Watcher struct {
	ledger  *Ledger
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu sync.Mutex
	// file path -> artifact ids submitted against it
	artifacts map[string][]string
}

// NewWatcher creates a tamper watcher over the ledger.
func NewWatcher(ledger *Ledger, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Upstream("create file watcher", err)
	}
	return &Watcher{
		ledger:    ledger,
		watcher:   fsw,
		logger:    logger,
		artifacts: make(map[string][]string),
	}, nil
}

// TrackProject registers every artifact file of a project for
// watching. Call again after new submissions to pick them up.
func (w *Watcher) TrackProject(ctx context.Context, projectID string) error {
	rows, err := db.ListProofs(ctx, w.ledger.truth.DB(), projectID, "")
	if err != nil {
		return errors.Upstream("list proofs", err)
	}
	for _, row := range rows {
		if err := w.track(row.FilePath, row.ID); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) track(path, artifactID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	known := w.artifacts[path]
	for _, id := range known {
		if id == artifactID {
			return nil
		}
	}
	if len(known) == 0 {
		if err := w.watcher.Add(path); err != nil {
			return errors.Upstream("watch proof file", err)
		}
	}
	w.artifacts[path] = append(known, artifactID)
	return nil
}

// Run processes file events until the context is cancelled. Writes are
// debounced per path so a burst of saves triggers one re-verification;
// removals and renames re-verify immediately.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	deb := newDebouncer(debounceInterval, func(path string) {
		w.reverify(ctx, path)
	})
	defer deb.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Op&fsnotify.Write != 0:
				deb.trigger(event.Name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.reverify(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("proof watcher error", "error", err)
		}
	}
}

func (w *Watcher) reverify(ctx context.Context, path string) {
	w.mu.Lock()
	ids := append([]string(nil), w.artifacts[path]...)
	w.mu.Unlock()

	for _, artifactID := range ids {
		result, err := w.ledger.Verify(ctx, artifactID)
		if err != nil {
			w.logger.Error("re-verify after file change failed",
				"artifact", artifactID, "error", err)
			continue
		}
		if !result.Valid {
			w.logger.Warn("tracked proof file changed",
				"file", path,
				"error", errors.IntegrityFailure(artifactID, result.StoredHash, result.CurrentHash))
		}
	}
}
