// Package worker tracks the agent worker fleet: registration,
// availability, and category matching for the task queue.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/truth"
)

// Worker status values. A worker is in exactly one of these.
const (
	StatusIdle    = "idle"
	StatusActive  = "active"
	StatusOffline = "offline"
)

// Registry is the fleet registry. Workers register at boot and go
// offline on disconnect; records persist through the truth store so
// the fleet view survives restarts.
type Registry struct {
	truth  *truth.Store
	logger *slog.Logger
	mu     sync.Mutex
}

// NewRegistry creates a worker registry over the truth store.
func NewRegistry(store *truth.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{truth: store, logger: logger}
}

// Worker events are not tied to one project; they live on the global
// stream.
const globalStream = events.GlobalProjectID

// Register adds a worker in idle state. Re-registering an existing id
// resets its category and capabilities and brings it back online.
func (r *Registry) Register(ctx context.Context, workerID, category string, capabilities []string) (*db.WorkerRow, error) {
	if workerID == "" || category == "" {
		return nil, errors.InvalidInput("worker", errors.FieldIssue{
			Field: "id/category", Message: "required",
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := db.GetWorker(ctx, r.truth.DB(), workerID)
	if err != nil {
		return nil, errors.Upstream("get worker", err)
	}

	row := &db.WorkerRow{
		ID:           workerID,
		Category:     category,
		Capabilities: capabilities,
		Status:       StatusIdle,
		RegisteredAt: time.Now().UTC(),
	}
	if existing != nil {
		row.TasksCompleted = existing.TasksCompleted
		row.RegisteredAt = existing.RegisteredAt
	}

	_, err = r.truth.AppendEvent(ctx, globalStream,
		events.New(events.TypeWorkerRegistered, globalStream, workerID, nil).WithRecord(row))
	if err != nil {
		return nil, err
	}
	r.logger.Info("worker registered", "worker", workerID, "category", category)
	return row, nil
}

// MarkActive moves an idle worker to active with the task it claimed.
func (r *Registry) MarkActive(ctx context.Context, workerID, taskID string) error {
	return r.transition(ctx, workerID, func(row *db.WorkerRow) error {
		if row.Status == StatusOffline {
			return errors.PreconditionFailed(fmt.Sprintf("worker %s is offline", workerID))
		}
		row.Status = StatusActive
		row.CurrentTask = taskID
		return nil
	})
}

// MarkIdle returns a worker to idle, counting a completed task when
// one was assigned.
func (r *Registry) MarkIdle(ctx context.Context, workerID string, completedTask bool) error {
	return r.transition(ctx, workerID, func(row *db.WorkerRow) error {
		row.Status = StatusIdle
		row.CurrentTask = ""
		if completedTask {
			row.TasksCompleted++
		}
		return nil
	})
}

// Deregister marks a worker offline on disconnect. Its history is
// retained.
func (r *Registry) Deregister(ctx context.Context, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, err := db.GetWorker(ctx, r.truth.DB(), workerID)
	if err != nil {
		return errors.Upstream("get worker", err)
	}
	if row == nil {
		return errors.NotFound("worker", workerID)
	}

	row.Status = StatusOffline
	row.CurrentTask = ""
	_, err = r.truth.AppendEvent(ctx, globalStream,
		events.New(events.TypeWorkerOffline, globalStream, workerID, nil).WithRecord(row))
	return err
}

func (r *Registry) transition(ctx context.Context, workerID string, mutate func(*db.WorkerRow) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, err := db.GetWorker(ctx, r.truth.DB(), workerID)
	if err != nil {
		return errors.Upstream("get worker", err)
	}
	if row == nil {
		return errors.NotFound("worker", workerID)
	}
	if err := mutate(row); err != nil {
		return err
	}

	_, err = r.truth.AppendEvent(ctx, globalStream,
		events.New(events.TypeWorkerRegistered, globalStream, workerID, nil).WithRecord(row))
	return err
}

// Get returns one worker.
func (r *Registry) Get(ctx context.Context, workerID string) (*db.WorkerRow, error) {
	row, err := db.GetWorker(ctx, r.truth.DB(), workerID)
	if err != nil {
		return nil, errors.Upstream("get worker", err)
	}
	if row == nil {
		return nil, errors.NotFound("worker", workerID)
	}
	return row, nil
}

// List returns all registered workers, online or not.
func (r *Registry) List(ctx context.Context) ([]*db.WorkerRow, error) {
	rows, err := db.ListWorkers(ctx, r.truth.DB())
	if err != nil {
		return nil, errors.Upstream("list workers", err)
	}
	return rows, nil
}

// Idle returns idle workers, optionally filtered by category.
func (r *Registry) Idle(ctx context.Context, category string) ([]*db.WorkerRow, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var idle []*db.WorkerRow
	for _, w := range rows {
		if w.Status != StatusIdle {
			continue
		}
		if category != "" && w.Category != category {
			continue
		}
		idle = append(idle, w)
	}
	return idle, nil
}
