package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// WorkerRow is a registered worker.
type WorkerRow struct {
	ID             string    `json:"id"`
	Category       string    `json:"category"`
	Capabilities   []string  `json:"capabilities,omitempty"`
	Status         string    `json:"status"`
	CurrentTask    string    `json:"current_task,omitempty"`
	TasksCompleted int       `json:"tasks_completed"`
	RegisteredAt   time.Time `json:"registered_at"`
}

const workerColumns = `id, category, capabilities, status, current_task, tasks_completed, registered_at`

// UpsertWorker inserts or replaces a worker row.
func UpsertWorker(ctx context.Context, q Queryer, row *WorkerRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO workers (`+workerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			category = excluded.category,
			capabilities = excluded.capabilities,
			status = excluded.status,
			current_task = excluded.current_task,
			tasks_completed = excluded.tasks_completed
	`, row.ID, row.Category, encodeList(row.Capabilities), row.Status,
		row.CurrentTask, row.TasksCompleted, FormatTime(row.RegisteredAt))
	if err != nil {
		return fmt.Errorf("upsert worker: %w", err)
	}
	return nil
}

func scanWorker(scan func(...any) error) (*WorkerRow, error) {
	var (
		w                          WorkerRow
		capabilities, registeredAt string
	)
	err := scan(&w.ID, &w.Category, &capabilities, &w.Status, &w.CurrentTask,
		&w.TasksCompleted, &registeredAt)
	if err != nil {
		return nil, err
	}
	w.Capabilities = decodeList(capabilities)
	w.RegisteredAt = ParseTime(registeredAt)
	return &w, nil
}

// GetWorker returns a worker by id, or nil when absent.
func GetWorker(ctx context.Context, q Queryer, id string) (*WorkerRow, error) {
	row := q.QueryRow(ctx, "SELECT "+workerColumns+" FROM workers WHERE id = ?", id)

	w, err := scanWorker(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get worker: %w", err)
	}
	return w, nil
}

// ListWorkers returns all registered workers.
func ListWorkers(ctx context.Context, q Queryer) ([]*WorkerRow, error) {
	rows, err := q.Query(ctx, "SELECT "+workerColumns+" FROM workers ORDER BY registered_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*WorkerRow
	for rows.Next() {
		w, err := scanWorker(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}
