package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TaskRow is a persisted task.
type TaskRow struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	TaskType       string    `json:"task_type"`
	Priority       string    `json:"priority"`
	WorkerCategory string    `json:"worker_category"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	Blockers       []string  `json:"blockers,omitempty"`
	DependsOn      []string  `json:"depends_on,omitempty"`
	GateDependency string    `json:"gate_dependency,omitempty"`
	SpecRefs       []string  `json:"spec_refs,omitempty"`
	AssignedWorker string    `json:"assigned_worker,omitempty"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"max_attempts"`
	CreatedAt      time.Time `json:"created_at"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	CompletedAt    time.Time `json:"completed_at,omitzero"`
}

const taskColumns = `id, project_id, task_type, priority, worker_category, description,
	status, blockers, depends_on, gate_dependency, spec_refs, assigned_worker,
	attempts, max_attempts, created_at, started_at, completed_at`

// UpsertTask inserts or replaces a task row.
func UpsertTask(ctx context.Context, q Queryer, row *TaskRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			priority = excluded.priority,
			status = excluded.status,
			blockers = excluded.blockers,
			assigned_worker = excluded.assigned_worker,
			attempts = excluded.attempts,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, row.ID, row.ProjectID, row.TaskType, row.Priority, row.WorkerCategory,
		row.Description, row.Status, encodeList(row.Blockers), encodeList(row.DependsOn),
		row.GateDependency, encodeList(row.SpecRefs), row.AssignedWorker,
		row.Attempts, row.MaxAttempts, FormatTime(row.CreatedAt),
		FormatTime(row.StartedAt), FormatTime(row.CompletedAt))
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

func scanTask(scan func(...any) error) (*TaskRow, error) {
	var (
		t                                  TaskRow
		blockers, dependsOn, specRefs      string
		createdAt, startedAt, completedAt  string
	)
	err := scan(&t.ID, &t.ProjectID, &t.TaskType, &t.Priority, &t.WorkerCategory,
		&t.Description, &t.Status, &blockers, &dependsOn, &t.GateDependency,
		&specRefs, &t.AssignedWorker, &t.Attempts, &t.MaxAttempts,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.Blockers = decodeList(blockers)
	t.DependsOn = decodeList(dependsOn)
	t.SpecRefs = decodeList(specRefs)
	t.CreatedAt = ParseTime(createdAt)
	t.StartedAt = ParseTime(startedAt)
	t.CompletedAt = ParseTime(completedAt)
	return &t, nil
}

// GetTask returns a task by id, or nil when absent.
func GetTask(ctx context.Context, q Queryer, id string) (*TaskRow, error) {
	row := q.QueryRow(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)

	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks for a project, optionally filtered by status,
// ordered by creation time.
func ListTasks(ctx context.Context, q Queryer, projectID, status string) ([]*TaskRow, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE project_id = ?"
	args := []any{projectID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at ASC"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*TaskRow
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// PurgeTasks deletes all tasks for a project. Tasks are otherwise never
// destroyed; this backs the explicit purge tool only.
func PurgeTasks(ctx context.Context, q Queryer, projectID string) (int64, error) {
	res, err := q.Exec(ctx, "DELETE FROM tasks WHERE project_id = ?", projectID)
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	return res.RowsAffected()
}
