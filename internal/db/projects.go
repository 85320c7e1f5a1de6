package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ProjectRow is a persisted project.
type ProjectRow struct {
	ID          string
	Name        string
	Owner       string
	CurrentGate string
	Complete    bool
	APIOnly     bool
	AIML        bool
	CreatedAt   time.Time
}

// InsertProject creates a project if it does not already exist.
// Creation is idempotent by id: an existing row is left untouched and
// false is returned.
func InsertProject(ctx context.Context, q Queryer, row *ProjectRow) (bool, error) {
	res, err := q.Exec(ctx, `
		INSERT INTO projects (id, name, owner, current_gate, complete, api_only, ai_ml, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, row.ID, row.Name, row.Owner, row.CurrentGate, boolToInt(row.Complete),
		boolToInt(row.APIOnly), boolToInt(row.AIML), FormatTime(row.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert project rows affected: %w", err)
	}
	return n > 0, nil
}

// GetProject returns a project by id, or nil when absent.
func GetProject(ctx context.Context, q Queryer, id string) (*ProjectRow, error) {
	row := q.QueryRow(ctx, `
		SELECT id, name, owner, current_gate, complete, api_only, ai_ml, created_at
		FROM projects WHERE id = ?
	`, id)

	var (
		p                       ProjectRow
		complete, apiOnly, aiML int
		createdAt               string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Owner, &p.CurrentGate, &complete, &apiOnly, &aiML, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	p.Complete = complete != 0
	p.APIOnly = apiOnly != 0
	p.AIML = aiML != 0
	p.CreatedAt = ParseTime(createdAt)
	return &p, nil
}

// SetCurrentGate updates the project's current gate marker.
func SetCurrentGate(ctx context.Context, q Queryer, projectID, gateType string) error {
	_, err := q.Exec(ctx, "UPDATE projects SET current_gate = ? WHERE id = ?", gateType, projectID)
	if err != nil {
		return fmt.Errorf("set current gate: %w", err)
	}
	return nil
}

// SetProjectComplete marks the project complete.
func SetProjectComplete(ctx context.Context, q Queryer, projectID string) error {
	_, err := q.Exec(ctx, "UPDATE projects SET complete = 1 WHERE id = ?", projectID)
	if err != nil {
		return fmt.Errorf("set project complete: %w", err)
	}
	return nil
}

// ListProjects returns all projects ordered by creation time.
func ListProjects(ctx context.Context, q Queryer) ([]*ProjectRow, error) {
	rows, err := q.Query(ctx, `
		SELECT id, name, owner, current_gate, complete, api_only, ai_ml, created_at
		FROM projects ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*ProjectRow
	for rows.Next() {
		var (
			p                       ProjectRow
			complete, apiOnly, aiML int
			createdAt               string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Owner, &p.CurrentGate, &complete, &apiOnly, &aiML, &createdAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Complete = complete != 0
		p.APIOnly = apiOnly != 0
		p.AIML = aiML != 0
		p.CreatedAt = ParseTime(createdAt)
		result = append(result, &p)
	}
	return result, rows.Err()
}
