package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AssessmentRow is a persisted parallel assessment session. The
// per-agent slots live in the JSON Data column; only the fields needed
// for querying are lifted into columns.
type AssessmentRow struct {
	ID        string
	ProjectID string
	Status    string
	StartedAt time.Time
	ExpiresAt time.Time
	Data      string
}

const assessmentColumns = `id, project_id, status, started_at, expires_at, data`

// UpsertAssessment inserts or replaces an assessment session.
func UpsertAssessment(ctx context.Context, q Queryer, row *AssessmentRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO assessment_sessions (`+assessmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data
	`, row.ID, row.ProjectID, row.Status, FormatTime(row.StartedAt),
		FormatTime(row.ExpiresAt), row.Data)
	if err != nil {
		return fmt.Errorf("upsert assessment: %w", err)
	}
	return nil
}

func scanAssessment(scan func(...any) error) (*AssessmentRow, error) {
	var (
		a                    AssessmentRow
		startedAt, expiresAt string
	)
	err := scan(&a.ID, &a.ProjectID, &a.Status, &startedAt, &expiresAt, &a.Data)
	if err != nil {
		return nil, err
	}
	a.StartedAt = ParseTime(startedAt)
	a.ExpiresAt = ParseTime(expiresAt)
	return &a, nil
}

// GetAssessment returns an assessment session by id, or nil when absent.
func GetAssessment(ctx context.Context, q Queryer, id string) (*AssessmentRow, error) {
	row := q.QueryRow(ctx,
		"SELECT "+assessmentColumns+" FROM assessment_sessions WHERE id = ?", id)

	a, err := scanAssessment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return a, nil
}

// ActiveAssessment returns the most recent active session for a
// project, or nil when none is active.
func ActiveAssessment(ctx context.Context, q Queryer, projectID string) (*AssessmentRow, error) {
	row := q.QueryRow(ctx, `
		SELECT `+assessmentColumns+` FROM assessment_sessions
		WHERE project_id = ? AND status = 'active'
		ORDER BY started_at DESC LIMIT 1
	`, projectID)

	a, err := scanAssessment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active assessment: %w", err)
	}
	return a, nil
}
