package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SpecRow is a registered machine-readable spec. Once locked, the row
// is immutable until the lock is lifted by a change-request flow.
type SpecRow struct {
	ProjectID string    `json:"project_id"`
	SpecType  string    `json:"spec_type"`
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Version   int       `json:"version"`
	Locked    bool      `json:"locked"`
	LockedBy  string    `json:"locked_by,omitempty"`
	LockedAt  time.Time `json:"locked_at,omitzero"`
}

const specColumns = `project_id, spec_type, path, checksum, version, locked, locked_by, locked_at`

// UpsertSpec inserts or replaces a spec registration.
func UpsertSpec(ctx context.Context, q Queryer, row *SpecRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO specs (`+specColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, spec_type) DO UPDATE SET
			path = excluded.path,
			checksum = excluded.checksum,
			version = excluded.version,
			locked = excluded.locked,
			locked_by = excluded.locked_by,
			locked_at = excluded.locked_at
	`, row.ProjectID, row.SpecType, row.Path, row.Checksum, row.Version,
		boolToInt(row.Locked), row.LockedBy, FormatTime(row.LockedAt))
	if err != nil {
		return fmt.Errorf("upsert spec: %w", err)
	}
	return nil
}

func scanSpec(scan func(...any) error) (*SpecRow, error) {
	var (
		s        SpecRow
		locked   int
		lockedAt string
	)
	err := scan(&s.ProjectID, &s.SpecType, &s.Path, &s.Checksum, &s.Version, &locked, &s.LockedBy, &lockedAt)
	if err != nil {
		return nil, err
	}
	s.Locked = locked != 0
	s.LockedAt = ParseTime(lockedAt)
	return &s, nil
}

// GetSpec returns a spec registration, or nil when absent.
func GetSpec(ctx context.Context, q Queryer, projectID, specType string) (*SpecRow, error) {
	row := q.QueryRow(ctx,
		"SELECT "+specColumns+" FROM specs WHERE project_id = ? AND spec_type = ?",
		projectID, specType)

	s, err := scanSpec(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get spec: %w", err)
	}
	return s, nil
}

// ListSpecs returns all spec registrations for a project.
func ListSpecs(ctx context.Context, q Queryer, projectID string) ([]*SpecRow, error) {
	rows, err := q.Query(ctx,
		"SELECT "+specColumns+" FROM specs WHERE project_id = ? ORDER BY spec_type ASC",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list specs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*SpecRow
	for rows.Next() {
		s, err := scanSpec(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan spec: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// LockSpecs marks every spec registration for the project locked.
func LockSpecs(ctx context.Context, q Queryer, projectID, lockedBy string, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE specs SET locked = 1, locked_by = ?, locked_at = ?
		WHERE project_id = ? AND locked = 0
	`, lockedBy, FormatTime(at), projectID)
	if err != nil {
		return fmt.Errorf("lock specs: %w", err)
	}
	return nil
}
