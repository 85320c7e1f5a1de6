package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DocumentRow is a persisted generated document version. Versions are
// append-only; a revision stores a new row with version+1.
type DocumentRow struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	DocType   string    `json:"doc_type"`
	Version   int       `json:"version"`
	Path      string    `json:"path,omitempty"`
	Content   string    `json:"content,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const documentColumns = `id, project_id, doc_type, version, path, content, created_by, created_at`

// InsertDocument appends a document version.
func InsertDocument(ctx context.Context, q Queryer, row *DocumentRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.ProjectID, row.DocType, row.Version, row.Path, row.Content,
		row.CreatedBy, FormatTime(row.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// LatestDocument returns the highest-version document of a type for a
// project, or nil when none exists.
func LatestDocument(ctx context.Context, q Queryer, projectID, docType string) (*DocumentRow, error) {
	row := q.QueryRow(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE project_id = ? AND doc_type = ?
		ORDER BY version DESC LIMIT 1
	`, projectID, docType)

	var (
		d         DocumentRow
		createdAt string
	)
	err := row.Scan(&d.ID, &d.ProjectID, &d.DocType, &d.Version, &d.Path,
		&d.Content, &d.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest document: %w", err)
	}
	d.CreatedAt = ParseTime(createdAt)
	return &d, nil
}

// ListDocuments returns all document versions for a project ordered by
// type then version.
func ListDocuments(ctx context.Context, q Queryer, projectID string) ([]*DocumentRow, error) {
	rows, err := q.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE project_id = ? ORDER BY doc_type ASC, version ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*DocumentRow
	for rows.Next() {
		var (
			d         DocumentRow
			createdAt string
		)
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.DocType, &d.Version, &d.Path,
			&d.Content, &d.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.CreatedAt = ParseTime(createdAt)
		result = append(result, &d)
	}
	return result, rows.Err()
}
