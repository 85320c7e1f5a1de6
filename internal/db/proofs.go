package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ProofRow is a persisted proof artifact. Rows are append-only; the
// content hash recorded at submission is the authoritative identity.
type ProofRow struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	GateType       string    `json:"gate_type"`
	ProofType      string    `json:"proof_type"`
	FilePath       string    `json:"file_path"`
	ContentHash    string    `json:"content_hash"`
	ContentSummary string    `json:"content_summary"`
	PassFail       string    `json:"pass_fail"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

const proofColumns = `id, project_id, gate_type, proof_type, file_path, content_hash,
	content_summary, pass_fail, created_by, created_at`

// InsertProof appends a proof artifact row.
func InsertProof(ctx context.Context, q Queryer, row *ProofRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO proof_artifacts (`+proofColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.ProjectID, row.GateType, row.ProofType, row.FilePath,
		row.ContentHash, row.ContentSummary, row.PassFail, row.CreatedBy,
		FormatTime(row.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

func scanProof(scan func(...any) error) (*ProofRow, error) {
	var (
		p         ProofRow
		createdAt string
	)
	err := scan(&p.ID, &p.ProjectID, &p.GateType, &p.ProofType, &p.FilePath,
		&p.ContentHash, &p.ContentSummary, &p.PassFail, &p.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = ParseTime(createdAt)
	return &p, nil
}

// GetProof returns a proof artifact by id, or nil when absent.
func GetProof(ctx context.Context, q Queryer, id string) (*ProofRow, error) {
	row := q.QueryRow(ctx, "SELECT "+proofColumns+" FROM proof_artifacts WHERE id = ?", id)

	p, err := scanProof(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proof: %w", err)
	}
	return p, nil
}

// ListProofs returns proof artifacts for a project, optionally filtered
// by gate, ordered by creation time.
func ListProofs(ctx context.Context, q Queryer, projectID, gateType string) ([]*ProofRow, error) {
	query := "SELECT " + proofColumns + " FROM proof_artifacts WHERE project_id = ?"
	args := []any{projectID}
	if gateType != "" {
		query += " AND gate_type = ?"
		args = append(args, gateType)
	}
	query += " ORDER BY created_at ASC"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proofs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*ProofRow
	for rows.Next() {
		p, err := scanProof(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan proof: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
