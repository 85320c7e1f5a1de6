package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GateRow is a persisted gate record. At most one row exists per
// (project, gate type).
type GateRow struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	GateType        string `json:"gate_type"`
	Status          string `json:"status"`
	RequiresProof   bool   `json:"requires_proof"`
	PassingCriteria string `json:"passing_criteria"`
	Description     string `json:"description"`
	ApprovedBy      string `json:"approved_by,omitempty"`
	ApprovedAt      string `json:"approved_at,omitempty"`
	ReviewNotes     string `json:"review_notes,omitempty"`
	BlockingReason  string `json:"blocking_reason,omitempty"`
	ForcedApproval  bool   `json:"forced_approval,omitempty"`
	SkippedByPolicy bool   `json:"skipped_by_policy,omitempty"`
	ReviewData      string `json:"review_data,omitempty"`
}

const gateColumns = `id, project_id, gate_type, status, requires_proof, passing_criteria,
	description, approved_by, approved_at, review_notes, blocking_reason,
	forced_approval, skipped_by_policy, review_data`

// UpsertGate inserts or replaces a gate row keyed by (project, type).
func UpsertGate(ctx context.Context, q Queryer, row *GateRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO gates (`+gateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, gate_type) DO UPDATE SET
			status = excluded.status,
			requires_proof = excluded.requires_proof,
			passing_criteria = excluded.passing_criteria,
			description = excluded.description,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			review_notes = excluded.review_notes,
			blocking_reason = excluded.blocking_reason,
			forced_approval = excluded.forced_approval,
			skipped_by_policy = excluded.skipped_by_policy,
			review_data = excluded.review_data
	`, row.ID, row.ProjectID, row.GateType, row.Status, boolToInt(row.RequiresProof),
		row.PassingCriteria, row.Description, row.ApprovedBy, row.ApprovedAt,
		row.ReviewNotes, row.BlockingReason, boolToInt(row.ForcedApproval),
		boolToInt(row.SkippedByPolicy), row.ReviewData)
	if err != nil {
		return fmt.Errorf("upsert gate: %w", err)
	}
	return nil
}

func scanGate(scan func(...any) error) (*GateRow, error) {
	var (
		g                        GateRow
		requires, forced, skipped int
	)
	err := scan(&g.ID, &g.ProjectID, &g.GateType, &g.Status, &requires,
		&g.PassingCriteria, &g.Description, &g.ApprovedBy, &g.ApprovedAt,
		&g.ReviewNotes, &g.BlockingReason, &forced, &skipped, &g.ReviewData)
	if err != nil {
		return nil, err
	}
	g.RequiresProof = requires != 0
	g.ForcedApproval = forced != 0
	g.SkippedByPolicy = skipped != 0
	return &g, nil
}

// GetGate returns the gate for (project, type), or nil when absent.
func GetGate(ctx context.Context, q Queryer, projectID, gateType string) (*GateRow, error) {
	row := q.QueryRow(ctx,
		"SELECT "+gateColumns+" FROM gates WHERE project_id = ? AND gate_type = ?",
		projectID, gateType)

	g, err := scanGate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gate: %w", err)
	}
	return g, nil
}

// ListGates returns all gates for a project in G1..G9 order.
func ListGates(ctx context.Context, q Queryer, projectID string) ([]*GateRow, error) {
	rows, err := q.Query(ctx,
		"SELECT "+gateColumns+" FROM gates WHERE project_id = ? ORDER BY gate_type ASC",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list gates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*GateRow
	for rows.Next() {
		g, err := scanGate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan gate: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}
