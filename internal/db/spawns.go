package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SpawnRow is a persisted agent spawn record. Immutable once status
// reaches a terminal value.
type SpawnRow struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	AgentName        string    `json:"agent_name"`
	GateType         string    `json:"gate_type"`
	TaskDescription  string    `json:"task_description"`
	Status           string    `json:"status"`
	SpawnedAt        time.Time `json:"spawned_at"`
	CompletedAt      time.Time `json:"completed_at,omitzero"`
	ResultSummary    string    `json:"result_summary,omitempty"`
	ProofArtifactIDs []string  `json:"proof_artifact_ids,omitempty"`
}

const spawnColumns = `id, project_id, agent_name, gate_type, task_description, status,
	spawned_at, completed_at, result_summary, proof_artifact_ids`

// UpsertSpawn inserts or replaces a spawn record.
func UpsertSpawn(ctx context.Context, q Queryer, row *SpawnRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO agent_spawns (`+spawnColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			result_summary = excluded.result_summary,
			proof_artifact_ids = excluded.proof_artifact_ids
	`, row.ID, row.ProjectID, row.AgentName, row.GateType, row.TaskDescription,
		row.Status, FormatTime(row.SpawnedAt), FormatTime(row.CompletedAt),
		row.ResultSummary, encodeList(row.ProofArtifactIDs))
	if err != nil {
		return fmt.Errorf("upsert spawn: %w", err)
	}
	return nil
}

func scanSpawn(scan func(...any) error) (*SpawnRow, error) {
	var (
		s                      SpawnRow
		spawnedAt, completedAt string
		proofIDs               string
	)
	err := scan(&s.ID, &s.ProjectID, &s.AgentName, &s.GateType, &s.TaskDescription,
		&s.Status, &spawnedAt, &completedAt, &s.ResultSummary, &proofIDs)
	if err != nil {
		return nil, err
	}
	s.SpawnedAt = ParseTime(spawnedAt)
	s.CompletedAt = ParseTime(completedAt)
	s.ProofArtifactIDs = decodeList(proofIDs)
	return &s, nil
}

// GetSpawn returns a spawn record by id, or nil when absent.
func GetSpawn(ctx context.Context, q Queryer, id string) (*SpawnRow, error) {
	row := q.QueryRow(ctx, "SELECT "+spawnColumns+" FROM agent_spawns WHERE id = ?", id)

	s, err := scanSpawn(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get spawn: %w", err)
	}
	return s, nil
}

// ListSpawns returns spawn records for a project, optionally filtered
// by gate, ordered by spawn time.
func ListSpawns(ctx context.Context, q Queryer, projectID, gateType string) ([]*SpawnRow, error) {
	query := "SELECT " + spawnColumns + " FROM agent_spawns WHERE project_id = ?"
	args := []any{projectID}
	if gateType != "" {
		query += " AND gate_type = ?"
		args = append(args, gateType)
	}
	query += " ORDER BY spawned_at ASC"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list spawns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*SpawnRow
	for rows.Next() {
		s, err := scanSpawn(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan spawn: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
