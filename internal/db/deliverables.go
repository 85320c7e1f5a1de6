package db

import (
	"context"
	"fmt"
)

// DeliverableRow is a persisted deliverable. The gate state machine's
// completeness check consults these.
type DeliverableRow struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	GateID    string `json:"gate_id,omitempty"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Path      string `json:"path,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Version   int    `json:"version"`
}

const deliverableColumns = `id, project_id, gate_id, deliverable_type, name, status, path, owner, version`

// UpsertDeliverable inserts or replaces a deliverable row.
func UpsertDeliverable(ctx context.Context, q Queryer, row *DeliverableRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO deliverables (`+deliverableColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			gate_id = excluded.gate_id,
			status = excluded.status,
			path = excluded.path,
			owner = excluded.owner,
			version = excluded.version
	`, row.ID, row.ProjectID, row.GateID, row.Type, row.Name, row.Status,
		row.Path, row.Owner, row.Version)
	if err != nil {
		return fmt.Errorf("upsert deliverable: %w", err)
	}
	return nil
}

// ListDeliverables returns all deliverables for a project.
func ListDeliverables(ctx context.Context, q Queryer, projectID string) ([]*DeliverableRow, error) {
	rows, err := q.Query(ctx,
		"SELECT "+deliverableColumns+" FROM deliverables WHERE project_id = ? ORDER BY name ASC",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list deliverables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*DeliverableRow
	for rows.Next() {
		var d DeliverableRow
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.GateID, &d.Type, &d.Name,
			&d.Status, &d.Path, &d.Owner, &d.Version); err != nil {
			return nil, fmt.Errorf("scan deliverable: %w", err)
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}
