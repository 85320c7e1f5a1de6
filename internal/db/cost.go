package db

import (
	"context"
	"fmt"
	"time"
)

// CostRow is one token-usage entry in the cost ledger, forwarded from
// completed agent spawns.
type CostRow struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	AgentName    string    `json:"agent_name"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// InsertCost appends a cost ledger entry.
func InsertCost(ctx context.Context, q Queryer, row *CostRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO cost_entries (id, project_id, agent_name, model, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.ProjectID, row.AgentName, row.Model, row.InputTokens,
		row.OutputTokens, FormatTime(row.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert cost entry: %w", err)
	}
	return nil
}

// CostSummary aggregates token usage per agent for a project.
type CostSummary struct {
	AgentName    string `json:"agent_name"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Entries      int64  `json:"entries"`
}

// SummarizeCost returns per-agent token totals for a project.
func SummarizeCost(ctx context.Context, q Queryer, projectID string) ([]*CostSummary, error) {
	rows, err := q.Query(ctx, `
		SELECT agent_name, SUM(input_tokens), SUM(output_tokens), COUNT(*)
		FROM cost_entries WHERE project_id = ?
		GROUP BY agent_name ORDER BY agent_name ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("summarize cost: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*CostSummary
	for rows.Next() {
		var s CostSummary
		if err := rows.Scan(&s.AgentName, &s.InputTokens, &s.OutputTokens, &s.Entries); err != nil {
			return nil, fmt.Errorf("scan cost summary: %w", err)
		}
		result = append(result, &s)
	}
	return result, rows.Err()
}
