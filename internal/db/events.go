package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventRow is a persisted event log entry. Seq is assigned at append
// time and is strictly increasing per project; rows are never updated
// or deleted.
type EventRow struct {
	ProjectID string
	Seq       int64
	Type      string
	Actor     string
	Timestamp time.Time
	Payload   map[string]any
}

// QueryEventsOptions specifies filters for querying the event log.
type QueryEventsOptions struct {
	Types    []string
	Gate     string // matches payload gate field
	TaskID   string // matches payload task_id field
	Since    *time.Time
	Until    *time.Time
	AfterSeq int64
	Limit    int
}

// NextSeq returns the next per-project sequence number. Must be called
// inside the same transaction as the insert so concurrent appends
// serialize on the store.
func NextSeq(ctx context.Context, q Queryer, projectID string) (int64, error) {
	var maxSeq int64
	row := q.QueryRow(ctx, "SELECT COALESCE(MAX(seq), 0) FROM events WHERE project_id = ?", projectID)
	if err := row.Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return maxSeq + 1, nil
}

// InsertEvent appends an event row. The caller assigns Seq via NextSeq
// within the same transaction.
func InsertEvent(ctx context.Context, q Queryer, row *EventRow) error {
	var payload string
	if row.Payload != nil {
		data, err := json.Marshal(row.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		payload = string(data)
	}

	_, err := q.Exec(ctx, `
		INSERT INTO events (project_id, seq, type, actor, timestamp, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, row.ProjectID, row.Seq, row.Type, row.Actor, FormatTime(row.Timestamp), payload)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// QueryEvents returns events for a project ordered by seq ascending.
func QueryEvents(ctx context.Context, q Queryer, projectID string, opts QueryEventsOptions) ([]*EventRow, error) {
	query := "SELECT project_id, seq, type, actor, timestamp, payload FROM events WHERE project_id = ?"
	args := []any{projectID}

	if len(opts.Types) > 0 {
		query += " AND type IN (?" + strings.Repeat(", ?", len(opts.Types)-1) + ")"
		for _, t := range opts.Types {
			args = append(args, t)
		}
	}
	if opts.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, FormatTime(*opts.Since))
	}
	if opts.Until != nil {
		query += " AND timestamp <= ?"
		args = append(args, FormatTime(*opts.Until))
	}
	if opts.AfterSeq > 0 {
		query += " AND seq > ?"
		args = append(args, opts.AfterSeq)
	}
	query += " ORDER BY seq ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*EventRow
	for rows.Next() {
		var (
			row     EventRow
			ts      string
			payload string
		)
		if err := rows.Scan(&row.ProjectID, &row.Seq, &row.Type, &row.Actor, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		row.Timestamp = ParseTime(ts)
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &row.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload seq %d: %w", row.Seq, err)
			}
		}
		// Gate and task filters live inside the JSON payload.
		if opts.Gate != "" && payloadStr(row.Payload, "gate") != opts.Gate {
			continue
		}
		if opts.TaskID != "" && payloadStr(row.Payload, "task_id") != opts.TaskID {
			continue
		}
		result = append(result, &row)
	}
	return result, rows.Err()
}

func payloadStr(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

// EventStats holds event counts grouped by type and by actor.
type EventStats struct {
	Total   int64
	ByType  map[string]int64
	ByActor map[string]int64
}

// QueryEventStats returns counts by type and actor for a project.
func QueryEventStats(ctx context.Context, q Queryer, projectID string) (*EventStats, error) {
	stats := &EventStats{
		ByType:  make(map[string]int64),
		ByActor: make(map[string]int64),
	}

	rows, err := q.Query(ctx,
		"SELECT type, actor, COUNT(*) FROM events WHERE project_id = ? GROUP BY type, actor", projectID)
	if err != nil {
		return nil, fmt.Errorf("query event stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			typ, actor string
			count      int64
		)
		if err := rows.Scan(&typ, &actor, &count); err != nil {
			return nil, fmt.Errorf("scan event stats: %w", err)
		}
		stats.ByType[typ] += count
		stats.ByActor[actor] += count
		stats.Total += count
	}
	return stats, rows.Err()
}

// FirstSeqOfType returns the lowest seq of an event of the given type
// matching the payload gate field, or 0 when none exists. Used by the
// audit checks that order spawns against approvals.
func FirstSeqOfType(ctx context.Context, q Queryer, projectID, eventType, gateType string) (int64, error) {
	events, err := QueryEvents(ctx, q, projectID, QueryEventsOptions{
		Types: []string{eventType},
		Gate:  gateType,
	})
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	return events[0].Seq, nil
}
