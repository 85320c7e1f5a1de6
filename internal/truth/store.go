// Package truth provides the append-only event log and derived state
// snapshots that every other foundry component treats as the single
// source of truth.
//
// Every mutation in the workflow core is expressed as an event. Append
// atomically assigns the next per-project sequence number, persists the
// event, and updates the derived projection tables in the same
// transaction. Snapshots are derivable from the log alone: Rebuild
// replays the log into a fresh snapshot, which must match the one
// assembled from the projections.
//
// Payload convention: flat filter fields ("gate", "task_id") sit at the
// top level of the payload; the full entity row, when one exists, is
// attached under "record" via Event.WithRecord.
package truth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
)

// Store is the truth store for all projects handled by this
// orchestrator instance. It is the sole writer of the event log;
// replicas may tail the log but never append.
type Store struct {
	db        *db.Store
	publisher events.Publisher
	logger    *slog.Logger

	// Serializes appends. The store is single-leader: the database
	// transaction alone would suffice for correctness, but serializing
	// here keeps sequence assignment contention-free.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher sets the event publisher notified after each append.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a truth store over the given database.
func New(store *db.Store, opts ...Option) *Store {
	s := &Store{
		db:     store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying database for read-side helpers.
func (s *Store) DB() *db.Store {
	return s.db
}

// Close flushes and releases the underlying store.
func (s *Store) Close() error {
	if s.publisher != nil {
		s.publisher.Close()
	}
	return s.db.Close()
}

// AppendEvent atomically assigns the next sequence number, persists the
// event, and updates the derived projections. Returns the assigned seq.
func (s *Store) AppendEvent(ctx context.Context, projectID string, event events.Event) (int64, error) {
	seqs, err := s.AppendEvents(ctx, projectID, []events.Event{event})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// AppendEvents appends a batch of events in one transaction, assigning
// consecutive sequence numbers. Either all events and their projections
// apply, or none. This backs multi-event atomic actions such as gate
// approval with successor creation.
func (s *Store) AppendEvents(ctx context.Context, projectID string, batch []events.Event) ([]int64, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seqs := make([]int64, len(batch))
	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		next, err := db.NextSeq(ctx, tx, projectID)
		if err != nil {
			return err
		}
		for i := range batch {
			batch[i].ProjectID = projectID
			batch[i].Seq = next
			if batch[i].Timestamp.IsZero() {
				batch[i].Timestamp = time.Now().UTC()
			}
			seqs[i] = next
			next++

			if err := db.InsertEvent(ctx, tx, &db.EventRow{
				ProjectID: projectID,
				Seq:       batch[i].Seq,
				Type:      string(batch[i].Type),
				Actor:     batch[i].Actor,
				Timestamp: batch[i].Timestamp,
				Payload:   batch[i].Payload,
			}); err != nil {
				return err
			}
			if err := applyProjection(ctx, tx, batch[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Upstream("append event", err)
	}

	if s.publisher != nil {
		for _, e := range batch {
			s.publisher.Publish(e)
		}
	}
	return seqs, nil
}

// GetEventLog returns the project's events ordered by seq ascending.
func (s *Store) GetEventLog(ctx context.Context, projectID string, opts db.QueryEventsOptions) ([]events.Event, error) {
	rows, err := db.QueryEvents(ctx, s.db, projectID, opts)
	if err != nil {
		return nil, errors.Upstream("query event log", err)
	}
	result := make([]events.Event, 0, len(rows))
	for _, r := range rows {
		result = append(result, events.Event{
			Seq:       r.Seq,
			Type:      events.Type(r.Type),
			ProjectID: r.ProjectID,
			Actor:     r.Actor,
			Timestamp: r.Timestamp,
			Payload:   r.Payload,
		})
	}
	return result, nil
}

// GetEventLogStats returns event counts by type and by actor.
func (s *Store) GetEventLogStats(ctx context.Context, projectID string) (*db.EventStats, error) {
	stats, err := db.QueryEventStats(ctx, s.db, projectID)
	if err != nil {
		return nil, errors.Upstream("query event log stats", err)
	}
	return stats, nil
}

// applyProjection updates the derived tables for one event. Unlisted
// event types are audit-only and leave the projections untouched.
func applyProjection(ctx context.Context, tx *db.TxOps, e events.Event) error {
	switch e.Type {
	case events.TypeProjectCreated:
		var row db.ProjectRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		_, err := db.InsertProject(ctx, tx, &row)
		return err

	case events.TypeProjectCompleted:
		return db.SetProjectComplete(ctx, tx, e.ProjectID)

	case events.TypeGateCreated, events.TypeGateInReview, events.TypeGateRejected,
		events.TypeGateBlocked, events.TypeGateSkipped:
		var row db.GateRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		return db.UpsertGate(ctx, tx, &row)

	case events.TypeGateApproved:
		var row db.GateRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		if err := db.UpsertGate(ctx, tx, &row); err != nil {
			return err
		}
		return db.SetCurrentGate(ctx, tx, e.ProjectID, row.GateType)

	case events.TypeSpecRegistered:
		var row db.SpecRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		return db.UpsertSpec(ctx, tx, &row)

	case events.TypeSpecLocked:
		return db.LockSpecs(ctx, tx, e.ProjectID, e.Actor, e.Timestamp)

	case events.TypeTaskCreated, events.TypeTaskStarted, events.TypeTaskCompleted,
		events.TypeTaskFailed, events.TypeTaskRetried, events.TypeTaskUpdated:
		var row db.TaskRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		return db.UpsertTask(ctx, tx, &row)

	case events.TypeWorkerRegistered, events.TypeWorkerOffline:
		var row db.WorkerRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		return db.UpsertWorker(ctx, tx, &row)

	case events.TypeAgentSpawned, events.TypeAgentStarted,
		events.TypeAgentCompleted, events.TypeAgentFailed:
		var row db.SpawnRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		if err := db.UpsertSpawn(ctx, tx, &row); err != nil {
			return err
		}
		return applyCost(ctx, tx, e)

	case events.TypeProofSubmitted:
		var row db.ProofRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		return db.InsertProof(ctx, tx, &row)

	case events.TypeDocumentCreated, events.TypeDocumentRevised:
		var row db.DocumentRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		return db.InsertDocument(ctx, tx, &row)

	case events.TypeDeliverableUpdated:
		var row db.DeliverableRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		return db.UpsertDeliverable(ctx, tx, &row)

	case events.TypeAssessmentStarted, events.TypeAssessmentUpdated,
		events.TypeAssessmentCompleted:
		var row assessmentRecord
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		return db.UpsertAssessment(ctx, tx, &db.AssessmentRow{
			ID:        row.ID,
			ProjectID: row.ProjectID,
			Status:    row.Status,
			StartedAt: row.StartedAt,
			ExpiresAt: row.ExpiresAt,
			Data:      row.Data,
		})
	}

	return nil
}

// assessmentRecord mirrors db.AssessmentRow with JSON tags for payload
// decoding.
type assessmentRecord struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Data      string    `json:"data"`
}

// applyCost records a cost ledger entry when an agent completion event
// carries token usage.
func applyCost(ctx context.Context, tx *db.TxOps, e events.Event) error {
	usage, ok := e.Payload["token_usage"].(map[string]any)
	if !ok {
		return nil
	}
	inTokens, _ := usage["input_tokens"].(float64)
	outTokens, _ := usage["output_tokens"].(float64)
	model, _ := usage["model"].(string)

	return db.InsertCost(ctx, tx, &db.CostRow{
		ID:           fmt.Sprintf("cost-%s-%d", e.ProjectID, e.Seq),
		ProjectID:    e.ProjectID,
		AgentName:    e.Str("agent"),
		Model:        model,
		InputTokens:  int64(inTokens),
		OutputTokens: int64(outTokens),
		CreatedAt:    e.Timestamp,
	})
}
