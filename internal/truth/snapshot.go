package truth

import (
	"context"
	"sort"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
)

// Snapshot is the derived state of one project: everything the other
// components read. It is assembled from the projection tables and is
// always reproducible by replaying the event log (see Rebuild).
type Snapshot struct {
	Project        *db.ProjectRow       `json:"project"`
	Gates          []*db.GateRow        `json:"gates"`
	Tasks          []*db.TaskRow        `json:"tasks"`
	QueueHead      *db.TaskRow          `json:"queue_head,omitempty"`
	Specs          []*db.SpecRow        `json:"specs"`
	SpecsLocked    bool                 `json:"specs_locked"`
	Workers        []*db.WorkerRow      `json:"workers"`
	Spawns         []*db.SpawnRow       `json:"spawns"`
	Deliverables   []*db.DeliverableRow `json:"deliverables"`
	Documents      []*db.DocumentRow    `json:"documents"`
	Assessment     *db.AssessmentRow    `json:"assessment,omitempty"`
	LastValidation events.Payload       `json:"last_validation,omitempty"`
}

// priorityRank orders task priorities for queue-head selection.
var priorityRank = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3}

// queueHead returns the first queued task by (priority, createdAt).
func queueHead(tasks []*db.TaskRow) *db.TaskRow {
	var head *db.TaskRow
	for _, t := range tasks {
		if t.Status != "queued" {
			continue
		}
		if head == nil {
			head = t
			continue
		}
		hr, tr := priorityRank[head.Priority], priorityRank[t.Priority]
		if tr < hr || (tr == hr && t.CreatedAt.Before(head.CreatedAt)) {
			head = t
		}
	}
	return head
}

// GetState returns the derived snapshot for a project.
func (s *Store) GetState(ctx context.Context, projectID string) (*Snapshot, error) {
	project, err := db.GetProject(ctx, s.db, projectID)
	if err != nil {
		return nil, errors.Upstream("get project", err)
	}
	if project == nil {
		return nil, errors.NotFound("project", projectID)
	}

	snap := &Snapshot{Project: project}

	if snap.Gates, err = db.ListGates(ctx, s.db, projectID); err != nil {
		return nil, errors.Upstream("list gates", err)
	}
	if snap.Tasks, err = db.ListTasks(ctx, s.db, projectID, ""); err != nil {
		return nil, errors.Upstream("list tasks", err)
	}
	snap.QueueHead = queueHead(snap.Tasks)

	if snap.Specs, err = db.ListSpecs(ctx, s.db, projectID); err != nil {
		return nil, errors.Upstream("list specs", err)
	}
	snap.SpecsLocked = specsLocked(snap.Specs)

	if snap.Workers, err = db.ListWorkers(ctx, s.db); err != nil {
		return nil, errors.Upstream("list workers", err)
	}
	if snap.Spawns, err = db.ListSpawns(ctx, s.db, projectID, ""); err != nil {
		return nil, errors.Upstream("list spawns", err)
	}
	if snap.Deliverables, err = db.ListDeliverables(ctx, s.db, projectID); err != nil {
		return nil, errors.Upstream("list deliverables", err)
	}
	if snap.Documents, err = db.ListDocuments(ctx, s.db, projectID); err != nil {
		return nil, errors.Upstream("list documents", err)
	}
	if snap.Assessment, err = db.ActiveAssessment(ctx, s.db, projectID); err != nil {
		return nil, errors.Upstream("active assessment", err)
	}

	validations, err := db.QueryEvents(ctx, s.db, projectID, db.QueryEventsOptions{
		Types: []string{string(events.TypeValidationCompleted)},
	})
	if err != nil {
		return nil, errors.Upstream("query validations", err)
	}
	if len(validations) > 0 {
		snap.LastValidation = validations[len(validations)-1].Payload
	}

	return snap, nil
}

func specsLocked(specs []*db.SpecRow) bool {
	if len(specs) == 0 {
		return false
	}
	for _, sp := range specs {
		if !sp.Locked {
			return false
		}
	}
	return true
}

// Rebuild replays the full event log into a fresh snapshot, bypassing
// the projection tables. Used to verify that cached projections agree
// with the log, and to restore a store whose projections were lost.
func (s *Store) Rebuild(ctx context.Context, projectID string) (*Snapshot, error) {
	log, err := s.GetEventLog(ctx, projectID, db.QueryEventsOptions{})
	if err != nil {
		return nil, err
	}

	r := newReplayer(projectID)
	for _, e := range log {
		if err := r.apply(e); err != nil {
			return nil, errors.Upstream("replay event", err)
		}
	}
	return r.snapshot(), nil
}

// replayer folds events into in-memory projections.
type replayer struct {
	projectID    string
	project      *db.ProjectRow
	gates        map[string]*db.GateRow
	tasks        map[string]*db.TaskRow
	specs        map[string]*db.SpecRow
	workers      map[string]*db.WorkerRow
	spawns       map[string]*db.SpawnRow
	deliverables map[string]*db.DeliverableRow
	documents    []*db.DocumentRow
	assessment   *db.AssessmentRow
	validation   events.Payload
}

func newReplayer(projectID string) *replayer {
	return &replayer{
		projectID:    projectID,
		gates:        make(map[string]*db.GateRow),
		tasks:        make(map[string]*db.TaskRow),
		specs:        make(map[string]*db.SpecRow),
		workers:      make(map[string]*db.WorkerRow),
		spawns:       make(map[string]*db.SpawnRow),
		deliverables: make(map[string]*db.DeliverableRow),
	}
}

func (r *replayer) apply(e events.Event) error {
	switch e.Type {
	case events.TypeProjectCreated:
		if r.project != nil {
			return nil // idempotent create
		}
		var row db.ProjectRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		r.project = &row

	case events.TypeProjectCompleted:
		if r.project != nil {
			r.project.Complete = true
		}

	case events.TypeGateCreated, events.TypeGateInReview, events.TypeGateRejected,
		events.TypeGateBlocked, events.TypeGateSkipped, events.TypeGateApproved:
		var row db.GateRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		r.gates[row.GateType] = &row
		if e.Type == events.TypeGateApproved && r.project != nil {
			r.project.CurrentGate = row.GateType
		}

	case events.TypeSpecRegistered:
		var row db.SpecRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		r.specs[row.SpecType] = &row

	case events.TypeSpecLocked:
		for _, sp := range r.specs {
			if !sp.Locked {
				sp.Locked = true
				sp.LockedBy = e.Actor
				sp.LockedAt = e.Timestamp
			}
		}

	case events.TypeTaskCreated, events.TypeTaskStarted, events.TypeTaskCompleted,
		events.TypeTaskFailed, events.TypeTaskRetried, events.TypeTaskUpdated:
		var row db.TaskRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		r.tasks[row.ID] = &row

	case events.TypeWorkerRegistered, events.TypeWorkerOffline:
		var row db.WorkerRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		r.workers[row.ID] = &row

	case events.TypeAgentSpawned, events.TypeAgentStarted,
		events.TypeAgentCompleted, events.TypeAgentFailed:
		var row db.SpawnRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		r.spawns[row.ID] = &row

	case events.TypeDeliverableUpdated:
		var row db.DeliverableRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		r.deliverables[row.ID] = &row

	case events.TypeDocumentCreated, events.TypeDocumentRevised:
		var row db.DocumentRow
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		r.documents = append(r.documents, &row)

	case events.TypeAssessmentStarted, events.TypeAssessmentUpdated,
		events.TypeAssessmentCompleted:
		var row assessmentRecord
		if err := e.DecodeRecord(&row); err != nil {
			return err
		}
		r.assessment = &db.AssessmentRow{
			ID:        row.ID,
			ProjectID: row.ProjectID,
			Status:    row.Status,
			StartedAt: row.StartedAt,
			ExpiresAt: row.ExpiresAt,
			Data:      row.Data,
		}

	case events.TypeValidationCompleted:
		r.validation = e.Payload
	}

	return nil
}

func (r *replayer) snapshot() *Snapshot {
	snap := &Snapshot{
		Project:        r.project,
		Documents:      r.documents,
		LastValidation: r.validation,
	}
	for _, g := range sortedKeys(r.gates) {
		snap.Gates = append(snap.Gates, r.gates[g])
	}
	for _, id := range sortedByCreation(r.tasks) {
		snap.Tasks = append(snap.Tasks, r.tasks[id])
	}
	snap.QueueHead = queueHead(snap.Tasks)
	for _, k := range sortedKeys(r.specs) {
		snap.Specs = append(snap.Specs, r.specs[k])
	}
	snap.SpecsLocked = specsLocked(snap.Specs)
	for _, k := range sortedKeys(r.workers) {
		snap.Workers = append(snap.Workers, r.workers[k])
	}
	for _, k := range sortedKeys(r.spawns) {
		snap.Spawns = append(snap.Spawns, r.spawns[k])
	}
	for _, k := range sortedKeys(r.deliverables) {
		snap.Deliverables = append(snap.Deliverables, r.deliverables[k])
	}
	if r.assessment != nil && r.assessment.Status == "active" {
		snap.Assessment = r.assessment
	}
	return snap
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortedByCreation orders task ids by creation time to match the
// projection table's ordering.
func sortedByCreation(tasks map[string]*db.TaskRow) []string {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := tasks[ids[i]], tasks[ids[j]]
		if !ti.CreatedAt.Equal(tj.CreatedAt) {
			return ti.CreatedAt.Before(tj.CreatedAt)
		}
		return ids[i] < ids[j]
	})
	return ids
}
