// Package queue provides the priority task queue for foundry workflows.
//
// Scheduling is priority-ordered and aware of three blocker sources:
// task dependencies, gate dependencies, and spec conflicts. The first
// two are tracked as blocker tokens on the task; the third is enforced
// at dequeue time by skipping candidates whose spec refs intersect
// those of any in-progress task, which serializes access to a given
// spec across the fleet without explicit locks.
//
// The queue owns all task-status transitions. Every transition is an
// event appended to the truth store; the in-memory ordering is rebuilt
// from the task projection on each dequeue.
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/truth"
)

// DefaultMaxAttempts bounds retries before a task surfaces for human
// attention.
const DefaultMaxAttempts = 3

// Task status values.
const (
	StatusQueued     = "queued"
	StatusBlocked    = "blocked"
	StatusInProgress = "in_progress"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// Queue schedules tasks for one orchestrator instance.
type Queue struct {
	truth  *truth.Store
	logger *slog.Logger

	// Serializes dequeue and the unblock passes so two workers never
	// claim conflicting tasks between read and write.
	mu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New creates a task queue over the truth store.
func New(store *truth.Store, opts ...Option) *Queue {
	q := &Queue{
		truth:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueRequest describes a task to enqueue. ID, blockers, and status
// are assigned by the queue.
type EnqueueRequest struct {
	TaskType       string
	Priority       string
	WorkerCategory string
	Description    string
	DependsOn      []string
	GateDependency string
	SpecRefs       []string
	MaxAttempts    int
}

// Enqueue assigns an id, computes initial blockers, and inserts the
// task. Identical content always yields a fresh task; tasks are never
// deduplicated. Circular dependencies are rejected with Conflict.
func (q *Queue) Enqueue(ctx context.Context, projectID string, req EnqueueRequest) (*db.TaskRow, error) {
	priority, err := ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}
	if req.WorkerCategory == "" {
		return nil, errors.InvalidInput("task", errors.FieldIssue{
			Field: "worker_category", Message: "required",
		})
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	existing, err := db.ListTasks(ctx, q.truth.DB(), projectID, "")
	if err != nil {
		return nil, errors.Upstream("list tasks", err)
	}

	id := uuid.NewString()
	if err := checkAcyclic(existing, id, req.DependsOn); err != nil {
		return nil, err
	}

	blockers, err := q.initialBlockers(ctx, projectID, existing, req)
	if err != nil {
		return nil, err
	}
	status := StatusQueued
	if len(blockers) > 0 {
		status = StatusBlocked
	}

	row := &db.TaskRow{
		ID:             id,
		ProjectID:      projectID,
		TaskType:       req.TaskType,
		Priority:       string(priority),
		WorkerCategory: req.WorkerCategory,
		Description:    req.Description,
		Status:         status,
		Blockers:       blockers,
		DependsOn:      req.DependsOn,
		GateDependency: req.GateDependency,
		SpecRefs:       req.SpecRefs,
		MaxAttempts:    maxAttempts,
		CreatedAt:      time.Now().UTC(),
	}

	_, err = q.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeTaskCreated, projectID, "queue",
			events.Payload{"task_id": id}).WithRecord(row))
	if err != nil {
		return nil, err
	}
	return row, nil
}

// initialBlockers computes the blocker set for a new task: an
// unapproved gate dependency and the incomplete subset of dependsOn.
func (q *Queue) initialBlockers(ctx context.Context, projectID string, existing []*db.TaskRow, req EnqueueRequest) ([]string, error) {
	var blockers []string

	if req.GateDependency != "" {
		gateType, err := gate.ParseType(req.GateDependency)
		if err != nil {
			return nil, errors.InvalidInput("task", errors.FieldIssue{
				Field: "gate_dependency", Message: err.Error(),
			})
		}
		row, err := db.GetGate(ctx, q.truth.DB(), projectID, string(gateType))
		if err != nil {
			return nil, errors.Upstream("get gate", err)
		}
		if row == nil || gate.Status(row.Status) != gate.StatusApproved {
			blockers = append(blockers, GateBlocker(string(gateType)))
		}
	}

	if len(req.DependsOn) > 0 {
		byID := make(map[string]*db.TaskRow, len(existing))
		for _, t := range existing {
			byID[t.ID] = t
		}
		var incomplete []string
		for _, dep := range req.DependsOn {
			// Unknown dependencies count as incomplete.
			if t, ok := byID[dep]; !ok || t.Status != StatusComplete {
				incomplete = append(incomplete, dep)
			}
		}
		if len(incomplete) > 0 {
			blockers = append(blockers, TasksBlocker(incomplete))
		}
	}

	return blockers, nil
}

// checkAcyclic rejects a dependency edge set containing a cycle.
func checkAcyclic(existing []*db.TaskRow, newID string, dependsOn []string) error {
	edges := make([]toposort.Edge, 0, len(existing)+len(dependsOn))
	for _, t := range existing {
		for _, dep := range t.DependsOn {
			edges = append(edges, toposort.Edge{dep, t.ID})
		}
	}
	for _, dep := range dependsOn {
		edges = append(edges, toposort.Edge{dep, newID})
	}
	if _, err := toposort.Toposort(edges); err != nil {
		return errors.Conflict("task dependency graph", "dependsOn would form a cycle")
	}
	return nil
}

// candidate wraps a task for heap ordering: (priority rank, createdAt).
type candidate struct {
	task  *db.TaskRow
	index int
}

type candidateHeap []*candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	ri, rj := Priority(h[i].task.Priority).Rank(), Priority(h[j].task.Priority).Rank()
	if ri != rj {
		return ri < rj
	}
	return h[i].task.CreatedAt.Before(h[j].task.CreatedAt)
}

func (h candidateHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *candidateHeap) Push(x any) {
	c := x.(*candidate)
	c.index = len(*h)
	*h = append(*h, c)
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*h = old[:n-1]
	return c
}

// Dequeue returns the highest-priority queued task matching the
// worker's category whose spec refs do not intersect those of any
// in-progress task. Returns nil when nothing is eligible. On match the
// task moves to in_progress with the worker recorded and attempts
// incremented.
func (q *Queue) Dequeue(ctx context.Context, projectID, workerID, category string) (*db.TaskRow, error) {
	if category == "" {
		return nil, errors.InvalidInput("dequeue", errors.FieldIssue{
			Field: "category", Message: "required",
		})
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	tasks, err := db.ListTasks(ctx, q.truth.DB(), projectID, "")
	if err != nil {
		return nil, errors.Upstream("list tasks", err)
	}

	busySpecs := map[string]bool{}
	h := candidateHeap{}
	for _, t := range tasks {
		switch t.Status {
		case StatusInProgress:
			for _, ref := range t.SpecRefs {
				busySpecs[ref] = true
			}
		case StatusQueued:
			h = append(h, &candidate{task: t})
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		t := heap.Pop(&h).(*candidate).task
		if t.WorkerCategory != category {
			continue
		}
		if specConflict(t.SpecRefs, busySpecs) {
			continue
		}

		t.Status = StatusInProgress
		t.AssignedWorker = workerID
		t.Attempts++
		t.StartedAt = time.Now().UTC()

		_, err := q.truth.AppendEvent(ctx, projectID,
			events.New(events.TypeTaskStarted, projectID, workerID,
				events.Payload{"task_id": t.ID}).WithRecord(t))
		if err != nil {
			return nil, err
		}
		q.logger.Debug("task dequeued",
			"project", projectID, "task", t.ID, "worker", workerID, "attempt", t.Attempts)
		return t, nil
	}
	return nil, nil
}

func specConflict(refs []string, busy map[string]bool) bool {
	for _, ref := range refs {
		if busy[ref] {
			return true
		}
	}
	return false
}

// Complete marks an in-progress task complete or failed. Completion
// runs the unblock pass over all blocked tasks in the same atomic
// batch; failure leaves the task for the retry policy.
func (q *Queue) Complete(ctx context.Context, projectID, taskID, workerID, outcome, output, errMsg string) error {
	if outcome != StatusComplete && outcome != StatusFailed {
		return errors.InvalidInput("task outcome", errors.FieldIssue{
			Field: "outcome", Message: "must be complete or failed",
		})
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := db.GetTask(ctx, q.truth.DB(), taskID)
	if err != nil {
		return errors.Upstream("get task", err)
	}
	if t == nil || t.ProjectID != projectID {
		return errors.NotFound("task", taskID)
	}
	if t.Status != StatusInProgress {
		return errors.PreconditionFailed(fmt.Sprintf("task %s is %s, not in_progress", taskID, t.Status))
	}
	if t.AssignedWorker != workerID {
		return errors.PreconditionFailed(
			fmt.Sprintf("task %s is assigned to %s, not %s", taskID, t.AssignedWorker, workerID))
	}

	t.Status = outcome
	t.CompletedAt = time.Now().UTC()

	if outcome == StatusFailed {
		_, err = q.truth.AppendEvent(ctx, projectID,
			events.New(events.TypeTaskFailed, projectID, workerID, events.Payload{
				"task_id": taskID,
				"error":   errMsg,
			}).WithRecord(t))
		return err
	}

	batch := []events.Event{
		events.New(events.TypeTaskCompleted, projectID, workerID, events.Payload{
			"task_id": taskID,
			"output":  output,
		}).WithRecord(t),
	}

	unblocked, err := q.unblockAfterTask(ctx, projectID, taskID)
	if err != nil {
		return err
	}
	batch = append(batch, unblocked...)

	_, err = q.truth.AppendEvents(ctx, projectID, batch)
	return err
}

// unblockAfterTask builds task_updated events for every blocked task
// whose blockers change when taskID completes.
func (q *Queue) unblockAfterTask(ctx context.Context, projectID, taskID string) ([]events.Event, error) {
	blocked, err := db.ListTasks(ctx, q.truth.DB(), projectID, StatusBlocked)
	if err != nil {
		return nil, errors.Upstream("list blocked tasks", err)
	}

	var updates []events.Event
	for _, t := range blocked {
		blockers, changed := removeTaskBlocker(t.Blockers, taskID)
		if !changed {
			continue
		}
		t.Blockers = blockers
		if len(blockers) == 0 {
			t.Status = StatusQueued
		}
		updates = append(updates, events.New(events.TypeTaskUpdated, projectID, "queue",
			events.Payload{"task_id": t.ID, "unblocked_by": taskID}).WithRecord(t))
	}
	return updates, nil
}

// OnGateApproved drops the gate blocker from every blocked task and
// requeues those whose blocker set empties. Re-running the pass after
// no new approvals is a no-op.
func (q *Queue) OnGateApproved(ctx context.Context, projectID, gateType string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	blocked, err := db.ListTasks(ctx, q.truth.DB(), projectID, StatusBlocked)
	if err != nil {
		return errors.Upstream("list blocked tasks", err)
	}

	var updates []events.Event
	for _, t := range blocked {
		blockers, changed := removeGateBlocker(t.Blockers, gateType)
		if !changed {
			continue
		}
		t.Blockers = blockers
		if len(blockers) == 0 {
			t.Status = StatusQueued
		}
		updates = append(updates, events.New(events.TypeTaskUpdated, projectID, "queue",
			events.Payload{"task_id": t.ID, "unblocked_by": GateBlocker(gateType)}).WithRecord(t))
	}
	if len(updates) == 0 {
		return nil
	}
	_, err = q.truth.AppendEvents(ctx, projectID, updates)
	return err
}

// Retry requeues a failed task with its priority promoted one rank,
// capped at critical. Exhausted tasks stay failed and surface for
// human attention.
func (q *Queue) Retry(ctx context.Context, projectID, taskID string) (*db.TaskRow, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := db.GetTask(ctx, q.truth.DB(), taskID)
	if err != nil {
		return nil, errors.Upstream("get task", err)
	}
	if t == nil || t.ProjectID != projectID {
		return nil, errors.NotFound("task", taskID)
	}
	if t.Status != StatusFailed {
		return nil, errors.PreconditionFailed(fmt.Sprintf("task %s is %s, only failed tasks retry", taskID, t.Status))
	}
	if t.Attempts >= t.MaxAttempts {
		return nil, errors.PreconditionFailed(
			fmt.Sprintf("task %s exhausted %d attempts", taskID, t.MaxAttempts))
	}

	// Blockers are recomputed: a gate approved since the failure no
	// longer blocks.
	existing, err := db.ListTasks(ctx, q.truth.DB(), projectID, "")
	if err != nil {
		return nil, errors.Upstream("list tasks", err)
	}
	blockers, err := q.initialBlockers(ctx, projectID, existing, EnqueueRequest{
		DependsOn:      t.DependsOn,
		GateDependency: t.GateDependency,
	})
	if err != nil {
		return nil, err
	}

	t.Priority = string(Priority(t.Priority).Promote())
	t.Blockers = blockers
	t.Status = StatusQueued
	if len(blockers) > 0 {
		t.Status = StatusBlocked
	}
	t.AssignedWorker = ""
	t.CompletedAt = time.Time{}

	_, err = q.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeTaskRetried, projectID, "queue",
			events.Payload{"task_id": taskID}).WithRecord(t))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// History returns the event trail for one task.
func (q *Queue) History(ctx context.Context, projectID, taskID string) ([]events.Event, error) {
	return q.truth.GetEventLog(ctx, projectID, db.QueryEventsOptions{TaskID: taskID})
}

// Purge destroys all tasks for a project. Tasks are otherwise never
// deleted; this backs the explicit purge tool only.
func (q *Queue) Purge(ctx context.Context, projectID, actor string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n, err := db.PurgeTasks(ctx, q.truth.DB(), projectID)
	if err != nil {
		return 0, errors.Upstream("purge tasks", err)
	}
	_, err = q.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeDecisionMade, projectID, actor, events.Payload{
			"decision": "task_purge",
			"count":    n,
		}))
	if err != nil {
		return n, err
	}
	return n, nil
}
