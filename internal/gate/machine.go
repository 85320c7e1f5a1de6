package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/truth"
)

// ProofChecker reports whether a gate's proof requirements are met.
// Implemented by the proof ledger; supplied as a narrow capability so
// the machine never depends on the ledger directly.
type ProofChecker interface {
	GateProofStatus(ctx context.Context, projectID string, gateType Type) (missing []string, canApprove bool, err error)
}

// SpawnChecker reports whether the required-agent contract for a gate
// is satisfied. Implemented by the spawn enforcer.
type SpawnChecker interface {
	CanPresentGate(ctx context.Context, projectID string, gateType Type) (ok bool, reason string, err error)
}

// Machine owns gate lifecycle transitions. No other component writes
// gate status; every transition is appended to the truth store.
type Machine struct {
	truth  *truth.Store
	proofs ProofChecker
	spawns SpawnChecker
	logger *slog.Logger
	now    func() time.Time
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithProofChecker wires the proof ledger capability.
func WithProofChecker(p ProofChecker) MachineOption {
	return func(m *Machine) { m.proofs = p }
}

// WithSpawnChecker wires the spawn enforcer capability.
func WithSpawnChecker(s SpawnChecker) MachineOption {
	return func(m *Machine) { m.spawns = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) { m.logger = l }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a gate state machine over the truth store.
func NewMachine(store *truth.Store, opts ...MachineOption) *Machine {
	m := &Machine{
		truth:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize creates G1 in PENDING for a project. Idempotent: an
// existing G1 is left untouched.
func (m *Machine) Initialize(ctx context.Context, projectID, actor string) error {
	existing, err := db.GetGate(ctx, m.truth.DB(), projectID, string(G1))
	if err != nil {
		return errors.Upstream("get gate", err)
	}
	if existing != nil {
		return nil
	}

	g := NewPending(uuid.NewString(), projectID, G1)
	_, err = m.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeGateCreated, projectID, actor,
			events.Payload{"gate": string(G1)}).WithRecord(toRow(g)))
	return err
}

// CurrentGate returns the first gate in the ordering that is not
// approved; when all are approved it returns the terminal gate.
func (m *Machine) CurrentGate(ctx context.Context, projectID string) (*Gate, error) {
	rows, err := db.ListGates(ctx, m.truth.DB(), projectID)
	if err != nil {
		return nil, errors.Upstream("list gates", err)
	}
	if len(rows) == 0 {
		return nil, errors.NotFound("gates for project", projectID)
	}

	byType := make(map[Type]*db.GateRow, len(rows))
	for _, r := range rows {
		byType[Type(r.GateType)] = r
	}
	for _, t := range Ordering {
		r, ok := byType[t]
		if !ok {
			break
		}
		if Status(r.Status) != StatusApproved {
			return fromRow(r), nil
		}
	}
	// All existing gates approved: current is the last created one.
	return fromRow(rows[len(rows)-1]), nil
}

// TransitionResult is the outcome of a transition check.
type TransitionResult struct {
	OK     bool
	Reason string
}

// CanTransition checks whether gateType may be approved by actorID.
// The preconditions are evaluated in a fixed order and the first
// failure is reported; state is never modified.
func (m *Machine) CanTransition(ctx context.Context, projectID string, gateType Type, actorID string) (TransitionResult, error) {
	res, _, err := m.checkTransition(ctx, projectID, gateType, actorID, false)
	return res, err
}

func (m *Machine) checkTransition(ctx context.Context, projectID string, gateType Type, actorID string, force bool) (TransitionResult, *db.GateRow, error) {
	fail := func(reason string) (TransitionResult, *db.GateRow, error) {
		return TransitionResult{OK: false, Reason: reason}, nil, nil
	}

	// (1) project exists and actor is its owner
	project, err := db.GetProject(ctx, m.truth.DB(), projectID)
	if err != nil {
		return TransitionResult{}, nil, errors.Upstream("get project", err)
	}
	if project == nil {
		return fail(fmt.Sprintf("project %s not found", projectID))
	}
	if project.Owner != actorID {
		return fail(fmt.Sprintf("actor %s is not the project owner", actorID))
	}

	// (2) gate exists and is not already approved or blocked
	row, err := db.GetGate(ctx, m.truth.DB(), projectID, string(gateType))
	if err != nil {
		return TransitionResult{}, nil, errors.Upstream("get gate", err)
	}
	if row == nil {
		return fail(fmt.Sprintf("gate %s does not exist yet", gateType))
	}
	switch Status(row.Status) {
	case StatusApproved:
		return fail(fmt.Sprintf("gate %s is already approved", gateType))
	case StatusBlocked:
		return fail(fmt.Sprintf("gate %s is blocked: %s", gateType, row.BlockingReason))
	}

	// (3) predecessor approved (or this is G1)
	if prev, ok := gateType.Prev(); ok {
		prevRow, err := db.GetGate(ctx, m.truth.DB(), projectID, string(prev))
		if err != nil {
			return TransitionResult{}, nil, errors.Upstream("get gate", err)
		}
		if prevRow == nil || Status(prevRow.Status) != StatusApproved {
			return fail(fmt.Sprintf("predecessor gate %s is not approved", prev))
		}
	}

	// (4) proof requirements
	if row.RequiresProof && !force {
		if m.proofs == nil {
			return fail(fmt.Sprintf("gate %s requires proof but no proof ledger is wired", gateType))
		}
		missing, canApprove, err := m.proofs.GateProofStatus(ctx, projectID, gateType)
		if err != nil {
			return TransitionResult{}, nil, errors.Upstream("gate proof status", err)
		}
		if !canApprove {
			return fail(fmt.Sprintf("gate %s is missing passing proofs: %s", gateType, strings.Join(missing, ", ")))
		}
	}

	// (5) deliverable completeness
	deliverables, err := db.ListDeliverables(ctx, m.truth.DB(), projectID)
	if err != nil {
		return TransitionResult{}, nil, errors.Upstream("list deliverables", err)
	}
	for _, d := range deliverables {
		if d.Status != "complete" && d.Status != "approved" {
			return fail(fmt.Sprintf("deliverable %q is %s, not complete", d.Name, d.Status))
		}
	}

	return TransitionResult{OK: true}, row, nil
}

// TransitionToReview moves a pending gate to IN_REVIEW.
func (m *Machine) TransitionToReview(ctx context.Context, projectID string, gateType Type, actor, reviewData string) error {
	row, err := db.GetGate(ctx, m.truth.DB(), projectID, string(gateType))
	if err != nil {
		return errors.Upstream("get gate", err)
	}
	if row == nil {
		return errors.NotFound("gate", string(gateType))
	}
	if Status(row.Status) != StatusPending {
		return errors.PreconditionFailed(
			fmt.Sprintf("gate %s is %s, only pending gates enter review", gateType, row.Status))
	}

	row.Status = string(StatusInReview)
	row.ReviewData = reviewData
	_, err = m.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeGateInReview, projectID, actor,
			events.Payload{"gate": string(gateType)}).WithRecord(row))
	return err
}

// ApproveOptions modifies approval behavior.
type ApproveOptions struct {
	// ForceWithoutProofs bypasses the proof check. The approval event
	// is flagged as forced; a policy escape valve, not a normal path.
	ForceWithoutProofs bool
}

// ApproveGate validates the approval response, runs the transition
// check, and atomically: marks the gate approved, updates the project's
// current gate, locks specs when this is G3, and creates the successor
// gate in PENDING. Approving the terminal gate marks the project
// complete instead. Idempotent against already-approved gates.
func (m *Machine) ApproveGate(ctx context.Context, projectID string, gateType Type, actorID, approvalResponse, notes string, opts ApproveOptions) error {
	if result := ValidateApproval(approvalResponse); !result.Valid {
		return errors.InvalidApproval(approvalResponse)
	}

	// Idempotence: approving an approved gate is a no-op, never a
	// duplicate successor.
	existing, err := db.GetGate(ctx, m.truth.DB(), projectID, string(gateType))
	if err != nil {
		return errors.Upstream("get gate", err)
	}
	if existing != nil && Status(existing.Status) == StatusApproved {
		return nil
	}

	res, row, err := m.checkTransition(ctx, projectID, gateType, actorID, opts.ForceWithoutProofs)
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.PreconditionFailed(res.Reason)
	}

	// Required-agent contract, when the enforcer is wired.
	if m.spawns != nil {
		ok, reason, err := m.spawns.CanPresentGate(ctx, projectID, gateType)
		if err != nil {
			return errors.Upstream("spawn validation", err)
		}
		if !ok {
			return errors.ProtocolViolation(string(gateType), reason)
		}
	}

	now := m.now().UTC()
	row.Status = string(StatusApproved)
	row.ApprovedBy = actorID
	row.ApprovedAt = db.FormatTime(now)
	row.ReviewNotes = notes
	row.ForcedApproval = opts.ForceWithoutProofs

	batch := []events.Event{
		events.New(events.TypeGateApproved, projectID, actorID, events.Payload{
			"gate":   string(gateType),
			"forced": opts.ForceWithoutProofs,
			"notes":  notes,
		}).WithRecord(row),
	}

	// G3 approval makes every registered spec immutable.
	if gateType == G3 {
		batch = append(batch, events.New(events.TypeSpecLocked, projectID, actorID,
			events.Payload{"gate": string(G3)}))
	}

	if next, ok := gateType.Next(); ok {
		successor := NewPending(uuid.NewString(), projectID, next)
		batch = append(batch, events.New(events.TypeGateCreated, projectID, actorID,
			events.Payload{"gate": string(next)}).WithRecord(toRow(successor)))
	} else {
		batch = append(batch, events.New(events.TypeProjectCompleted, projectID, actorID, nil))
	}

	_, err = m.truth.AppendEvents(ctx, projectID, batch)
	if err != nil {
		return err
	}

	m.logger.Info("gate approved",
		"project", projectID, "gate", gateType, "by", actorID, "forced", opts.ForceWithoutProofs)
	return nil
}

// RejectGate marks a gate rejected with a blocking reason. No successor
// is created.
func (m *Machine) RejectGate(ctx context.Context, projectID string, gateType Type, actorID, blockingReason string) error {
	project, err := db.GetProject(ctx, m.truth.DB(), projectID)
	if err != nil {
		return errors.Upstream("get project", err)
	}
	if project == nil {
		return errors.NotFound("project", projectID)
	}
	if project.Owner != actorID {
		return errors.Unauthorized(actorID, projectID)
	}

	row, err := db.GetGate(ctx, m.truth.DB(), projectID, string(gateType))
	if err != nil {
		return errors.Upstream("get gate", err)
	}
	if row == nil {
		return errors.NotFound("gate", string(gateType))
	}
	if Status(row.Status) == StatusApproved {
		return errors.PreconditionFailed(fmt.Sprintf("gate %s is already approved", gateType))
	}

	row.Status = string(StatusRejected)
	row.BlockingReason = blockingReason
	_, err = m.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeGateRejected, projectID, actorID, events.Payload{
			"gate":   string(gateType),
			"reason": blockingReason,
		}).WithRecord(row))
	return err
}

// SkipGate records an explicit policy skip for G4 on API-only projects.
// The skip is an audited event, never a silent bypass; the successor is
// created as with approval.
func (m *Machine) SkipGate(ctx context.Context, projectID string, gateType Type, actorID, reason string) error {
	if gateType != G4 {
		return errors.PreconditionFailed(fmt.Sprintf("gate %s cannot be skipped", gateType))
	}

	project, err := db.GetProject(ctx, m.truth.DB(), projectID)
	if err != nil {
		return errors.Upstream("get project", err)
	}
	if project == nil {
		return errors.NotFound("project", projectID)
	}
	if !project.APIOnly {
		return errors.PreconditionFailed("G4 may only be skipped for API-only projects")
	}
	if project.Owner != actorID {
		return errors.Unauthorized(actorID, projectID)
	}

	row, err := db.GetGate(ctx, m.truth.DB(), projectID, string(gateType))
	if err != nil {
		return errors.Upstream("get gate", err)
	}
	if row == nil {
		return errors.NotFound("gate", string(gateType))
	}
	if Status(row.Status) == StatusApproved {
		return nil
	}

	now := m.now().UTC()
	row.Status = string(StatusApproved)
	row.ApprovedBy = actorID
	row.ApprovedAt = db.FormatTime(now)
	row.SkippedByPolicy = true
	row.ReviewNotes = reason

	batch := []events.Event{
		events.New(events.TypeGateSkipped, projectID, actorID, events.Payload{
			"gate":   string(gateType),
			"reason": reason,
		}).WithRecord(row),
	}
	if next, ok := gateType.Next(); ok {
		successor := NewPending(uuid.NewString(), projectID, next)
		batch = append(batch, events.New(events.TypeGateCreated, projectID, actorID,
			events.Payload{"gate": string(next)}).WithRecord(toRow(successor)))
	}

	_, err = m.truth.AppendEvents(ctx, projectID, batch)
	return err
}

// toRow converts a Gate to its persistence row.
func toRow(g *Gate) *db.GateRow {
	return &db.GateRow{
		ID:              g.ID,
		ProjectID:       g.ProjectID,
		GateType:        string(g.Type),
		Status:          string(g.Status),
		RequiresProof:   g.RequiresProof,
		PassingCriteria: g.PassingCriteria,
		Description:     g.Description,
		ApprovedBy:      g.ApprovedBy,
		ApprovedAt:      g.ApprovedAt,
		ReviewNotes:     g.ReviewNotes,
		BlockingReason:  g.BlockingReason,
		ForcedApproval:  g.ForcedApproval,
		SkippedByPolicy: g.SkippedByPolicy,
		ReviewData:      g.ReviewData,
	}
}

// fromRow converts a persistence row to a Gate.
func fromRow(r *db.GateRow) *Gate {
	return &Gate{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		Type:            Type(r.GateType),
		Status:          Status(r.Status),
		RequiresProof:   r.RequiresProof,
		PassingCriteria: r.PassingCriteria,
		Description:     r.Description,
		ApprovedBy:      r.ApprovedBy,
		ApprovedAt:      r.ApprovedAt,
		ReviewNotes:     r.ReviewNotes,
		BlockingReason:  r.BlockingReason,
		ForcedApproval:  r.ForcedApproval,
		SkippedByPolicy: r.SkippedByPolicy,
		ReviewData:      r.ReviewData,
	}
}
