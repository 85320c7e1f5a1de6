// Package spawn enforces the agent delegation protocol: the
// orchestrator must not perform gate work itself, it must spawn the
// required agent for the gate and wait for it to complete. The
// enforcer records spawns, validates the required-agent contract
// before a gate may be presented, and detects file-ownership conflicts
// between parallel agents.
package spawn

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
	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/truth"
)

// Spawn status values. A spawn is recorded as spawned, marked running
// when the agent task actually starts, and ends completed or failed.
const (
	StatusSpawned   = "spawned"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Enforcer records and validates agent spawns.
type Enforcer struct {
	truth  *truth.Store
	logger *slog.Logger
}

// NewEnforcer creates a spawn enforcer over the truth store.
func NewEnforcer(store *truth.Store, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{truth: store, logger: logger}
}

// RecordSpawn registers an agent spawn. Must be called immediately
// before the agent task starts; the event-log ordering of
// agent_spawned versus gate_approved is what makes bypasses auditable.
func (e *Enforcer) RecordSpawn(ctx context.Context, projectID, agentName string, gateType gate.Type, taskDescription string) (string, error) {
	if agentName == "" {
		return "", errors.InvalidInput("spawn", errors.FieldIssue{
			Field: "agent_name", Message: "required",
		})
	}
	if !gate.IsValidType(gateType) {
		return "", errors.InvalidInput("spawn", errors.FieldIssue{
			Field: "gate", Message: fmt.Sprintf("invalid gate type %q", gateType),
		})
	}

	row := &db.SpawnRow{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		AgentName:       agentName,
		GateType:        string(gateType),
		TaskDescription: taskDescription,
		Status:          StatusSpawned,
		SpawnedAt:       time.Now().UTC(),
	}

	_, err := e.truth.AppendEvent(ctx, projectID,
		events.New(events.TypeAgentSpawned, projectID, agentName, events.Payload{
			"gate":  string(gateType),
			"agent": agentName,
		}).WithRecord(row))
	if err != nil {
		return "", err
	}
	e.logger.Info("agent spawned", "project", projectID, "agent", agentName, "gate", gateType)
	return row.ID, nil
}

// MarkStarted transitions a spawned record to running when the agent
// task begins executing.
func (e *Enforcer) MarkStarted(ctx context.Context, spawnID string) error {
	row, err := db.GetSpawn(ctx, e.truth.DB(), spawnID)
	if err != nil {
		return errors.Upstream("get spawn", err)
	}
	if row == nil {
		return errors.NotFound("spawn", spawnID)
	}
	if row.Status != StatusSpawned {
		return errors.Conflict("spawn "+spawnID, "already "+row.Status)
	}

	row.Status = StatusRunning
	_, err = e.truth.AppendEvent(ctx, row.ProjectID,
		events.New(events.TypeAgentStarted, row.ProjectID, row.AgentName, events.Payload{
			"gate":  row.GateType,
			"agent": row.AgentName,
		}).WithRecord(row))
	return err
}

// TokenUsage reports an agent's model consumption, forwarded to the
// cost ledger on completion.
type TokenUsage struct {
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// CompleteSpawn records a spawn outcome. Terminal spawns are
// immutable: completing one again is a Conflict.
func (e *Enforcer) CompleteSpawn(ctx context.Context, spawnID, status, resultSummary string, proofArtifactIDs []string, usage *TokenUsage) error {
	if status != StatusCompleted && status != StatusFailed {
		return errors.InvalidInput("spawn", errors.FieldIssue{
			Field: "status", Message: "must be completed or failed",
		})
	}

	row, err := db.GetSpawn(ctx, e.truth.DB(), spawnID)
	if err != nil {
		return errors.Upstream("get spawn", err)
	}
	if row == nil {
		return errors.NotFound("spawn", spawnID)
	}
	// An agent may finish without an explicit running mark.
	if row.Status != StatusSpawned && row.Status != StatusRunning {
		return errors.Conflict("spawn "+spawnID, "already "+row.Status)
	}

	row.Status = status
	row.CompletedAt = time.Now().UTC()
	row.ResultSummary = resultSummary
	row.ProofArtifactIDs = proofArtifactIDs

	eventType := events.TypeAgentCompleted
	if status == StatusFailed {
		eventType = events.TypeAgentFailed
	}
	payload := events.Payload{
		"gate":             row.GateType,
		"agent":            row.AgentName,
		"duration_seconds": row.CompletedAt.Sub(row.SpawnedAt).Seconds(),
	}
	if usage != nil {
		payload["token_usage"] = map[string]any{
			"model":         usage.Model,
			"input_tokens":  float64(usage.InputTokens),
			"output_tokens": float64(usage.OutputTokens),
		}
	}

	_, err = e.truth.AppendEvent(ctx, row.ProjectID,
		events.New(eventType, row.ProjectID, row.AgentName, payload).WithRecord(row))
	return err
}

// GateValidation is the result of checking the required-agent contract
// for one gate.
type GateValidation struct {
	RequiredAgents []string `json:"required_agents"`
	Spawned        []string `json:"spawned"`
	Completed      []string `json:"completed"`
	CanPresentGate bool     `json:"can_present_gate"`
	BlockingReason string   `json:"blocking_reason,omitempty"`
}

// ValidateForGate reports whether every required agent for a gate has
// at least one completed spawn.
func (e *Enforcer) ValidateForGate(ctx context.Context, projectID string, gateType gate.Type) (*GateValidation, error) {
	project, err := db.GetProject(ctx, e.truth.DB(), projectID)
	if err != nil {
		return nil, errors.Upstream("get project", err)
	}
	if project == nil {
		return nil, errors.NotFound("project", projectID)
	}

	required := RequiredAgents(gateType, project.AIML)
	v := &GateValidation{RequiredAgents: required, CanPresentGate: true}
	if len(required) == 0 {
		return v, nil
	}

	spawns, err := db.ListSpawns(ctx, e.truth.DB(), projectID, string(gateType))
	if err != nil {
		return nil, errors.Upstream("list spawns", err)
	}
	spawned := map[string]bool{}
	completed := map[string]bool{}
	for _, s := range spawns {
		spawned[s.AgentName] = true
		if s.Status == StatusCompleted {
			completed[s.AgentName] = true
		}
	}

	var missing []string
	for _, agent := range required {
		if spawned[agent] {
			v.Spawned = append(v.Spawned, agent)
		}
		if completed[agent] {
			v.Completed = append(v.Completed, agent)
		} else {
			missing = append(missing, agent)
		}
	}
	if len(missing) > 0 {
		v.CanPresentGate = false
		v.BlockingReason = fmt.Sprintf("gate %s requires completed spawns for: %s",
			gateType, strings.Join(missing, ", "))
	}
	return v, nil
}

// CanPresentGate adapts ValidateForGate to the gate machine's
// SpawnChecker capability.
func (e *Enforcer) CanPresentGate(ctx context.Context, projectID string, gateType gate.Type) (bool, string, error) {
	v, err := e.ValidateForGate(ctx, projectID, gateType)
	if err != nil {
		return false, "", err
	}
	return v.CanPresentGate, v.BlockingReason, nil
}

// WorkValidation is the result of checking whether the orchestrator
// may perform an intended gate action itself.
type WorkValidation struct {
	CanProceed         bool   `json:"can_proceed"`
	RequiredAction     string `json:"required_action,omitempty"`
	ViolationIfProceed string `json:"violation_if_proceed,omitempty"`
}

// ValidateBeforeGateWork is the hard stop called before any
// gate-related work. A false CanProceed means the caller must spawn
// the required agent instead of proceeding.
func (e *Enforcer) ValidateBeforeGateWork(ctx context.Context, projectID string, gateType gate.Type, intendedAction string) (*WorkValidation, error) {
	v, err := e.ValidateForGate(ctx, projectID, gateType)
	if err != nil {
		return nil, err
	}
	if v.CanPresentGate {
		return &WorkValidation{CanProceed: true}, nil
	}

	missing := missingAgents(v)
	return &WorkValidation{
		CanProceed:     false,
		RequiredAction: fmt.Sprintf("spawn %s and wait for completion before %q", strings.Join(missing, " and "), intendedAction),
		ViolationIfProceed: fmt.Sprintf(
			"performing %q without a completed %s spawn violates the delegation protocol for %s",
			intendedAction, strings.Join(missing, "/"), gateType),
	}, nil
}

func missingAgents(v *GateValidation) []string {
	done := map[string]bool{}
	for _, a := range v.Completed {
		done[a] = true
	}
	var missing []string
	for _, a := range v.RequiredAgents {
		if !done[a] {
			missing = append(missing, a)
		}
	}
	return missing
}

// ListForGate returns the spawn records for a project, optionally
// narrowed to one gate.
func (e *Enforcer) ListForGate(ctx context.Context, projectID string, gateType gate.Type) ([]*db.SpawnRow, error) {
	rows, err := db.ListSpawns(ctx, e.truth.DB(), projectID, string(gateType))
	if err != nil {
		return nil, errors.Upstream("list spawns", err)
	}
	return rows, nil
}
