// Package events provides event types and publishing infrastructure for
// foundry. Every state change in the workflow core is expressed as an
// Event appended to the truth store; the publisher fans appended events
// out to in-process subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type defines the type of event.
type Type string

const (
	// Project lifecycle

	// TypeProjectCreated indicates a project was created.
	TypeProjectCreated Type = "project_created"
	// TypeProjectCompleted indicates the terminal gate was approved.
	TypeProjectCompleted Type = "project_completed"

	// Gate lifecycle

	// TypeGateCreated indicates a gate record was created in PENDING.
	TypeGateCreated Type = "gate_created"
	// TypeGateInReview indicates a gate moved to review.
	TypeGateInReview Type = "gate_in_review"
	// TypeGateApproved indicates a gate was approved.
	TypeGateApproved Type = "gate_approved"
	// TypeGateRejected indicates a gate was rejected.
	TypeGateRejected Type = "gate_rejected"
	// TypeGateBlocked indicates a gate was blocked.
	TypeGateBlocked Type = "gate_blocked"
	// TypeGateSkipped indicates a gate was skipped by explicit policy.
	TypeGateSkipped Type = "gate_skipped"

	// Specs

	// TypeSpecRegistered indicates a machine-readable spec was registered.
	TypeSpecRegistered Type = "spec_registered"
	// TypeSpecLocked indicates specs became immutable.
	TypeSpecLocked Type = "spec_locked"

	// Tasks

	TypeTaskCreated   Type = "task_created"
	TypeTaskStarted   Type = "task_started"
	TypeTaskCompleted Type = "task_completed"
	TypeTaskFailed    Type = "task_failed"
	TypeTaskRetried   Type = "task_retried"
	// TypeTaskUpdated indicates a blocker or priority change outside the
	// start/complete/fail transitions (e.g. an unblock pass).
	TypeTaskUpdated Type = "task_updated"

	// Workers and agents

	TypeWorkerRegistered Type = "worker_registered"
	TypeWorkerOffline    Type = "worker_offline"
	TypeAgentSpawned     Type = "agent_spawned"
	TypeAgentStarted     Type = "agent_started"
	TypeAgentCompleted   Type = "agent_completed"
	TypeAgentFailed      Type = "agent_failed"

	// Proof artifacts

	TypeProofSubmitted Type = "proof_submitted"
	TypeProofVerified  Type = "proof_verified"
	// TypeIntegrityViolation indicates a proof file changed after
	// submission (hash mismatch).
	TypeIntegrityViolation Type = "integrity_violation"

	// Human interaction and decisions

	TypeHumanInput   Type = "human_input"
	TypeDecisionMade Type = "decision_made"

	// Risk tracking

	TypeRiskAdded    Type = "risk_added"
	TypeRiskResolved Type = "risk_resolved"

	// Validation and recovery

	TypeValidationTriggered Type = "validation_triggered"
	TypeValidationCompleted Type = "validation_completed"
	TypeSelfHealing         Type = "self_healing"

	// Documents

	TypeDocumentCreated Type = "document_created"
	TypeDocumentRevised Type = "document_revised"

	// Assessments

	TypeAssessmentStarted   Type = "assessment_started"
	TypeAssessmentUpdated   Type = "assessment_updated"
	TypeAssessmentCompleted Type = "assessment_completed"

	// Deliverables

	TypeDeliverableUpdated Type = "deliverable_updated"
)

// Payload is the free-form data attached to an event. Common fields are
// typed on Event itself; the payload is a versioned record keyed by the
// event type.
type Payload map[string]any

// Event represents one append-only entry in a project's event log.
// Seq is assigned by the truth store at append time and is strictly
// increasing per project.
type Event struct {
	Seq       int64     `json:"seq"`
	Type      Type      `json:"type"`
	ProjectID string    `json:"project_id"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload,omitempty"`
}

// New creates an event with the current timestamp. Seq is zero until
// the truth store assigns it.
func New(eventType Type, projectID, actor string, payload Payload) Event {
	return Event{
		Type:      eventType,
		ProjectID: projectID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// WithRecord attaches v to the payload under the "record" key, encoded
// through JSON so the truth store's projections can decode it into row
// structs. Flat filter fields ("gate", "task_id") stay alongside.
func (e Event) WithRecord(v any) Event {
	data, err := json.Marshal(v)
	if err != nil {
		return e
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return e
	}
	if e.Payload == nil {
		e.Payload = Payload{}
	}
	e.Payload["record"] = record
	return e
}

// DecodeRecord decodes the payload's "record" object into out.
func (e Event) DecodeRecord(out any) error {
	record, ok := e.Payload["record"]
	if !ok {
		return fmt.Errorf("event %s has no record payload", e.Type)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Str returns a string payload field, or "" when absent.
func (e Event) Str(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// Bool returns a bool payload field, or false when absent.
func (e Event) Bool(key string) bool {
	b, _ := e.Payload[key].(bool)
	return b
}
