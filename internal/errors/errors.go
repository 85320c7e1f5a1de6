// Package errors provides structured error types for foundry.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies an error for retry policy and HTTP status mapping.
type Kind string

const (
	// KindNotFound indicates an unknown project, gate, task, or artifact.
	KindNotFound Kind = "not_found"
	// KindUnauthorized indicates the actor is not the project owner.
	KindUnauthorized Kind = "unauthorized"
	// KindPreconditionFailed indicates a gate precondition was not met:
	// predecessor not approved, proof missing, deliverables incomplete,
	// or spec locked.
	KindPreconditionFailed Kind = "precondition_failed"
	// KindInvalidInput indicates a bad approval phrase or malformed
	// tool arguments.
	KindInvalidInput Kind = "invalid_input"
	// KindConflict indicates a circular dependency, an already-locked
	// spec, or an already-completed spawn.
	KindConflict Kind = "conflict"
	// KindIntegrityFailure indicates a proof hash mismatch on verify.
	KindIntegrityFailure Kind = "integrity_failure"
	// KindProtocolViolation indicates gate work attempted without a
	// completed required-agent spawn.
	KindProtocolViolation Kind = "protocol_violation"
	// KindUpstreamFailure indicates an agent runtime or persistence error.
	KindUpstreamFailure Kind = "upstream_failure"
	// KindTransient indicates a retryable upstream error.
	KindTransient Kind = "transient"
)

// Retryable reports whether an automatic retry policy may apply.
// Only transient upstream failures are retryable; precondition and
// protocol failures require human or workflow resolution.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// HTTPStatus returns the HTTP status code for a kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return 404
	case KindUnauthorized:
		return 403
	case KindPreconditionFailed:
		return 412
	case KindInvalidInput:
		return 400
	case KindConflict:
		return 409
	case KindIntegrityFailure:
		return 422
	case KindProtocolViolation:
		return 428
	case KindUpstreamFailure:
		return 502
	case KindTransient:
		return 503
	default:
		return 500
	}
}

// FieldIssue describes a single invalid field in tool arguments.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the structured error type for foundry.
type Error struct {
	Kind   Kind         `json:"kind"`
	What   string       `json:"what"`
	Why    string       `json:"why,omitempty"`
	Fix    string       `json:"fix,omitempty"`
	Issues []FieldIssue `json:"issues,omitempty"`
	Cause  error        `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *Error) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	for _, issue := range e.Issues {
		b.WriteString(fmt.Sprintf("\n  - %s: %s", issue.Field, issue.Message))
	}
	return b.String()
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithCause returns a copy of the error with the given cause.
func (e *Error) WithCause(err error) *Error {
	clone := *e
	clone.Cause = err
	return &clone
}

// KindOf returns the kind of err, or an empty Kind for non-foundry errors.
func KindOf(err error) Kind {
	var fe *Error
	if stderrors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err is a foundry error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// --- Error constructors ---

// NotFound returns an error for a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{
		Kind: KindNotFound,
		What: fmt.Sprintf("%s %s not found", entity, id),
	}
}

// Unauthorized returns an error for a non-owner attempting an
// owner-only operation.
func Unauthorized(actorID, projectID string) *Error {
	return &Error{
		Kind: KindUnauthorized,
		What: fmt.Sprintf("actor %s is not the owner of project %s", actorID, projectID),
		Fix:  "Only the project owner may approve, reject, or configure gates",
	}
}

// PreconditionFailed returns an error for an unmet gate precondition.
// The reason names the first failing precondition.
func PreconditionFailed(reason string) *Error {
	return &Error{
		Kind: KindPreconditionFailed,
		What: "precondition failed",
		Why:  reason,
	}
}

// InvalidInput returns an error for malformed input.
func InvalidInput(what string, issues ...FieldIssue) *Error {
	return &Error{
		Kind:   KindInvalidInput,
		What:   what,
		Issues: issues,
	}
}

// InvalidApproval returns the coaching error for an ambiguous or
// missing approval phrase.
func InvalidApproval(response string) *Error {
	return &Error{
		Kind: KindInvalidInput,
		What: fmt.Sprintf("approval response %q is not an explicit approval", response),
		Why:  "Ambiguous acknowledgments like 'ok' or 'sure' are not accepted for gate approval",
		Fix:  `Please use "approved" or "yes" to approve this gate`,
	}
}

// Conflict returns an error for a state conflict.
func Conflict(what, why string) *Error {
	return &Error{
		Kind: KindConflict,
		What: what,
		Why:  why,
	}
}

// SpecLocked returns the error for a write to a locked spec.
func SpecLocked(specType string) *Error {
	return &Error{
		Kind: KindConflict,
		What: fmt.Sprintf("spec %s is locked", specType),
		Why:  "Specs become immutable once G3 is approved",
		Fix:  "Open a change request instead of re-registering a locked spec",
	}
}

// IntegrityFailure returns an error for a proof hash mismatch.
func IntegrityFailure(artifactID, storedHash, currentHash string) *Error {
	return &Error{
		Kind: KindIntegrityFailure,
		What: fmt.Sprintf("proof artifact %s failed integrity verification", artifactID),
		Why:  fmt.Sprintf("stored hash %s does not match current hash %s", storedHash, currentHash),
	}
}

// ProtocolViolation returns an error for gate work attempted without
// the required agent spawn.
func ProtocolViolation(gate, agent string) *Error {
	return &Error{
		Kind: KindProtocolViolation,
		What: fmt.Sprintf("gate %s work requires a completed %s spawn", gate, agent),
		Why:  "The orchestrator must not perform gate work itself",
		Fix:  fmt.Sprintf("Record a spawn for %s and let it complete before presenting %s", agent, gate),
	}
}

// Upstream wraps an agent-runtime or persistence failure.
func Upstream(what string, cause error) *Error {
	return &Error{
		Kind:  KindUpstreamFailure,
		What:  what,
		Cause: cause,
	}
}

// Transient wraps a retryable upstream failure.
func Transient(what string, cause error) *Error {
	return &Error{
		Kind:  KindTransient,
		What:  what,
		Fix:   "Retry with backoff",
		Cause: cause,
	}
}
