// Package gate provides the gate state machine for foundry workflows.
//
// A workflow progresses through a fixed sequence of approval gates G1..G9.
// Each gate is a checkpoint requiring explicit human approval, optionally
// backed by hash-verified proof artifacts. The set of gates for a project
// is always a contiguous prefix of the ordering: gate G(k+1) exists only
// once G(k) has been approved.
package gate

import (
	"fmt"
	"strconv"
	"strings"
)

// Type identifies a gate in the fixed G1..G9 ordering.
type Type string

const (
	G1 Type = "G1"
	G2 Type = "G2"
	G3 Type = "G3"
	G4 Type = "G4"
	G5 Type = "G5"
	G6 Type = "G6"
	G7 Type = "G7"
	G8 Type = "G8"
	G9 Type = "G9"
)

// Ordering is the authoritative gate sequence.
var Ordering = []Type{G1, G2, G3, G4, G5, G6, G7, G8, G9}

// ValidTypes returns all valid gate types in order.
func ValidTypes() []Type {
	return append([]Type(nil), Ordering...)
}

// IsValidType returns true if t is a valid gate type.
func IsValidType(t Type) bool {
	switch t {
	case G1, G2, G3, G4, G5, G6, G7, G8, G9:
		return true
	default:
		return false
	}
}

// ParseType parses a gate identifier such as "G3". It also accepts the
// legacy lifecycle encoding ("G3_PENDING", "G3_APPROVED") used by older
// external surfaces, discarding the status suffix.
func ParseType(s string) (Type, error) {
	base := s
	if i := strings.IndexByte(s, '_'); i > 0 {
		base = s[:i]
	}
	t := Type(strings.ToUpper(strings.TrimSpace(base)))
	if !IsValidType(t) {
		return "", fmt.Errorf("invalid gate type: %q", s)
	}
	return t, nil
}

// Number returns the ordinal of the gate (1 for G1).
func (t Type) Number() int {
	n, err := strconv.Atoi(strings.TrimPrefix(string(t), "G"))
	if err != nil {
		return 0
	}
	return n
}

// Next returns the successor gate, or false if t is terminal.
func (t Type) Next() (Type, bool) {
	n := t.Number()
	if n == 0 || n >= len(Ordering) {
		return "", false
	}
	return Ordering[n], true
}

// Prev returns the predecessor gate, or false if t is G1.
func (t Type) Prev() (Type, bool) {
	n := t.Number()
	if n <= 1 {
		return "", false
	}
	return Ordering[n-2], true
}

// IsTerminal returns true for the final gate in the ordering.
func (t Type) IsTerminal() bool {
	return t == Ordering[len(Ordering)-1]
}

// LifecycleTag returns the legacy external encoding for this gate and
// status, e.g. "G3_APPROVED".
func (t Type) LifecycleTag(s Status) string {
	return fmt.Sprintf("%s_%s", t, strings.ToUpper(string(s)))
}

// Status represents the lifecycle state of a gate.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInReview Status = "in_review"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusBlocked  Status = "blocked"
)

// ValidStatuses returns all valid gate statuses.
func ValidStatuses() []Status {
	return []Status{StatusPending, StatusInReview, StatusApproved, StatusRejected, StatusBlocked}
}

// IsValidStatus returns true if s is a valid gate status.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInReview, StatusApproved, StatusRejected, StatusBlocked:
		return true
	default:
		return false
	}
}

// Gate is the live record for one gate of one project. At most one
// record per (project, type) exists.
type Gate struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	Type            Type    `json:"type"`
	Status          Status  `json:"status"`
	RequiresProof   bool    `json:"requires_proof"`
	PassingCriteria string  `json:"passing_criteria"`
	Description     string  `json:"description"`
	ApprovedBy      string  `json:"approved_by,omitempty"`
	ApprovedAt      string  `json:"approved_at,omitempty"`
	ReviewNotes     string  `json:"review_notes,omitempty"`
	BlockingReason  string  `json:"blocking_reason,omitempty"`
	ForcedApproval  bool    `json:"forced_approval,omitempty"`
	SkippedByPolicy bool    `json:"skipped_by_policy,omitempty"`
	ReviewData      string  `json:"review_data,omitempty"`
}
