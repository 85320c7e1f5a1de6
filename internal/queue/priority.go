package queue

import "github.com/foundrydev/foundry/internal/errors"

// Priority orders tasks in the queue. Critical schedules first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// ParsePriority validates a priority string. Empty defaults to medium.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if _, ok := priorityRank[p]; !ok {
		return "", errors.InvalidInput("task priority", errors.FieldIssue{
			Field: "priority", Message: "must be one of critical, high, medium, low",
		})
	}
	return p, nil
}

// Rank returns the scheduling rank; lower runs first.
func (p Priority) Rank() int {
	r, ok := priorityRank[p]
	if !ok {
		return priorityRank[PriorityLow]
	}
	return r
}

// Promote returns the priority one rank higher, capped at critical.
func (p Priority) Promote() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}
