package queue

import "strings"

// Blocker tokens. A task carries at most one gate blocker and at most
// one tasks blocker; status derives from the set (non-empty = blocked).
const (
	gateBlockerPrefix  = "gate:"
	tasksBlockerPrefix = "tasks:"
)

// GateBlocker builds the blocker token for an unapproved gate.
func GateBlocker(gateType string) string {
	return gateBlockerPrefix + gateType
}

// TasksBlocker builds the blocker token for incomplete dependencies.
func TasksBlocker(ids []string) string {
	return tasksBlockerPrefix + strings.Join(ids, ",")
}

// removeTaskBlocker removes completedID from any tasks blocker,
// dropping the blocker when it empties. Reports whether anything
// changed.
func removeTaskBlocker(blockers []string, completedID string) ([]string, bool) {
	changed := false
	out := blockers[:0:0]
	for _, b := range blockers {
		if !strings.HasPrefix(b, tasksBlockerPrefix) {
			out = append(out, b)
			continue
		}
		ids := strings.Split(strings.TrimPrefix(b, tasksBlockerPrefix), ",")
		kept := ids[:0:0]
		for _, id := range ids {
			if id == completedID {
				changed = true
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) > 0 {
			out = append(out, TasksBlocker(kept))
		}
	}
	return out, changed
}

// removeGateBlocker removes the blocker for an approved gate. Reports
// whether anything changed.
func removeGateBlocker(blockers []string, gateType string) ([]string, bool) {
	changed := false
	out := blockers[:0:0]
	for _, b := range blockers {
		if b == GateBlocker(gateType) {
			changed = true
			continue
		}
		out = append(out, b)
	}
	return out, changed
}
