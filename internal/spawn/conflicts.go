package spawn

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// AgentOwnership names an agent and the path patterns it intends to
// write during a parallel spawn.
type AgentOwnership struct {
	AgentName     string   `json:"agent_name"`
	FileOwnership []string `json:"file_ownership,omitempty"`
}

// Conflict reports two agents whose ownership overlaps.
type Conflict struct {
	Agent1           string   `json:"agent1"`
	Agent2           string   `json:"agent2"`
	ConflictingPaths []string `json:"conflicting_paths"`
}

// ConflictReport is the result of a parallel-spawn conflict check.
type ConflictReport struct {
	CanSpawnParallel bool       `json:"can_spawn_parallel"`
	Conflicts        []Conflict `json:"conflicts,omitempty"`
}

// CheckParallelSpawnConflicts reports whether a set of agents can run
// in parallel without write conflicts. Agents with empty ownership get
// their role's hardcoded defaults. Shared paths (type definitions,
// utility dirs, tool configs) are excluded from detection.
func CheckParallelSpawnConflicts(agents []AgentOwnership) ConflictReport {
	ownership := make([][]string, len(agents))
	for i, a := range agents {
		patterns := a.FileOwnership
		if len(patterns) == 0 {
			patterns = DefaultOwnership(a.AgentName)
		}
		ownership[i] = filterShared(patterns)
	}

	report := ConflictReport{CanSpawnParallel: true}
	for i := range agents {
		for j := i + 1; j < len(agents); j++ {
			paths := overlappingPaths(ownership[i], ownership[j])
			if len(paths) == 0 {
				continue
			}
			report.CanSpawnParallel = false
			report.Conflicts = append(report.Conflicts, Conflict{
				Agent1:           agents[i].AgentName,
				Agent2:           agents[j].AgentName,
				ConflictingPaths: paths,
			})
		}
	}
	return report
}

func filterShared(patterns []string) []string {
	out := patterns[:0:0]
	for _, p := range patterns {
		if isSharedPath(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func isSharedPath(pattern string) bool {
	for _, shared := range sharedPaths {
		if pattern == shared {
			return true
		}
		if ok, _ := doublestar.Match(shared, pattern); ok {
			return true
		}
	}
	return false
}

func overlappingPaths(a, b []string) []string {
	var paths []string
	for _, pa := range a {
		for _, pb := range b {
			if patternsOverlap(pa, pb) {
				paths = append(paths, pa+" ~ "+pb)
			}
		}
	}
	return paths
}

// patternsOverlap detects overlap between two ownership patterns:
// either glob matches the other treated as a path, or their literal
// prefixes (up to the first wildcard) nest.
func patternsOverlap(a, b string) bool {
	if ok, _ := doublestar.Match(a, b); ok {
		return true
	}
	if ok, _ := doublestar.Match(b, a); ok {
		return true
	}
	pa, pb := literalPrefix(a), literalPrefix(b)
	return strings.HasPrefix(pa, pb) || strings.HasPrefix(pb, pa)
}

// literalPrefix returns the pattern's path segments before the first
// wildcard, with a trailing slash so "src/api" never matches
// "src/apiary".
func literalPrefix(pattern string) string {
	segments := strings.Split(pattern, "/")
	var literal []string
	for _, seg := range segments {
		if strings.ContainsAny(seg, "*?[{") {
			break
		}
		literal = append(literal, seg)
	}
	return strings.Join(literal, "/") + "/"
}
