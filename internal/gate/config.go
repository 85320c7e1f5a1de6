package gate

// Config is the canned configuration for one gate type.
type Config struct {
	Description     string
	PassingCriteria string
	RequiresProof   bool
}

// configs is the authoritative per-gate configuration registry.
var configs = map[Type]Config{
	G1: {
		Description:     "Project intake: goals, constraints, and ownership confirmed",
		PassingCriteria: "Owner has confirmed the project brief",
		RequiresProof:   false,
	},
	G2: {
		Description:     "Product definition: PRD written and reviewed",
		PassingCriteria: "PRD reviewed by the Product Manager agent",
		RequiresProof:   false,
	},
	G3: {
		Description:     "Architecture and specs: API, data model, and architecture registered",
		PassingCriteria: "All registered specs validate; architecture reviewed",
		RequiresProof:   true,
	},
	G4: {
		Description:     "Design: UX flows and UI designs produced",
		PassingCriteria: "Designs cover every user story in the PRD",
		RequiresProof:   false,
	},
	G5: {
		Description:     "Implementation: code complete against locked specs",
		PassingCriteria: "Build, lint, and tests pass on the integration branch",
		RequiresProof:   true,
	},
	G6: {
		Description:     "Quality: full test, coverage, accessibility, and performance evidence",
		PassingCriteria: "QA sign-off with coverage and scan reports attached",
		RequiresProof:   true,
	},
	G7: {
		Description:     "Security and privacy review",
		PassingCriteria: "Security scan clean; privacy checklist complete",
		RequiresProof:   true,
	},
	G8: {
		Description:     "Release readiness: staging deployment verified",
		PassingCriteria: "Staging build deployed and verified",
		RequiresProof:   true,
	},
	G9: {
		Description:     "Launch: production deployment and smoke tests",
		PassingCriteria: "Production deployment log and smoke tests attached",
		RequiresProof:   true,
	},
}

// ConfigFor returns the canned configuration for a gate type.
func ConfigFor(t Type) Config {
	return configs[t]
}

// requiredProofs maps each gate to the proof types that must each have
// at least one passing artifact before approval. Gates absent from the
// map accept any passing proof when RequiresProof is set (the stricter
// of the two historical interpretations).
var requiredProofs = map[Type][]string{
	G2: {"prd_review"},
	G3: {"spec_validation"},
	G5: {"build_output", "lint_output", "test_output"},
	G6: {"test_output", "coverage_report", "accessibility_scan", "lighthouse_report"},
	G7: {"security_scan", "lint_output"},
	G8: {"build_output", "deployment_log"},
	G9: {"deployment_log", "smoke_test"},
}

// RequiredProofTypes returns the proof types a gate needs, in matrix
// order. An empty slice means any passing proof satisfies the gate.
func RequiredProofTypes(t Type) []string {
	return append([]string(nil), requiredProofs[t]...)
}

// NewPending constructs the live record for a freshly created gate,
// applying the canned configuration. Per-project overrides of
// RequiresProof are applied by the caller.
func NewPending(id, projectID string, t Type) *Gate {
	cfg := ConfigFor(t)
	return &Gate{
		ID:              id,
		ProjectID:       projectID,
		Type:            t,
		Status:          StatusPending,
		RequiresProof:   cfg.RequiresProof,
		PassingCriteria: cfg.PassingCriteria,
		Description:     cfg.Description,
	}
}
