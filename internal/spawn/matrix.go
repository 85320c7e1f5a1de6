package spawn

import "github.com/foundrydev/foundry/internal/gate"

// Agent role names. These are contract identifiers: the enforcer
// matches completed spawns against them verbatim.
const (
	AgentProductManager = "Product Manager"
	AgentArchitect      = "Architect"
	AgentDesigner       = "UX/UI Designer"
	AgentFrontendDev    = "Frontend Developer"
	AgentBackendDev     = "Backend Developer"
	AgentMLEngineer     = "ML Engineer"
	AgentPromptEngineer = "Prompt Engineer"
	AgentQAEngineer     = "QA Engineer"
	AgentModelEvaluator = "Model Evaluator"
	AgentSecurity       = "Security & Privacy Engineer"
	AgentDevOps         = "DevOps Engineer"
	AgentAIOps          = "AIOps Engineer"
)

// requiredAgents maps each gate to the agents that must each have a
// completed spawn before the gate may be presented. aiML lists the
// additional agents required for AI/ML projects.
var requiredAgents = map[gate.Type]struct {
	base []string
	aiML []string
}{
	gate.G2: {base: []string{AgentProductManager}},
	gate.G3: {base: []string{AgentArchitect}},
	gate.G4: {base: []string{AgentDesigner}},
	gate.G5: {
		base: []string{AgentFrontendDev, AgentBackendDev},
		aiML: []string{AgentMLEngineer, AgentPromptEngineer},
	},
	gate.G6: {
		base: []string{AgentQAEngineer},
		aiML: []string{AgentModelEvaluator},
	},
	gate.G7: {base: []string{AgentSecurity}},
	gate.G8: {
		base: []string{AgentDevOps},
		aiML: []string{AgentAIOps},
	},
	gate.G9: {base: []string{AgentDevOps}},
}

// RequiredAgents returns the agents a gate needs, including the AI/ML
// additions when aiML is set. Gates with no entry require none.
func RequiredAgents(t gate.Type, aiML bool) []string {
	entry, ok := requiredAgents[t]
	if !ok {
		return nil
	}
	agents := append([]string(nil), entry.base...)
	if aiML {
		agents = append(agents, entry.aiML...)
	}
	return agents
}

// defaultOwnership is the hardcoded file ownership per agent role, used
// when a parallel-spawn caller supplies none.
var defaultOwnership = map[string][]string{
	AgentProductManager: {"docs/prd/**"},
	AgentArchitect:      {"docs/architecture/**", "specs/**"},
	AgentDesigner:       {"designs/**"},
	AgentFrontendDev:    {"src/components/**", "src/pages/**", "src/styles/**", "public/**"},
	AgentBackendDev:     {"src/api/**", "src/services/**", "src/db/**", "migrations/**"},
	AgentMLEngineer:     {"ml/**", "models/**", "notebooks/**"},
	AgentPromptEngineer: {"prompts/**"},
	AgentQAEngineer:     {"tests/**", "e2e/**"},
	AgentModelEvaluator: {"evals/**"},
	AgentSecurity:       {"security/**"},
	AgentDevOps:         {"deploy/**", "docker/**", ".github/**", "Dockerfile"},
	AgentAIOps:          {"deploy/ml/**", "monitoring/**"},
}

// DefaultOwnership returns the hardcoded ownership patterns for a role.
func DefaultOwnership(agentName string) []string {
	return append([]string(nil), defaultOwnership[agentName]...)
}

// sharedPaths are excluded from conflict detection: files that any
// agent may touch without coordination.
var sharedPaths = []string{
	"src/types/**",
	"types/**",
	"src/utils/**",
	"utils/**",
	"package.json",
	"tsconfig.json",
	".env.example",
}
