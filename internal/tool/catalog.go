package tool

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/foundrydev/foundry/internal/assess"
	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/orchestrator"
	"github.com/foundrydev/foundry/internal/proof"
	"github.com/foundrydev/foundry/internal/queue"
	"github.com/foundrydev/foundry/internal/spawn"
	"github.com/foundrydev/foundry/internal/truth"
)

// Catalog binds the tool registry to a workflow core.
type Catalog struct {
	core     *orchestrator.Core
	registry *Registry
}

// NewCatalog assembles the full tool catalog over a core.
func NewCatalog(core *orchestrator.Core) *Catalog {
	c := &Catalog{core: core, registry: NewRegistry()}
	c.registerProjectTools()
	c.registerGateTools()
	c.registerSpecTools()
	c.registerTaskTools()
	c.registerWorkerTools()
	c.registerProofTools()
	c.registerSpawnTools()
	c.registerDocumentTools()
	c.registerAssessmentTools()
	c.registerStateTools()
	return c
}

// Registry returns the underlying registry.
func (c *Catalog) Registry() *Registry {
	return c.registry
}

// Invoke runs one tool call.
func (c *Catalog) Invoke(ctx context.Context, name string, args []byte) (any, error) {
	return c.registry.Invoke(ctx, name, args)
}

// ReadResource resolves a project://<id>/state URI to a snapshot.
func (c *Catalog) ReadResource(ctx context.Context, uri string) (*truth.Snapshot, error) {
	projectID, err := ParseResourceURI(uri)
	if err != nil {
		return nil, err
	}
	return c.core.Truth.GetState(ctx, projectID)
}

func strs(args gjson.Result, field string) []string {
	var out []string
	for _, v := range args.Get(field).Array() {
		out = append(out, v.String())
	}
	return out
}

func (c *Catalog) registerProjectTools() {
	c.registry.Register(Tool{
		Name: "project_create", Group: "project",
		Description: "Create a project and its G1 gate (idempotent by id)",
		Required:    []string{"project_id", "owner"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.CreateProject(ctx,
			args.Get("project_id").String(),
			args.Get("name").String(),
			args.Get("owner").String(),
			args.Get("api_only").Bool(),
			args.Get("ai_ml").Bool())
	})

	c.registry.Register(Tool{
		Name: "project_get", Group: "project",
		Description: "Get a project record",
		Required:    []string{"project_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return db.GetProject(ctx, c.core.Truth.DB(), args.Get("project_id").String())
	})
}

func (c *Catalog) registerGateTools() {
	c.registry.Register(Tool{
		Name: "gate_current", Group: "gates",
		Description: "Get the project's current gate",
		Required:    []string{"project_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Machine.CurrentGate(ctx, args.Get("project_id").String())
	})

	c.registry.Register(Tool{
		Name: "gate_can_transition", Group: "gates",
		Description: "Check whether a gate could be approved right now",
		Required:    []string{"project_id", "gate", "actor"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		gt, err := gate.ParseType(args.Get("gate").String())
		if err != nil {
			return nil, err
		}
		return c.core.Machine.CanTransition(ctx,
			args.Get("project_id").String(), gt, args.Get("actor").String())
	})

	c.registry.Register(Tool{
		Name: "gate_review", Group: "gates",
		Description: "Move a pending gate into review",
		Required:    []string{"project_id", "gate", "actor"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		gt, err := gate.ParseType(args.Get("gate").String())
		if err != nil {
			return nil, err
		}
		err = c.core.Machine.TransitionToReview(ctx,
			args.Get("project_id").String(), gt,
			args.Get("actor").String(), args.Get("review_data").String())
		return map[string]bool{"ok": err == nil}, err
	})

	c.registry.Register(Tool{
		Name: "gate_approve", Group: "gates",
		Description: "Approve a gate with an explicit approval phrase",
		Required:    []string{"project_id", "gate", "actor", "response"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		gt, err := gate.ParseType(args.Get("gate").String())
		if err != nil {
			return nil, err
		}
		err = c.core.Machine.ApproveGate(ctx,
			args.Get("project_id").String(), gt,
			args.Get("actor").String(),
			args.Get("response").String(),
			args.Get("notes").String(),
			gate.ApproveOptions{ForceWithoutProofs: args.Get("force_without_proofs").Bool()})
		return map[string]bool{"approved": err == nil}, err
	})

	c.registry.Register(Tool{
		Name: "gate_reject", Group: "gates",
		Description: "Reject a gate with a blocking reason",
		Required:    []string{"project_id", "gate", "actor", "reason"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		gt, err := gate.ParseType(args.Get("gate").String())
		if err != nil {
			return nil, err
		}
		err = c.core.Machine.RejectGate(ctx,
			args.Get("project_id").String(), gt,
			args.Get("actor").String(), args.Get("reason").String())
		return map[string]bool{"rejected": err == nil}, err
	})

	c.registry.Register(Tool{
		Name: "gate_skip", Group: "gates",
		Description: "Skip the design gate for API-only projects",
		Required:    []string{"project_id", "gate", "actor"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		gt, err := gate.ParseType(args.Get("gate").String())
		if err != nil {
			return nil, err
		}
		err = c.core.Machine.SkipGate(ctx,
			args.Get("project_id").String(), gt,
			args.Get("actor").String(), args.Get("reason").String())
		return map[string]bool{"skipped": err == nil}, err
	})
}

func (c *Catalog) registerSpecTools() {
	c.registry.Register(Tool{
		Name: "spec_register", Group: "specs",
		Description: "Register a machine-readable spec with its checksum",
		Required:    []string{"project_id", "spec_type", "path"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Specs.Register(ctx,
			args.Get("project_id").String(),
			args.Get("spec_type").String(),
			args.Get("path").String(),
			[]byte(args.Get("content").String()))
	})

	c.registry.Register(Tool{
		Name: "spec_list", Group: "specs",
		Description: "List spec registrations for a project",
		Required:    []string{"project_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Specs.List(ctx, args.Get("project_id").String())
	})
}

func (c *Catalog) registerTaskTools() {
	c.registry.Register(Tool{
		Name: "task_enqueue", Group: "task",
		Description: "Enqueue a task with dependencies and spec refs",
		Required:    []string{"project_id", "task_type", "worker_category"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Queue.Enqueue(ctx, args.Get("project_id").String(), queue.EnqueueRequest{
			TaskType:       args.Get("task_type").String(),
			Priority:       args.Get("priority").String(),
			WorkerCategory: args.Get("worker_category").String(),
			Description:    args.Get("description").String(),
			DependsOn:      strs(args, "depends_on"),
			GateDependency: args.Get("gate_dependency").String(),
			SpecRefs:       strs(args, "spec_refs"),
			MaxAttempts:    int(args.Get("max_attempts").Int()),
		})
	})

	c.registry.Register(Tool{
		Name: "task_dequeue", Group: "task",
		Description: "Dequeue the next runnable task for a worker (null when none)",
		Required:    []string{"project_id", "worker_id", "category"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Queue.Dequeue(ctx,
			args.Get("project_id").String(),
			args.Get("worker_id").String(),
			args.Get("category").String())
	})

	c.registry.Register(Tool{
		Name: "task_complete", Group: "task",
		Description: "Record a task outcome (complete or failed)",
		Required:    []string{"project_id", "task_id", "worker_id", "outcome"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		err := c.core.Queue.Complete(ctx,
			args.Get("project_id").String(),
			args.Get("task_id").String(),
			args.Get("worker_id").String(),
			args.Get("outcome").String(),
			args.Get("output").String(),
			args.Get("error").String())
		return map[string]bool{"ok": err == nil}, err
	})

	c.registry.Register(Tool{
		Name: "task_retry", Group: "task",
		Description: "Retry a failed task with promoted priority",
		Required:    []string{"project_id", "task_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Queue.Retry(ctx,
			args.Get("project_id").String(), args.Get("task_id").String())
	})

	c.registry.Register(Tool{
		Name: "task_history", Group: "task",
		Description: "Get the event history of one task",
		Required:    []string{"project_id", "task_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Queue.History(ctx,
			args.Get("project_id").String(), args.Get("task_id").String())
	})

	c.registry.Register(Tool{
		Name: "task_purge", Group: "task",
		Description: "Purge all tasks for a project",
		Required:    []string{"project_id", "actor"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		count, err := c.core.Queue.Purge(ctx,
			args.Get("project_id").String(), args.Get("actor").String())
		return map[string]int64{"purged": count}, err
	})
}

func (c *Catalog) registerWorkerTools() {
	c.registry.Register(Tool{
		Name: "worker_register", Group: "workers",
		Description: "Register a worker with its category and capabilities",
		Required:    []string{"worker_id", "category"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Workers.Register(ctx,
			args.Get("worker_id").String(),
			args.Get("category").String(),
			strs(args, "capabilities"))
	})

	c.registry.Register(Tool{
		Name: "worker_list", Group: "workers",
		Description: "List registered workers",
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Workers.List(ctx)
	})
}

func (c *Catalog) registerProofTools() {
	c.registry.Register(Tool{
		Name: "proof_submit", Group: "proof-artifact",
		Description: "Submit a proof artifact; its SHA-256 becomes authoritative",
		Required:    []string{"project_id", "gate", "proof_type", "file_path", "pass_fail"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		gt, err := gate.ParseType(args.Get("gate").String())
		if err != nil {
			return nil, err
		}
		id, err := c.core.Proofs.Submit(ctx, proof.SubmitRequest{
			ProjectID:      args.Get("project_id").String(),
			Gate:           gt,
			ProofType:      args.Get("proof_type").String(),
			FilePath:       args.Get("file_path").String(),
			ContentSummary: args.Get("content_summary").String(),
			PassFail:       args.Get("pass_fail").String(),
			CreatedBy:      args.Get("created_by").String(),
		})
		return map[string]string{"artifact_id": id}, err
	})

	c.registry.Register(Tool{
		Name: "proof_verify", Group: "proof-artifact",
		Description: "Recompute a proof's hash and compare with the stored one",
		Required:    []string{"artifact_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Proofs.Verify(ctx, args.Get("artifact_id").String())
	})

	c.registry.Register(Tool{
		Name: "proof_report", Group: "proof-artifact",
		Description: "Generate the markdown proof report for a project",
		Required:    []string{"project_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		report, err := c.core.Proofs.GenerateReport(ctx, args.Get("project_id").String())
		return map[string]string{"report": report}, err
	})
}

func (c *Catalog) registerSpawnTools() {
	c.registry.Register(Tool{
		Name: "agent_spawn", Group: "agent-spawn",
		Description: "Record an agent spawn for a gate",
		Required:    []string{"project_id", "agent", "gate"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		gt, err := gate.ParseType(args.Get("gate").String())
		if err != nil {
			return nil, err
		}
		id, err := c.core.Spawns.RecordSpawn(ctx,
			args.Get("project_id").String(),
			args.Get("agent").String(), gt,
			args.Get("task_description").String())
		return map[string]string{"spawn_id": id}, err
	})

	c.registry.Register(Tool{
		Name: "agent_start", Group: "agent-spawn",
		Description: "Mark a spawned agent as running",
		Required:    []string{"spawn_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		err := c.core.Spawns.MarkStarted(ctx, args.Get("spawn_id").String())
		return map[string]bool{"ok": err == nil}, err
	})

	c.registry.Register(Tool{
		Name: "agent_complete", Group: "agent-spawn",
		Description: "Complete an agent spawn with its result and token usage",
		Required:    []string{"spawn_id", "status"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		var usage *spawn.TokenUsage
		if u := args.Get("token_usage"); u.Exists() {
			usage = &spawn.TokenUsage{
				Model:        u.Get("model").String(),
				InputTokens:  u.Get("input_tokens").Int(),
				OutputTokens: u.Get("output_tokens").Int(),
			}
		}
		err := c.core.Spawns.CompleteSpawn(ctx,
			args.Get("spawn_id").String(),
			args.Get("status").String(),
			args.Get("result_summary").String(),
			strs(args, "proof_artifact_ids"), usage)
		return map[string]bool{"ok": err == nil}, err
	})

	c.registry.Register(Tool{
		Name: "agent_validate_gate", Group: "enforcement-tracking",
		Description: "Check the required-agent contract before presenting a gate",
		Required:    []string{"project_id", "gate"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		gt, err := gate.ParseType(args.Get("gate").String())
		if err != nil {
			return nil, err
		}
		return c.core.Spawns.ValidateForGate(ctx, args.Get("project_id").String(), gt)
	})

	c.registry.Register(Tool{
		Name: "agent_validate_work", Group: "enforcement-tracking",
		Description: "Hard-stop check before doing gate work directly",
		Required:    []string{"project_id", "gate", "intended_action"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		gt, err := gate.ParseType(args.Get("gate").String())
		if err != nil {
			return nil, err
		}
		return c.core.Spawns.ValidateBeforeGateWork(ctx,
			args.Get("project_id").String(), gt,
			args.Get("intended_action").String())
	})

	c.registry.Register(Tool{
		Name: "spawn_conflicts", Group: "agent-spawn",
		Description: "Check path-ownership conflicts for a parallel spawn set",
		Required:    []string{"agents"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		var ownerships []spawn.AgentOwnership
		for _, a := range args.Get("agents").Array() {
			ownerships = append(ownerships, spawn.AgentOwnership{
				AgentName:     a.Get("agent").String(),
				FileOwnership: strs(a, "file_ownership"),
			})
		}
		return spawn.CheckParallelSpawnConflicts(ownerships), nil
	})
}

func (c *Catalog) registerDocumentTools() {
	c.registry.Register(Tool{
		Name: "document_save", Group: "document",
		Description: "Store a new document version (append-only)",
		Required:    []string{"project_id", "doc_type", "content"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Documents.Save(ctx,
			args.Get("project_id").String(),
			args.Get("doc_type").String(),
			args.Get("content").String(),
			args.Get("created_by").String())
	})

	c.registry.Register(Tool{
		Name: "document_latest", Group: "document",
		Description: "Get the newest version of a document type",
		Required:    []string{"project_id", "doc_type"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Documents.Latest(ctx,
			args.Get("project_id").String(), args.Get("doc_type").String())
	})

	c.registry.Register(Tool{
		Name: "change_request_append", Group: "document",
		Description: "Append an entry to the change request log",
		Required:    []string{"project_id", "author", "message"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		err := c.core.Documents.AppendChangeRequest(ctx,
			args.Get("project_id").String(),
			args.Get("gate").String(),
			args.Get("author").String(),
			args.Get("message").String())
		return map[string]bool{"ok": err == nil}, err
	})
}

func (c *Catalog) registerAssessmentTools() {
	c.registry.Register(Tool{
		Name: "assessment_start", Group: "validation",
		Description: "Start a parallel assessment session",
		Required:    []string{"project_id", "agents"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		id, err := c.core.Assess.Start(ctx,
			args.Get("project_id").String(), strs(args, "agents"))
		return map[string]string{"session_id": id}, err
	})

	c.registry.Register(Tool{
		Name: "assessment_submit", Group: "validation",
		Description: "Submit one evaluator's score and findings",
		Required:    []string{"project_id", "agent"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		metrics := map[string]float64{}
		args.Get("metrics").ForEach(func(k, v gjson.Result) bool {
			metrics[k.String()] = v.Float()
			return true
		})
		err := c.core.Assess.SubmitResult(ctx,
			args.Get("project_id").String(),
			args.Get("agent").String(),
			args.Get("score").Float(),
			assess.Findings{
				Strengths:       strs(args, "findings.strengths"),
				Weaknesses:      strs(args, "findings.weaknesses"),
				Recommendations: strs(args, "findings.recommendations"),
			}, metrics,
			args.Get("details").String())
		return map[string]bool{"ok": err == nil}, err
	})

	c.registry.Register(Tool{
		Name: "assessment_aggregate", Group: "validation",
		Description: "Aggregate a completed or expired assessment session",
		Required:    []string{"project_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Assess.Aggregate(ctx, args.Get("project_id").String())
	})
}

func (c *Catalog) registerStateTools() {
	c.registry.Register(Tool{
		Name: "state_get", Group: "state",
		Description: "Get the derived project snapshot",
		Required:    []string{"project_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Truth.GetState(ctx, args.Get("project_id").String())
	})

	c.registry.Register(Tool{
		Name: "event_log", Group: "state",
		Description: "Query the project event log",
		Required:    []string{"project_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Truth.GetEventLog(ctx, args.Get("project_id").String(),
			db.QueryEventsOptions{
				Types:    strs(args, "types"),
				Gate:     args.Get("gate").String(),
				TaskID:   args.Get("task_id").String(),
				AfterSeq: args.Get("after_seq").Int(),
				Limit:    int(args.Get("limit").Int()),
			})
	})

	c.registry.Register(Tool{
		Name: "event_stats", Group: "state",
		Description: "Get event counts by type and actor",
		Required:    []string{"project_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return c.core.Truth.GetEventLogStats(ctx, args.Get("project_id").String())
	})

	c.registry.Register(Tool{
		Name: "cost_summary", Group: "cost",
		Description: "Summarize token spend for a project",
		Required:    []string{"project_id"},
	}, func(ctx context.Context, args gjson.Result) (any, error) {
		return db.SummarizeCost(ctx, c.core.Truth.DB(), args.Get("project_id").String())
	})
}
