// Package orchestrator wires the workflow core together: the gate
// state machine, task queue, worker pool, spawn enforcer, proof
// ledger, and revision loop, all over one truth store. A single
// orchestrator instance is the sole writer of gate-status and
// spec-lock transitions.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foundrydev/foundry/internal/assess"
	"github.com/foundrydev/foundry/internal/config"
	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/document"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/proof"
	"github.com/foundrydev/foundry/internal/queue"
	"github.com/foundrydev/foundry/internal/revise"
	"github.com/foundrydev/foundry/internal/runtime"
	"github.com/foundrydev/foundry/internal/spawn"
	specreg "github.com/foundrydev/foundry/internal/spec"
	"github.com/foundrydev/foundry/internal/stream"
	"github.com/foundrydev/foundry/internal/truth"
	"github.com/foundrydev/foundry/internal/worker"
)

// Status represents the orchestrator status.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
)

// Core holds every workflow component over one truth store.
type Core struct {
	Truth     *truth.Store
	Publisher events.Publisher
	Machine   *gate.Machine
	Queue     *queue.Queue
	Workers   *worker.Registry
	Spawns    *spawn.Enforcer
	Proofs    *proof.Ledger
	Assess    *assess.Aggregator
	Documents *document.Manager
	Specs     *specreg.Registry
	Bridge    *stream.Bridge
	Revise    *revise.Loop

	cfg    *config.Config
	pool   *Pool
	logger *slog.Logger

	status Status
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) { c.logger = logger }
}

// New assembles the workflow core. The runtime may be nil when no
// execution is needed (read-only tooling); the pool then runs tasks
// with a no-op executor.
func New(store *truth.Store, pub events.Publisher, cfg *config.Config, rt runtime.AgentRuntime, opts ...Option) *Core {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Core{
		Truth:     store,
		Publisher: pub,
		cfg:       cfg,
		logger:    slog.Default(),
		status:    StatusStopped,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Proofs = proof.NewLedger(store, c.logger)
	c.Spawns = spawn.NewEnforcer(store, c.logger)
	c.Machine = gate.NewMachine(store,
		gate.WithProofChecker(c.Proofs),
		gate.WithSpawnChecker(c.Spawns),
		gate.WithLogger(c.logger))
	c.Queue = queue.New(store, queue.WithLogger(c.logger))
	c.Workers = worker.NewRegistry(store, c.logger)
	c.Assess = assess.NewAggregator(store,
		assess.WithExpiry(cfg.Assessment.Expiry),
		assess.WithLogger(c.logger))
	c.Documents = document.NewManager(store,
		document.WithRoot(cfg.WorkspaceRoot),
		document.WithLogger(c.logger))
	c.Specs = specreg.NewRegistry(store, c.logger)

	if rt != nil {
		c.Bridge = stream.NewBridge(rt, c.logger)
		c.Revise = revise.NewLoop(store, c.Documents, c.Bridge,
			revise.WithModel(cfg.Runtime.DefaultModel),
			revise.WithLogger(c.logger))
	}

	c.pool = NewPool(c, cfg.Orchestrator.MaxConcurrent, cfg.Orchestrator.PollInterval)
	return c
}

// CreateProject creates a project and its G1 gate. Creation is
// idempotent by id: an existing project is returned unchanged.
func (c *Core) CreateProject(ctx context.Context, id, name, owner string, apiOnly, aiML bool) (*db.ProjectRow, error) {
	if id == "" || owner == "" {
		return nil, errors.InvalidInput("project",
			errors.FieldIssue{Field: "id", Message: "id and owner are required"})
	}

	existing, err := db.GetProject(ctx, c.Truth.DB(), id)
	if err != nil {
		return nil, errors.Upstream("get project", err)
	}
	if existing != nil {
		return existing, nil
	}

	row := &db.ProjectRow{
		ID:          id,
		Name:        name,
		Owner:       owner,
		CurrentGate: string(gate.G1),
		APIOnly:     apiOnly,
		AIML:        aiML,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = c.Truth.AppendEvent(ctx, id,
		events.New(events.TypeProjectCreated, id, owner, nil).WithRecord(row))
	if err != nil {
		return nil, err
	}
	if err := c.Machine.Initialize(ctx, id, owner); err != nil {
		return nil, err
	}
	c.logger.Info("project created", "project", id, "owner", owner)
	return row, nil
}

// Start launches the background loops: the gate event loop that
// unblocks queued tasks on approvals, the stuck-gate scanner, and the
// worker pool.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusRunning {
		c.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.status = StatusRunning
	c.mu.Unlock()

	c.logger.Info("orchestrator started",
		"max_concurrent", c.cfg.Orchestrator.MaxConcurrent,
		"poll_interval", c.cfg.Orchestrator.PollInterval)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.gateEventLoop(ctx)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.stuckGateLoop(ctx)
	}()

	c.pool.Start(ctx, &c.wg)
	return nil
}

// Stop cancels the background loops and waits for them to drain.
func (c *Core) Stop() {
	c.mu.Lock()
	if c.status != StatusRunning {
		c.mu.Unlock()
		return
	}
	c.status = StatusStopped
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.logger.Info("orchestrator stopped")
}

// gateEventLoop tails the global event stream and releases gate
// blockers when a gate is approved.
func (c *Core) gateEventLoop(ctx context.Context) {
	if c.Publisher == nil {
		return
	}
	ch := c.Publisher.Subscribe(events.GlobalProjectID)
	defer c.Publisher.Unsubscribe(events.GlobalProjectID, ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Type != events.TypeGateApproved && e.Type != events.TypeGateSkipped {
				continue
			}
			gateType := e.Str("gate")
			if gateType == "" {
				continue
			}
			if err := c.Queue.OnGateApproved(ctx, e.ProjectID, gateType); err != nil {
				c.logger.Error("failed to release gate blockers",
					"project", e.ProjectID, "gate", gateType, "error", err)
			}
		}
	}
}

// stuckGateLoop periodically retries failing agents across all
// incomplete projects.
func (c *Core) stuckGateLoop(ctx context.Context) {
	interval := c.cfg.Orchestrator.StuckScanInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			projects, err := db.ListProjects(ctx, c.Truth.DB())
			if err != nil {
				c.logger.Error("stuck-gate scan failed to list projects", "error", err)
				continue
			}
			for _, p := range projects {
				if p.Complete {
					continue
				}
				if _, err := c.CheckAndRetryStuckGate(ctx, p.ID); err != nil {
					c.logger.Error("stuck-gate scan failed",
						"project", p.ID, "error", err)
				}
			}
		}
	}
}
