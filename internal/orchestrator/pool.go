package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/queue"
	"github.com/foundrydev/foundry/internal/runtime"
)

// Executor runs one dequeued task and returns its output.
type Executor func(ctx context.Context, task *db.TaskRow) (string, error)

// Pool runs a fixed set of workers that poll the task queue across all
// incomplete projects. Worker identities are registered in the worker
// registry so the truth store reflects who is doing what.
type Pool struct {
	core     *Core
	size     int
	poll     time.Duration
	executor Executor
	logger   *slog.Logger
}

// NewPool creates a worker pool. One worker each handles the planning
// and validation categories; the rest generate.
func NewPool(core *Core, size int, poll time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}
	p := &Pool{
		core:   core,
		size:   size,
		poll:   poll,
		logger: core.logger,
	}
	p.executor = p.defaultExecutor
	return p
}

// SetExecutor replaces the task executor. Must be called before Start.
func (p *Pool) SetExecutor(exec Executor) {
	p.executor = exec
}

// workerSpecs assigns categories to the pool's workers.
func (p *Pool) workerSpecs() []struct{ id, category string } {
	specs := make([]struct{ id, category string }, 0, p.size)
	for i := 0; i < p.size; i++ {
		category := "generation"
		switch {
		case i == 0 && p.size > 1:
			category = "planning"
		case i == 1 && p.size > 2:
			category = "validation"
		}
		specs = append(specs, struct{ id, category string }{
			id:       fmt.Sprintf("worker-%s-%d", category, i),
			category: category,
		})
	}
	return specs
}

// Start registers the workers and launches their poll loops.
func (p *Pool) Start(ctx context.Context, wg *sync.WaitGroup) {
	for _, spec := range p.workerSpecs() {
		if _, err := p.core.Workers.Register(ctx, spec.id, spec.category, nil); err != nil {
			p.logger.Error("failed to register worker",
				"worker", spec.id, "error", err)
			continue
		}
		wg.Add(1)
		go func(id, category string) {
			defer wg.Done()
			p.run(ctx, id, category)
		}(spec.id, spec.category)
	}
}

// run is one worker's poll loop.
func (p *Pool) run(ctx context.Context, workerID, category string) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := p.core.Workers.Deregister(context.WithoutCancel(ctx), workerID); err != nil {
				p.logger.Warn("failed to deregister worker",
					"worker", workerID, "error", err)
			}
			return
		case <-ticker.C:
			p.tick(ctx, workerID, category)
		}
	}
}

// tick tries one dequeue-execute cycle across all incomplete projects.
func (p *Pool) tick(ctx context.Context, workerID, category string) {
	projects, err := db.ListProjects(ctx, p.core.Truth.DB())
	if err != nil {
		p.logger.Error("worker failed to list projects",
			"worker", workerID, "error", err)
		return
	}
	for _, project := range projects {
		if project.Complete {
			continue
		}
		task, err := p.core.Queue.Dequeue(ctx, project.ID, workerID, category)
		if err != nil {
			p.logger.Error("dequeue failed",
				"worker", workerID, "project", project.ID, "error", err)
			continue
		}
		if task == nil {
			continue
		}
		p.execute(ctx, workerID, task)
		return
	}
}

// execute runs one task and records the outcome.
func (p *Pool) execute(ctx context.Context, workerID string, task *db.TaskRow) {
	if err := p.core.Workers.MarkActive(ctx, workerID, task.ID); err != nil {
		p.logger.Warn("failed to mark worker active",
			"worker", workerID, "task", task.ID, "error", err)
	}

	output, execErr := p.executor(ctx, task)

	outcome := queue.StatusComplete
	errMsg := ""
	if execErr != nil {
		outcome = queue.StatusFailed
		errMsg = execErr.Error()
		p.logger.Warn("task execution failed",
			"worker", workerID, "task", task.ID, "error", execErr)
	}

	if err := p.core.Queue.Complete(ctx, task.ProjectID, task.ID, workerID, outcome, output, errMsg); err != nil {
		p.logger.Error("failed to record task outcome",
			"worker", workerID, "task", task.ID, "error", err)
	}
	if err := p.core.Workers.MarkIdle(ctx, workerID, execErr == nil); err != nil {
		p.logger.Warn("failed to mark worker idle",
			"worker", workerID, "error", err)
	}
}

// defaultExecutor runs the task description through the agent runtime.
// Without a runtime the task completes with empty output, which keeps
// read-only deployments functional.
func (p *Pool) defaultExecutor(ctx context.Context, task *db.TaskRow) (string, error) {
	if p.core.Bridge == nil {
		return "", nil
	}
	execID, err := p.core.Bridge.Execute(ctx, runtime.Request{
		Model: p.core.cfg.Runtime.DefaultModel,
		SystemPrompt: fmt.Sprintf(
			"You are a %s worker in a gated product workflow. Complete the task and report the result.",
			task.WorkerCategory),
		UserPrompt: task.Description,
		MaxTokens:  p.core.cfg.Runtime.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	result, err := p.core.Bridge.Await(ctx, execID)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}
