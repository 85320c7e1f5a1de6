package orchestrator

import (
	"context"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
)

// CheckAndRetryStuckGate re-queues failed tasks that still have
// attempts left, with promoted priority. A gate whose agents all
// failed permanently stays stuck and needs human action; everything
// retryable gets another run. Returns the number of tasks re-queued.
func (c *Core) CheckAndRetryStuckGate(ctx context.Context, projectID string) (int, error) {
	failed, err := db.ListTasks(ctx, c.Truth.DB(), projectID, "failed")
	if err != nil {
		return 0, errors.Upstream("list failed tasks", err)
	}

	retried := 0
	for _, t := range failed {
		if t.Attempts >= t.MaxAttempts {
			continue
		}
		if _, err := c.Queue.Retry(ctx, projectID, t.ID); err != nil {
			c.logger.Warn("failed to retry stuck task",
				"project", projectID, "task", t.ID, "error", err)
			continue
		}
		retried++
	}
	if retried == 0 {
		return 0, nil
	}

	_, err = c.Truth.AppendEvent(ctx, projectID,
		events.New(events.TypeSelfHealing, projectID, "orchestrator", events.Payload{
			"action":        "retry_stuck_tasks",
			"retried_count": retried,
		}))
	if err != nil {
		return retried, err
	}

	c.logger.Info("stuck tasks re-queued", "project", projectID, "count", retried)
	return retried, nil
}
