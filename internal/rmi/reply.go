package rmi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ReplyConsumer is the long-lived listener on the fixed reply tag
// queue. Each reply is matched against the pending set by serial
// number; matched replies feed the owning task's success or failure
// path, while unknown or late replies are logged and discarded.
type ReplyConsumer struct {
	bus       MessageBus
	pending   *pendingSet
	completer Completer
	logger    *slog.Logger
}

func newReplyConsumer(bus MessageBus, pending *pendingSet, completer Completer, logger *slog.Logger) *ReplyConsumer {
	return &ReplyConsumer{
		bus:       bus,
		pending:   pending,
		completer: completer,
		logger:    logger.With("component", "rmi_reply_consumer"),
	}
}

// start subscribes to the reply queue and consumes until ctx is canceled.
func (c *ReplyConsumer) start(ctx context.Context) error {
	ch, err := c.bus.Consume(ctx, ReplyTag)
	if err != nil {
		return fmt.Errorf("failed to consume reply queue %q: %w", ReplyTag, err)
	}

	go func() {
		c.logger.Info("task reply consumer started", "queue", ReplyTag)
		for env := range ch {
			c.handle(env)
		}
		c.logger.Info("task reply consumer stopped")
	}()
	return nil
}

// handle resolves one reply envelope.
func (c *ReplyConsumer) handle(env Envelope) {
	if env.Kind != KindSucceeded && env.Kind != KindFailed {
		c.logger.Warn("ignoring non-reply envelope on reply queue",
			"sn", env.SN, "kind", env.Kind)
		return
	}

	inv, ok := c.pending.resolve(env.SN)
	if !ok {
		// Late (post-watchdog) or unknown reply. Dropping it is the
		// exactly-once guarantee at work, not an error.
		c.logger.Warn("dropping reply for unknown or expired invocation", "sn", env.SN)
		return
	}

	taskID := inv.taskID
	if env.Any != "" {
		parsed, err := uuid.Parse(env.Any)
		if err != nil {
			c.logger.Warn("reply carries malformed correlation payload, using registered task id",
				"sn", env.SN, "any", env.Any, "error", err)
		} else {
			taskID = parsed
		}
	}

	switch env.Kind {
	case KindSucceeded:
		c.logger.Info("remote invocation succeeded",
			"sn", env.SN, "task_id", taskID, "agent_id", inv.agentID)
		if !c.completer.Succeeded(taskID, env.Result) {
			c.logger.Warn("task not found for reply, dropping",
				"sn", env.SN, "task_id", taskID)
		}
	case KindFailed:
		c.logger.Info("remote invocation failed",
			"sn", env.SN, "task_id", taskID, "agent_id", inv.agentID, "error", env.Error)
		if !c.completer.Failed(taskID, env.Error, env.Traceback) {
			c.logger.Warn("task not found for reply, dropping",
				"sn", env.SN, "task_id", taskID)
		}
	}
}
