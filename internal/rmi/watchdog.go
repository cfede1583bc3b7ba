package rmi

import (
	"fmt"
	"log/slog"
	"time"
)

// Watchdog arms a deadline per outstanding invocation and forces a
// timeout-kind failure on the owning task when no reply arrives in
// time. Resolution goes through the pending set's atomic remove, so a
// reply that loses the race to the watchdog (or vice versa) is dropped:
// every invocation resolves exactly once.
type Watchdog struct {
	pending   *pendingSet
	completer Completer
	logger    *slog.Logger
}

func newWatchdog(pending *pendingSet, completer Completer, logger *slog.Logger) *Watchdog {
	return &Watchdog{
		pending:   pending,
		completer: completer,
		logger:    logger.With("component", "rmi_watchdog"),
	}
}

// arm starts the deadline timer for an invocation already in the
// pending set.
func (w *Watchdog) arm(inv *pendingInvocation, timeout time.Duration) {
	sn := inv.sn
	inv.timer = time.AfterFunc(timeout, func() { w.expire(sn, timeout) })
}

// expire resolves a still-outstanding invocation as a timeout failure.
func (w *Watchdog) expire(sn string, timeout time.Duration) {
	inv, ok := w.pending.resolve(sn)
	if !ok {
		// A reply won the race; nothing to do.
		return
	}

	w.logger.Warn("no reply before watchdog deadline",
		"sn", sn,
		"agent_id", inv.agentID,
		"task_id", inv.taskID,
		"timeout", timeout)

	message := fmt.Sprintf("no reply from agent %s within %s", inv.agentID, timeout)
	if !w.completer.Failed(inv.taskID, message, "") {
		w.logger.Warn("task not found for expired invocation, dropping",
			"sn", sn, "task_id", inv.taskID)
	}
}
