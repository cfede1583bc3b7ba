package rmi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Completer receives resolved invocation outcomes. It is implemented by
// the task queue: success and failure feed the owning task's terminal
// transition. Both return false when no running task has the given id,
// in which case the bridge logs and drops the outcome.
type Completer interface {
	Succeeded(id uuid.UUID, result any) bool
	Failed(id uuid.UUID, message, traceback string) bool
}

// CallSpec describes one remote invocation: the target agent, the
// remote class and method to run, the arguments, and the invoking
// task's id carried as the correlation payload.
type CallSpec struct {
	AgentID string
	Class   string
	Method  string
	Args    []any
	TaskID  uuid.UUID

	// Timeout overrides the bridge's default watchdog deadline.
	Timeout time.Duration
}

// pendingInvocation associates a correlation tag with the task waiting
// on its reply. Exactly one outcome is ever delivered: resolving the
// invocation removes it from the set atomically, so a reply and the
// watchdog can race safely.
type pendingInvocation struct {
	sn       string
	taskID   uuid.UUID
	agentID  string
	issuedAt time.Time
	timer    *time.Timer
}

// pendingSet is the registry of outstanding invocations keyed by serial
// number.
type pendingSet struct {
	mu sync.Mutex
	m  map[string]*pendingInvocation
}

func newPendingSet() *pendingSet {
	return &pendingSet{m: make(map[string]*pendingInvocation)}
}

func (p *pendingSet) add(inv *pendingInvocation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[inv.sn] = inv
}

// resolve removes and returns the invocation, stopping its watchdog
// timer. The second return is false when the invocation was already
// resolved (or never existed), which is how exactly-once is enforced.
func (p *pendingSet) resolve(sn string) (*pendingInvocation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inv, ok := p.m[sn]
	if !ok {
		return nil, false
	}
	delete(p.m, sn)
	if inv.timer != nil {
		inv.timer.Stop()
	}
	return inv, true
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// BridgeConfig holds the bridge settings.
type BridgeConfig struct {
	// DefaultTimeout is the watchdog deadline applied to calls that do
	// not set their own.
	DefaultTimeout time.Duration
}

// Bridge publishes invocations to agents and resolves their replies
// back into task outcomes. A single Bridge serves every task in the
// process; it owns the pending-invocation registry, the reply consumer,
// and the watchdog.
type Bridge struct {
	bus       MessageBus
	completer Completer
	cfg       BridgeConfig
	logger    *slog.Logger

	pending  *pendingSet
	watchdog *Watchdog
	consumer *ReplyConsumer

	seq    atomic.Uint64
	closed atomic.Bool
}

// NewBridge creates a bridge over the given bus, delivering outcomes to
// the given completer.
func NewBridge(bus MessageBus, completer Completer, cfg BridgeConfig, logger *slog.Logger) *Bridge {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Minute
	}

	log := logger.With("component", "rmi_bridge")
	pending := newPendingSet()
	return &Bridge{
		bus:       bus,
		completer: completer,
		cfg:       cfg,
		logger:    log,
		pending:   pending,
		watchdog:  newWatchdog(pending, completer, log),
		consumer:  newReplyConsumer(bus, pending, completer, log),
	}
}

// Start begins consuming replies on the fixed reply tag queue. The
// consumer runs until ctx is canceled.
func (b *Bridge) Start(ctx context.Context) error {
	return b.consumer.start(ctx)
}

// Stop closes the bridge to new calls. Outstanding invocations still
// resolve through their watchdog deadlines.
func (b *Bridge) Stop() {
	b.closed.Store(true)
}

// Call publishes an invocation to the agent's queue and registers the
// correlation context before the message leaves, so a fast reply can
// never race its own registration. Returns the invocation serial number.
//
// The call is fire-and-forget from the caller's perspective: the
// outcome arrives later through the Completer, or as a watchdog timeout
// failure if the agent never replies.
func (b *Bridge) Call(ctx context.Context, spec CallSpec) (string, error) {
	if b.closed.Load() {
		return "", ErrBridgeClosed
	}
	if spec.AgentID == "" || spec.Method == "" || spec.TaskID == uuid.Nil {
		return "", fmt.Errorf("%w: agent=%q method=%q task=%s",
			ErrInvalidCall, spec.AgentID, spec.Method, spec.TaskID)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = b.cfg.DefaultTimeout
	}

	sn := fmt.Sprintf("%s:%d:%s", spec.TaskID, b.seq.Add(1), ReplyTag)
	env := Envelope{
		SN:      sn,
		Kind:    KindRequest,
		ReplyTo: ReplyTag,
		Any:     spec.TaskID.String(),
		Class:   spec.Class,
		Method:  spec.Method,
		Args:    spec.Args,
		SentAt:  time.Now().UTC(),
	}

	inv := &pendingInvocation{
		sn:       sn,
		taskID:   spec.TaskID,
		agentID:  spec.AgentID,
		issuedAt: time.Now(),
	}
	b.pending.add(inv)
	b.watchdog.arm(inv, timeout)

	if err := b.bus.Publish(ctx, AgentQueue(spec.AgentID), env); err != nil {
		// Unregister so the watchdog doesn't later fail the task for a
		// call that never left.
		b.pending.resolve(sn)
		return "", fmt.Errorf("failed to publish invocation to agent %s: %w", spec.AgentID, err)
	}

	b.logger.Debug("invocation published",
		"sn", sn,
		"agent_id", spec.AgentID,
		"class", spec.Class,
		"method", spec.Method,
		"task_id", spec.TaskID,
		"timeout", timeout)
	return sn, nil
}

// Outstanding reports the number of unresolved invocations.
func (b *Bridge) Outstanding() int {
	return b.pending.len()
}

// Agent returns a handle for issuing calls to one remote agent.
func (b *Bridge) Agent(id string) *Agent {
	return &Agent{bridge: b, id: id}
}

// Agent is a per-agent convenience wrapper around Bridge.Call. It keeps
// the "call anything the agent exposes" flexibility through explicit
// class/method strings resolved by the agent's dispatch table.
type Agent struct {
	bridge *Bridge
	id     string
}

// ID returns the remote agent's identifier.
func (a *Agent) ID() string { return a.id }

// Invoke issues a remote method call on behalf of the given task.
func (a *Agent) Invoke(ctx context.Context, taskID uuid.UUID, class, method string, args ...any) (string, error) {
	return a.bridge.Call(ctx, CallSpec{
		AgentID: a.id,
		Class:   class,
		Method:  method,
		Args:    args,
		TaskID:  taskID,
	})
}
