package rmi

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Kind discriminates bus envelopes.
type Kind string

// Envelope kinds: a request addressed to an agent, and the two reply
// flavors an agent sends back.
const (
	KindRequest   Kind = "request"
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
)

// ReplyTag is the fixed consumer tag whose queue carries every task
// reply; its value is part of each invocation's correlation tag.
const ReplyTag = "quarry.task"

// AgentQueue returns the bus queue an agent consumes requests from.
func AgentQueue(agentID string) string {
	return "agent." + agentID
}

// Envelope is the wire message exchanged with agents. Requests carry
// the target class/method and arguments; replies carry the outcome and
// echo the serial number and correlation payload of the request.
type Envelope struct {
	// SN is the invocation serial number: task id + per-call sequence +
	// the fixed reply tag. Replies echo it verbatim.
	SN string `json:"sn"`

	Kind Kind `json:"kind"`

	// ReplyTo names the queue the agent must send the reply to.
	ReplyTo string `json:"reply_to,omitempty"`

	// Any is the opaque correlation payload: the invoking task's id.
	Any string `json:"any,omitempty"`

	Class  string `json:"class,omitempty"`
	Method string `json:"method,omitempty"`
	Args   []any  `json:"args,omitempty"`

	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Traceback string `json:"traceback,omitempty"`

	SentAt time.Time `json:"sent_at"`
}

// MessageBus abstracts the transport the bridge publishes invocations
// on and consumes replies from. Implementations must deliver each
// published envelope to at most one consumer of the queue.
type MessageBus interface {
	// Publish appends the envelope to the named queue.
	Publish(ctx context.Context, queue string, env Envelope) error

	// Consume returns a channel of envelopes from the named queue. The
	// channel is closed when ctx is canceled.
	Consume(ctx context.Context, queue string) (<-chan Envelope, error)
}

// MemoryBus is an in-process MessageBus used by tests and by the
// degraded no-broker mode. Queues are created lazily with a fixed
// buffer; publishing to a full queue fails rather than blocks.
type MemoryBus struct {
	mu     sync.Mutex
	queues map[string]chan Envelope
}

// memoryBusBuffer bounds each in-process queue.
const memoryBusBuffer = 128

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{queues: make(map[string]chan Envelope)}
}

func (m *MemoryBus) queue(name string) chan Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.queues[name]
	if !ok {
		ch = make(chan Envelope, memoryBusBuffer)
		m.queues[name] = ch
	}
	return ch
}

// Publish appends the envelope to the named in-process queue.
func (m *MemoryBus) Publish(_ context.Context, queue string, env Envelope) error {
	select {
	case m.queue(queue) <- env:
		return nil
	default:
		return fmt.Errorf("bus queue %q is full", queue)
	}
}

// Consume returns envelopes from the named queue until ctx is canceled.
func (m *MemoryBus) Consume(ctx context.Context, queue string) (<-chan Envelope, error) {
	src := m.queue(queue)
	out := make(chan Envelope)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-src:
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var _ MessageBus = (*MemoryBus)(nil)
