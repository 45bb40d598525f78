// Package event implements the typed, fan-out Event Bus (spec §4.1): a
// single-publisher-per-source, multi-subscriber broadcast of execution
// progress. Subscribers are synchronous observers or async consumers; a
// slow subscriber never blocks the emitter — its queue drops the oldest
// pending event first once full.
package event

import (
	"context"
	"sync"
)

// Variant discriminates the payload carried by an Event, mirroring the
// variant listed in spec §3.1.
type Variant int

const (
	VariantStarted Variant = iota
	VariantChunk
	VariantKind
	VariantUsage
	VariantFinished
)

// ChunkKind classifies the payload of a Chunk event: plain text, a
// reasoning-summary delta, a classified structured-output kind (text, sql,
// table), or a semantic-query artifact.
type ChunkKind int

const (
	ChunkText ChunkKind = iota
	ChunkReasoningOpen
	ChunkReasoningDelta
	ChunkReasoningClose
	ChunkSQL
	ChunkTable
	ChunkSemanticQuery
)

// Chunk is a single delta of streamed output, keyed so a subscriber can
// correlate deltas belonging to the same logical output (e.g. the
// assistant's content key vs. a reasoning-summary block id).
type Chunk struct {
	Key      string
	Kind     ChunkKind
	Delta    string
	Payload  any // set when Kind requires a structured value (table ref, semantic query artifact)
	Finished bool
}

// Usage carries token accounting for one LLM turn.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Started announces the beginning of a named unit of work (workflow, task,
// agent turn, semantic query) together with free-form attributes.
type Started struct {
	Name  string
	Attrs map[string]string
}

// Finished announces completion, successful or not.
type Finished struct {
	Message string
	Attrs   map[string]string
	Err     error
}

// Kind carries one of the engine's named lifecycle events (TaskStarted,
// ExecuteSQL, Formatter, Agent, SubWorkflow, TaskUnknown, CacheHit,
// CacheWrite, CacheWriteFailed, ...). The emitting package (workflow,
// agentloop, ...) chooses the Name and Attrs; the bus itself is agnostic
// to them.
type Kind struct {
	Name  string
	Attrs map[string]any
}

// Event is the envelope delivered to every subscriber. Exactly one of the
// payload fields is populated, selected by Variant.
type Event struct {
	Source   []string
	Variant  Variant
	Started  *Started
	Chunk    *Chunk
	KindData *Kind
	Usage    *Usage
	Finished *Finished
}

// Subscriber receives events. Handle must not block for long; the Bus
// isolates a Subscriber's own errors (they are never surfaced to the
// emitter) but does not isolate it from slow processing beyond the
// per-subscriber watermark.
type Subscriber interface {
	Handle(ctx context.Context, ev Event)
}

// SubscriberFunc adapts a plain function to Subscriber.
type SubscriberFunc func(ctx context.Context, ev Event)

func (f SubscriberFunc) Handle(ctx context.Context, ev Event) { f(ctx, ev) }

const defaultWatermark = 256

type subscription struct {
	sub   Subscriber
	queue chan Event
	done  chan struct{}
}

// Bus is the process-wide fan-out sink. The zero value is not usable; use
// New.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscription
	watermark   int
	logger      func(msg string, args ...any)
}

// New creates a Bus. watermark <= 0 uses the default per-subscriber queue
// depth.
func New(watermark int) *Bus {
	if watermark <= 0 {
		watermark = defaultWatermark
	}
	return &Bus{watermark: watermark}
}

// Subscribe registers a subscriber and starts its delivery goroutine.
// Returns an Unsubscribe func.
func (b *Bus) Subscribe(ctx context.Context, sub Subscriber) (unsubscribe func()) {
	s := &subscription{sub: sub, queue: make(chan Event, b.watermark), done: make(chan struct{})}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()

	go func() {
		defer close(s.done)
		for {
			select {
			case ev, ok := <-s.queue:
				if !ok {
					return
				}
				b.deliver(ctx, s, ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subscribers {
			if sub == s {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				close(s.queue)
				break
			}
		}
	}
}

// deliver isolates a subscriber's panics/errors: Handle is expected to
// report its own errors; the Bus only guards against a panic taking down
// the delivery goroutine.
func (b *Bus) deliver(ctx context.Context, s *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger("event subscriber panicked", "recovered", r)
		}
	}()
	s.sub.Handle(ctx, ev)
}

// publish fans an event out to every subscriber, dropping the oldest queued
// event for a subscriber whose queue is full rather than blocking.
func (b *Bus) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subscribers {
		for {
			select {
			case s.queue <- ev:
			default:
				select {
				case <-s.queue:
				default:
				}
				continue
			}
			break
		}
	}
}

// Source is a handle bound to one emitter's position in the source-path
// tree. Child sources are created with Child, never mutate the parent.
type Source struct {
	bus  *Bus
	path []string
}

// Root returns a Source bound to bus with an empty path.
func (b *Bus) Root() Source { return Source{bus: b, path: nil} }

// Path returns the emitter's source path.
func (s Source) Path() []string { return append([]string(nil), s.path...) }

// Child appends a segment, producing a fresh Source for a nested executor.
func (s Source) Child(segment string) Source {
	child := make([]string, len(s.path)+1)
	copy(child, s.path)
	child[len(child)-1] = segment
	return Source{bus: s.bus, path: child}
}

// WriteStarted emits a Started event fire-and-forget.
func (s Source) WriteStarted(name string, attrs map[string]string) {
	s.bus.publish(Event{Source: s.Path(), Variant: VariantStarted, Started: &Started{Name: name, Attrs: attrs}})
}

// WriteChunk emits a Chunk event fire-and-forget.
func (s Source) WriteChunk(c Chunk) {
	s.bus.publish(Event{Source: s.Path(), Variant: VariantChunk, Chunk: &c})
}

// WriteKind emits a named lifecycle event.
func (s Source) WriteKind(k Kind) {
	s.bus.publish(Event{Source: s.Path(), Variant: VariantKind, KindData: &k})
}

// WriteUsage emits a Usage event.
func (s Source) WriteUsage(u Usage) {
	s.bus.publish(Event{Source: s.Path(), Variant: VariantUsage, Usage: &u})
}

// WriteFinished emits a Finished event.
func (s Source) WriteFinished(message string, attrs map[string]string, err error) {
	s.bus.publish(Event{Source: s.Path(), Variant: VariantFinished, Finished: &Finished{Message: message, Attrs: attrs, Err: err}})
}
