package a2aserver

import (
	"context"
	"strings"
	"time"

	"github.com/oxy-hq/oxy/internal/agentloop"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/llm"
)

// AgentHandler is the reference Handler implementation: it runs a message
// through an agent loop and reports progress back as Task updates or SSE
// events. HandleSendMessage returns as soon as the task is recorded
// Working; the caller polls tasks/get for completion.
type AgentHandler struct {
	BaseHandler
	Name    string
	Card    AgentCard
	Loop    *agentloop.Loop
	Project ctxtree.ProjectHandle
	Bus     *event.Bus
	Store   TaskStore
}

// NewAgentHandler builds a Handler backed by loop, scoped to name. card's
// Name field is overwritten with name so callers can't misconfigure it.
func NewAgentHandler(name string, card AgentCard, loop *agentloop.Loop, project ctxtree.ProjectHandle, bus *event.Bus, store TaskStore) *AgentHandler {
	card.Name = name
	return &AgentHandler{Name: name, Card: card, Loop: loop, Project: project, Bus: bus, Store: store}
}

func (h *AgentHandler) TaskStorage() TaskStore { return h.Store }

func (h *AgentHandler) HandleGetAgentCard(context.Context, RequestContext) (AgentCard, error) {
	return h.Card, nil
}

func textOf(m Message) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Kind == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func newWorkingTask(history ...Message) Task {
	now := time.Now()
	return Task{
		ID:        NewTaskID(),
		Status:    TaskStatus{State: TaskWorking, Timestamp: now},
		History:   history,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HandleSendMessage creates a Working task, launches the agent loop in the
// background, and returns immediately; the caller observes completion via
// tasks/get.
func (h *AgentHandler) HandleSendMessage(ctx context.Context, _ RequestContext, message Message) (Task, error) {
	task := newWorkingTask(message)
	if _, err := h.Store.CreateTask(ctx, task); err != nil {
		return Task{}, err
	}

	runCtx := context.WithoutCancel(ctx)
	go h.run(runCtx, task.ID, textOf(message))

	return task, nil
}

// run executes the loop and records the terminal task state. It never
// overwrites a task that has already reached a terminal state out of band
// (e.g. canceled mid-run).
func (h *AgentHandler) run(ctx context.Context, taskID, text string) {
	source := h.Bus.Root().Child(taskID)
	ec := ctxtree.NewExecutionContext(h.Project, source, ctx)
	answer, runErr := h.Loop.Run(ctx, ec, []llm.Message{{Role: llm.RoleUser, Content: text}})
	h.finish(ctx, taskID, answer, runErr)
}

func (h *AgentHandler) finish(ctx context.Context, taskID, answer string, runErr error) Task {
	task, found, err := h.Store.GetTask(ctx, taskID)
	if err != nil || !found || task.Status.State.terminal() {
		return task
	}

	if runErr != nil {
		msg := NewAgentMessage(runErr.Error())
		task.Status = TaskStatus{State: TaskFailed, Message: &msg, Timestamp: time.Now()}
	} else {
		msg := NewAgentMessage(answer)
		task.Status = TaskStatus{State: TaskCompleted, Message: &msg, Timestamp: time.Now()}
		task.Artifacts = append(task.Artifacts, Artifact{ArtifactID: NewTaskID(), Name: "answer", Parts: []Part{TextPart(answer)}})
		task.History = append(task.History, msg)
	}
	task.UpdatedAt = time.Now()

	updated, err := h.Store.UpdateTask(ctx, task)
	if err != nil {
		return task
	}
	return updated
}

// HandleSendStreamingMessage subscribes to the run's event-bus slice,
// translates each event into an SSEEvent, and closes the channel once the
// loop finishes. The first event is always task.created; the last is
// task.completed or task.failed.
func (h *AgentHandler) HandleSendStreamingMessage(ctx context.Context, _ RequestContext, message Message) (<-chan SSEEvent, error) {
	task := newWorkingTask(message)
	if _, err := h.Store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	out := make(chan SSEEvent, 16)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	source := h.Bus.Root().Child(task.ID)

	unsubscribe := h.Bus.Subscribe(runCtx, event.SubscriberFunc(func(_ context.Context, ev event.Event) {
		if len(ev.Source) == 0 || ev.Source[0] != task.ID {
			return
		}
		sseEv, ok := translateEvent(task.ID, ev)
		if !ok {
			return
		}
		select {
		case out <- sseEv:
		case <-runCtx.Done():
		}
	}))

	out <- SSEEvent{Type: EventTaskCreated, ID: task.ID, Data: task}

	go func() {
		defer close(out)
		defer unsubscribe()
		defer cancel()

		ec := ctxtree.NewExecutionContext(h.Project, source, runCtx)
		answer, runErr := h.Loop.Run(runCtx, ec, []llm.Message{{Role: llm.RoleUser, Content: textOf(message)}})
		final := h.finish(context.Background(), task.ID, answer, runErr)

		if final.Status.State == TaskFailed {
			out <- SSEEvent{Type: EventTaskFailed, ID: task.ID, Data: final}
			return
		}
		out <- SSEEvent{Type: EventTaskCompleted, ID: task.ID, Data: final}
	}()

	return out, nil
}

// translateEvent maps one bus Event onto the SSE vocabulary. Started and
// Usage events carry no information a caller needs; only Chunk (progress)
// and Kind (artifact-producing lifecycle markers) events are forwarded.
func translateEvent(taskID string, ev event.Event) (SSEEvent, bool) {
	switch ev.Variant {
	case event.VariantChunk:
		return SSEEvent{
			Type: EventTaskProgress,
			ID:   taskID,
			Data: map[string]any{"delta": ev.Chunk.Delta, "finished": ev.Chunk.Finished},
		}, true
	case event.VariantKind:
		return SSEEvent{
			Type: EventArtifactCreated,
			ID:   taskID,
			Data: map[string]any{"name": ev.KindData.Name, "attrs": ev.KindData.Attrs},
		}, true
	default:
		return SSEEvent{}, false
	}
}
