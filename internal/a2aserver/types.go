// Package a2aserver exposes the execution engine to external agents over
// two parallel wire bindings — JSON-RPC 2.0 and HTTP+JSON — sharing one
// per-agent Handler. Streaming responses on both bindings use Server-Sent
// Events.
package a2aserver

import "time"

// TaskState is a position in the task lifecycle. Terminal states
// (Completed, Canceled, Failed, Rejected) never transition further;
// InputRequired is the only non-terminal state that can return to Working.
type TaskState string

const (
	TaskSubmitted     TaskState = "submitted"
	TaskWorking       TaskState = "working"
	TaskInputRequired TaskState = "input-required"
	TaskCompleted     TaskState = "completed"
	TaskCanceled      TaskState = "canceled"
	TaskFailed        TaskState = "failed"
	TaskRejected      TaskState = "rejected"
)

// terminal reports whether no further transition out of s is allowed.
func (s TaskState) terminal() bool {
	switch s {
	case TaskCompleted, TaskCanceled, TaskFailed, TaskRejected:
		return true
	default:
		return false
	}
}

// Part is one piece of a Message's content. Only text parts are produced
// by this implementation; the field is a discriminated union in shape so
// additional kinds (file, data) can be added without breaking callers that
// only look at Kind=="text".
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// TextPart builds a Part carrying plain text.
func TextPart(text string) Part { return Part{Kind: "text", Text: text} }

// Message is one turn of conversation, sent by a caller (role "user") or
// produced by the agent (role "agent").
type Message struct {
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
}

// NewUserMessage builds a single-part text message from the caller.
func NewUserMessage(text string) Message {
	return Message{Role: "user", Parts: []Part{TextPart(text)}}
}

// NewAgentMessage builds a single-part text message from the agent.
func NewAgentMessage(text string) Message {
	return Message{Role: "agent", Parts: []Part{TextPart(text)}}
}

// Artifact is a named output attached to a Task, produced incrementally
// during streaming or all at once on completion.
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
}

// TaskStatus pairs a TaskState with an optional human-readable message,
// e.g. the cancellation notice or a failure reason.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is the unit of work tracked across both wire bindings: created on
// message/send or /messages, updated by the handler as it progresses, and
// queryable/cancelable by ID thereafter.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId,omitempty"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	History   []Message  `json:"history,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// AgentCard describes one agent's capabilities for discovery clients.
type AgentCard struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Version         string   `json:"version,omitempty"`
	Capabilities    []string `json:"capabilities,omitempty"`
	DefaultInputs   []string `json:"defaultInputModes,omitempty"`
	DefaultOutputs  []string `json:"defaultOutputModes,omitempty"`
	ProtocolVersion string   `json:"protocolVersion,omitempty"`
}

// SSEEvent is the handler's logical streaming unit, independent of which
// wire binding eventually frames it. Type and ID survive onto the wire;
// Data is marshaled as the frame's JSON payload.
type SSEEvent struct {
	Type string
	ID   string
	Data any
}

// Event type constants used on both JSON-RPC and HTTP+JSON SSE streams.
const (
	EventTaskCreated     = "task.created"
	EventTaskProgress    = "task.progress"
	EventArtifactCreated = "artifact.created"
	EventTaskCompleted   = "task.completed"
	EventTaskFailed      = "task.failed"
	EventError           = "error"
)
