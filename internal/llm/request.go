// Package llm implements the LLM Streaming Engine (spec §4.6): it drives a
// single turn against a responses-style chat endpoint, converting a
// token/tool-call/reasoning delta stream into one aggregated answer plus a
// list of tool calls.
package llm

// Role is the role of one message in the running history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleDeveloper Role = "developer"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is produced by the engine and consumed by the Agent Loop, per
// spec §3.1.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one entry in the running conversation history.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that called tools
	ToolCallID string     // set on tool-role messages, correlates to ToolCall.ID
}

// ToolSchema describes one callable tool's name, description, and JSON
// Schema parameters, as presented to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolChoice selects how the model may use tools.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// TurnRequest bundles everything one engine turn needs, per spec §4.6.1.
type TurnRequest struct {
	Model           string
	Messages        []Message
	Tools           []ToolSchema
	ToolChoice      ToolChoice
	ReasoningEffort string // "", "low", "medium", "high"
	SynthesizeMode  bool
}

// TurnResult is the aggregated outcome of one turn: the full assistant text
// and any tool calls it produced.
type TurnResult struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Usage carries token accounting, mirrored into internal/event.Usage by
// the caller.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
