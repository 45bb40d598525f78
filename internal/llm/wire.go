package llm

// The wire types below mirror the OpenAI Responses API shape the engine
// targets, adapted from the teacher's provider (pkg/llms/openai.go):
// input is an array of typed items rather than chat-style messages, tool
// calls are a flat item type, and streaming is Server-Sent Events keyed by
// a small fixed vocabulary of event names.

type wireRequest struct {
	Model           string          `json:"model"`
	Input           []wireInputItem `json:"input"`
	Instructions    string          `json:"instructions,omitempty"`
	Tools           []wireTool      `json:"tools,omitempty"`
	ToolChoice      string          `json:"tool_choice,omitempty"`
	Reasoning       *wireReasoning  `json:"reasoning,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
}

type wireReasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type wireTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// wireInputItem covers every item shape the Responses API accepts as
// input: a plain message, a function call echoed back, or a function call
// output (tool result).
type wireInputItem struct {
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	Content   any    `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

type wireErrorEnvelope struct {
	Error *wireError `json:"error,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// buildWireRequest converts a TurnRequest into the Responses API shape,
// per spec §4.6.1: system and developer messages are joined into the
// request's instructions, each user message becomes one message item,
// assistant messages split into a content item plus one
// function-call item per tool call, and tool-role messages become
// function-call-output items keyed by call-id.
func buildWireRequest(req TurnRequest) wireRequest {
	var items []wireInputItem
	var systemParts []string

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem, RoleDeveloper:
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
		case RoleUser:
			items = append(items, wireInputItem{Type: "message", Role: "user", Content: m.Content})
		case RoleAssistant:
			if m.Content != "" {
				items = append(items, wireInputItem{Type: "message", Role: "assistant", Content: m.Content})
			}
			for _, tc := range m.ToolCalls {
				items = append(items, wireInputItem{
					Type:      "function_call",
					CallID:    tc.ID,
					Name:      tc.Name,
					Arguments: tc.Arguments,
				})
			}
		case RoleTool:
			items = append(items, wireInputItem{
				Type:   "function_call_output",
				CallID: m.ToolCallID,
				Output: m.Content,
			})
		}
	}

	var tools []wireTool
	toolChoice := ""
	if req.ToolChoice != ToolChoiceNone && len(req.Tools) > 0 {
		for _, t := range req.Tools {
			tools = append(tools, wireTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		toolChoice = string(ToolChoiceAuto)
	}

	var reasoning *wireReasoning
	if req.ReasoningEffort != "" {
		reasoning = &wireReasoning{Effort: req.ReasoningEffort, Summary: "auto"}
	}

	out := wireRequest{
		Model:        req.Model,
		Input:        items,
		Instructions: joinNonEmpty(systemParts, "\n\n"),
		Tools:        tools,
		ToolChoice:   toolChoice,
		Reasoning:    reasoning,
		Stream:       true,
	}
	return out
}

func joinNonEmpty(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
