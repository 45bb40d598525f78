package llm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/oxyerr"
)

const (
	eventOutputItemAdded           = "response.output_item.added"
	eventOutputItemDone            = "response.output_item.done"
	eventOutputTextDelta           = "response.output_text.delta"
	eventFunctionCallArgsDelta     = "response.function_call_arguments.delta"
	eventFunctionCallArgsDone      = "response.function_call_arguments.done"
	eventReasoningSummaryPartAdded = "response.reasoning_summary_part.added"
	eventReasoningSummaryTextDelta = "response.reasoning_summary_text.delta"
	eventReasoningSummaryTextDone  = "response.reasoning_summary_text.done"
	eventUsage                     = "response.completed"
	eventError                     = "error"
)

// toolCallState is the per-item accumulator described in spec §4.6.2:
// "tool_calls: map keyed by the provider's internal item-id, value =
// { call-id, function name, argument-string accumulator }".
type toolCallState struct {
	callID string
	name   string
	args   bytes.Buffer
}

// reasoningKey identifies one (item-id, summary-index) pair, used to open
// a reasoning-summary block exactly once.
type reasoningKey struct {
	itemID       string
	summaryIndex int
}

// streamState is the engine's mutable state for one turn, mirroring spec
// §4.6.2's named fields.
type streamState struct {
	content                    bytes.Buffer
	toolCalls                  map[string]*toolCallState
	toolCallOrder              []string
	reasoningItemsSeen         map[reasoningKey]bool
	lastParsedLength           int
	hasEmittedStructuredHeader bool
	structuredParser           *structuredParser
	usage                      Usage
}

func newStreamState(structured bool) *streamState {
	s := &streamState{
		toolCalls:          map[string]*toolCallState{},
		reasoningItemsSeen: map[reasoningKey]bool{},
	}
	if structured {
		s.structuredParser = newStructuredParser()
	}
	return s
}

// consumeSSE reads Server-Sent Events from r, applies the spec §4.6.2
// transition table, and returns the aggregated turn result. src is used to
// emit Chunk/Usage events as they occur; errors map to oxyerr.LLMError.
func consumeSSE(r io.Reader, src event.Source, structured bool) (TurnResult, error) {
	state := newStreamState(structured)
	reader := bufio.NewReader(r)

	var currentEventType string
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return TurnResult{}, &oxyerr.LLMError{Message: fmt.Sprintf("reading stream: %s", err), Transient: true}
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("event: ")) {
			currentEventType = string(bytes.TrimSpace(line[len("event: "):]))
			continue
		}
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		data := line[len("data: "):]

		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			currentEventType = ""
			continue
		}
		eventType := currentEventType
		if eventType == "" {
			eventType, _ = payload["type"].(string)
		}
		currentEventType = ""

		if done, terminalErr := applyEvent(eventType, payload, state, src); terminalErr != nil {
			return TurnResult{}, terminalErr
		} else if done {
			break
		}
	}

	finalDelta := state.content.String()[state.lastParsedLength:]
	src.WriteChunk(event.Chunk{Key: "content", Kind: event.ChunkText, Delta: finalDelta, Finished: true})

	return TurnResult{
		Content:   state.content.String(),
		ToolCalls: state.finishedToolCalls(),
		Usage:     state.usage,
	}, nil
}

// applyEvent implements one row of the spec §4.6.2 transition table. done
// signals the Completed event; a non-nil error signals an Error event,
// which is permanent per spec.
func applyEvent(eventType string, payload map[string]any, state *streamState, src event.Source) (done bool, err error) {
	switch eventType {
	case eventOutputTextDelta:
		delta, _ := payload["delta"].(string)
		state.content.WriteString(delta)
		if state.structuredParser != nil && len(state.toolCalls) == 0 {
			if chunk, ok := state.structuredParser.feed(state.content.String()); ok {
				src.WriteChunk(chunk)
				state.lastParsedLength = state.content.Len()
				return false, nil
			}
		}
		src.WriteChunk(event.Chunk{Key: "content", Kind: event.ChunkText, Delta: delta})

	case eventOutputItemAdded:
		item, _ := payload["item"].(map[string]any)
		if item == nil {
			return false, nil
		}
		switch item["type"] {
		case "function_call":
			itemID, _ := item["id"].(string)
			callID, ok := item["call_id"].(string)
			if !ok {
				callID = itemID
			}
			name, _ := item["name"].(string)
			state.toolCalls[itemID] = &toolCallState{callID: callID, name: name}
			state.toolCallOrder = append(state.toolCallOrder, itemID)
		}

	case eventFunctionCallArgsDelta:
		itemID, _ := payload["item_id"].(string)
		delta, _ := payload["delta"].(string)
		tc, ok := state.toolCalls[itemID]
		if !ok {
			return false, nil // unknown item-id: log and drop per spec
		}
		tc.args.WriteString(delta)

	case eventFunctionCallArgsDone:
		itemID, _ := payload["item_id"].(string)
		finalArgs, _ := payload["arguments"].(string)
		tc, ok := state.toolCalls[itemID]
		if !ok {
			return false, nil
		}
		if tc.args.Len() == 0 || tc.args.String() != finalArgs {
			tc.args.Reset()
			tc.args.WriteString(finalArgs)
		}

	case eventReasoningSummaryPartAdded:
		itemID, _ := payload["item_id"].(string)
		idx := intField(payload, "summary_index")
		key := reasoningKey{itemID: itemID, summaryIndex: idx}
		if !state.reasoningItemsSeen[key] {
			state.reasoningItemsSeen[key] = true
			src.WriteChunk(event.Chunk{Key: itemID, Kind: event.ChunkReasoningOpen})
		}

	case eventReasoningSummaryTextDelta:
		itemID, _ := payload["item_id"].(string)
		delta, _ := payload["delta"].(string)
		src.WriteChunk(event.Chunk{Key: itemID, Kind: event.ChunkReasoningDelta, Delta: delta})

	case eventReasoningSummaryTextDone:
		itemID, _ := payload["item_id"].(string)
		src.WriteChunk(event.Chunk{Key: itemID, Kind: event.ChunkReasoningClose, Finished: true})

	case eventUsage:
		if resp, ok := payload["response"].(map[string]any); ok {
			if usage, ok := resp["usage"].(map[string]any); ok {
				state.usage = Usage{
					InputTokens:  intField(usage, "input_tokens"),
					OutputTokens: intField(usage, "output_tokens"),
				}
				src.WriteUsage(event.Usage{InputTokens: state.usage.InputTokens, OutputTokens: state.usage.OutputTokens})
			}
		}
		return true, nil

	case eventError:
		msg := "stream error"
		if e, ok := payload["error"].(map[string]any); ok {
			if m, ok := e["message"].(string); ok {
				msg = m
			}
		} else if m, ok := payload["message"].(string); ok {
			msg = m
		}
		return false, &oxyerr.LLMError{Message: msg, Transient: false}
	}
	return false, nil
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func (s *streamState) finishedToolCalls() []ToolCall {
	out := make([]ToolCall, 0, len(s.toolCallOrder))
	for _, itemID := range s.toolCallOrder {
		tc := s.toolCalls[itemID]
		out = append(out, ToolCall{ID: tc.callID, Name: tc.name, Arguments: tc.args.String()})
	}
	return out
}
