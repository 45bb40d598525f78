package agentloop_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oxy-hq/oxy/internal/agentloop"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProject struct{}

func (fakeProject) RootDir() string { return "/proj" }

type lookupTool struct{ calls int32 }

func (t *lookupTool) Name() string { return "lookup" }
func (t *lookupTool) Schema() llm.ToolSchema {
	return llm.ToolSchema{Name: "lookup", Description: "looks things up"}
}
func (t *lookupTool) Call(ctx context.Context, ec *ctxtree.ExecutionContext, args json.RawMessage) (agentloop.ToolOutput, error) {
	atomic.AddInt32(&t.calls, 1)
	return agentloop.ToolOutput{Context: ctxtree.NewText("42"), Truncated: "42"}, nil
}

// scriptedServer replies with a tool call on the first turn, then a
// content-only reply, mimicking one agent-loop iteration.
func scriptedServer(t *testing.T) *httptest.Server {
	turn := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		turn++
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if turn == 1 {
			fmt.Fprint(w, "event: response.output_item.added\n")
			fmt.Fprint(w, `data: {"item":{"type":"function_call","id":"item_1","call_id":"call_1","name":"lookup"}}`+"\n\n")
			fmt.Fprint(w, "event: response.function_call_arguments.done\n")
			fmt.Fprint(w, `data: {"item_id":"item_1","arguments":"{}"}`+"\n\n")
			fmt.Fprint(w, "event: response.completed\n")
			fmt.Fprint(w, `data: {"response":{"usage":{}}}`+"\n\n")
			return
		}
		fmt.Fprint(w, "event: response.output_text.delta\n")
		fmt.Fprint(w, `data: {"delta":"the answer is 42"}`+"\n\n")
		fmt.Fprint(w, "event: response.completed\n")
		fmt.Fprint(w, `data: {"response":{"usage":{}}}`+"\n\n")
	}))
}

func TestLoopDispatchesToolThenReturnsFinalContent(t *testing.T) {
	srv := scriptedServer(t)
	defer srv.Close()

	engine := llm.New(srv.URL, "key", llm.WithMaxElapsedTime(2*time.Second))
	tool := &lookupTool{}
	registry := agentloop.NewRegistry(tool)
	loop := agentloop.New(engine, "gpt-5", registry, agentloop.WithMaxIterations(5))

	bus := event.New(8)
	ec := ctxtree.NewExecutionContext(fakeProject{}, bus.Root(), context.Background())

	content, err := loop.Run(context.Background(), ec, []llm.Message{{Role: llm.RoleUser, Content: "what is the answer?"}})
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", content)
	assert.Equal(t, int32(1), tool.calls)
}

func TestLoopSynthesizeModeClearsRegistryAfterBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: response.output_item.added\n")
		fmt.Fprint(w, `data: {"item":{"type":"function_call","id":"item_1","call_id":"call_1","name":"lookup"}}`+"\n\n")
		fmt.Fprint(w, "event: response.function_call_arguments.done\n")
		fmt.Fprint(w, `data: {"item_id":"item_1","arguments":"{}"}`+"\n\n")
		fmt.Fprint(w, "event: response.completed\n")
		fmt.Fprint(w, `data: {"response":{"usage":{}}}`+"\n\n")
	}))
	defer srv.Close()

	engine := llm.New(srv.URL, "key", llm.WithMaxElapsedTime(2*time.Second))
	tool := &lookupTool{}
	registry := agentloop.NewRegistry(tool)
	loop := agentloop.New(engine, "gpt-5", registry, agentloop.WithMaxIterations(0))

	bus := event.New(8)
	ec := ctxtree.NewExecutionContext(fakeProject{}, bus.Root(), context.Background())

	_, err := loop.Run(context.Background(), ec, []llm.Message{{Role: llm.RoleUser, Content: "go"}})
	require.NoError(t, err)
	assert.Empty(t, registry.Schemas(), "registry must be cleared once the iteration budget forces synthesize mode")
}

func TestUnknownToolProducesErrorMessageNotAbort(t *testing.T) {
	turn := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		turn++
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if turn == 1 {
			fmt.Fprint(w, "event: response.output_item.added\n")
			fmt.Fprint(w, `data: {"item":{"type":"function_call","id":"item_1","call_id":"call_1","name":"missing_tool"}}`+"\n\n")
			fmt.Fprint(w, "event: response.function_call_arguments.done\n")
			fmt.Fprint(w, `data: {"item_id":"item_1","arguments":"{}"}`+"\n\n")
			fmt.Fprint(w, "event: response.completed\n")
			fmt.Fprint(w, `data: {"response":{"usage":{}}}`+"\n\n")
			return
		}
		fmt.Fprint(w, "event: response.output_text.delta\n")
		fmt.Fprint(w, `data: {"delta":"done"}`+"\n\n")
		fmt.Fprint(w, "event: response.completed\n")
		fmt.Fprint(w, `data: {"response":{"usage":{}}}`+"\n\n")
	}))
	defer srv.Close()

	engine := llm.New(srv.URL, "key", llm.WithMaxElapsedTime(2*time.Second))
	registry := agentloop.NewRegistry()
	loop := agentloop.New(engine, "gpt-5", registry, agentloop.WithMaxIterations(5))

	bus := event.New(8)
	ec := ctxtree.NewExecutionContext(fakeProject{}, bus.Root(), context.Background())

	content, err := loop.Run(context.Background(), ec, []llm.Message{{Role: llm.RoleUser, Content: "go"}})
	require.NoError(t, err, "an unknown tool call must not abort the loop")
	assert.Equal(t, "done", content)
}
