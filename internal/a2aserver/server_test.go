package a2aserver_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxy-hq/oxy/internal/a2aserver"
	"github.com/oxy-hq/oxy/internal/oxyerr"
)

type fakeHandler struct {
	a2aserver.BaseHandler
	card         a2aserver.AgentCard
	store        a2aserver.TaskStore
	authErr      error
	streamEvents []a2aserver.SSEEvent
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{card: a2aserver.AgentCard{Name: "reporter"}, store: a2aserver.NewMemoryTaskStore()}
}

func (f *fakeHandler) AuthenticateRequest(context.Context, a2aserver.RequestContext) error {
	return f.authErr
}

func (f *fakeHandler) HandleSendMessage(ctx context.Context, _ a2aserver.RequestContext, message a2aserver.Message) (a2aserver.Task, error) {
	task := a2aserver.Task{ID: "task-1", Status: a2aserver.TaskStatus{State: a2aserver.TaskWorking}, History: []a2aserver.Message{message}}
	return f.store.CreateTask(ctx, task)
}

func (f *fakeHandler) HandleSendStreamingMessage(context.Context, a2aserver.RequestContext, a2aserver.Message) (<-chan a2aserver.SSEEvent, error) {
	ch := make(chan a2aserver.SSEEvent, len(f.streamEvents))
	for _, ev := range f.streamEvents {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeHandler) HandleGetAgentCard(context.Context, a2aserver.RequestContext) (a2aserver.AgentCard, error) {
	return f.card, nil
}

func (f *fakeHandler) TaskStorage() a2aserver.TaskStore { return f.store }

func newTestServer(t *testing.T, handler a2aserver.Handler) *httptest.Server {
	srv := a2aserver.NewServer(a2aserver.WithBaseURL("http://test"), a2aserver.WithServiceInfo("oxy-a2a", "0.1.0"))
	srv.RegisterAgent("reporter", handler)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTPSendMessageReturnsWorkingTask(t *testing.T) {
	ts := newTestServer(t, newFakeHandler())

	body := `{"message":{"role":"user","parts":[{"kind":"text","text":"hi"}]}}`
	resp, err := http.Post(ts.URL+"/a2a/agents/reporter/v1/messages", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var parsed struct {
		Task a2aserver.Task `json:"task"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, a2aserver.TaskWorking, parsed.Task.Status.State)
}

func TestHTTPGetTaskNotFoundReturns404(t *testing.T) {
	ts := newTestServer(t, newFakeHandler())

	resp, err := http.Get(ts.URL + "/a2a/agents/reporter/v1/tasks/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPDeleteTaskCancelsAndReturns204(t *testing.T) {
	handler := newFakeHandler()
	ts := newTestServer(t, handler)

	_, err := handler.store.CreateTask(context.Background(), a2aserver.Task{ID: "task-x", Status: a2aserver.TaskStatus{State: a2aserver.TaskWorking}})
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/a2a/agents/reporter/v1/tasks/task-x", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	task, ok, _ := handler.store.GetTask(context.Background(), "task-x")
	require.True(t, ok)
	assert.Equal(t, a2aserver.TaskCanceled, task.Status.State)
}

func TestHTTPAuthFailureReturns401WithChallenge(t *testing.T) {
	handler := newFakeHandler()
	handler.authErr = &oxyerr.A2AError{Code: a2aserver.RPCUnauthorized, Message: "missing api key"}
	ts := newTestServer(t, handler)

	resp, err := http.Get(ts.URL + "/a2a/agents/reporter/v1/agent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "ApiKey")
}

func TestJSONRPCMessageSendDispatches(t *testing.T) {
	ts := newTestServer(t, newFakeHandler())

	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","parts":[{"kind":"text","text":"hi"}]}}}`
	resp, err := http.Post(ts.URL+"/a2a/agents/reporter/v1/jsonrpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var parsed a2aserver.JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Nil(t, parsed.Error)
	assert.NotNil(t, parsed.Result)
}

func TestJSONRPCRejectsWrongVersion(t *testing.T) {
	ts := newTestServer(t, newFakeHandler())

	body := `{"jsonrpc":"1.0","id":1,"method":"message/send"}`
	resp, err := http.Post(ts.URL+"/a2a/agents/reporter/v1/jsonrpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJSONRPCResubscribeIsUnsupported(t *testing.T) {
	ts := newTestServer(t, newFakeHandler())

	body := `{"jsonrpc":"2.0","id":1,"method":"tasks/resubscribe","params":{"id":"x"}}`
	resp, err := http.Post(ts.URL+"/a2a/agents/reporter/v1/jsonrpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed a2aserver.JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.NotNil(t, parsed.Error)
	assert.Equal(t, a2aserver.RPCUnsupportedOperation, parsed.Error.Code)
}

func TestJSONRPCUnknownMethodIsMethodNotFound(t *testing.T) {
	ts := newTestServer(t, newFakeHandler())

	body := `{"jsonrpc":"2.0","id":1,"method":"bogus"}`
	resp, err := http.Post(ts.URL+"/a2a/agents/reporter/v1/jsonrpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed a2aserver.JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.NotNil(t, parsed.Error)
	assert.Equal(t, a2aserver.RPCMethodNotFound, parsed.Error.Code)
}

func TestHTTPStreamingMessageFramesEventsAsSSE(t *testing.T) {
	handler := newFakeHandler()
	handler.streamEvents = []a2aserver.SSEEvent{
		{Type: a2aserver.EventTaskProgress, ID: "task-1", Data: map[string]string{"delta": "hi"}},
		{Type: a2aserver.EventTaskCompleted, ID: "task-1", Data: map[string]string{"status": "done"}},
	}
	ts := newTestServer(t, handler)

	body := `{"message":{"role":"user","parts":[{"kind":"text","text":"go"}]}}`
	resp, err := http.Post(ts.URL+"/a2a/agents/reporter/v1/messages/stream", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var frames []string
	var buf bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			frames = append(frames, buf.String())
			buf.Reset()
			continue
		}
		buf.WriteString(line + "\n")
	}
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0], "event: "+a2aserver.EventTaskProgress)
	assert.Contains(t, frames[1], "event: "+a2aserver.EventTaskCompleted)
}

func TestAgentDiscoveryListsRegisteredAgents(t *testing.T) {
	ts := newTestServer(t, newFakeHandler())

	resp, err := http.Get(ts.URL + "/a2a/agents")
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed struct {
		Agents []struct {
			Name            string `json:"name"`
			JSONRPCEndpoint string `json:"jsonrpc_endpoint"`
		} `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Len(t, parsed.Agents, 1)
	assert.Equal(t, "reporter", parsed.Agents[0].Name)
	assert.Equal(t, "http://test/a2a/agents/reporter/v1/jsonrpc", parsed.Agents[0].JSONRPCEndpoint)
}

func TestAgentCardWellKnownReturnsCard(t *testing.T) {
	ts := newTestServer(t, newFakeHandler())

	resp, err := http.Get(ts.URL + "/a2a/agents/reporter/.well-known/agent-card.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var card a2aserver.AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	assert.Equal(t, "reporter", card.Name)
}

func TestHealthReportsOKByDefault(t *testing.T) {
	ts := newTestServer(t, newFakeHandler())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, "ok", parsed["status"])
}

func TestMetricsCountsRequests(t *testing.T) {
	ts := newTestServer(t, newFakeHandler())

	_, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	_, err = http.Get(ts.URL + "/a2a/agents/reporter/v1/tasks/missing")
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.GreaterOrEqual(t, parsed["requests_total"].(float64), float64(2))
	assert.GreaterOrEqual(t, parsed["requests_failed"].(float64), float64(1))
}
