package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oxy-hq/oxy/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTurnSucceedsAgainstSSEServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("event: response.output_text.delta\ndata: {\"delta\":\"hi\"}\n\n"))
		w.Write([]byte("event: response.completed\ndata: {\"response\":{\"usage\":{\"input_tokens\":1,\"output_tokens\":1}}}\n\n"))
	}))
	defer srv.Close()

	e := New(srv.URL, "test-key", WithMaxElapsedTime(2*time.Second))
	bus := event.New(8)
	result, err := e.RunTurn(context.Background(), TurnRequest{
		Model:    "gpt-5",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, bus.Root(), false)

	require.NoError(t, err)
	assert.Equal(t, "hi", result.Content)
}

func TestRunTurnDoesNotRetryPermanentErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	e := New(srv.URL, "bad-key", WithMaxElapsedTime(2*time.Second))
	bus := event.New(8)
	_, err := e.RunTurn(context.Background(), TurnRequest{
		Model:    "gpt-5",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, bus.Root(), false)

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "a 401 is permanent and must not be retried")
}

func TestRunTurnRetriesTransientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("event: response.completed\ndata: {\"response\":{\"usage\":{}}}\n\n"))
	}))
	defer srv.Close()

	e := New(srv.URL, "test-key", WithMaxElapsedTime(5*time.Second))
	bus := event.New(8)
	_, err := e.RunTurn(context.Background(), TurnRequest{
		Model:    "gpt-5",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, bus.Root(), false)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 2)
}
