package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/oxyerr"
)

// Engine drives a single LLM turn against a Responses-API-style endpoint.
// It is stateless across turns: the Agent Loop (spec §4.7) owns the
// running message history and tool registry. Tool-synthesize mode (spec
// §4.6.5) is realized by the caller clearing its own registry before the
// turn whose request carries SynthesizeMode, so that turn is sent without
// tools, rather than the Engine holding mutable tool state shared across
// concurrent turns.
type Engine struct {
	httpClient     *http.Client
	apiKey         string
	baseURL        string
	maxElapsedTime time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient overrides the default client, e.g. to inject tracing
// transports.
func WithHTTPClient(c *http.Client) Option { return func(e *Engine) { e.httpClient = c } }

// WithMaxElapsedTime bounds the total retry budget for one turn.
func WithMaxElapsedTime(d time.Duration) Option {
	return func(e *Engine) { e.maxElapsedTime = d }
}

// New builds an Engine targeting baseURL (e.g. "https://api.openai.com/v1")
// with apiKey used as a Bearer token.
func New(baseURL, apiKey string, opts ...Option) *Engine {
	e := &Engine{
		httpClient:     http.DefaultClient,
		apiKey:         apiKey,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		maxElapsedTime: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunTurn executes req, retrying transient failures with exponential
// backoff per spec §4.6.3. Protocol/auth errors and error events embedded
// in the stream are permanent and propagate immediately. structured
// indicates whether the turn targets structured output (spec §4.6.4).
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest, src event.Source, structured bool) (TurnResult, error) {
	op := func() (TurnResult, error) {
		result, err := e.runOnce(ctx, req, src, structured)
		if err == nil {
			return result, nil
		}
		var llmErr *oxyerr.LLMError
		if ok := asLLMError(err, &llmErr); ok && !llmErr.Transient {
			return TurnResult{}, backoff.Permanent(err)
		}
		src.WriteKind(event.Kind{Name: "LLMRetrying", Attrs: map[string]any{"error": err.Error()}})
		return TurnResult{}, err
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(e.maxElapsedTime),
	)
	if err != nil {
		return TurnResult{}, err
	}
	return result, nil
}

func asLLMError(err error, target **oxyerr.LLMError) bool {
	if le, ok := err.(*oxyerr.LLMError); ok {
		*target = le
		return true
	}
	return false
}

func (e *Engine) runOnce(ctx context.Context, req TurnRequest, src event.Source, structured bool) (TurnResult, error) {
	wireReq := buildWireRequest(req)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return TurnResult{}, &oxyerr.LLMError{Message: fmt.Sprintf("marshal request: %s", err), Transient: false}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return TurnResult{}, &oxyerr.LLMError{Message: fmt.Sprintf("build request: %s", err), Transient: false}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return TurnResult{}, &oxyerr.LLMError{Message: fmt.Sprintf("request failed: %s", err), Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return TurnResult{}, classifyHTTPError(resp.StatusCode, bodyBytes)
	}

	return consumeSSE(resp.Body, src, structured)
}

// classifyHTTPError maps a non-200 response to an LLMError. 5xx and 429
// are transient (rate limits, transient upstream failures); everything
// else (4xx auth/validation) is permanent.
func classifyHTTPError(status int, body []byte) error {
	var env wireErrorEnvelope
	msg := string(body)
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		msg = env.Error.Message
	}
	transient := status == http.StatusTooManyRequests || status >= 500
	return &oxyerr.LLMError{Message: fmt.Sprintf("http %d: %s", status, msg), Transient: transient}
}
