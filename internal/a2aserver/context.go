package a2aserver

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestContext carries per-request identity and metadata into every
// Handler method. It never carries an agent name: each Handler instance
// is already scoped to one agent, so routing to the wrong agent is
// structurally impossible.
type RequestContext struct {
	Headers   http.Header
	RequestID string
	Metadata  map[string]any
}

// newRequestContext derives a RequestContext from the inbound headers,
// reusing x-request-id for correlation when the caller supplies one and
// minting a fresh uuid otherwise.
func newRequestContext(h http.Header) RequestContext {
	id := h.Get("x-request-id")
	if id == "" {
		id = uuid.New().String()
	}
	return RequestContext{Headers: h, RequestID: id, Metadata: map[string]any{}}
}

// WithMetadata returns a copy of ctx with key set, leaving the receiver
// untouched.
func (c RequestContext) WithMetadata(key string, value any) RequestContext {
	out := c
	out.Metadata = make(map[string]any, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return out
}
