package a2aserver

import "context"

// Handler implements the business logic for one agent. Every method
// receives a RequestContext built from the inbound request; AgentName is
// never part of that context because a Handler instance is already scoped
// to a single agent.
type Handler interface {
	// AuthenticateRequest validates the request before any other method
	// runs. The default behavior (see BaseHandler) allows anonymous access.
	AuthenticateRequest(ctx context.Context, rc RequestContext) error

	// HandleSendMessage processes one message synchronously and returns
	// the resulting Task, which may already be Completed or still Working
	// if the caller is expected to poll tasks/get.
	HandleSendMessage(ctx context.Context, rc RequestContext, message Message) (Task, error)

	// HandleSendStreamingMessage processes one message, returning a
	// channel of SSEEvents the transport frames as they arrive. The
	// channel is closed when the stream ends, including on error (the
	// final error, if any, is or was sent as an EventError frame by the
	// implementation before closing).
	HandleSendStreamingMessage(ctx context.Context, rc RequestContext, message Message) (<-chan SSEEvent, error)

	// HandleGetAgentCard returns this agent's capability card.
	HandleGetAgentCard(ctx context.Context, rc RequestContext) (AgentCard, error)

	// TaskStorage returns the collaborator backing tasks/get, tasks/cancel,
	// GET /tasks/{id}, and DELETE /tasks/{id}.
	TaskStorage() TaskStore
}

// BaseHandler provides the default AuthenticateRequest (allow) so concrete
// handlers only need to override it when they enforce auth.
type BaseHandler struct{}

func (BaseHandler) AuthenticateRequest(context.Context, RequestContext) error { return nil }
