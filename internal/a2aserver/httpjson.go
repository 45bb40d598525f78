package a2aserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type sendMessageRequest struct {
	Message Message `json:"message"`
}

type sendMessageResponse struct {
	Task Task `json:"task"`
}

type getTaskResponse struct {
	Task Task `json:"task"`
}

type getAgentCardResponse struct {
	Card AgentCard `json:"card"`
}

// agentHandlerFor resolves the {name} path param to its Handler, writing a
// 404 and returning ok=false if unregistered.
func (s *Server) agentHandlerFor(w http.ResponseWriter, r *http.Request) (Handler, bool) {
	name := chi.URLParam(r, "name")
	handler, ok := s.lookupAgent(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, newHTTPErrorResponse("unknown agent: "+name, RPCTaskNotFound))
		return nil, false
	}
	return handler, true
}

// authenticateHTTP runs the handler's auth check, writing the error
// response (with WWW-Authenticate on 401/403) and returning ok=false if it
// fails.
func authenticateHTTP(w http.ResponseWriter, r *http.Request, handler Handler, rc RequestContext) bool {
	if err := handler.AuthenticateRequest(r.Context(), rc); err != nil {
		status, code := statusForError(err)
		addWWWAuthenticate(w, status)
		writeJSON(w, status, newHTTPErrorResponse(err.Error(), code))
		return false
	}
	return true
}

// handleHTTPSendMessage implements POST /messages.
func (s *Server) handleHTTPSendMessage(w http.ResponseWriter, r *http.Request) {
	handler, ok := s.agentHandlerFor(w, r)
	if !ok {
		return
	}
	rc := newRequestContext(r.Header)
	if !authenticateHTTP(w, r, handler, rc) {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, newHTTPErrorResponse("invalid request body: "+err.Error(), RPCInvalidParams))
		return
	}

	task, err := handler.HandleSendMessage(r.Context(), rc, req.Message)
	if err != nil {
		status, code := statusForError(err)
		addWWWAuthenticate(w, status)
		writeJSON(w, status, newHTTPErrorResponse(err.Error(), code))
		return
	}
	writeJSON(w, http.StatusOK, sendMessageResponse{Task: task})
}

// handleHTTPSendStreamingMessage implements POST /messages/stream. Unlike
// the JSON-RPC binding, frame payloads are the handler's SSEEvent.Data sent
// verbatim, with no JSON-RPC envelope.
func (s *Server) handleHTTPSendStreamingMessage(w http.ResponseWriter, r *http.Request) {
	handler, ok := s.agentHandlerFor(w, r)
	if !ok {
		return
	}
	rc := newRequestContext(r.Header)
	if !authenticateHTTP(w, r, handler, rc) {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, newHTTPErrorResponse("invalid request body: "+err.Error(), RPCInvalidParams))
		return
	}

	events, err := handler.HandleSendStreamingMessage(r.Context(), rc, req.Message)
	if err != nil {
		status, code := statusForError(err)
		addWWWAuthenticate(w, status)
		writeJSON(w, status, newHTTPErrorResponse(err.Error(), code))
		return
	}

	writeSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	for ev := range events {
		writeSSEFrame(w, ev.Type, ev.ID, ev.Data)
	}
}

// handleHTTPGetTask implements GET /tasks/{id}.
func (s *Server) handleHTTPGetTask(w http.ResponseWriter, r *http.Request) {
	handler, ok := s.agentHandlerFor(w, r)
	if !ok {
		return
	}
	rc := newRequestContext(r.Header)
	if !authenticateHTTP(w, r, handler, rc) {
		return
	}

	id := chi.URLParam(r, "id")
	task, found, err := handler.TaskStorage().GetTask(r.Context(), id)
	if err != nil {
		status, code := statusForError(err)
		writeJSON(w, status, newHTTPErrorResponse(err.Error(), code))
		return
	}
	if !found {
		status, code := statusForError(errTaskNotFound(id))
		writeJSON(w, status, newHTTPErrorResponse("task not found: "+id, code))
		return
	}
	writeJSON(w, http.StatusOK, getTaskResponse{Task: task})
}

// handleHTTPDeleteTask implements DELETE /tasks/{id}, returning 204 on
// success.
func (s *Server) handleHTTPDeleteTask(w http.ResponseWriter, r *http.Request) {
	handler, ok := s.agentHandlerFor(w, r)
	if !ok {
		return
	}
	rc := newRequestContext(r.Header)
	if !authenticateHTTP(w, r, handler, rc) {
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.cancelTask(r, handler, id); err != nil {
		status, code := statusForError(err)
		writeJSON(w, status, newHTTPErrorResponse(err.Error(), code))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHTTPGetAgentCard implements GET /agent.
func (s *Server) handleHTTPGetAgentCard(w http.ResponseWriter, r *http.Request) {
	handler, ok := s.agentHandlerFor(w, r)
	if !ok {
		return
	}
	rc := newRequestContext(r.Header)
	if !authenticateHTTP(w, r, handler, rc) {
		return
	}

	card, err := handler.HandleGetAgentCard(r.Context(), rc)
	if err != nil {
		status, code := statusForError(err)
		writeJSON(w, status, newHTTPErrorResponse(err.Error(), code))
		return
	}
	writeJSON(w, http.StatusOK, getAgentCardResponse{Card: card})
}
