package a2aserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleJSONRPC implements POST /a2a/agents/{name}/v1/jsonrpc: a single
// endpoint dispatching every JSON-RPC method to the named agent's Handler.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	handler, ok := s.lookupAgent(name)
	if !ok {
		writeRPCError(w, nil, http.StatusNotFound, RPCMethodNotFound, "unknown agent: "+name)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, http.StatusBadRequest, RPCParseError, "invalid JSON-RPC request: "+err.Error())
		return
	}
	if req.JSONRPC != "2.0" {
		writeRPCError(w, req.ID, http.StatusBadRequest, RPCInvalidRequest, `jsonrpc version must be "2.0"`)
		return
	}

	rc := newRequestContext(r.Header)
	if err := handler.AuthenticateRequest(r.Context(), rc); err != nil {
		status, code := statusForError(err)
		writeRPCErrorWithAuth(w, req.ID, status, code, err.Error())
		return
	}

	if req.Method == "message/stream" {
		s.handleJSONRPCStream(w, r, handler, rc, req)
		return
	}

	result, err := s.dispatchJSONRPC(r, handler, rc, req)
	if err != nil {
		status, code := statusForError(err)
		writeRPCErrorWithAuth(w, req.ID, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse(req.ID, result))
}

func (s *Server) dispatchJSONRPC(r *http.Request, handler Handler, rc RequestContext, req JSONRPCRequest) (any, error) {
	switch req.Method {
	case "message/send":
		var params messageSendParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &invalidParamsError{method: req.Method, err: err}
		}
		return handler.HandleSendMessage(r.Context(), rc, params.Message)

	case "agent/getAuthenticatedExtendedCard":
		return handler.HandleGetAgentCard(r.Context(), rc)

	case "tasks/get":
		var params taskIDParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &invalidParamsError{method: req.Method, err: err}
		}
		task, ok, err := handler.TaskStorage().GetTask(r.Context(), params.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errTaskNotFound(params.ID)
		}
		return task, nil

	case "tasks/cancel":
		var params taskIDParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &invalidParamsError{method: req.Method, err: err}
		}
		return s.cancelTask(r, handler, params.ID)

	case "tasks/resubscribe":
		return nil, errUnsupportedOperation

	default:
		return nil, &methodNotFoundError{method: req.Method}
	}
}

// cancelTask transitions a task to Canceled, rejecting the attempt if it
// has already reached a terminal state.
func (s *Server) cancelTask(r *http.Request, handler Handler, id string) (Task, error) {
	store := handler.TaskStorage()
	task, ok, err := store.GetTask(r.Context(), id)
	if err != nil {
		return Task{}, err
	}
	if !ok {
		return Task{}, errTaskNotFound(id)
	}
	if task.Status.State.terminal() {
		return Task{}, errTaskTerminal(id, task.Status.State)
	}
	msg := NewAgentMessage("task canceled by caller")
	task.Status = TaskStatus{State: TaskCanceled, Message: &msg}
	return store.UpdateTask(r.Context(), task)
}

// handleJSONRPCStream implements message/stream: each handler SSE event is
// wrapped in a JSON-RPC response envelope carrying the original request ID
// before being framed on the wire.
func (s *Server) handleJSONRPCStream(w http.ResponseWriter, r *http.Request, handler Handler, rc RequestContext, req JSONRPCRequest) {
	var params messageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPCError(w, req.ID, http.StatusBadRequest, RPCInvalidParams, "invalid message/stream params: "+err.Error())
		return
	}

	events, err := handler.HandleSendStreamingMessage(r.Context(), rc, params.Message)
	if err != nil {
		status, code := statusForError(err)
		writeRPCErrorWithAuth(w, req.ID, status, code, err.Error())
		return
	}

	writeSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	for ev := range events {
		envelope := successResponse(req.ID, ev.Data)
		writeSSEFrame(w, ev.Type, ev.ID, envelope)
	}
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, httpStatus, code int, message string) {
	writeJSON(w, httpStatus, errorResponse(id, code, message))
}

func writeRPCErrorWithAuth(w http.ResponseWriter, id json.RawMessage, httpStatus, code int, message string) {
	addWWWAuthenticate(w, httpStatus)
	writeRPCError(w, id, httpStatus, code, message)
}

// invalidParamsError reports a params payload that failed to unmarshal
// into the shape a method expects.
type invalidParamsError struct {
	method string
	err    error
}

func (e *invalidParamsError) Error() string {
	return "invalid params for " + e.method + ": " + e.err.Error()
}

// methodNotFoundError reports a JSON-RPC method this server doesn't know.
type methodNotFoundError struct{ method string }

func (e *methodNotFoundError) Error() string { return "method not found: " + e.method }
