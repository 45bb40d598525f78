package a2aserver

import (
	"errors"
	"net/http"

	"github.com/oxy-hq/oxy/internal/oxyerr"
)

// errUnsupportedOperation marks a method this server deliberately does not
// implement (tasks/resubscribe): callers get a structured rejection rather
// than a dangling connection.
var errUnsupportedOperation = &oxyerr.A2AError{Code: RPCUnsupportedOperation, Message: "operation not supported"}

// errTaskNotFound builds the not-found error for a missing task ID.
func errTaskNotFound(id string) error {
	return &oxyerr.A2AError{Code: RPCTaskNotFound, Message: "task not found: " + id}
}

// errTaskTerminal rejects a transition out of a terminal task state.
func errTaskTerminal(id string, state TaskState) error {
	return &oxyerr.A2AError{Code: RPCInvalidParams, Message: "task " + id + " is already " + string(state) + " and cannot transition"}
}

// statusForError classifies a handler error into an HTTP status code and a
// JSON-RPC error code. Unrecognized errors map to 500/InternalError.
func statusForError(err error) (httpStatus, rpcCode int) {
	var a2aErr *oxyerr.A2AError
	if errors.As(err, &a2aErr) {
		switch a2aErr.Code {
		case RPCTaskNotFound:
			return http.StatusNotFound, RPCTaskNotFound
		case RPCUnsupportedOperation:
			return http.StatusNotImplemented, RPCUnsupportedOperation
		case RPCUnauthorized:
			return http.StatusUnauthorized, RPCUnauthorized
		case RPCForbidden:
			return http.StatusForbidden, RPCForbidden
		case RPCInvalidParams:
			return http.StatusBadRequest, RPCInvalidParams
		default:
			return http.StatusInternalServerError, RPCInternalError
		}
	}

	var valErr *oxyerr.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest, RPCInvalidParams
	}

	var paramsErr *invalidParamsError
	if errors.As(err, &paramsErr) {
		return http.StatusBadRequest, RPCInvalidParams
	}

	var methodErr *methodNotFoundError
	if errors.As(err, &methodErr) {
		return http.StatusNotFound, RPCMethodNotFound
	}

	return http.StatusInternalServerError, RPCInternalError
}

// httpErrorResponse is the HTTP+JSON binding's error body shape.
type httpErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newHTTPErrorResponse(message string, code int) httpErrorResponse {
	var resp httpErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	return resp
}

const wwwAuthenticateValue = `ApiKey realm="a2a", header="X-API-Key"`

// addWWWAuthenticate sets the challenge header on 401/403 responses, per
// the error surface's auth-challenge requirement.
func addWWWAuthenticate(w http.ResponseWriter, status int) {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		w.Header().Set("WWW-Authenticate", wwwAuthenticateValue)
	}
}
