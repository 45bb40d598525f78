package a2aserver

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// writeSSEHeaders sets the response headers required before the first
// frame is flushed.
func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEFrame writes one W3C-format Server-Sent Event frame:
// "event: <type>\nid: <id>\ndata: <json>\n\n". data is marshaled to JSON;
// a marshal failure degrades to an error frame carrying the failure text
// rather than silently dropping the event.
func writeSSEFrame(w http.ResponseWriter, eventType, id string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		eventType = EventError
		payload, _ = json.Marshal(map[string]string{"message": fmt.Sprintf("failed to serialize event: %v", err)})
	}
	if eventType != "" {
		fmt.Fprintf(w, "event: %s\n", eventType)
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
