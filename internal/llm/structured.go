package llm

import (
	"encoding/json"

	"github.com/oxy-hq/oxy/internal/event"
)

// structuredEnvelope is the JSON document a structured-output turn is
// expected to converge to: {"data": {"kind": "text"|"sql"|"table", ...}}.
type structuredEnvelope struct {
	Data struct {
		Kind    string          `json:"kind"`
		Payload json.RawMessage `json:"payload"`
	} `json:"data"`
}

// structuredParser is a best-effort incremental parser for structured-
// output turns (spec §4.6.4). Partial JSON is expected on every call but
// the last few; feed attempts a full unmarshal of the accumulated content
// on every call and only succeeds once the document is complete, at which
// point it classifies the output kind and returns a single Chunk carrying
// the classified payload instead of the raw JSON envelope. Until then feed
// returns ok=false and the caller falls back to plain-text emission.
type structuredParser struct {
	classified bool
}

func newStructuredParser() *structuredParser {
	return &structuredParser{}
}

func (p *structuredParser) feed(content string) (event.Chunk, bool) {
	if p.classified {
		return event.Chunk{}, false
	}
	var env structuredEnvelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return event.Chunk{}, false
	}
	if env.Data.Kind == "" {
		return event.Chunk{}, false
	}

	p.classified = true
	switch env.Data.Kind {
	case "sql":
		var sql string
		_ = json.Unmarshal(env.Data.Payload, &sql)
		return event.Chunk{Key: "content", Kind: event.ChunkSQL, Delta: sql, Finished: true}, true
	case "table":
		var payload any
		_ = json.Unmarshal(env.Data.Payload, &payload)
		return event.Chunk{Key: "content", Kind: event.ChunkTable, Payload: payload, Finished: true}, true
	default: // "text" and any unrecognized kind fall back to text framing
		var text string
		_ = json.Unmarshal(env.Data.Payload, &text)
		return event.Chunk{Key: "content", Kind: event.ChunkText, Delta: text, Finished: true}, true
	}
}
