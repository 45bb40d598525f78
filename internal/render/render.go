// Package render implements the Template Renderer (spec §4.2): a mustache-
// style string substitution built on raymond, plus a typed dot-path
// expression evaluator for callers that need a value rather than a string.
package render

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mbleigh/raymond"
	"github.com/oxy-hq/oxy/internal/oxyerr"
)

// Value is a typed result of evaluating an expression: a string, number,
// bool, sequence, mapping, or a reified table handle (any concrete type
// supplied by the caller, e.g. a *ctxtree.Table).
type Value struct {
	Kind     ValueKind
	Str      string
	Num      float64
	Bool     bool
	Seq      []Value
	Map      map[string]Value
	TableRef any
}

type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindSequence
	KindMapping
	KindTable
	KindNull
)

// Scope is one layer of the lookup-precedence chain. Renderer resolves
// names by walking scopes in the order they were passed to New,
// highest precedence first.
type Scope struct {
	name string
	vars map[string]Value
}

// NewScope wraps a variable map with a label used only for diagnostics.
func NewScope(name string, vars map[string]Value) Scope {
	return Scope{name: name, vars: vars}
}

// Renderer evaluates templates and expressions against an ordered chain of
// scopes: task-local, loop, workflow, project globals, then OXY_VAR_*
// environment variables, highest precedence first.
type Renderer struct {
	scopes []Scope
}

// New builds a Renderer. scopes must be supplied highest-precedence first;
// New appends an environment-variable scope (OXY_VAR_* with the prefix
// stripped) last, below every explicit scope.
func New(scopes ...Scope) *Renderer {
	r := &Renderer{scopes: append([]Scope(nil), scopes...)}
	r.scopes = append(r.scopes, NewScope("env", envScope()))
	return r
}

func envScope() map[string]Value {
	out := map[string]Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, "OXY_VAR_") {
			continue
		}
		name := strings.TrimPrefix(k, "OXY_VAR_")
		out[name] = stringValue(v)
	}
	return out
}

// Clone returns a Renderer with an independent copy of the scope slice, so
// a child task can push its own scope without affecting the parent. Per
// spec §5.5 the Renderer is cloned per task to avoid contention.
func (r *Renderer) Clone() *Renderer {
	clone := &Renderer{scopes: append([]Scope(nil), r.scopes...)}
	return clone
}

// WithScope returns a clone with an additional scope pushed at the highest
// precedence.
func (r *Renderer) WithScope(s Scope) *Renderer {
	clone := &Renderer{scopes: append([]Scope{s}, r.scopes...)}
	return clone
}

// contextMap flattens the scope chain into the single map raymond expects,
// applying precedence by letting higher-precedence scopes overwrite lower
// ones as the map is built from lowest to highest.
func (r *Renderer) contextMap() map[string]any {
	merged := map[string]any{}
	for i := len(r.scopes) - 1; i >= 0; i-- {
		for k, v := range r.scopes[i].vars {
			merged[k] = toRaw(v)
		}
	}
	return merged
}

func toRaw(v Value) any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindSequence:
		out := make([]any, len(v.Seq))
		for i, e := range v.Seq {
			out[i] = toRaw(e)
		}
		return out
	case KindMapping:
		out := map[string]any{}
		for k, e := range v.Map {
			out[k] = toRaw(e)
		}
		return out
	case KindTable:
		return v.TableRef
	default:
		return nil
	}
}

func stringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// RenderStr substitutes every {{ expr }} occurrence in template. A string
// with no {{ markers renders unchanged, satisfying idempotence: rendering
// an already-rendered string yields the same string.
func (r *Renderer) RenderStr(template string) (string, error) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}
	out, err := raymond.Render(template, r.contextMap())
	if err != nil {
		return "", &oxyerr.TemplateError{Expression: template, Message: err.Error()}
	}
	return out, nil
}

// Eval evaluates a single dot-path expression (e.g. "task.output.rows",
// "vars.region") against the scope chain and returns a typed Value.
// Unlike RenderStr, Eval never stringifies: it returns the underlying
// value so callers can branch on its kind.
func (r *Renderer) Eval(expr string) (Value, error) {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "{{")
	expr = strings.TrimSuffix(expr, "}}")
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Value{}, &oxyerr.TemplateError{Message: "empty expression"}
	}

	segments := strings.Split(expr, ".")
	root := segments[0]

	var current Value
	found := false
	for _, scope := range r.scopes {
		if v, ok := scope.vars[root]; ok {
			current = v
			found = true
			break
		}
	}
	if !found {
		if n, err := strconv.ParseFloat(expr, 64); err == nil && len(segments) == 1 {
			return Value{Kind: KindNumber, Num: n}, nil
		}
		if expr == "true" || expr == "false" {
			return Value{Kind: KindBool, Bool: expr == "true"}, nil
		}
		return Value{}, &oxyerr.TemplateError{Expression: expr, Message: fmt.Sprintf("unknown name %q", root)}
	}

	for _, seg := range segments[1:] {
		switch current.Kind {
		case KindMapping:
			next, ok := current.Map[seg]
			if !ok {
				return Value{}, &oxyerr.TemplateError{Expression: expr, Message: fmt.Sprintf("unknown name %q", seg)}
			}
			current = next
		case KindSequence:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(current.Seq) {
				return Value{}, &oxyerr.TemplateError{Expression: expr, Message: fmt.Sprintf("index %q out of range", seg)}
			}
			current = current.Seq[idx]
		default:
			return Value{}, &oxyerr.TemplateError{Expression: expr, Message: fmt.Sprintf("cannot index into %v at %q", current.Kind, seg)}
		}
	}
	return current, nil
}

// EvalEnumerate requires expr to evaluate to a sequence and returns its
// elements as strings (via Stringify), failing with a TemplateError
// otherwise.
func (r *Renderer) EvalEnumerate(expr string) ([]string, error) {
	v, err := r.Eval(expr)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindSequence {
		return nil, &oxyerr.TemplateError{Expression: expr, Message: "expected a sequence"}
	}
	out := make([]string, len(v.Seq))
	for i, e := range v.Seq {
		out[i] = Stringify(e)
	}
	return out, nil
}

// Stringify renders a Value the way raymond would when interpolating it
// into a template.
func Stringify(v Value) string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		if v.Num == float64(int64(v.Num)) {
			return strconv.FormatInt(int64(v.Num), 10)
		}
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNull:
		return ""
	default:
		return fmt.Sprintf("%v", toRaw(v))
	}
}

// StringVal, NumberVal, BoolVal are convenience constructors used by
// callers building scopes.
func StringVal(s string) Value   { return Value{Kind: KindString, Str: s} }
func NumberVal(n float64) Value  { return Value{Kind: KindNumber, Num: n} }
func BoolVal(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func SequenceVal(s []Value) Value { return Value{Kind: KindSequence, Seq: s} }
func MappingVal(m map[string]Value) Value { return Value{Kind: KindMapping, Map: m} }
func TableVal(ref any) Value     { return Value{Kind: KindTable, TableRef: ref} }
func NullVal() Value             { return Value{Kind: KindNull} }
