package cache

import (
	"encoding/json"

	"github.com/oxy-hq/oxy/internal/ctxtree"
)

// Marshal serializes a Context to the same JSON shape the Cache Layer
// persists to disk, for collaborators (e.g. a Runs store) that need to
// snapshot a task's output outside the path-addressed cache file itself.
func Marshal(c *ctxtree.Context) ([]byte, error) {
	return json.Marshal(toSnapshot(c))
}

// Unmarshal is Marshal's inverse.
func Unmarshal(data []byte) (*ctxtree.Context, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.toContext(), nil
}

// snapshot is a JSON-friendly projection of a ctxtree.Context, built only
// from its exported accessors (Keys/Get/Items) so the cache package never
// needs access to Context's unexported ordering fields.
type snapshot struct {
	Kind          ctxtree.Kind                 `json:"kind"`
	Text          string                       `json:"text,omitempty"`
	Table         *ctxtree.TableRef            `json:"table,omitempty"`
	MapKeys       []string                     `json:"map_keys,omitempty"`
	MapValues     map[string]snapshot          `json:"map_values,omitempty"`
	ListItems     []snapshot                   `json:"list_items,omitempty"`
	SemanticQuery *ctxtree.SemanticQueryResult `json:"semantic_query,omitempty"`
}

func toSnapshot(c *ctxtree.Context) snapshot {
	if c == nil {
		return snapshot{Kind: ctxtree.KindNone}
	}
	s := snapshot{Kind: c.Kind, Text: c.Text, Table: c.Table, SemanticQuery: c.SemanticQuery}
	switch c.Kind {
	case ctxtree.KindMap:
		s.MapKeys = c.Keys()
		s.MapValues = make(map[string]snapshot, len(s.MapKeys))
		for _, k := range s.MapKeys {
			child, _ := c.Get(k)
			s.MapValues[k] = toSnapshot(child)
		}
	case ctxtree.KindList:
		for _, item := range c.Items() {
			s.ListItems = append(s.ListItems, toSnapshot(item))
		}
	}
	return s
}

func (s snapshot) toContext() *ctxtree.Context {
	switch s.Kind {
	case ctxtree.KindText:
		return ctxtree.NewText(s.Text)
	case ctxtree.KindTable:
		if s.Table != nil {
			return ctxtree.NewTable(*s.Table)
		}
		return ctxtree.NewTable(ctxtree.TableRef{})
	case ctxtree.KindSemanticQuery:
		if s.SemanticQuery != nil {
			return ctxtree.NewSemanticQuery(*s.SemanticQuery)
		}
		return ctxtree.NewSemanticQuery(ctxtree.SemanticQueryResult{})
	case ctxtree.KindMap:
		m := ctxtree.NewMap()
		for _, k := range s.MapKeys {
			m.Bind(k, s.MapValues[k].toContext())
		}
		return m
	case ctxtree.KindList:
		l := ctxtree.NewList()
		for _, item := range s.ListItems {
			l.Append(item.toContext())
		}
		return l
	default:
		return ctxtree.NewNone()
	}
}
