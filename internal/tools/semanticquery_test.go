package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxy-hq/oxy/internal/connector"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/semantic"
)

func topicWithDatasource() semantic.Topic {
	return semantic.Topic{
		Name:       "widgets_topic",
		BaseView:   "widgets",
		Views:      map[string]semantic.View{"widgets": {Name: "widgets", Datasource: "warehouse"}},
		Dimensions: map[string]bool{"widgets.name": true},
		Measures:   map[string]bool{},
	}
}

func TestSemanticQueryToolExecutesAndReturnsSemanticQueryContext(t *testing.T) {
	conn := openTestConnector(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sql":{"status":"ok","sql":["SELECT id, name FROM widgets", []]}}`))
	}))
	defer srv.Close()

	registry := semantic.NewRegistry(topicWithDatasource())
	resolver := func(ref string) (connector.Connector, error) { return conn, nil }
	compiler := semantic.NewCompiler(registry, semantic.NewSQLClient(nil, srv.URL), resolver)

	tool := NewSemanticQueryTool(compiler, nil)
	args, err := json.Marshal(map[string]any{"topic": "widgets_topic", "dimensions": []string{"widgets.name"}})
	require.NoError(t, err)

	out, err := tool.Call(context.Background(), newTestExecutionContext(t), args)
	require.NoError(t, err)
	require.NotNil(t, out.Context)
	assert.Equal(t, ctxtree.KindSemanticQuery, out.Context.Kind)
	assert.Contains(t, out.Truncated, "gear")
}

func TestSemanticQueryToolRejectsMissingTopic(t *testing.T) {
	tool := NewSemanticQueryTool(nil, nil)
	_, err := tool.Call(context.Background(), newTestExecutionContext(t), json.RawMessage(`{}`))
	assert.Error(t, err)
}
