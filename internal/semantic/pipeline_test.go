package semantic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxy-hq/oxy/internal/render"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCompileRendersValidatesAndSubstitutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sql":{"status":"ok","sql":["SELECT * FROM orders WHERE region = $1", ["${region}"]]}}`))
	}))
	defer srv.Close()

	registry := NewRegistry(Topic{
		Name:       "orders_topic",
		BaseView:   "orders",
		Views:      map[string]View{"orders": {Name: "orders", Datasource: "warehouse"}},
		Dimensions: map[string]bool{"orders.status": true},
		Measures:   map[string]bool{"orders.total": true},
	})
	client := NewSQLClient(nil, srv.URL)
	compiler := NewCompiler(registry, client, nil, WithClock(fixedClock(time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))))

	task := QueryTask{
		Topic:      "orders_topic",
		Dimensions: []string{"orders.status"},
		Measures:   []string{"orders.total"},
		Limit:      -1,
	}
	r := render.New()
	result, err := compiler.Compile(context.Background(), r, task, VariableScope{Task: map[string]string{"region": "eu"}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders WHERE region = 'eu'", result.SQL)
	assert.Equal(t, "orders_topic", result.Topic.Name)
}

func TestCompileFailsValidationOnUnknownField(t *testing.T) {
	registry := NewRegistry(Topic{Name: "orders_topic", Dimensions: map[string]bool{}, Measures: map[string]bool{}})
	compiler := NewCompiler(registry, NewSQLClient(nil, "http://unused"), nil)

	task := QueryTask{Topic: "orders_topic", Dimensions: []string{"orders.nope"}, Limit: -1}
	_, err := compiler.Compile(context.Background(), render.New(), task, VariableScope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnknownField")
}

func TestCompileFailsValidationOnZeroLimit(t *testing.T) {
	registry := NewRegistry(Topic{Name: "orders_topic", Dimensions: map[string]bool{}, Measures: map[string]bool{}})
	compiler := NewCompiler(registry, NewSQLClient(nil, "http://unused"), nil)

	task := QueryTask{Topic: "orders_topic", Limit: 0}
	_, err := compiler.Compile(context.Background(), render.New(), task, VariableScope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Limit must be greater than 0")
}
