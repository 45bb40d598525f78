package render_test

import (
	"testing"

	"github.com/oxy-hq/oxy/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scopes() (task, workflow render.Scope) {
	task = render.NewScope("task", map[string]render.Value{
		"region": render.StringVal("us-east"),
	})
	workflow = render.NewScope("workflow", map[string]render.Value{
		"region": render.StringVal("global"),
		"limit":  render.NumberVal(10),
		"tags":   render.SequenceVal([]render.Value{render.StringVal("a"), render.StringVal("b")}),
	})
	return
}

func TestRenderStrSubstitutesExpression(t *testing.T) {
	task, workflow := scopes()
	r := render.New(task, workflow)

	out, err := r.RenderStr("region={{region}} limit={{limit}}")
	require.NoError(t, err)
	assert.Equal(t, "region=us-east limit=10", out)
}

func TestRenderStrIdempotentWithoutMarkers(t *testing.T) {
	r := render.New()
	out, err := r.RenderStr("plain string")
	require.NoError(t, err)
	assert.Equal(t, "plain string", out)
}

func TestLookupPrecedenceTaskBeatsWorkflow(t *testing.T) {
	task, workflow := scopes()
	r := render.New(task, workflow)

	v, err := r.Eval("region")
	require.NoError(t, err)
	assert.Equal(t, "us-east", v.Str)
}

func TestEvalEnumerateRequiresSequence(t *testing.T) {
	task, workflow := scopes()
	r := render.New(task, workflow)

	_, err := r.Eval("tags")
	require.NoError(t, err)

	vals, err := r.EvalEnumerate("tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, vals)

	_, err = r.EvalEnumerate("limit")
	require.Error(t, err)
}

func TestEvalUnknownNameFails(t *testing.T) {
	r := render.New()
	_, err := r.Eval("does_not_exist")
	require.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	task, workflow := scopes()
	r := render.New(task, workflow)
	clone := r.WithScope(render.NewScope("loop", map[string]render.Value{"region": render.StringVal("eu-west")}))

	v, err := clone.Eval("region")
	require.NoError(t, err)
	assert.Equal(t, "eu-west", v.Str)

	orig, err := r.Eval("region")
	require.NoError(t, err)
	assert.Equal(t, "us-east", orig.Str)
}
