package workflow

import (
	"testing"

	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstUnfinishedIndexSkipsCompletedTasks(t *testing.T) {
	tasks := []Task{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	run := Run{Outputs: []TaskOutputSnapshot{{TaskName: "a"}, {TaskName: "b"}}}

	assert.Equal(t, 2, firstUnfinishedIndex(tasks, run))
}

func TestFirstUnfinishedIndexAllDoneReturnsLength(t *testing.T) {
	tasks := []Task{{Name: "a"}}
	run := Run{Outputs: []TaskOutputSnapshot{{TaskName: "a"}}}

	assert.Equal(t, 1, firstUnfinishedIndex(tasks, run))
}

func TestSnapshotByNameIndexesByTaskName(t *testing.T) {
	run := Run{Outputs: []TaskOutputSnapshot{
		{TaskName: "a", Snapshot: []byte("1")},
		{TaskName: "b", Snapshot: []byte("2")},
	}}
	m := snapshotByName(run)
	assert.Equal(t, []byte("1"), m["a"])
	assert.Equal(t, []byte("2"), m["b"])
}

func TestOrDefaultFallsBackOnNonPositive(t *testing.T) {
	assert.Equal(t, 10, orDefault(0, 10))
	assert.Equal(t, 10, orDefault(-1, 10))
	assert.Equal(t, 5, orDefault(5, 10))
}

func TestRunLabelIsStableAndDistinct(t *testing.T) {
	assert.Equal(t, "run_0", runLabel(0))
	assert.Equal(t, "run_12", runLabel(12))
	assert.NotEqual(t, runLabel(1), runLabel(2))
}

func TestStringMapToValuesConvertsEveryEntry(t *testing.T) {
	values := stringMapToValues(map[string]string{"region": "us"})
	assert.Equal(t, render.StringVal("us"), values["region"])
}

func TestResolveLoopValuesPrefersInlineArray(t *testing.T) {
	e := &Executor{}
	values, err := e.resolveLoopValues(render.New(), LoopValues{Array: []string{"x", "y"}, Template: "{{ ignored }}"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, values)
}

func TestContextToValueExposesTableRowCountAsNumber(t *testing.T) {
	v := contextToValue(ctxtree.NewTable(ctxtree.TableRef{RowCount: 3, FilePath: "/tmp/x.arrow"}))
	require.Equal(t, render.KindMapping, v.Kind)
	assert.Equal(t, render.NumberVal(3), v.Map["row_count"])
	assert.Equal(t, render.NumberVal(3), v.Map["rows"])
	assert.Equal(t, render.StringVal("/tmp/x.arrow"), v.Map["file_path"])
}

func TestContextToValueConvertsMapAndListRecursively(t *testing.T) {
	m := ctxtree.NewMap()
	m.Bind("a", ctxtree.NewText("hi"))
	l := ctxtree.NewList()
	l.Append(ctxtree.NewText("first"))
	l.Append(ctxtree.NewText("second"))
	m.Bind("items", l)

	v := contextToValue(m)
	require.Equal(t, render.KindMapping, v.Kind)
	assert.Equal(t, render.StringVal("hi"), v.Map["a"])
	require.Equal(t, render.KindSequence, v.Map["items"].Kind)
	assert.Equal(t, render.StringVal("first"), v.Map["items"].Seq[0])
	assert.Equal(t, render.StringVal("second"), v.Map["items"].Seq[1])
}

func TestContextToValueNilContextIsNull(t *testing.T) {
	v := contextToValue(nil)
	assert.Equal(t, render.KindNull, v.Kind)
}
