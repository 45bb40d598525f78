package config

import (
	"context"
	"errors"
	"testing"

	"github.com/oxy-hq/oxy/internal/cache"
	"github.com/oxy-hq/oxy/internal/connector"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/llm"
	"github.com/oxy-hq/oxy/internal/render"
	"github.com/oxy-hq/oxy/internal/semantic"
	"github.com/oxy-hq/oxy/internal/workflow"
)

type noAgents struct{}

func (noAgents) ResolveAgent(ref string) (workflow.AgentSpec, error) {
	return workflow.AgentSpec{}, errors.New("no agents configured in this test")
}

type noWorkflows struct{}

func (noWorkflows) ResolveWorkflow(src string) (workflow.Workflow, error) {
	return workflow.Workflow{}, errors.New("no sub-workflows configured in this test")
}

func failingConnectorResolver(ref string) (connector.Connector, error) {
	return nil, errors.New("unreachable database " + ref)
}

func TestRunWorkflowSnapshotsCompletedOutputsOnFailure(t *testing.T) {
	dir := t.TempDir()
	store := NewFileRunsStore(dir)

	rt := &Runtime{
		Runs:  store,
		Cache: cache.New(t.TempDir()),
	}
	rt.Executor = workflow.NewExecutor(
		llm.New("https://api.openai.test/v1", "unused"),
		noAgents{},
		noWorkflows{},
		failingConnectorResolver,
		semantic.NewCompiler(semantic.NewRegistry(), nil, nil),
		rt.Cache,
		workflow.WithRunsStore(store),
	)

	wf := workflow.Workflow{
		Name: "two-step",
		Tasks: []workflow.Task{
			{Name: "good", Kind: workflow.KindFormatter, Formatter: workflow.FormatterTaskConfig{Template: "ok"}},
			{Name: "bad", Kind: workflow.KindExecuteSQL, ExecuteSQL: workflow.ExecuteSQLTaskConfig{Database: "missing", SQL: workflow.SQLSource{Query: "select 1"}}},
		},
	}

	ec := ctxtree.NewExecutionContext(fakeRunProject{dir: t.TempDir()}, event.New(16).Root(), context.Background())
	r := render.New()

	err := rt.RunWorkflow(context.Background(), ec, r, wf, workflow.RetryStrategy{})
	if err == nil {
		t.Fatal("expected RunWorkflow to surface the execute_sql task's failure")
	}

	saved, loadErr := store.LastFailedRun("two-step")
	if loadErr != nil {
		t.Fatalf("expected a saved failed run, got %v", loadErr)
	}
	if saved.FailedAt != "bad" {
		t.Errorf("FailedAt = %q, want bad", saved.FailedAt)
	}
	if len(saved.Outputs) != 1 || saved.Outputs[0].TaskName != "good" {
		t.Errorf("Outputs = %+v, want one snapshot for the completed 'good' task", saved.Outputs)
	}
}

type fakeRunProject struct{ dir string }

func (p fakeRunProject) RootDir() string { return p.dir }
