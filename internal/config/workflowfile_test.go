package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oxy-hq/oxy/internal/workflow"
)

func writeWorkflowFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadWorkflowFileConvertsEveryTaskKind(t *testing.T) {
	path := writeWorkflowFile(t, `
name: report
tasks:
  - name: fetch
    kind: execute_sql
    execute_sql:
      database: warehouse
      sql:
        query: "SELECT 1"
  - name: summarize
    kind: agent
    agent:
      agent_ref: analyst
      prompt: "summarize {{ .fetch }}"
  - name: render
    kind: formatter
    formatter:
      template: "{{ .summarize }}"
    export:
      path: out.md
      format: json
  - name: nested
    kind: loop_sequential
    loop_sequential:
      name: per_region
      values:
        array: ["us", "eu"]
      tasks:
        - name: inner
          kind: execute_sql
          execute_sql:
            database: warehouse
            sql:
              query: "SELECT 2"
  - name: ask_cube
    kind: semantic_query
    semantic_query:
      topic: orders
      measures: [orders.total]
      limit: 10
`)

	wf, err := loadWorkflowFile(path)
	if err != nil {
		t.Fatalf("loadWorkflowFile returned an error: %v", err)
	}
	if wf.Name != "report" {
		t.Errorf("Name = %q, want report", wf.Name)
	}
	if len(wf.Tasks) != 5 {
		t.Fatalf("len(Tasks) = %d, want 5", len(wf.Tasks))
	}

	if wf.Tasks[0].Kind != workflow.KindExecuteSQL || wf.Tasks[0].ExecuteSQL.Database != "warehouse" {
		t.Errorf("tasks[0] = %+v, want an execute_sql task against warehouse", wf.Tasks[0])
	}
	if wf.Tasks[1].Kind != workflow.KindAgent || wf.Tasks[1].Agent.AgentRef != "analyst" {
		t.Errorf("tasks[1] = %+v, want an agent task referencing analyst", wf.Tasks[1])
	}
	if wf.Tasks[2].Export == nil || wf.Tasks[2].Export.Format != workflow.ExportJSON {
		t.Errorf("tasks[2].Export = %+v, want json export", wf.Tasks[2].Export)
	}

	nested := wf.Tasks[3]
	if nested.Kind != workflow.KindLoopSequential {
		t.Fatalf("tasks[3].Kind = %v, want loop_sequential", nested.Kind)
	}
	if len(nested.LoopSeq.Tasks) != 1 || nested.LoopSeq.Tasks[0].Kind != workflow.KindExecuteSQL {
		t.Errorf("LoopSeq.Tasks = %+v, want one nested execute_sql task", nested.LoopSeq.Tasks)
	}
	if len(nested.LoopSeq.Values.Array) != 2 {
		t.Errorf("LoopSeq.Values.Array = %v, want 2 entries", nested.LoopSeq.Values.Array)
	}

	query := wf.Tasks[4]
	if query.Kind != workflow.KindSemanticQuery || query.SemanticQuery.Query.Topic != "orders" {
		t.Errorf("tasks[4] = %+v, want a semantic_query task against orders", query)
	}
	if query.SemanticQuery.Query.Limit != 10 {
		t.Errorf("semantic_query.Limit = %d, want 10", query.SemanticQuery.Query.Limit)
	}
}

func TestLoadWorkflowFileRejectsTaskMissingItsKindBlock(t *testing.T) {
	path := writeWorkflowFile(t, `
name: broken
tasks:
  - name: fetch
    kind: execute_sql
`)
	if _, err := loadWorkflowFile(path); err == nil {
		t.Fatal("expected an error when an execute_sql task has no execute_sql block")
	}
}

func TestLoadWorkflowFileRejectsUnknownKind(t *testing.T) {
	path := writeWorkflowFile(t, `
name: broken
tasks:
  - name: fetch
    kind: teleport
`)
	if _, err := loadWorkflowFile(path); err == nil {
		t.Fatal("expected an error for an unrecognized task kind")
	}
}
