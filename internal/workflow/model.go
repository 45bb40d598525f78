// Package workflow implements the Workflow Executor (spec §4.9): task
// dispatch over heterogeneous task kinds, cache wrapping, retry
// strategies, and event emission for one workflow run.
package workflow

import "github.com/oxy-hq/oxy/internal/semantic"

// TaskKind discriminates a Task's dispatch target, per spec §3.1.
type TaskKind int

const (
	KindAgent TaskKind = iota
	KindExecuteSQL
	KindFormatter
	KindSubWorkflow
	KindLoopSequential
	KindSemanticQuery
	KindUnknown
)

// CacheConfig is a task's optional cache descriptor.
type CacheConfig struct {
	Enabled bool
	Path    string
}

// ExportFormat selects the on-disk shape an export writes.
type ExportFormat int

const (
	ExportSQL ExportFormat = iota
	ExportCSV
	ExportJSON
)

// ExportConfig is a task's optional export descriptor: its produced
// output is additionally written to a rendered file path.
type ExportConfig struct {
	Path   string
	Format ExportFormat
}

// AgentTaskConfig configures a Agent-kind task.
type AgentTaskConfig struct {
	AgentRef       string
	Prompt         string
	ConsistencyRun int // >1 runs the agent that many times and keeps the modal answer
}

// SQLSource is either an inline query or a file reference, per spec
// §4.9's ExecuteSQL dispatch.
type SQLSource struct {
	Query string // used when File == ""
	File  string
}

// ExecuteSQLTaskConfig configures an ExecuteSQL-kind task.
type ExecuteSQLTaskConfig struct {
	Database  string
	SQL       SQLSource
	Variables map[string]string
}

// FormatterTaskConfig configures a Formatter-kind task.
type FormatterTaskConfig struct {
	Template string
}

// SubWorkflowTaskConfig configures a Workflow-kind (sub-workflow) task.
type SubWorkflowTaskConfig struct {
	Src       string
	Variables map[string]string
}

// LoopValues is either a template that evaluates to a sequence, or an
// inline array of literal values.
type LoopValues struct {
	Template string   // used when Array == nil
	Array    []string
}

// LoopSequentialTaskConfig configures a LoopSequential-kind task.
type LoopSequentialTaskConfig struct {
	Name        string // the loop variable's bound name
	Values      LoopValues
	Tasks       []Task
	Concurrency int
}

// SemanticQueryTaskConfig configures a SemanticQuery-kind task, mirroring
// semantic.QueryTask but left as template strings for dimensions/measures
// is unnecessary — those are plain names, not templated; only values are.
type SemanticQueryTaskConfig struct {
	Query     semantic.QueryTask
	Variables map[string]string
}

// Task is a named unit of work, per spec §3.1. Exactly one of the *Config
// fields is meaningful, selected by Kind.
type Task struct {
	Name   string
	Kind   TaskKind
	Cache  *CacheConfig
	Export *ExportConfig
	Retry  int

	Agent         AgentTaskConfig
	ExecuteSQL    ExecuteSQLTaskConfig
	Formatter     FormatterTaskConfig
	SubWorkflow   SubWorkflowTaskConfig
	LoopSeq       LoopSequentialTaskConfig
	SemanticQuery SemanticQueryTaskConfig
}

// Workflow is an ordered list of Tasks plus a variable map, per spec §3.1.
type Workflow struct {
	Name      string
	Tasks     []Task
	Variables map[string]string
}
