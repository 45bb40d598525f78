package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/oxy-hq/oxy/internal/semantic"
	"github.com/oxy-hq/oxy/internal/workflow"
)

// workflowFile is the on-disk YAML shape for one workflow, decoded
// separately from Project since workflow.Task's Kind field is a closed
// enum the wire format spells as a string discriminator.
type workflowFile struct {
	Name      string             `yaml:"name"`
	Variables map[string]string  `yaml:"variables,omitempty"`
	Tasks     []taskFile         `yaml:"tasks"`
}

type taskFile struct {
	Name   string          `yaml:"name"`
	Kind   string          `yaml:"kind"`
	Cache  *cacheFile      `yaml:"cache,omitempty"`
	Export *exportFile     `yaml:"export,omitempty"`
	Retry  int             `yaml:"retry,omitempty"`

	Agent         *agentTaskFile         `yaml:"agent,omitempty"`
	ExecuteSQL    *executeSQLTaskFile    `yaml:"execute_sql,omitempty"`
	Formatter     *formatterTaskFile     `yaml:"formatter,omitempty"`
	SubWorkflow   *subWorkflowTaskFile   `yaml:"sub_workflow,omitempty"`
	LoopSeq       *loopSequentialFile    `yaml:"loop_sequential,omitempty"`
	SemanticQuery *semanticQueryTaskFile `yaml:"semantic_query,omitempty"`
}

type cacheFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

type exportFile struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // sql|csv|json
}

type agentTaskFile struct {
	AgentRef       string `yaml:"agent_ref"`
	Prompt         string `yaml:"prompt"`
	ConsistencyRun int    `yaml:"consistency_run,omitempty"`
}

type sqlSourceFile struct {
	Query string `yaml:"query,omitempty"`
	File  string `yaml:"file,omitempty"`
}

type executeSQLTaskFile struct {
	Database  string            `yaml:"database"`
	SQL       sqlSourceFile     `yaml:"sql"`
	Variables map[string]string `yaml:"variables,omitempty"`
}

type formatterTaskFile struct {
	Template string `yaml:"template"`
}

type subWorkflowTaskFile struct {
	Src       string            `yaml:"src"`
	Variables map[string]string `yaml:"variables,omitempty"`
}

type loopValuesFile struct {
	Template string   `yaml:"template,omitempty"`
	Array    []string `yaml:"array,omitempty"`
}

type loopSequentialFile struct {
	Name        string         `yaml:"name"`
	Values      loopValuesFile `yaml:"values"`
	Tasks       []taskFile     `yaml:"tasks"`
	Concurrency int            `yaml:"concurrency,omitempty"`
}

type semanticFilterFile struct {
	Field    string   `yaml:"field"`
	Operator string   `yaml:"operator"`
	Values   []string `yaml:"values,omitempty"`
}

type semanticOrderFile struct {
	Field     string `yaml:"field"`
	Direction string `yaml:"direction,omitempty"`
}

type semanticTimeDimensionFile struct {
	Field            string   `yaml:"field"`
	Granularity      string   `yaml:"granularity,omitempty"`
	DateRange        []string `yaml:"date_range,omitempty"`
	CompareDateRange []string `yaml:"compare_date_range,omitempty"`
}

type semanticQueryTaskFile struct {
	Topic          string                      `yaml:"topic"`
	Dimensions     []string                    `yaml:"dimensions,omitempty"`
	Measures       []string                    `yaml:"measures,omitempty"`
	Filters        []semanticFilterFile        `yaml:"filters,omitempty"`
	Orders         []semanticOrderFile         `yaml:"orders,omitempty"`
	TimeDimensions []semanticTimeDimensionFile `yaml:"time_dimensions,omitempty"`
	Limit          int                         `yaml:"limit,omitempty"`
	Offset         int                         `yaml:"offset,omitempty"`
	Export         string                      `yaml:"export,omitempty"`
	Variables      map[string]string           `yaml:"variables,omitempty"`
}

// loadWorkflowFile reads and decodes a workflow YAML file, expanding env
// references the same way the project file itself is expanded.
func loadWorkflowFile(path string) (workflow.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return workflow.Workflow{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return workflow.Workflow{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	expanded, _ := expandEnvVarsInData(raw).(map[string]interface{})

	var wf workflowFile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &wf,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return workflow.Workflow{}, err
	}
	if err := decoder.Decode(expanded); err != nil {
		return workflow.Workflow{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	return convertWorkflowFile(wf)
}

func convertWorkflowFile(wf workflowFile) (workflow.Workflow, error) {
	tasks, err := convertTasks(wf.Tasks)
	if err != nil {
		return workflow.Workflow{}, err
	}
	return workflow.Workflow{Name: wf.Name, Tasks: tasks, Variables: wf.Variables}, nil
}

func convertTasks(files []taskFile) ([]workflow.Task, error) {
	tasks := make([]workflow.Task, len(files))
	for i, tf := range files {
		t, err := convertTask(tf)
		if err != nil {
			return nil, err
		}
		tasks[i] = t
	}
	return tasks, nil
}

func convertTask(tf taskFile) (workflow.Task, error) {
	kind, err := parseTaskKind(tf.Kind)
	if err != nil {
		return workflow.Task{}, fmt.Errorf("task %q: %w", tf.Name, err)
	}

	t := workflow.Task{Name: tf.Name, Kind: kind, Retry: tf.Retry}
	if tf.Cache != nil {
		t.Cache = &workflow.CacheConfig{Enabled: tf.Cache.Enabled, Path: tf.Cache.Path}
	}
	if tf.Export != nil {
		format, err := parseExportFormat(tf.Export.Format)
		if err != nil {
			return workflow.Task{}, fmt.Errorf("task %q: %w", tf.Name, err)
		}
		t.Export = &workflow.ExportConfig{Path: tf.Export.Path, Format: format}
	}

	switch kind {
	case workflow.KindAgent:
		if tf.Agent == nil {
			return workflow.Task{}, fmt.Errorf("task %q: kind agent requires an agent block", tf.Name)
		}
		t.Agent = workflow.AgentTaskConfig{AgentRef: tf.Agent.AgentRef, Prompt: tf.Agent.Prompt, ConsistencyRun: tf.Agent.ConsistencyRun}
	case workflow.KindExecuteSQL:
		if tf.ExecuteSQL == nil {
			return workflow.Task{}, fmt.Errorf("task %q: kind execute_sql requires an execute_sql block", tf.Name)
		}
		t.ExecuteSQL = workflow.ExecuteSQLTaskConfig{
			Database:  tf.ExecuteSQL.Database,
			SQL:       workflow.SQLSource{Query: tf.ExecuteSQL.SQL.Query, File: tf.ExecuteSQL.SQL.File},
			Variables: tf.ExecuteSQL.Variables,
		}
	case workflow.KindFormatter:
		if tf.Formatter == nil {
			return workflow.Task{}, fmt.Errorf("task %q: kind formatter requires a formatter block", tf.Name)
		}
		t.Formatter = workflow.FormatterTaskConfig{Template: tf.Formatter.Template}
	case workflow.KindSubWorkflow:
		if tf.SubWorkflow == nil {
			return workflow.Task{}, fmt.Errorf("task %q: kind sub_workflow requires a sub_workflow block", tf.Name)
		}
		t.SubWorkflow = workflow.SubWorkflowTaskConfig{Src: tf.SubWorkflow.Src, Variables: tf.SubWorkflow.Variables}
	case workflow.KindLoopSequential:
		if tf.LoopSeq == nil {
			return workflow.Task{}, fmt.Errorf("task %q: kind loop_sequential requires a loop_sequential block", tf.Name)
		}
		inner, err := convertTasks(tf.LoopSeq.Tasks)
		if err != nil {
			return workflow.Task{}, err
		}
		t.LoopSeq = workflow.LoopSequentialTaskConfig{
			Name:        tf.LoopSeq.Name,
			Values:      workflow.LoopValues{Template: tf.LoopSeq.Values.Template, Array: tf.LoopSeq.Values.Array},
			Tasks:       inner,
			Concurrency: tf.LoopSeq.Concurrency,
		}
	case workflow.KindSemanticQuery:
		if tf.SemanticQuery == nil {
			return workflow.Task{}, fmt.Errorf("task %q: kind semantic_query requires a semantic_query block", tf.Name)
		}
		query, err := convertSemanticQueryTaskFile(*tf.SemanticQuery)
		if err != nil {
			return workflow.Task{}, fmt.Errorf("task %q: %w", tf.Name, err)
		}
		t.SemanticQuery = workflow.SemanticQueryTaskConfig{Query: query, Variables: tf.SemanticQuery.Variables}
	}
	return t, nil
}

func convertSemanticQueryTaskFile(f semanticQueryTaskFile) (semantic.QueryTask, error) {
	filters := make([]semantic.FilterInput, len(f.Filters))
	for i, ff := range f.Filters {
		filters[i] = semantic.FilterInput{Field: ff.Field, Operator: ff.Operator, Values: ff.Values}
	}
	orders := make([]semantic.OrderInput, len(f.Orders))
	for i, of := range f.Orders {
		orders[i] = semantic.OrderInput{Field: of.Field, Direction: of.Direction}
	}
	timeDims := make([]semantic.TimeDimensionInput, len(f.TimeDimensions))
	for i, td := range f.TimeDimensions {
		timeDims[i] = semantic.TimeDimensionInput{
			Field:            td.Field,
			Granularity:      semantic.Granularity(td.Granularity),
			DateRange:        pairOf(td.DateRange),
			CompareDateRange: pairOf(td.CompareDateRange),
		}
	}

	limit := f.Limit
	if limit == 0 {
		limit = -1
	}

	return semantic.QueryTask{
		Topic:          f.Topic,
		Dimensions:     f.Dimensions,
		Measures:       f.Measures,
		Filters:        filters,
		Orders:         orders,
		TimeDimensions: timeDims,
		Limit:          limit,
		Offset:         f.Offset,
		Variables:      f.Variables,
		Export:         f.Export,
	}, nil
}

func pairOf(s []string) [2]string {
	var out [2]string
	for i := 0; i < len(s) && i < 2; i++ {
		out[i] = s[i]
	}
	return out
}

func parseTaskKind(s string) (workflow.TaskKind, error) {
	switch s {
	case "agent":
		return workflow.KindAgent, nil
	case "execute_sql":
		return workflow.KindExecuteSQL, nil
	case "formatter":
		return workflow.KindFormatter, nil
	case "sub_workflow":
		return workflow.KindSubWorkflow, nil
	case "loop_sequential":
		return workflow.KindLoopSequential, nil
	case "semantic_query":
		return workflow.KindSemanticQuery, nil
	default:
		return workflow.KindUnknown, fmt.Errorf("unknown task kind %q", s)
	}
}

func parseExportFormat(s string) (workflow.ExportFormat, error) {
	switch s {
	case "sql":
		return workflow.ExportSQL, nil
	case "csv":
		return workflow.ExportCSV, nil
	case "json":
		return workflow.ExportJSON, nil
	default:
		return 0, fmt.Errorf("unknown export format %q", s)
	}
}
