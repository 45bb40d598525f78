// Package config loads a single project YAML file into the typed,
// validated collaborators the rest of the execution core depends on:
// connector DSNs, the LLM engine's endpoint, per-agent specs, semantic
// topics, and A2A server bindings. It mirrors the teacher's pkg/config
// map-of-named-sections idiom (SetDefaults/Validate/getters), adapted to
// Oxy's single-engine-per-project architecture (internal/workflow.Executor
// and internal/agentloop.Loop share one *llm.Engine; only the model name
// varies per agent), so — unlike the teacher's `LLMs map[string]*LLMConfig`
// — this module carries one top-level LLM section.
package config

import (
	"fmt"
	"strings"
)

// Project is the root configuration structure, decoded from oxy.yml /
// project.yml.
type Project struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`

	Databases map[string]*DatabaseConfig `yaml:"databases,omitempty"`
	LLM       *LLMConfig                 `yaml:"llm,omitempty"`
	Agents    map[string]*AgentConfig    `yaml:"agents,omitempty"`
	Topics    map[string]*TopicConfig    `yaml:"topics,omitempty"`
	Workflows map[string]string          `yaml:"workflows,omitempty"` // name -> file path, relative to the project root

	Server   ServerConfig    `yaml:"server,omitempty"`
	Logger   *LoggerConfig   `yaml:"logger,omitempty"`
	Cube     *CubeConfig     `yaml:"cube,omitempty"`
	Runtime  RuntimeConfig   `yaml:"runtime,omitempty"`
	Tracing  TracingConfig   `yaml:"tracing,omitempty"`

	// Variables is the Project tier of the task > project > OXY_VAR_* env
	// precedence (spec §4.2, §4.8.2 step 8).
	Variables map[string]string `yaml:"variables,omitempty"`

	// rootDir is the directory the project file was loaded from; not a
	// YAML field, set by Load. Implements ctxtree.ProjectHandle.
	rootDir string
}

// RootDir implements ctxtree.ProjectHandle.
func (p *Project) RootDir() string { return p.rootDir }

// LLMConfig configures the single LLM Streaming Engine endpoint a
// project's agents share.
type LLMConfig struct {
	BaseURL           string `yaml:"base_url,omitempty"`
	APIKey            string `yaml:"api_key,omitempty"`
	DefaultModel      string `yaml:"default_model,omitempty"`
	MaxElapsedSeconds int    `yaml:"max_elapsed_seconds,omitempty"`
}

func (l *LLMConfig) SetDefaults() {
	if l.MaxElapsedSeconds == 0 {
		l.MaxElapsedSeconds = 120
	}
	if l.DefaultModel == "" {
		l.DefaultModel = "gpt-4o-mini"
	}
}

func (l *LLMConfig) Validate() error {
	if l.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	return nil
}

// DatabaseConfig describes one named connector target.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" | "sqlite"
	DSN      string `yaml:"dsn,omitempty"`
	Path     string `yaml:"path,omitempty"` // sqlite file path, used when DSN is empty
	TmpDir   string `yaml:"tmp_dir,omitempty"`
}

func (d *DatabaseConfig) SetDefaults() {
	if d.Driver == "" {
		d.Driver = "sqlite"
	}
}

func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case "postgres":
		if d.DSN == "" {
			return fmt.Errorf("dsn is required for postgres databases")
		}
	case "sqlite":
		if d.DSN == "" && d.Path == "" {
			return fmt.Errorf("path or dsn is required for sqlite databases")
		}
	default:
		return fmt.Errorf("unknown driver %q, want postgres or sqlite", d.Driver)
	}
	return nil
}

// AgentConfig configures one named agent, decoding directly onto
// workflow.AgentSpec's fields (Tools is resolved separately, by name,
// through the project's tool set).
type AgentConfig struct {
	Model              string   `yaml:"model,omitempty"`
	SystemInstructions string   `yaml:"system_instructions,omitempty"`
	ReasoningEffort    string   `yaml:"reasoning_effort,omitempty"`
	Tools              []string `yaml:"tools,omitempty"`
	MaxIterations      int      `yaml:"max_iterations,omitempty"`
	ToolConcurrency    int      `yaml:"tool_concurrency,omitempty"`

	// Exposed controls whether this agent is registered on the A2A
	// Server under its own name (cmd/oxy wiring).
	Exposed bool `yaml:"exposed,omitempty"`
}

func (a *AgentConfig) SetDefaults(llm *LLMConfig) {
	if a.Model == "" && llm != nil {
		a.Model = llm.DefaultModel
	}
	if a.MaxIterations == 0 {
		a.MaxIterations = 10
	}
	if a.ToolConcurrency == 0 {
		a.ToolConcurrency = 4
	}
}

func (a *AgentConfig) Validate() error {
	if a.Model == "" {
		return fmt.Errorf("model is required")
	}
	for _, name := range a.Tools {
		switch name {
		case "run_sql", "semantic_query":
		default:
			return fmt.Errorf("unknown tool %q", name)
		}
	}
	return nil
}

// TopicConfig decodes directly onto the fields semantic.Topic needs,
// plus a named default-filter list in the YAML's own shape.
type TopicConfig struct {
	BaseView       string                     `yaml:"base_view,omitempty"`
	Views          map[string]TopicViewConfig `yaml:"views"`
	Dimensions     []string                   `yaml:"dimensions,omitempty"`
	Measures       []string                   `yaml:"measures,omitempty"`
	DefaultFilters []TopicFilterConfig        `yaml:"default_filters,omitempty"`
}

type TopicViewConfig struct {
	Datasource string `yaml:"datasource"`
}

type TopicFilterConfig struct {
	Field    string   `yaml:"field"`
	Operator string   `yaml:"operator"`
	Values   []string `yaml:"values"`
}

func (t *TopicConfig) Validate() error {
	if len(t.Views) == 0 {
		return fmt.Errorf("at least one view is required")
	}
	for name, v := range t.Views {
		if v.Datasource == "" {
			return fmt.Errorf("view %q: datasource is required", name)
		}
	}
	return nil
}

// CubeConfig points the Semantic-Query Compiler's SQLClient at a cube
// server endpoint.
type CubeConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ServerConfig configures the A2A Server's HTTP surface.
type ServerConfig struct {
	BaseURL            string `yaml:"base_url,omitempty"`
	Port               int    `yaml:"port,omitempty"`
	RequestTimeoutSecs int    `yaml:"request_timeout_seconds,omitempty"`
}

func (s *ServerConfig) SetDefaults() {
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.BaseURL == "" {
		s.BaseURL = fmt.Sprintf("http://localhost:%d", s.Port)
	}
}

func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	return nil
}

// LoggerConfig configures internal/logger's output.
type LoggerConfig struct {
	Level string `yaml:"level,omitempty"` // debug|info|warn|error
	JSON  bool   `yaml:"json,omitempty"`
}

func (l *LoggerConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", l.Level)
	}
}

// RuntimeConfig configures project-local on-disk state: the file-system
// Runs Store's directory. The Cache Layer has no directory setting of its
// own — every cacheable task already names its own cache path, rendered
// relative to the project root (internal/cache.Cache.Run), so there is no
// second root to configure.
type RuntimeConfig struct {
	RunsDir string `yaml:"runs_dir,omitempty"`
}

func (r *RuntimeConfig) SetDefaults() {
	if r.RunsDir == "" {
		r.RunsDir = ".oxy/runs"
	}
}

// TracingConfig toggles the process-wide OpenTelemetry span
// instrumentation internal/workflow and internal/agentloop already emit
// unconditionally against the globally installed TracerProvider.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
}

// SetDefaults fills in every section's defaults, in the teacher's
// nil-map-then-per-entry order.
func (p *Project) SetDefaults() {
	if p.Databases == nil {
		p.Databases = map[string]*DatabaseConfig{}
	}
	if p.Agents == nil {
		p.Agents = map[string]*AgentConfig{}
	}
	if p.Topics == nil {
		p.Topics = map[string]*TopicConfig{}
	}
	if p.Workflows == nil {
		p.Workflows = map[string]string{}
	}
	if p.LLM == nil {
		p.LLM = &LLMConfig{}
	}
	p.LLM.SetDefaults()

	for name, db := range p.Databases {
		if db == nil {
			db = &DatabaseConfig{}
			p.Databases[name] = db
		}
		db.SetDefaults()
	}
	for name, agent := range p.Agents {
		if agent == nil {
			agent = &AgentConfig{}
			p.Agents[name] = agent
		}
		agent.SetDefaults(p.LLM)
	}

	p.Server.SetDefaults()
	p.Runtime.SetDefaults()
	if p.Tracing.Enabled && p.Tracing.ServiceName == "" {
		p.Tracing.ServiceName = "oxy"
	}
}

// Validate checks every section and every cross-reference, aggregating
// failures into one joined error, mirroring the teacher's Config.Validate.
func (p *Project) Validate() error {
	var errs []string

	if err := p.LLM.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("llm: %v", err))
	}
	for name, db := range p.Databases {
		if err := db.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("database %q: %v", name, err))
		}
	}
	for name, agent := range p.Agents {
		if err := agent.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("agent %q: %v", name, err))
		}
	}
	for name, topic := range p.Topics {
		if err := topic.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("topic %q: %v", name, err))
		}
	}
	if err := p.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server: %v", err))
	}
	if p.Logger != nil {
		if err := p.Logger.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("logger: %v", err))
		}
	}

	if err := p.validateReferences(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("project configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (p *Project) validateReferences() error {
	var errs []string
	for name, topic := range p.Topics {
		for _, dim := range topic.Dimensions {
			if !strings.Contains(dim, ".") {
				continue
			}
			view := dim[:strings.Index(dim, ".")]
			if _, ok := topic.Views[view]; !ok {
				errs = append(errs, fmt.Sprintf("topic %q: dimension %q references undeclared view %q", name, dim, view))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("reference errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// GetAgent returns the agent config by name.
func (p *Project) GetAgent(name string) (*AgentConfig, bool) {
	a, ok := p.Agents[name]
	return a, ok
}

// GetDatabase returns the database config by name.
func (p *Project) GetDatabase(name string) (*DatabaseConfig, bool) {
	d, ok := p.Databases[name]
	return d, ok
}

// ListAgents returns every configured agent's name.
func (p *Project) ListAgents() []string {
	names := make([]string, 0, len(p.Agents))
	for name := range p.Agents {
		names = append(names, name)
	}
	return names
}

// ExposedAgents returns the names of agents marked Exposed, for cmd/oxy to
// register on the A2A Server. The names come out in map iteration order,
// which is not stable between calls.
func (p *Project) ExposedAgents() []string {
	var names []string
	for name, a := range p.Agents {
		if a.Exposed {
			names = append(names, name)
		}
	}
	return names
}
