package config

import (
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/oxy-hq/oxy/internal/agentloop"
	"github.com/oxy-hq/oxy/internal/cache"
	"github.com/oxy-hq/oxy/internal/connector"
	"github.com/oxy-hq/oxy/internal/llm"
	"github.com/oxy-hq/oxy/internal/semantic"
	"github.com/oxy-hq/oxy/internal/tools"
	"github.com/oxy-hq/oxy/internal/workflow"
)

// Runtime is every collaborator cmd/oxy needs, built once from a loaded
// Project: the shared LLM engine, the semantic compiler, the workflow
// executor, and the connector/agent/workflow resolvers the executor
// depends on. Building it is the module's composition root — the one
// place internal/config imports every other execution-core package.
type Runtime struct {
	Project  *Project
	Engine   *llm.Engine
	Compiler *semantic.Compiler
	Cache    *cache.Cache
	Executor *workflow.Executor
	Runs     *FileRunsStore

	connMu    sync.Mutex
	conns     map[string]connector.Connector
}

// Build assembles a Runtime from an already-loaded, defaulted, validated
// Project.
func Build(p *Project) (*Runtime, error) {
	engine := llm.New(p.LLM.BaseURL, p.LLM.APIKey,
		llm.WithMaxElapsedTime(time.Duration(p.LLM.MaxElapsedSeconds)*time.Second))

	rt := &Runtime{Project: p, Engine: engine, conns: map[string]connector.Connector{}}

	registry := BuildSemanticRegistry(p)
	cubeBaseURL := ""
	if p.Cube != nil {
		cubeBaseURL = p.Cube.BaseURL
	}
	sqlClient := semantic.NewSQLClient(http.DefaultClient, cubeBaseURL)
	rt.Compiler = semantic.NewCompiler(registry, sqlClient, rt.resolveConnector)

	rt.Cache = cache.New(p.RootDir())

	runsDir := filepath.Join(p.RootDir(), p.Runtime.RunsDir)
	rt.Runs = NewFileRunsStore(runsDir)

	rt.Executor = workflow.NewExecutor(
		engine,
		agentResolver{rt: rt},
		workflowResolver{rootDir: p.RootDir(), workflows: p.Workflows},
		rt.resolveConnector,
		rt.Compiler,
		rt.Cache,
		workflow.WithRunsStore(rt.Runs),
		workflow.WithProjectVariables(p.Variables),
	)

	return rt, nil
}

// resolveConnector implements both workflow.ConnectorResolver and
// semantic.ConnectorResolver (identical signatures), opening and caching
// one Connector per database name for the Runtime's lifetime.
func (rt *Runtime) resolveConnector(databaseRef string) (connector.Connector, error) {
	rt.connMu.Lock()
	defer rt.connMu.Unlock()

	if c, ok := rt.conns[databaseRef]; ok {
		return c, nil
	}

	db, ok := rt.Project.GetDatabase(databaseRef)
	if !ok {
		return nil, fmt.Errorf("no database configured named %q", databaseRef)
	}

	tmpDir := db.TmpDir
	var (
		c   *connector.SQLConnector
		err error
	)
	switch db.Driver {
	case "postgres":
		c, err = connector.OpenPostgres(db.DSN, tmpDir)
	default:
		dsn := db.DSN
		if dsn == "" {
			dsn = db.Path
		}
		c, err = connector.OpenSQLite(dsn, tmpDir)
	}
	if err != nil {
		return nil, err
	}
	rt.conns[databaseRef] = c
	return c, nil
}

// Close releases every opened connector.
func (rt *Runtime) Close() error {
	rt.connMu.Lock()
	defer rt.connMu.Unlock()
	var firstErr error
	for _, c := range rt.conns {
		if closer, ok := c.(*connector.SQLConnector); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ResolveExposedAgent resolves an agent spec by name, for cmd/oxy to build
// a standalone agentloop.Loop outside of any workflow task. It is the
// exported front door onto the same agentResolver the Executor itself
// uses internally.
func (rt *Runtime) ResolveExposedAgent(name string) (workflow.AgentSpec, error) {
	return agentResolver{rt: rt}.ResolveAgent(name)
}

// agentResolver implements workflow.AgentResolver against the project's
// agent configs, building each agent's tool set from its configured tool
// names.
type agentResolver struct{ rt *Runtime }

func (a agentResolver) ResolveAgent(ref string) (workflow.AgentSpec, error) {
	cfg, ok := a.rt.Project.GetAgent(ref)
	if !ok {
		return workflow.AgentSpec{}, fmt.Errorf("no agent configured named %q", ref)
	}

	toolSet := make([]agentloop.Tool, 0, len(cfg.Tools))
	for _, name := range cfg.Tools {
		switch name {
		case "run_sql":
			toolSet = append(toolSet, tools.NewSQLTool(a.rt.resolveConnector))
		case "semantic_query":
			toolSet = append(toolSet, tools.NewSemanticQueryTool(a.rt.Compiler, a.rt.Project.Variables))
		default:
			return workflow.AgentSpec{}, fmt.Errorf("agent %q: unknown tool %q", ref, name)
		}
	}

	return workflow.AgentSpec{
		Model:              cfg.Model,
		SystemInstructions: cfg.SystemInstructions,
		ReasoningEffort:    cfg.ReasoningEffort,
		Tools:              toolSet,
		MaxIterations:      cfg.MaxIterations,
		ToolConcurrency:    cfg.ToolConcurrency,
	}, nil
}

// workflowResolver implements workflow.WorkflowResolver against the
// project's named workflow files.
type workflowResolver struct {
	rootDir   string
	workflows map[string]string
}

func (w workflowResolver) ResolveWorkflow(src string) (workflow.Workflow, error) {
	path, ok := w.workflows[src]
	if !ok {
		// src may already be a project-relative file path rather than a
		// named workflow, e.g. a sub_workflow task's literal src.
		path = src
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.rootDir, path)
	}
	return loadWorkflowFile(path)
}
