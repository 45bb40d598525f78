package config

import "testing"

func TestProjectSetDefaultsFillsEveryNilMapAndEntry(t *testing.T) {
	p := &Project{
		Agents: map[string]*AgentConfig{"assistant": nil},
	}
	p.SetDefaults()

	if p.Databases == nil || p.Topics == nil || p.Workflows == nil {
		t.Fatal("expected nil maps to be initialized")
	}
	if p.LLM == nil {
		t.Fatal("expected LLM to default to a non-nil config")
	}
	if p.LLM.DefaultModel != "gpt-4o-mini" {
		t.Errorf("LLM.DefaultModel = %q, want gpt-4o-mini", p.LLM.DefaultModel)
	}
	if p.LLM.MaxElapsedSeconds != 120 {
		t.Errorf("LLM.MaxElapsedSeconds = %d, want 120", p.LLM.MaxElapsedSeconds)
	}

	agent := p.Agents["assistant"]
	if agent == nil {
		t.Fatal("expected nil agent entry to be replaced with a default config")
	}
	if agent.Model != p.LLM.DefaultModel {
		t.Errorf("agent.Model = %q, want %q", agent.Model, p.LLM.DefaultModel)
	}
	if agent.MaxIterations != 10 || agent.ToolConcurrency != 4 {
		t.Errorf("agent defaults = (%d,%d), want (10,4)", agent.MaxIterations, agent.ToolConcurrency)
	}

	if p.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", p.Server.Port)
	}
	if p.Runtime.RunsDir != ".oxy/runs" {
		t.Errorf("Runtime.RunsDir = %q, want .oxy/runs", p.Runtime.RunsDir)
	}
}

func TestDatabaseConfigValidateRequiresConnectionInfo(t *testing.T) {
	cases := []struct {
		name    string
		db      DatabaseConfig
		wantErr bool
	}{
		{"sqlite with path ok", DatabaseConfig{Driver: "sqlite", Path: "./db.sqlite"}, false},
		{"sqlite missing both", DatabaseConfig{Driver: "sqlite"}, true},
		{"postgres with dsn ok", DatabaseConfig{Driver: "postgres", DSN: "postgres://x"}, false},
		{"postgres missing dsn", DatabaseConfig{Driver: "postgres"}, true},
		{"unknown driver", DatabaseConfig{Driver: "mysql"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.db.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestAgentConfigValidateRejectsUnknownTool(t *testing.T) {
	a := &AgentConfig{Model: "gpt-4o-mini", Tools: []string{"run_sql", "carrier_pigeon"}}
	if err := a.Validate(); err == nil {
		t.Fatal("expected an error for an unknown tool name")
	}

	a.Tools = []string{"run_sql", "semantic_query"}
	if err := a.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProjectValidateReferencesCatchesUndeclaredView(t *testing.T) {
	p := &Project{
		LLM: &LLMConfig{BaseURL: "https://example.test"},
		Topics: map[string]*TopicConfig{
			"orders": {
				BaseView:   "orders",
				Views:      map[string]TopicViewConfig{"orders": {Datasource: "warehouse"}},
				Dimensions: []string{"missing_view.status"},
			},
		},
	}
	p.Server.SetDefaults()

	err := p.Validate()
	if err == nil {
		t.Fatal("expected a reference validation error")
	}
}

func TestProjectGettersAndExposedAgents(t *testing.T) {
	p := &Project{
		Agents: map[string]*AgentConfig{
			"analyst":  {Exposed: true},
			"internal": {Exposed: false},
		},
		Databases: map[string]*DatabaseConfig{"warehouse": {Driver: "sqlite", Path: "x"}},
	}

	if _, ok := p.GetAgent("missing"); ok {
		t.Error("expected GetAgent(missing) to report not found")
	}
	if a, ok := p.GetAgent("analyst"); !ok || !a.Exposed {
		t.Error("expected GetAgent(analyst) to find the exposed agent")
	}
	if _, ok := p.GetDatabase("warehouse"); !ok {
		t.Error("expected GetDatabase(warehouse) to find the configured database")
	}

	exposed := p.ExposedAgents()
	if len(exposed) != 1 || exposed[0] != "analyst" {
		t.Errorf("ExposedAgents() = %v, want [analyst]", exposed)
	}

	names := p.ListAgents()
	if len(names) != 2 {
		t.Errorf("ListAgents() length = %d, want 2", len(names))
	}
}
