// Command oxy loads a project file, builds its agent loop and workflow
// executor, and serves every exposed agent over the A2A protocol.
//
// Usage:
//
//	oxy serve --config oxy.yml
//	oxy validate --config oxy.yml
//	oxy version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/oxy-hq/oxy/internal/a2aserver"
	"github.com/oxy-hq/oxy/internal/agentloop"
	"github.com/oxy-hq/oxy/internal/config"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/logger"
	"github.com/oxy-hq/oxy/internal/observability"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the A2A server for every exposed agent."`
	Validate ValidateCmd `cmd:"" help:"Validate a project file."`

	Config    string `short:"c" help:"Path to the project file." type:"path" default:"oxy.yml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log output format (text or json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("oxy version %s\n", version)
	return nil
}

// ValidateCmd loads and validates a project file without serving it.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	p, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok (%d agent(s), %d database(s), %d topic(s))\n",
		cli.Config, len(p.ListAgents()), len(p.Databases), len(p.Topics))
	return nil
}

// ServeCmd starts the A2A server.
type ServeCmd struct {
	Port               int `help:"Override the project's server.port."`
	RequestTimeoutSecs int `name:"request-timeout" help:"Override the project's server.request_timeout_seconds."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	p, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("loading %s: %w", cli.Config, err)
	}

	// The project file's own logger block is the base; explicit --log-level/
	// --log-format flags (each defaulted by kong, so only non-default values
	// count as "explicit") take precedence over it.
	level, jsonFormat := cli.LogLevel, cli.LogFormat == "json"
	if p.Logger != nil {
		if cli.LogLevel == "info" && p.Logger.Level != "" {
			level = p.Logger.Level
		}
		if cli.LogFormat == "text" {
			jsonFormat = p.Logger.JSON
		}
	}
	log := logger.New(logger.ParseLevel(level), jsonFormat, nil)
	logger.SetDefault(log)
	if c.Port != 0 {
		p.Server.Port = c.Port
	}
	if c.RequestTimeoutSecs != 0 {
		p.Server.RequestTimeoutSecs = c.RequestTimeoutSecs
	}

	observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled:     p.Tracing.Enabled,
		ServiceName: p.Tracing.ServiceName,
	})

	rt, err := config.Build(p)
	if err != nil {
		return fmt.Errorf("building runtime: %w", err)
	}
	defer rt.Close()

	srv := a2aserver.NewServer(
		a2aserver.WithBaseURL(p.Server.BaseURL),
		a2aserver.WithServiceInfo("oxy", "dev"),
		a2aserver.WithRequestTimeout(time.Duration(p.Server.RequestTimeoutSecs)*time.Second),
	)

	exposed := p.ExposedAgents()
	if len(exposed) == 0 {
		log.Warn("no agents are marked exposed; the server will start with nothing registered")
	}
	for _, name := range exposed {
		spec, err := rt.ResolveExposedAgent(name)
		if err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}

		bus := event.New(256)
		loop := agentloop.New(rt.Engine, spec.Model, agentloop.NewRegistry(spec.Tools...),
			agentloop.WithReasoningEffort(spec.ReasoningEffort),
			agentloop.WithMaxIterations(spec.MaxIterations),
			agentloop.WithToolConcurrency(spec.ToolConcurrency),
		)
		card := a2aserver.AgentCard{
			Description:     spec.SystemInstructions,
			Capabilities:    []string{"tools"},
			DefaultInputs:   []string{"text"},
			DefaultOutputs:  []string{"text"},
			ProtocolVersion: "0.1",
		}
		handler := a2aserver.NewAgentHandler(name, card, loop, p, bus, a2aserver.NewMemoryTaskStore())
		srv.RegisterAgent(name, handler)
		log.Info("registered agent", "name", name, "model", spec.Model)
	}

	addr := fmt.Sprintf(":%d", p.Server.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("oxy listening", "addr", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("oxy"),
		kong.Description("Workflow and agent orchestration over a project file."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
