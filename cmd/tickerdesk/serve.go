package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/tickerdesk/tickerdesk"
	"github.com/tickerdesk/tickerdesk/pkg/agent"
	"github.com/tickerdesk/tickerdesk/pkg/auth"
	"github.com/tickerdesk/tickerdesk/pkg/config"
	"github.com/tickerdesk/tickerdesk/pkg/embedder"
	"github.com/tickerdesk/tickerdesk/pkg/llms"
	"github.com/tickerdesk/tickerdesk/pkg/market"
	"github.com/tickerdesk/tickerdesk/pkg/observability"
	"github.com/tickerdesk/tickerdesk/pkg/rag"
	"github.com/tickerdesk/tickerdesk/pkg/server"
	"github.com/tickerdesk/tickerdesk/pkg/tools"
	"github.com/tickerdesk/tickerdesk/pkg/vector"
)

// ServeCmd starts the HTTP service.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides config)."`
	Dev   bool `help:"Register the unauthenticated /invoke-dev route."`
	Watch bool `help:"Watch the config file and documents for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, loader, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	applyConfigLogger(cli, &cfg.Logger)

	slog.Info("Starting tickerdesk", "version", tickerdesk.Version)

	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Watch && loader != nil {
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		slog.Warn("Failed to initialize observability", "error", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	validator, err := auth.NewValidatorFromConfig(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to set up auth: %w", err)
	}
	if validator == nil {
		slog.Warn("Token verification disabled, all requests run as the development user")
	}

	// A broken knowledge base degrades the agent to market tools only
	// instead of blocking startup; /ping reports the degraded state.
	engine, err := buildKnowledgeEngine(cfg)
	if err != nil {
		slog.Warn("Knowledge base unavailable", "error", err)
		engine = nil
	} else {
		defer engine.Close()

		go func() {
			if err := engine.BuildIndex(ctx, cfg.Knowledge.ForceRebuild); err != nil && ctx.Err() == nil {
				slog.Warn("Failed to build document index", "error", err)
			}
		}()

		if cfg.Knowledge.Watch || c.Watch {
			go func() {
				if err := engine.Watch(ctx); err != nil && ctx.Err() == nil {
					slog.Warn("Document watch error", "error", err)
				}
			}()
		}
	}

	runner, registry, err := buildAgent(cfg, engine, obs)
	if err != nil {
		return err
	}

	devRoutes := c.Dev || cfg.Auth.SkipAuth

	srv, err := server.New(server.Options{
		Config:        cfg,
		Runner:        runner,
		Knowledge:     engine,
		Validator:     validator,
		Observability: obs,
		DevRoutes:     devRoutes,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	printServeInfo(cfg, registry, validator != nil, devRoutes, obs)

	return srv.Start(ctx)
}

// buildKnowledgeEngine assembles the embedder, the vector store, and
// the index engine from config. The index itself is not built yet.
func buildKnowledgeEngine(cfg *config.Config) (*rag.Engine, error) {
	emb, err := embedder.New(cfg.Knowledge.Embedder)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	store, err := vector.NewProvider(cfg.Knowledge.VectorStore)
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}

	engine, err := rag.NewEngine(rag.EngineConfig{
		Provider: store,
		Embedder: emb,
		Chunker: rag.ChunkerConfig{
			Size:    cfg.Knowledge.Chunking.Size,
			Overlap: cfg.Knowledge.Chunking.Overlap,
		},
		DocsDir:     cfg.Knowledge.DocsDir,
		IndexDir:    cfg.Knowledge.IndexDir,
		DefaultTopK: cfg.Knowledge.RetrieverK,
	})
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}

	return engine, nil
}

// buildAgent wires the LLM provider, the tool registry, and the agent.
func buildAgent(cfg *config.Config, engine *rag.Engine, obs *observability.Manager) (agent.Runner, *tools.ToolRegistry, error) {
	provider, err := llms.NewProviderFromConfig(&cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	registry := tools.NewToolRegistry(
		tools.WithTracer(obs.Tracer("tools")),
		tools.WithRecorder(obs.Recorder()),
	)

	marketClient := market.NewClient(cfg.Market)
	if err := registry.RegisterTool(tools.NewStockPriceTool(marketClient)); err != nil {
		return nil, nil, err
	}
	if err := registry.RegisterTool(tools.NewStockHistoryTool(marketClient)); err != nil {
		return nil, nil, err
	}
	if engine != nil {
		if err := registry.RegisterTool(tools.NewDocumentSearchTool(engine)); err != nil {
			return nil, nil, err
		}
	}

	a, err := agent.New(provider, registry,
		agent.WithRecorder(obs.Recorder()),
		agent.WithTracer(obs.Tracer("agent")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return a, registry, nil
}

// printServeInfo prints the endpoint summary at startup.
func printServeInfo(cfg *config.Config, registry *tools.ToolRegistry, authEnabled, devRoutes bool, obs *observability.Manager) {
	greenColor := "\033[38;2;16;185;129m"
	resetColor := "\033[0m"
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		greenColor, resetColor = "", ""
	}

	addr := cfg.Server.Address()
	authStatus := "required"
	if !authEnabled {
		authStatus = "disabled"
	}

	fmt.Printf("\n%stickerdesk ready%s\n", greenColor, resetColor)
	fmt.Printf("   Health:    http://%s/ping\n", addr)
	fmt.Printf("   Invoke:    http://%s/invoke (auth %s, NDJSON stream)\n", addr, authStatus)
	if devRoutes {
		fmt.Printf("   Dev:       http://%s/invoke-dev (no auth)\n", addr)
	}
	fmt.Printf("   Runtime:   http://%s/invocations\n", addr)
	fmt.Printf("   Knowledge: http://%s/knowledge-base\n", addr)
	if obs != nil && obs.MetricsEnabled() {
		fmt.Printf("   Metrics:   http://%s%s\n", addr, obs.MetricsEndpoint())
	}

	fmt.Println("\n   Tools:")
	for _, info := range registry.ListTools() {
		fmt.Printf("     - %s\n", info.Name)
	}
	fmt.Printf("\n   Model: %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Println("\nPress Ctrl+C to stop")
}
