// Package main is the entry point for the memory-and-tool gateway
// binary. Default invocation starts the HTTP frontend; `mimogate stdio`
// starts the line-delimited JSON-RPC frontend instead. Flag layout and
// the PersistentPreRunE/PersistentPostRun logging-lifecycle hooks
// mirror the teacher CLI's rootCmd.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mimogate/internal/config"
	"mimogate/internal/dispatch"
	"mimogate/internal/embedding"
	"mimogate/internal/feedback"
	frontendhttp "mimogate/internal/frontend/http"
	"mimogate/internal/frontend/stdio"
	"mimogate/internal/health"
	"mimogate/internal/knowledge"
	"mimogate/internal/llm"
	"mimogate/internal/logging"
	"mimogate/internal/memory"
	"mimogate/internal/patterns"
	"mimogate/internal/reason"
	"mimogate/internal/registry"
	"mimogate/internal/router"
	"mimogate/internal/skills"
	"mimogate/internal/store"
	"mimogate/internal/tools"
	"mimogate/internal/tools/canonical"
)

var (
	verbose    bool
	configPath string
	dbPath     string
	httpPort   int
	sandboxed  bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mimogate",
	Short: "mimogate - memory-and-tool gateway",
	Long: `mimogate is a memory-and-tool gateway: a meta-cognitive router over
semantic/episodic/procedural/aggregation memory stores, fronted by a
dispatcher that also owns external skill subprocesses.

Run without a subcommand to start the HTTP frontend. Run "mimogate
stdio" to speak line-delimited JSON-RPC over stdin/stdout instead.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logging.Initialize(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHTTP(cmd.Context())
	},
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "serve the gateway's tool surface as line-delimited JSON-RPC over stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStdio(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "mimogate.yaml", "path to gateway config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "override the engram database path")
	rootCmd.PersistentFlags().IntVar(&httpPort, "http-port", 0, "override the HTTP listen port")
	rootCmd.PersistentFlags().BoolVar(&sandboxed, "sandboxed", true, "enable argument sandboxing for file/terminal tools")

	rootCmd.AddCommand(stdioCmd)
}

// gateway bundles every long-lived component main wires together, so
// both entry points (http, stdio) can share one assembly step.
type gateway struct {
	cfg        *config.GatewayConfig
	es         *store.EngramStore
	embedder   llm.Embedder
	completer  llm.Completer
	reg        *registry.Registry
	sup        *skills.Supervisor
	fb         *feedback.Loop
	router     *router.Router
	dispatcher *dispatch.Dispatcher
	patterns   *patterns.Store
	knowledge  *knowledge.Graph
	toolUsage  *store.ToolUsageStore
	telemetry  *store.TelemetryStore

	consolidator *memory.Consolidator
	decayer      *memory.Decayer
	accessTrack  *memory.AccessTracker
	healthMon    *health.Monitor
}

func assemble() (*gateway, error) {
	cfg, err := config.LoadGatewayConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if httpPort != 0 {
		cfg.HTTPPort = httpPort
	}
	cfg.Sandboxed = sandboxed

	es, err := store.NewEngramStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open engram store: %w", err)
	}

	embCfg := embedding.DefaultConfig()
	if cfg.EmbeddingURL != "" {
		embCfg.OllamaEndpoint = cfg.EmbeddingURL
	}
	embedder, err := embedding.NewEngine(embCfg)
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("embedding engine unavailable, knowledge injection disabled: %v", err)
		embedder = nil
	}

	var completer llm.Completer = llm.NopCompleter{}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		if c, err := llm.NewGenAICompleter(context.Background(), apiKey, cfg.CompletionModel); err == nil {
			completer = c
		} else {
			logging.Get(logging.CategoryBoot).Warn("completer unavailable, router runs heuristic-only: %v", err)
		}
	}

	fb := feedback.NewLoop()
	rt := router.New(completer, fb)

	reg := registry.New(nil)
	sup := skills.New(reg)
	reg.SetLivenessChecker(sup)

	healthMon := health.New(es, nil, sup, fb, cfg.HealthInterval)
	patternStore := patterns.New()

	kg, err := knowledge.New()
	if err != nil {
		return nil, fmt.Errorf("open knowledge graph: %w", err)
	}

	dbDir := filepath.Dir(cfg.DBPath)
	dbBase := strings.TrimSuffix(filepath.Base(cfg.DBPath), filepath.Ext(cfg.DBPath))
	toolUsage, err := store.NewToolUsageStore(filepath.Join(dbDir, dbBase+"-tools.db"))
	if err != nil {
		kg.Close()
		return nil, fmt.Errorf("open tool usage store: %w", err)
	}
	telemetry, err := store.NewTelemetryStore(filepath.Join(dbDir, dbBase+"-telemetry.db"))
	if err != nil {
		kg.Close()
		toolUsage.Close()
		return nil, fmt.Errorf("open telemetry store: %w", err)
	}

	if err := registerInternalTools(reg, es, embedder, completer, rt, healthMon, patternStore, kg, toolUsage); err != nil {
		kg.Close()
		toolUsage.Close()
		telemetry.Close()
		return nil, fmt.Errorf("register internal tools: %w", err)
	}

	disp := dispatch.New(reg, sup, fb, es, embedder, cfg.Sandboxed)
	disp.SetToolUsageStore(toolUsage)
	disp.SetTelemetryStore(telemetry)

	buf := memory.NewWorkingBuffer(10 * time.Minute)
	consolidator := memory.NewConsolidator(buf, es, embedder, cfg.ConsolidationThreshold, cfg.ConsolidationInterval)
	decayer := memory.NewDecayer(es, cfg.DecayInterval)
	accessTrack := memory.NewAccessTracker(es)

	return &gateway{
		cfg:          cfg,
		es:           es,
		embedder:     embedder,
		completer:    completer,
		reg:          reg,
		sup:          sup,
		fb:           fb,
		router:       rt,
		dispatcher:   disp,
		patterns:     patternStore,
		knowledge:    kg,
		toolUsage:    toolUsage,
		telemetry:    telemetry,
		consolidator: consolidator,
		decayer:      decayer,
		accessTrack:  accessTrack,
		healthMon:    healthMon,
	}, nil
}

func (g *gateway) startBackgroundLoops(ctx context.Context) {
	g.consolidator.Start(ctx)
	g.decayer.Start(ctx)
	g.accessTrack.Start(ctx)
	g.healthMon.Start(ctx)
}

func (g *gateway) stopBackgroundLoops() {
	g.consolidator.Stop()
	g.decayer.Stop()
	g.accessTrack.Stop()
	g.healthMon.Stop()
	_ = g.knowledge.Close()
	_ = g.toolUsage.Close()
	_ = g.telemetry.Close()
	_ = g.es.Close()
}

func runHTTP(ctx context.Context) error {
	gw, err := assemble()
	if err != nil {
		return err
	}
	defer gw.stopBackgroundLoops()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	gw.startBackgroundLoops(runCtx)

	srv := frontendhttp.New(gw.dispatcher, gw.reg, gw.router, gw.cfg.APIKey, gw.cfg.RateLimitPerMinute)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", gw.cfg.HTTPPort),
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Get(logging.CategoryHTTP).Info("listening on %s", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCh:
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func runStdio(ctx context.Context) error {
	gw, err := assemble()
	if err != nil {
		return err
	}
	defer gw.stopBackgroundLoops()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	gw.startBackgroundLoops(runCtx)

	srv := stdio.New(gw.dispatcher, gw.reg)
	return srv.Serve(runCtx, os.Stdin, os.Stdout)
}

// registerInternalTools registers the gateway's internally-handled
// tools against the registry - every canonical tool of spec §6 that
// isn't a skill. External (skill-backed) tools are registered lazily,
// as their configs are discovered.
func registerInternalTools(
	reg *registry.Registry,
	es *store.EngramStore,
	embedder llm.Embedder,
	completer llm.Completer,
	rt *router.Router,
	mon *health.Monitor,
	patternStore *patterns.Store,
	kg *knowledge.Graph,
	toolUsage *store.ToolUsageStore,
) error {
	if err := tools.RegisterMemoryTools(reg, es, embedder, completer); err != nil {
		return err
	}
	if err := tools.RegisterKnowledgeTools(reg, kg); err != nil {
		return err
	}
	if err := tools.RegisterCognitiveTools(reg, patternStore); err != nil {
		return err
	}
	if err := tools.RegisterReasonTools(reg, reason.NewEvaluator()); err != nil {
		return err
	}
	if err := tools.RegisterToolUsageTools(reg, toolUsage); err != nil {
		return err
	}
	if err := tools.RegisterOrchestrationTools(reg, rt); err != nil {
		return err
	}
	if err := tools.RegisterAutonomousTools(reg, mon); err != nil {
		return err
	}
	if err := canonical.RegisterFileTools(reg); err != nil {
		return err
	}
	if err := canonical.RegisterTerminalTools(reg); err != nil {
		return err
	}
	if err := canonical.RegisterWebTools(reg); err != nil {
		return err
	}
	if err := canonical.RegisterCodeTools(reg); err != nil {
		return err
	}
	return tools.RegisterUtilityTools(reg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
