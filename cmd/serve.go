package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/internal/config"
	"github.com/nextlevelbuilder/botchat/internal/gateway"
	httpapi "github.com/nextlevelbuilder/botchat/internal/http"
	"github.com/nextlevelbuilder/botchat/internal/routing"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/internal/store/pg"
	"github.com/nextlevelbuilder/botchat/internal/store/sqlite"
	"github.com/nextlevelbuilder/botchat/internal/tracing"
	"github.com/nextlevelbuilder/botchat/internal/upgrade"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat gateway and bot router",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func runServe() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	registry, models, err := setupModels(cfg)
	if err != nil {
		slog.Error("no model backend configured", "error", err)
		fmt.Println()
		fmt.Println("Set BOTCHAT_OPENROUTER_API_KEY (in the environment or .env.local next to the config) and retry.")
		os.Exit(1)
	}

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	shutdownTracing, err := tracing.Init(context.Background(), cfg.Telemetry, Version)
	if err != nil {
		slog.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := routing.NewMetrics(metricsReg)

	msgBus := bus.New()
	var events bus.EventPublisher = msgBus
	if cfg.Events.NATSURL != "" {
		natsPub, err := bus.NewNATSPublisher(msgBus, cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			slog.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer natsPub.Close()
		events = natsPub
		slog.Info("event fan-out to nats enabled", "prefix", natsPub.Subject(">"))
	}

	gatewayProvider, err := models.Gateway()
	if err != nil {
		slog.Error("gateway provider missing", "error", err)
		os.Exit(1)
	}

	rc := cfg.Routing
	membership := routing.NewMembership(stores.Channels)
	orchestrator := routing.NewOrchestrator(gatewayProvider, routing.OrchestratorConfig{
		Model:       rc.OrchestratorModel,
		Temperature: rc.OrchestratorTemp,
		MaxTokens:   routing.DefaultOrchestratorConfig().MaxTokens,
		Timeout:     rc.OrchestratorTimeoutDuration(),
	}, metrics)
	generator := routing.NewGenerator(stores.Users, stores.Channels, stores.Messages, models, events, routing.GeneratorConfig{
		Temperature: rc.ReplyTemp,
		MaxTokens:   rc.ReplyMaxTokens,
		Timeout:     rc.GenerationTimeoutDuration(),
	}, metrics)
	controller := routing.NewController(membership, routing.NewBuilder(stores.Messages, rc.WindowSize),
		orchestrator, generator, events, routing.ControllerConfig{
			MaxParallelReplies: rc.MaxParallelReplies,
			DedupeTTL:          rc.DedupeTTLDuration(),
		}, metrics)
	svc := routing.NewService(stores, events)

	server := gateway.NewServer(cfg, events, metricsReg)
	server.SetMemberChecker(stores.Channels)
	server.SetUsersHandler(httpapi.NewUsersHandler(svc, cfg.Gateway.Token))
	server.SetChannelsHandler(httpapi.NewChannelsHandler(svc, cfg.Gateway.Token, cfg.Gateway.MaxMessageChars))
	server.SetRoutingHandler(httpapi.NewRoutingHandler(membership, orchestrator, generator, cfg.Gateway.Token, rc.WindowSize))

	consumer := newRoutingConsumer(controller, rc.RouteTimeoutDuration())
	consumer.Start(events)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := "standalone"
	if cfg.IsManagedMode() {
		mode = "managed"
	}
	slog.Info("botchat starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"mode", mode,
		"providers", registry.List(),
		"window", rc.WindowSize,
		"dedupe_ttl", rc.DedupeTTLDuration(),
	)

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}

	slog.Info("graceful shutdown initiated")
	waitCtx, cancel := context.WithTimeout(context.Background(), rc.GenerationTimeoutDuration())
	defer cancel()
	consumer.Wait(waitCtx)
}

// openStores selects Postgres in managed mode (after a schema check) and
// SQLite otherwise.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		if err := checkSchemaOrAutoUpgrade(cfg.Database.PostgresDSN); err != nil {
			return nil, err
		}
		return pg.NewPGStores(store.StoreConfig{PostgresDSN: cfg.Database.PostgresDSN})
	}
	if cfg.Database.Mode == "managed" {
		slog.Warn("managed mode requested without BOTCHAT_POSTGRES_DSN, falling back to sqlite")
	}
	path := config.ExpandHome(cfg.Database.SQLitePath)
	slog.Info("using sqlite store", "path", path)
	return sqlite.NewSQLiteStores(store.StoreConfig{SQLitePath: path})
}

// checkSchemaOrAutoUpgrade gates startup on schema compatibility.
// With BOTCHAT_AUTO_UPGRADE=true an outdated schema is migrated inline.
func checkSchemaOrAutoUpgrade(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("schema check: connect: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("schema check: ping: %w", err)
	}

	s, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	if s.Compatible {
		slog.Info("schema check passed", "current", s.CurrentVersion, "required", s.RequiredVersion)
		return nil
	}
	if s.Dirty || s.CurrentVersion > s.RequiredVersion || os.Getenv("BOTCHAT_AUTO_UPGRADE") != "true" {
		return errors.New(upgrade.FormatError(s))
	}

	slog.Info("auto-upgrade: applying migrations", "from", s.CurrentVersion, "to", s.RequiredVersion)
	m, err := newMigrator(dsn)
	if err != nil {
		return fmt.Errorf("auto-upgrade: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("auto-upgrade: migrate up: %w", err)
	}
	return nil
}
