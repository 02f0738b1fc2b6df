package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/qna/api"
	dbfs "github.com/garnizeh/qna/db"
	"github.com/garnizeh/qna/internal/ai"
	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/internal/config"
	"github.com/garnizeh/qna/internal/db"
	"github.com/garnizeh/qna/internal/events"
	"github.com/garnizeh/qna/internal/jobs"
	"github.com/garnizeh/qna/internal/lifecycle"
	"github.com/garnizeh/qna/internal/logging"
	"github.com/garnizeh/qna/internal/repository/sqlite"
	"github.com/garnizeh/qna/internal/training"
	"github.com/garnizeh/qna/internal/triggers"
	"github.com/garnizeh/qna/pkg/ollama"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, closer := logging.New(cfg.Log)
	defer closer.Close()
	slog.SetDefault(logger)
	api.SetLogger(logger)
	ai.SetLogger(logger)
	ollama.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting qna server", slog.String("version", version), slog.String("build_time", buildTime))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer conn.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	repo := sqlite.New(conn, logger)

	broker, err := newBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	svc := lifecycle.NewService(repo, logger, lifecycle.WithBroker(broker))

	collab, closeCollab, err := ai.NewCollaborator(cfg)
	if err != nil {
		return fmt.Errorf("drafting collaborator: %w", err)
	}
	defer closeCollab()
	drafter := ai.NewDrafter(cfg.Drafting, collab, repo)
	if !drafter.Enabled() {
		logger.Warn("AI drafting disabled, drafts use the fallback template")
	}

	loader, err := ai.NewLoader(ctx, repo)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	drafts := triggers.NewDraftTrigger(repo, svc, drafter, cfg.Drafting.HistoryLimit, logger)
	dispatcher := triggers.NewDispatcher(drafts, training.NewCollector(repo, repo, logger), loader, logger)

	pool := jobs.NewWorkerPool(repo, dispatcher.Handlers(), logger, cfg.Workers)
	pool.Start(ctx)
	defer pool.Stop()

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenDuration, repo, logger)
	handler := api.SetupRoutes(api.Handlers{
		System:    newSystemHandler(conn, broker, collab),
		Auth:      api.NewAuthHandler(repo, tokens),
		Questions: api.NewQuestionsHandler(svc, broker),
		AI:        api.NewAIHandler(loader, repo, repo, drafts),
		Tokens:    tokens,
		Timeout:   cfg.APITimeout,
	}, version, buildTime)

	// WriteTimeout stays unset so event streams survive; handlers are bounded
	// by the timeout middleware instead.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.APITimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// newSystemHandler treats storage and the broker as required checks. The
// drafting backend is only reported.
func newSystemHandler(conn *db.DB, broker events.Broker, collab ai.Collaborator) *api.SystemHandler {
	checks := map[string]api.Pinger{"db": conn.GetConn().PingContext}
	if p, ok := broker.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = p.Ping
	}
	h := api.NewSystemHandler(checks)
	if hc, ok := collab.(ai.HealthChecker); ok {
		h.Advise("ollama", hc.Health)
	}
	return h
}

func newBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (events.Broker, error) {
	if cfg.Redis.URL == "" {
		return events.NewMemoryBroker(), nil
	}
	b, err := events.NewRedisBroker(ctx, cfg.Redis.URL, cfg.Redis.ChannelPrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("redis broker: %w", err)
	}
	logger.Info("change notification via redis", slog.String("prefix", cfg.Redis.ChannelPrefix))
	return b, nil
}
