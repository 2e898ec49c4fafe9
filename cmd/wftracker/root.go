package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wftracker/wftracker/internal/api"
	"github.com/wftracker/wftracker/internal/archive"
	"github.com/wftracker/wftracker/internal/config"
	"github.com/wftracker/wftracker/internal/store"
	"github.com/wftracker/wftracker/internal/tracker"
	"github.com/wftracker/wftracker/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "wftracker",
	Short: "Workflow Tracker - dental procedure progress service",
	Long:  "Runs the workflow tracker API server. Subcommands manage users, progress and reports directly against the database.",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(clientCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	// 3. Initialize logger
	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Initialize report archive
	archiver, err := archive.New(cfg.ReportStorage)
	if err != nil {
		db.Close()
		return err
	}
	slog.Info("report archive initialized", "bucket", cfg.ReportStorage.Bucket)

	// 6. Initialize tracker service and seed accounts
	svc := tracker.New(db, tracker.Options{
		SessionTTL:       time.Duration(cfg.Auth.SessionTTL),
		SessionCacheSize: cfg.Auth.SessionCacheSize,
		SessionCacheTTL:  time.Duration(cfg.Auth.SessionCacheTTL),
		Location:         cfg.Analytics.Location(),
		Archiver:         archiver,
		Logger:           logger,
	})
	if err := svc.SeedUsers(ctx, cfg.Auth.Users); err != nil {
		db.Close()
		return err
	}
	slog.Info("tracker initialized", "seed_users", len(cfg.Auth.Users))

	// 7. Initialize HTTP router
	handler := api.NewHandler(svc, Version)
	router := api.NewRouter(handler, api.NewLoginRateLimiter(cfg.Auth.LoginRate, cfg.Auth.LoginBurst))
	slog.Info("router initialized")

	// 8. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 9. Background workers
	var wg sync.WaitGroup
	sweeper := worker.NewSessionSweepWorker(svc, time.Duration(cfg.Worker.SessionSweepInterval))
	startWorker(ctx, &wg, "session-sweep", sweeper.Run)

	// 10. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 11. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 12. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 12a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 12b. Wait for workers to complete
	wg.Wait()

	// 12c. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from the log config.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
