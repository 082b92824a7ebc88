package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/mattjoyce/embedder/internal/api"
	"github.com/mattjoyce/embedder/internal/builtin"
	"github.com/mattjoyce/embedder/internal/config"
	"github.com/mattjoyce/embedder/internal/engine"
	"github.com/mattjoyce/embedder/internal/events"
	"github.com/mattjoyce/embedder/internal/host"
	"github.com/mattjoyce/embedder/internal/journal"
	"github.com/mattjoyce/embedder/internal/lock"
	"github.com/mattjoyce/embedder/internal/log"
	"github.com/mattjoyce/embedder/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	if path == "" {
		logger.Info("embedder starting with defaults", "version", version)
	} else {
		logger.Info("embedder starting", "version", version, "config", path, "digest", cfg.Digest)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("embedder stopped with errors", "error", err)
		return 1
	}
	logger.Info("embedder stopped")
	return 0
}

// serve runs the host on the calling goroutine until ctx ends or the loop
// finishes, then shuts everything down in reverse order.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	hub := events.NewHub(events.DefaultCapacity)

	var recorder *journal.Recorder
	if cfg.Journal.Enabled {
		pidLock, err := lock.AcquirePIDLock(lock.PathFor(cfg.Journal.Path))
		if err != nil {
			return fmt.Errorf("journal %s: %w", cfg.Journal.Path, err)
		}
		defer pidLock.Release()

		db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		session, err := journal.StartSession(ctx, db, cfg.Service.Name, cfg.Digest)
		if err != nil {
			return err
		}
		recorder = journal.NewRecorder(db, session)
		recorder.Start(hub)
	}

	bridge := engine.NewBridge()
	h := host.New(cfg, bridge, host.WithHub(hub))
	bridge.Attach(h)

	set, err := builtin.Install(h.Registry(), cfg.Channels)
	if err != nil {
		return err
	}
	// Channels hold their handlers weakly.
	defer runtime.KeepAlive(set)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var apiDone chan error
	if cfg.API.Enabled {
		srv := api.New(api.ConfigFrom(cfg), bridge, h.Registry(), h, hub, log.WithComponent("api"))
		apiDone = make(chan error, 1)
		go func() {
			err := srv.Start(runCtx)
			if err == nil || errors.Is(err, context.Canceled) {
				apiDone <- nil
				return
			}
			apiDone <- fmt.Errorf("api: %w", err)
			cancel()
		}()
	}

	runErr := h.Run(runCtx)
	cancel()
	set.Close()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	errs := []error{runErr, h.Shutdown(shutdownCtx)}
	// In-flight API calls fail with 503 instead of waiting out their timeout.
	if failed := bridge.Detach(); failed > 0 {
		logger.Warn("calls failed at shutdown", "calls", failed)
	}
	if apiDone != nil {
		errs = append(errs, <-apiDone)
	}
	if recorder != nil {
		errs = append(errs, recorder.Stop(shutdownCtx))
	}

	stats := h.Stats()
	logger.Info("host stopped",
		"ticks", stats.Ticks,
		"handles_issued", stats.Handles.Issued,
		"handles_leaked", stats.Handles.Leaked,
		"dropped_events", hub.Dropped(),
	)
	return errors.Join(errs...)
}
