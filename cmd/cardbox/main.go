package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/tomascarey/cardbox/internal/config"
	"github.com/tomascarey/cardbox/internal/queue"
	"github.com/tomascarey/cardbox/internal/reconcile"
	"github.com/tomascarey/cardbox/internal/remote"
	"github.com/tomascarey/cardbox/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Error("failed to parse flags", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(fs)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("database opened", "path", cfg.Database)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cols, err := st.Load(ctx)
	if err != nil {
		logger.Error("failed to load collections", "error", err)
		os.Exit(1)
	}
	logger.Info("collections loaded", "decks", len(cols.Decks), "cards", len(cols.Cards))

	client := remote.NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.Timeout)
	manager := queue.NewManager(st, cols, client, logger, queue.Options{
		Pacing:   cfg.Sync.Pacing,
		Cooldown: cfg.Sync.Cooldown,
		Notify: func(msg string) {
			logger.Warn("user notice", "message", msg)
		},
	})

	gen := remote.NewHTTPGenerator(cfg.Generation.APIURL, cfg.Generation.APIKey, cfg.Generation.Model)
	rec := reconcile.New(st, cols, manager, gen, logger)

	if err := manager.ResumeIfDirty(ctx); err != nil {
		logger.Warn("failed to check for pending mutations", "error", err)
	}

	sched := gocron.NewScheduler(time.UTC)
	if _, err := sched.Every(cfg.Sync.Interval).Do(func() {
		if err := manager.Sync(ctx); err != nil {
			logger.Warn("periodic sync failed", "error", err)
		}
		// Pulled cloze parents need their sub-cards derived or retired.
		if err := rec.ReconcileAll(ctx); err != nil {
			logger.Warn("cloze reconciliation failed", "error", err)
		}
		if err := rec.RunGenerationJobs(ctx); err != nil {
			logger.Warn("generation jobs failed", "error", err)
		}
	}); err != nil {
		logger.Error("failed to schedule sync", "error", err)
		os.Exit(1)
	}
	sched.StartAsync()
	defer sched.Stop()

	logger.Info("cardbox running", "sync_interval", cfg.Sync.Interval)
	<-ctx.Done()
	logger.Info("shutting down")
}
