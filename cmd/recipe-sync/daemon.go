package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/recipe-sync/internal/api"
	"github.com/alexjbarnes/recipe-sync/internal/auth"
	"github.com/alexjbarnes/recipe-sync/internal/config"
	"github.com/alexjbarnes/recipe-sync/internal/engine"
	"github.com/alexjbarnes/recipe-sync/internal/logging"
	"github.com/alexjbarnes/recipe-sync/internal/secrets"
	"github.com/alexjbarnes/recipe-sync/internal/state"
	syncpkg "github.com/alexjbarnes/recipe-sync/internal/sync"
	"github.com/alexjbarnes/recipe-sync/internal/watch"
)

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync agent until interrupted",
		Long: `Runs the background agent: a periodic sync loop over the recipes
directory, a filesystem watcher that triggers extra passes, and an
hourly token refresh. Stops cleanly on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("recipe-sync starting",
		slog.String("version", Version),
		slog.String("recipes_dir", cfg.RecipesDir),
		slog.Duration("interval", cfg.SyncInterval),
		slog.Bool("download_only", cfg.DownloadOnly),
	)

	appState, err := state.Load()
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	manager, err := auth.NewManager(auth.Config{
		Store:      secrets.Keyring{},
		API:        api.NewClient(cfg.APIURL, nil),
		WebBaseURL: cfg.WebBaseURL(),
		Logger:     logging.ForComponent(logger, "auth"),
	})
	if err != nil {
		return fmt.Errorf("initializing auth: %w", err)
	}

	if !manager.IsAuthenticated() {
		return fmt.Errorf("not signed in; run \"recipe-sync login\" first")
	}

	if cfg.RecipesDir == "" {
		return fmt.Errorf("RECIPE_DIR is not set; nothing to synchronize")
	}

	orch := syncpkg.New(syncpkg.Config{
		Credentials:  manager,
		Engine:       engine.New(appState, logging.ForComponent(logger, "engine")),
		RecipesDir:   cfg.RecipesDir,
		StateDBPath:  appState.Path(),
		Endpoint:     cfg.SyncURL,
		Device:       cfg.DeviceName,
		DownloadOnly: cfg.DownloadOnly,
		Interval:     cfg.SyncInterval,
		OnSuccess: func(snap syncpkg.Snapshot) {
			record := state.SyncRecord{
				CompletedAt:  snap.LastSync,
				ItemsSynced:  snap.ItemsSynced,
				ItemsPending: snap.ItemsPending,
			}
			if err := appState.SetLastSync(record); err != nil {
				logger.Warn("failed to persist last sync", slog.String("error", err.Error()))
			}
		},
		Logger: logging.ForComponent(logger, "sync"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(); err != nil {
		return fmt.Errorf("starting sync loop: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.RunRefreshLoop(gctx)
	})

	g.Go(func() error {
		watcher := watch.New(cfg.RecipesDir, orch.TriggerSync, logging.ForComponent(logger, "watch"))
		return watcher.Watch(gctx)
	})

	err = g.Wait()
	orch.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("recipe-sync stopped")

	return nil
}
