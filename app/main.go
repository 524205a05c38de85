package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/lysyi3m/event-comb/app/api"
	"github.com/lysyi3m/event-comb/app/cfg"
	"github.com/lysyi3m/event-comb/app/client"
	"github.com/lysyi3m/event-comb/app/database"
	"github.com/lysyi3m/event-comb/app/extract"
	"github.com/lysyi3m/event-comb/app/fetch"
	"github.com/lysyi3m/event-comb/app/metrics"
	"github.com/lysyi3m/event-comb/app/report"
	"github.com/lysyi3m/event-comb/app/runs"
	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
	"github.com/lysyi3m/event-comb/app/tracing"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		// go-flags already printed its own parse errors
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) {
			fmt.Fprintf(os.Stderr, "event-comb: %v\n", err)
		}
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	closeLog := cfg.SetupLogger(appCfg.LogFile, appCfg.Debug)

	err = run(appCfg)
	_ = closeLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "event-comb: %v\n", err)
		os.Exit(1)
	}
}

// catalog overrides the concurrency from the sources file with --concurrency.
type catalog struct {
	*source.ConfigCache
	concurrency int
}

func (c catalog) GetConcurrency() int {
	if c.concurrency > 0 {
		return c.concurrency
	}
	return c.ConfigCache.GetConcurrency()
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Event Comb", "version", appCfg.Version)

	configCache := source.NewConfigCache(appCfg.SourcesFile)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	sources := catalog{ConfigCache: configCache, concurrency: appCfg.Concurrency}
	slog.Info("Sources loaded", "file", appCfg.SourcesFile, "count", sources.GetConfigCount(), "concurrency", sources.GetConcurrency())

	tracer, err := tracing.NewProvider(tracing.Config{
		Exporter: appCfg.TraceExporter,
		FilePath: appCfg.TraceFile,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			slog.Warn("Tracer shutdown failed", "error", err)
		}
	}()

	appMetrics := metrics.New()

	executor, extractorConfigured := buildExecutor(appCfg, tracer)

	scheduler := tasks.NewScheduler(executor, appMetrics)
	defer scheduler.Stop()

	managerConfig := runs.ManagerConfig{
		Retention: appCfg.RunRetention,
		Lifecycle: appMetrics,
	}

	var archive api.RunArchive
	if appCfg.DBPath != "" {
		repo, closeDB, err := openArchive(appCfg)
		if err != nil {
			return err
		}
		defer closeDB()
		managerConfig.Archive = repo
		archive = repo
	}

	manager := runs.NewManager(scheduler, managerConfig)
	defer manager.Close()

	if appCfg.Once {
		return runOnce(manager, sources)
	}

	if appCfg.Schedule != "" {
		schedule, err := runs.NewCron(manager, sources, appCfg.Schedule)
		if err != nil {
			return err
		}
		schedule.Start()
		defer schedule.Stop()
	}

	handler := api.NewHandler(sources, executor, manager, archive, extractorConfigured, appCfg.Version)
	server := api.NewServer(handler, api.ServerOptions{
		APIAccessKey: appCfg.APIAccessKey,
		Metrics:      appMetrics.Handler(),
	})

	// No write timeout: SSE streams and /search-source outlive any fixed budget.
	httpServer := &http.Server{
		Addr:              ":" + appCfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig)
	case serveErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Event Comb shutdown complete")
	return serveErr
}

// buildExecutor returns the per-source executor and whether it can extract
// events. With --remote-url every source is sent to another server.
func buildExecutor(appCfg *cfg.Cfg, tracer *tracing.Provider) (tasks.Executor, bool) {
	if appCfg.RemoteURL != "" {
		remote := client.NewRemoteTask(appCfg.RemoteURL, appCfg.ClientTimeout)

		ctx, cancel := context.WithTimeout(context.Background(), appCfg.ClientTimeout)
		defer cancel()
		health, err := remote.Health(ctx)
		if err != nil {
			slog.Warn("Remote server unreachable", "url", appCfg.RemoteURL, "error", err)
			return remote, true
		}

		configured, _ := health["extractor_configured"].(bool)
		slog.Info("Using remote server", "url", appCfg.RemoteURL, "extractor_configured", configured)
		return remote, configured
	}

	httpClient := &http.Client{}

	router := fetch.NewRouter().
		Register(source.ModeQuery, fetch.NewSearch(httpClient, fetch.SearchConfig{
			HL:        appCfg.SearchHL,
			GL:        appCfg.SearchGL,
			CEID:      appCfg.SearchCEID,
			UserAgent: appCfg.UserAgent,
			RPS:       appCfg.SearchRPS,
		})).
		Register(source.ModeScrape, fetch.NewScrape(httpClient, fetch.ScrapeConfig{
			UserAgent: appCfg.UserAgent,
		}))

	// A nil interface makes every source fail with "extractor not configured".
	var extractor extract.Extractor
	model, err := extract.NewModel(extract.ModelConfig{
		Provider:   extract.Provider(appCfg.LLMProvider),
		Model:      appCfg.LLMModel,
		APIKey:     appCfg.LLMAPIKey,
		OllamaHost: appCfg.OllamaHost,
		MaxTokens:  appCfg.LLMMaxTokens,
	})
	if err != nil {
		slog.Warn("Extractor not configured", "provider", appCfg.LLMProvider, "error", err)
	} else {
		extractor = extract.NewLLMExtractor(model, appCfg.MaxContentChars)
		slog.Info("Extractor configured", "provider", appCfg.LLMProvider, "model", model.Name())
	}

	task := tasks.NewSourceTask(router, extractor, tasks.SourceTaskConfig{
		SearchTimeout:    appCfg.SearchTimeout,
		ScrapeTimeout:    appCfg.ScrapeTimeout,
		ExtractTimeout:   appCfg.ExtractTimeout,
		MinContentLength: appCfg.MinContentLength,
		Tracer:           tracer.Tracer(),
	})

	return task, extractor != nil
}

func openArchive(appCfg *cfg.Cfg) (*database.RunRepository, func(), error) {
	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open run archive: %w", err)
	}

	schema, err := database.Migrate(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate run archive: %w", err)
	}
	slog.Info("Run archive ready", "path", appCfg.DBPath, "schema_version", schema.Version, "migrated", schema.Applied)

	repo := database.NewRunRepository(db)

	if appCfg.ArchiveRetention > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pruned, err := repo.DeleteRunsBefore(ctx, time.Now().Add(-appCfg.ArchiveRetention))
		if err != nil {
			slog.Warn("Failed to prune run archive", "error", err)
		} else if pruned > 0 {
			slog.Info("Pruned archived runs", "count", pruned)
		}
	}

	return repo, func() { db.Close() }, nil
}

// runOnce runs every source, prints the result and returns. An interrupt
// stops the run and prints what was collected so far.
func runOnce(manager *runs.Manager, sources catalog) error {
	descriptors := sources.GetDescriptors()
	if len(descriptors) == 0 {
		return fmt.Errorf("no sources configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := manager.Start(descriptors, sources.GetConcurrency())

	snapshot, err := manager.Wait(ctx, run.ID)
	if err != nil {
		stopped, stopErr := manager.Stop(run.ID)
		if stopErr != nil {
			return fmt.Errorf("failed to stop run: %w", stopErr)
		}
		snapshot = stopped.Snapshot()
	}

	report.Render(os.Stdout, snapshot)
	return nil
}
