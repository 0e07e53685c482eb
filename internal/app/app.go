// Package app is the coordinator process's composition root: it wires every
// component named in spec §2 (C1-C11) into one running HTTP server. Both
// cmd/coordinatord and `pipelinectl serve` call Run so there is exactly one
// place that builds the dependency graph.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/genbatch/pipeline/internal/config"
	"github.com/genbatch/pipeline/internal/coordinator"
	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/executors"
	"github.com/genbatch/pipeline/internal/generator"
	"github.com/genbatch/pipeline/internal/httpapi"
	"github.com/genbatch/pipeline/internal/judge"
	"github.com/genbatch/pipeline/internal/maintenance"
	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/obs/log"
	"github.com/genbatch/pipeline/internal/obs/metrics"
	"github.com/genbatch/pipeline/internal/ratelimit"
	"github.com/genbatch/pipeline/internal/reaper"
	"github.com/genbatch/pipeline/internal/resilience"
	"github.com/genbatch/pipeline/internal/scheduler"
	"github.com/genbatch/pipeline/internal/secretvault"
	"github.com/genbatch/pipeline/internal/storage"
	"github.com/genbatch/pipeline/internal/tenantauth"
)

// Run loads config, wires every component and serves the HTTP API until ctx
// is cancelled (SIGINT/SIGTERM in both callers), then shuts down gracefully.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.New(cfg.Logging)
	met := metrics.New()

	if cfg.Database.MigrateOnStart {
		if err := metadata.Migrate(cfg.Database.DSN); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	db, err := metadata.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifeSecs)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer db.Close()
	store := metadata.NewStore(db)

	storageProvider, err := buildStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("build storage provider: %w", err)
	}

	vault, err := secretvault.New(metadata.NewCredentialRepository(store), []byte(cfg.Security.SecretEncryptionKey))
	if err != nil {
		return fmt.Errorf("build key vault: %w", err)
	}

	rl := ratelimit.NewManager(ratelimit.Config{
		DefaultRPM: cfg.RateLimit.DefaultRPM,
		DefaultTPM: cfg.RateLimit.DefaultTPM,
	})
	acquireTimeout := time.Duration(cfg.RateLimit.AcquireTimeoutSecs) * time.Second
	breakers := resilience.NewBreakerRegistry(resilience.CircuitConfigWithLogging(resilience.DefaultCircuitConfig(), logger.WithField("component", "circuit_breaker")))

	generators, err := buildGenerators(cfg.Generator, rl, breakers, acquireTimeout)
	if err != nil {
		return fmt.Errorf("build generator clients: %w", err)
	}

	judgeClient, err := judge.NewHTTPModelClient(judge.HTTPModelClientConfig{
		BaseURL:        cfg.Judge.BaseURL,
		RateLimiter:    rl,
		Breakers:       breakers,
		AcquireTimeout: acquireTimeout,
	})
	if err != nil {
		return fmt.Errorf("build judge client: %w", err)
	}
	judgeRunner := judge.NewRunner(judgeClient, time.Now().UnixNano())

	registry := executors.New(executors.Config{
		Store:       store,
		Storage:     storageProvider,
		Vault:       vault,
		JudgeRunner: judgeRunner,
		Generators:  generators,
	})

	var coord *coordinator.Coordinator
	sched := scheduler.New(scheduler.Config{
		Store:     store,
		Executors: registry.Executors(),
		Cancelled: func(runID string) bool { return coord != nil && coord.IsCancelled(runID) },
		Logger:    logger,
		Metrics:   met,
	})

	coord = coordinator.New(coordinator.Config{
		Store:   store,
		Runner:  sched,
		Logger:  logger,
		Metrics: met,
	})

	r := reaper.New(store, logger)
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("boot-time reap: %w", err)
	}

	janitor, err := maintenance.New(cfg.Maintenance, rl, logger)
	if err != nil {
		return fmt.Errorf("build maintenance janitor: %w", err)
	}
	janitor.Start()
	defer janitor.Stop(context.Background())

	auth := tenantauth.New(cfg.Auth)

	router := httpapi.NewRouter(httpapi.Config{
		Coordinator: coord,
		Store:       store,
		RateLimit:   rl,
		Auth:        auth,
		Logger:      logger,
		Metrics:     met,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("coordinator listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildStorage(cfg config.StorageConfig) (storage.Provider, error) {
	switch cfg.Backend {
	case "", "local":
		root := cfg.RootDir
		if root == "" {
			root = "./data/artifacts"
		}
		return storage.NewLocal(root)
	case "memory":
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func buildGenerators(cfg config.GeneratorConfig, rl *ratelimit.Manager, breakers *resilience.BreakerRegistry, acquireTimeout time.Duration) ([]generator.Client, error) {
	fpf, err := generator.New(generator.Config{
		Kind:           domain.GeneratorFilePrompt,
		BaseURL:        cfg.FilePromptBaseURL,
		RateLimiter:    rl,
		Breakers:       breakers,
		AcquireTimeout: acquireTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("file/prompt generator: %w", err)
	}
	research, err := generator.New(generator.Config{
		Kind:           domain.GeneratorResearch,
		BaseURL:        cfg.ResearchBaseURL,
		RateLimiter:    rl,
		Breakers:       breakers,
		AcquireTimeout: acquireTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("research generator: %w", err)
	}
	return []generator.Client{fpf, research}, nil
}
