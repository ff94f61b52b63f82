package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/market-research/internal/config"
	"github.com/jonathan/market-research/internal/lock"
	"github.com/jonathan/market-research/internal/observability"
	"github.com/jonathan/market-research/internal/pipeline"
	"github.com/jonathan/market-research/internal/rendering"
	"github.com/jonathan/market-research/internal/server"
	"github.com/jonathan/market-research/internal/stages"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that accepts research requests and runs their report pipelines in a worker pool.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	if servePort > 0 {
		overrides["server.port"] = servePort
	}
	cfg, err := config.LoadWithOverrides(configPath, overrides)
	if err != nil {
		return err
	}
	jwtConfig, err := cfg.JWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}
	passwordConfig, err := cfg.PasswordConfig()
	if err != nil {
		return fmt.Errorf("failed to create password config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	blobs, err := openArtifacts(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}

	adapter, closeLLM, err := newAdapter(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer closeLLM()

	var locker pipeline.Locker
	if cfg.Redis.Addr != "" {
		redisLocker, err := lock.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer func() { _ = redisLocker.Close() }()
		locker = redisLocker
		logger.Info("distributed run lock enabled", zap.String("redis", cfg.Redis.Addr))
	}
	guard := pipeline.NewGuard(locker, pipeline.DefaultLockTTL)

	reports := rendering.NewService(backend.requests, rendering.NewPDFRenderer(), blobs, logger, metrics)
	orchestrator := pipeline.NewOrchestrator(backend.requests, stages.NewRunner(adapter),
		pipeline.WithGuard(guard),
		pipeline.WithRenderer(reports),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
	)
	pool := pipeline.NewPool(orchestrator.Run, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize,
		pipeline.WithPoolLogger(logger),
		pipeline.WithPoolMetrics(metrics),
	)

	var sweeper *pipeline.Sweeper
	if cfg.Sweeper.Enabled {
		sweeper = pipeline.NewSweeper(backend.requests, pool, guard, cfg.Sweeper.StaleAfter, logger)
		if err := sweeper.Start(cfg.Sweeper.Schedule); err != nil {
			return err
		}
	}

	srv, err := server.New(server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, server.Deps{
		Requests:  backend.requests,
		Users:     backend.users,
		Runs:      pool,
		Reports:   reports,
		Artifacts: blobs,
		JWT:       jwtConfig,
		Password:  passwordConfig,
		RateLimit: rateLimitConfig(cfg),
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serveErr := srv.Start(ctx)

	if sweeper != nil {
		sweeper.Stop()
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := pool.Close(drainCtx); err != nil {
		logger.Warn("runs still active at shutdown were cancelled", zap.Error(err))
	}
	return serveErr
}
