package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/market-research/internal/artifacts"
	"github.com/jonathan/market-research/internal/config"
	"github.com/jonathan/market-research/internal/db"
	"github.com/jonathan/market-research/internal/generator"
	"github.com/jonathan/market-research/internal/llm"
	"github.com/jonathan/market-research/internal/lock"
	"github.com/jonathan/market-research/internal/mongostore"
	"github.com/jonathan/market-research/internal/observability"
	"github.com/jonathan/market-research/internal/pipeline"
	"github.com/jonathan/market-research/internal/prompts"
	"github.com/jonathan/market-research/internal/rendering"
	"github.com/jonathan/market-research/internal/server/ratelimit"
	"github.com/jonathan/market-research/internal/store"
)

var (
	_ pipeline.Locker   = (*lock.RedisLocker)(nil)
	_ pipeline.Renderer = (*rendering.Service)(nil)
	_ artifacts.Store   = (*artifacts.Local)(nil)
	_ artifacts.Store   = (*artifacts.S3Store)(nil)
)

// backend is the selected request and user store.
type backend struct {
	requests store.RequestStore
	users    store.UserStore
	close    func()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		database, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("using postgres store")
		return &backend{requests: database, users: database, close: database.Close}, nil
	case config.StoreMongo:
		ms, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		logger.Info("using mongo store", zap.String("database", cfg.Mongo.Database))
		return &backend{requests: ms, users: ms, close: func() {
			if err := ms.Close(); err != nil {
				logger.Warn("mongo disconnect failed", zap.Error(err))
			}
		}}, nil
	default:
		logger.Warn("using in-memory store, requests are lost on restart")
		mem := store.NewMemory()
		return &backend{requests: mem, users: mem, close: func() {}}, nil
	}
}

func openArtifacts(ctx context.Context, cfg *config.Config) (artifacts.Store, error) {
	if cfg.Artifacts.Driver == config.ArtifactsS3 {
		s3Store, err := artifacts.NewS3Store(ctx, artifacts.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			BaseURL:   cfg.Artifacts.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return s3Store, nil
	}
	local, err := artifacts.NewLocal(cfg.Artifacts.Dir, cfg.Artifacts.BaseURL)
	if err != nil {
		return nil, err
	}
	return local, nil
}

// newAdapter builds the generation adapter. Without an API key every stage uses
// its fallback payload.
func newAdapter(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*generator.Adapter, func(), error) {
	opts := []generator.Option{
		generator.WithTimeout(cfg.LLM.Timeout),
		generator.WithLogger(logger),
		generator.WithMetrics(metrics),
	}
	if cfg.LLM.APIKey == "" {
		logger.Warn("no LLM API key configured, reports will use fallback data")
		return generator.New(nil, opts...), func() {}, nil
	}

	llmCfg, err := cfg.LLMClientConfig()
	if err != nil {
		return nil, nil, err
	}
	set, err := prompts.Default()
	if err != nil {
		return nil, nil, err
	}
	llmCfg.SystemInstruction = set.System()
	client, err := llm.NewClient(ctx, llmCfg, cfg.LLM.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	logger.Info("LLM client ready",
		zap.String("provider", string(llmCfg.Provider)),
		zap.String("model", llmCfg.GetModel(llm.TierAdvanced)),
	)
	return generator.New(client, opts...), func() { _ = client.Close() }, nil
}

func rateLimitConfig(cfg *config.Config) *ratelimit.Config {
	rl := ratelimit.DefaultConfig()
	rl.Enabled = cfg.RateLimit.Enabled
	rl.DefaultLimit = cfg.RateLimit.Requests
	rl.DefaultWindow = cfg.RateLimit.Window
	rl.Whitelist = ratelimit.ParseIPList(cfg.RateLimit.Whitelist)
	rl.Blacklist = ratelimit.ParseIPList(cfg.RateLimit.Blacklist)
	return rl
}
