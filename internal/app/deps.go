package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"llm-fusion/internal/cache"
	"llm-fusion/internal/config"
	"llm-fusion/internal/dispatch"
	"llm-fusion/internal/document"
	"llm-fusion/internal/fusion"
	"llm-fusion/internal/logger"
	"llm-fusion/internal/orchestrator"
	"llm-fusion/internal/provider"
	"llm-fusion/internal/queue"
)

// Deps bundles common runtime dependencies for services.
type Deps struct {
	Config       config.Config
	Settings     config.Settings
	Log          *slog.Logger
	Registry     *provider.Registry
	Dispatcher   *dispatch.Dispatcher
	Engine       *fusion.Engine
	Cache        cache.Cache
	Docs         *document.Library
	Orchestrator *orchestrator.Orchestrator
	Queue        queue.Queue
}

// Build loads env, config, and shared components, and probes the providers.
func Build(ctx context.Context) (Deps, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "err", err)
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to load settings: %w", err)
	}

	registry, err := buildRegistry(ctx, settings, log)
	if err != nil {
		return Deps{}, err
	}

	c, err := buildCache(cfg, settings, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize cache: %w", err)
	}

	dispatcher := dispatch.New(registry, log, dispatch.Options{
		MaxConcurrent:   settings.Dispatch.MaxConcurrent,
		CallTimeout:     settings.Dispatch.CallTimeout.Std(),
		SequentialPause: settings.Dispatch.SequentialPause.Std(),
	})
	engine := fusion.NewEngine(registry, dispatcher, log)
	docs := document.NewLibrary(log)

	orch := orchestrator.New(dispatcher, engine, c, docs, log, orchestrator.Defaults{
		Strategy:          fusion.Strategy(settings.Fusion.DefaultStrategy),
		SystemPrompt:      settings.SystemPrompt,
		SynthesisProvider: settings.Fusion.SynthesisProvider,
	})

	q, err := buildQueue(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}

	return Deps{
		Config:       cfg,
		Settings:     settings,
		Log:          log,
		Registry:     registry,
		Dispatcher:   dispatcher,
		Engine:       engine,
		Cache:        c,
		Docs:         docs,
		Orchestrator: orch,
		Queue:        q,
	}, nil
}

func buildRegistry(ctx context.Context, settings config.Settings, log *slog.Logger) (*provider.Registry, error) {
	var candidates []provider.Provider
	for _, ps := range settings.Providers {
		client, err := buildClient(ps)
		if err != nil {
			log.Warn("skipping provider with invalid configuration", "provider", ps.ID, "err", err)
			continue
		}
		candidates = append(candidates, provider.Provider{
			ID:            ps.ID,
			Label:         ps.Label,
			Model:         ps.Model,
			Temperature:   ps.Temperature,
			MaxTokens:     ps.MaxTokens,
			MaxConcurrent: ps.MaxConcurrent,
			Client:        client,
		})
	}

	registry := provider.NewRegistry(log, candidates, provider.ProbeOptions{
		Timeout:  settings.Probe.Timeout.Std(),
		Attempts: settings.Probe.Attempts,
		Backoff:  settings.Probe.Backoff.Std(),
	})
	if err := registry.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize provider registry: %w", err)
	}
	return registry, nil
}

func buildClient(ps config.ProviderSetting) (provider.Client, error) {
	switch ps.Type {
	case "stub":
		return provider.NewStubClient(ps.ID), nil
	case "openai", "":
		return provider.NewOpenAIClient(ps.APIKey, ps.BaseURL, openai.ChatModel(ps.Model))
	default:
		return nil, fmt.Errorf("invalid provider type: %s (valid options: openai, stub)", ps.Type)
	}
}

func buildCache(cfg config.Config, settings config.Settings, log *slog.Logger) (cache.Cache, error) {
	var durable cache.Durable
	var err error
	switch cfg.CacheProvider {
	case "memory":
		durable = nil
		log.Info("using memory-only cache")
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when CACHE_PROVIDER=redis")
		}
		durable, err = cache.NewRedisDurable(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		log.Info("using Redis cache tier", "addr", cfg.RedisAddr)
	case "sqlite":
		durable, err = cache.NewSQLiteDurable(cfg.CacheDBPath)
		if err != nil {
			return nil, err
		}
		log.Info("using SQLite cache tier", "path", cfg.CacheDBPath)
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when CACHE_PROVIDER=postgres")
		}
		durable, err = cache.NewPostgresDurable(cfg.DBURL)
		if err != nil {
			return nil, err
		}
		log.Info("using Postgres cache tier")
	default:
		return nil, fmt.Errorf("invalid CACHE_PROVIDER: %s (valid options: memory, redis, sqlite, postgres)", cfg.CacheProvider)
	}

	ttls := make(map[string]time.Duration, len(settings.Cache.TTLs))
	for category, ttl := range settings.Cache.TTLs {
		ttls[category] = ttl.Std()
	}
	return cache.NewStore(log, durable, ttls, settings.Cache.DefaultTTL.Std()), nil
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "none", "":
		return nil, nil
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid options: nats, none)", cfg.QueueProvider)
	}
}
