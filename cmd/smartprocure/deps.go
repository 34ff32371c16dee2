package main

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/smartprocure/backend/config"
	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/infrastructure/cache"
	"github.com/smartprocure/backend/internal/infrastructure/gemini"
	"github.com/smartprocure/backend/internal/infrastructure/marketplace"
	"github.com/smartprocure/backend/internal/infrastructure/storage"
	"github.com/smartprocure/backend/internal/logger"
	"github.com/smartprocure/backend/internal/outreach"
	"github.com/smartprocure/backend/internal/usecase"
)

const redisKeyPrefix = "smartprocure:"

// services bundles the wired application components
type services struct {
	discovery  *usecase.DiscoveryService
	shortlists *storage.ShortlistWriter
	closers    []func() error
}

func (s *services) Close() {
	for _, closeFn := range s.closers {
		_ = closeFn()
	}
}

// newCache builds the page cache selected by configuration
func newCache(ctx context.Context, cfg config.CacheConfig) (domain.CacheRepository, func() error, error) {
	switch cfg.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL, redisKeyPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redisCache, redisCache.Close, nil
	default:
		return cache.NewMemoryCache(), func() error { return nil }, nil
	}
}

// newExpander returns the Gemini keyword expander, or nil when no API key is configured
func newExpander(ctx context.Context, cfg config.AIConfig, log logger.Logger) domain.KeywordExpander {
	if cfg.GeminiAPIKey == "" || cfg.MaxSynonyms <= 0 {
		return nil
	}
	expander, err := gemini.NewExpander(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.Model}, log)
	if err != nil {
		log.Warn("Keyword expansion disabled", logger.Error(err))
		return nil
	}
	return expander
}

func marketplaceConfig(cfg *config.Config) marketplace.Config {
	return marketplace.Config{
		BaseURL:           cfg.Marketplace.BaseURL,
		SearchPath:        cfg.Marketplace.SearchPath,
		QueryParam:        cfg.Marketplace.QueryParam,
		UserAgent:         cfg.Marketplace.UserAgent,
		Timeout:           cfg.Marketplace.Timeout,
		RequestsPerMinute: cfg.Marketplace.RequestsPerMinute,
		CacheTTL:          cfg.Cache.TTL,
		Selectors:         cfg.Marketplace.Selectors,
	}
}

func discoveryConfig(cfg *config.Config) usecase.DiscoveryServiceConfig {
	return usecase.DiscoveryServiceConfig{
		TargetCount: cfg.Discovery.TargetCount,
		RunTimeout:  cfg.Discovery.RunTimeout,
		Queries: usecase.QueryGeneratorConfig{
			MaxQueries:  cfg.Discovery.MaxQueries,
			MaxSynonyms: cfg.AI.MaxSynonyms,
		},
		Fetcher: usecase.FetcherConfig{
			Concurrency:     cfg.Discovery.Concurrency,
			PolitenessDelay: cfg.Discovery.PolitenessDelay,
			MaxRetries:      cfg.Discovery.MaxRetries,
			BackoffBase:     cfg.Discovery.BackoffBase,
			BackoffMax:      cfg.Discovery.BackoffMax,
		},
		Ranker: usecase.RankerConfig{
			MaxResults: cfg.Discovery.MaxResults,
		},
	}
}

// newServices wires the discovery pipeline against the real marketplace and file system
func newServices(ctx context.Context, cfg *config.Config, fsys afero.Fs, log logger.Logger) (*services, error) {
	pageCache, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	log.Info("Cache ready", logger.String("type", cfg.Cache.Type), logger.Duration("ttl", cfg.Cache.TTL))

	client := marketplace.NewClient(marketplaceConfig(cfg), pageCache, log.With(logger.String("component", "marketplace")))
	shortlists := storage.NewShortlistWriter(fsys, cfg.Storage.Dir, log.With(logger.String("component", "storage")))
	expander := newExpander(ctx, cfg.AI, log.With(logger.String("component", "gemini")))

	discovery := usecase.NewDiscoveryService(client, expander, shortlists, discoveryConfig(cfg), log)
	return &services{
		discovery:  discovery,
		shortlists: shortlists,
		closers:    []func() error{closeCache},
	}, nil
}

// newSenders returns the live delivery channels that are configured; either may be nil
func newSenders(cfg config.OutreachConfig) (outreach.EmailSender, outreach.SMSSender) {
	var (
		email outreach.EmailSender
		sms   outreach.SMSSender
	)
	if cfg.SMTP.Configured() {
		email = outreach.NewSMTPSender(cfg.SMTP)
	}
	if cfg.Twilio.Configured() {
		sms = outreach.NewTwilioSender(cfg.Twilio)
	}
	return email, sms
}
