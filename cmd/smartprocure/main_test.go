package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartprocure/backend/config"
	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/infrastructure/cache"
	"github.com/smartprocure/backend/internal/logger"
	"github.com/smartprocure/backend/internal/outreach"
	"github.com/smartprocure/backend/internal/usecase"
)

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	t.Run("memory by default", func(t *testing.T) {
		repo, closeFn, err := newCache(ctx, config.CacheConfig{Type: "memory"})
		require.NoError(t, err)
		assert.IsType(t, &cache.MemoryCache{}, repo)
		assert.NoError(t, closeFn())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		repo, closeFn, err := newCache(ctx, config.CacheConfig{Type: "redis", RedisURL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		assert.IsType(t, &cache.RedisCache{}, repo)

		require.NoError(t, repo.Set(ctx, "k", "v", time.Minute))
		assert.True(t, mr.Exists(redisKeyPrefix+"k"))
		assert.NoError(t, closeFn())
	})

	t.Run("unreachable redis", func(t *testing.T) {
		_, _, err := newCache(ctx, config.CacheConfig{Type: "redis", RedisURL: "redis://127.0.0.1:1"})
		assert.Error(t, err)
	})
}

func TestNewExpander_DisabledWithoutKeyOrSynonyms(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, newExpander(ctx, config.AIConfig{MaxSynonyms: 3}, logger.NewNop()))
	assert.Nil(t, newExpander(ctx, config.AIConfig{GeminiAPIKey: "key", MaxSynonyms: 0}, logger.NewNop()))
}

func TestDiscoveryConfig(t *testing.T) {
	cfg := &config.Config{
		Discovery: config.DiscoveryConfig{
			TargetCount:     25,
			MaxQueries:      3,
			Concurrency:     2,
			PolitenessDelay: time.Second,
			MaxRetries:      4,
			BackoffBase:     time.Second,
			BackoffMax:      5 * time.Second,
			MaxResults:      10,
			RunTimeout:      time.Minute,
		},
		AI: config.AIConfig{MaxSynonyms: 2},
	}

	got := discoveryConfig(cfg)
	assert.Equal(t, 25, got.TargetCount)
	assert.Equal(t, time.Minute, got.RunTimeout)
	assert.Equal(t, usecase.QueryGeneratorConfig{MaxQueries: 3, MaxSynonyms: 2}, got.Queries)
	assert.Equal(t, 2, got.Fetcher.Concurrency)
	assert.Equal(t, 4, got.Fetcher.MaxRetries)
	assert.Equal(t, 5*time.Second, got.Fetcher.BackoffMax)
	assert.Equal(t, 10, got.Ranker.MaxResults)
}

func TestMarketplaceConfig_UsesCacheTTL(t *testing.T) {
	cfg := &config.Config{
		Marketplace: config.MarketplaceConfig{BaseURL: "https://example.com", RequestsPerMinute: 12},
		Cache:       config.CacheConfig{TTL: 2 * time.Hour},
	}

	got := marketplaceConfig(cfg)
	assert.Equal(t, "https://example.com", got.BaseURL)
	assert.Equal(t, 12, got.RequestsPerMinute)
	assert.Equal(t, 2*time.Hour, got.CacheTTL)
}

func TestNewSenders(t *testing.T) {
	email, sms := newSenders(config.OutreachConfig{})
	assert.Nil(t, email)
	assert.Nil(t, sms)

	email, sms = newSenders(config.OutreachConfig{
		SMTP:   outreach.SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p", FromEmail: "buyer@example.com"},
		Twilio: outreach.TwilioConfig{AccountSID: "AC1", AuthToken: "t", FromNumber: "+15550000000"},
	})
	assert.NotNil(t, email)
	assert.NotNil(t, sms)
}

func TestRenderShortlist(t *testing.T) {
	rating := 4.5
	result := &usecase.DiscoveryResult{
		Requirements: &domain.RequirementSpec{ProductType: "industrial bolts"},
		Queries:      []domain.Query{{Text: "industrial bolts", Weight: 1}},
		ArtifactPath: "data/shortlist_x.json",
		Partial:      true,
		Shortlist: domain.RankedShortlist{Suppliers: []domain.ScoredSupplier{
			{SupplierRecord: domain.SupplierRecord{Name: "Steelcraft Fasteners", Contact: domain.Contact{Phone: "+919876500001"}, Rating: &rating}, Score: 88.5},
			{SupplierRecord: domain.SupplierRecord{Name: "Metro Hardware", Contact: domain.Contact{Email: "metro@example.com"}, Location: "Pune"}, Score: 42},
		}},
	}

	var buf bytes.Buffer
	renderShortlist(&buf, result, 1)
	out := buf.String()

	assert.Contains(t, out, `Supplier shortlist for "industrial bolts"`)
	assert.Contains(t, out, "Steelcraft Fasteners")
	assert.Contains(t, out, "88.5")
	assert.NotContains(t, out, "Metro Hardware")
	assert.Contains(t, out, "(partial run)")
	assert.Contains(t, out, "Saved to data/shortlist_x.json")
}

func TestChannelStatus(t *testing.T) {
	assert.Equal(t, "-", channelStatus("", false, "", false))
	assert.Equal(t, "sent", channelStatus("a@example.com", true, "", false))
	assert.Equal(t, "skipped", channelStatus("a@example.com", false, "", true))
	assert.Equal(t, "failed: refused", channelStatus("a@example.com", false, "refused", false))
	assert.Equal(t, "not sent", channelStatus("+15550000000", false, "", false))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short text", preview("  short \n text ", 20))
	assert.Equal(t, "abcdefg...", preview("abcdefghijklmnop", 10))
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "smartprocure version")
}
