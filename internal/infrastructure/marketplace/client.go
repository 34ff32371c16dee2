// Package marketplace searches the B2B supplier directory and turns result pages into raw listings.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/infrastructure/cache"
	"github.com/smartprocure/backend/internal/logger"
)

// Client defaults
const (
	DefaultBaseURL           = "https://dir.indiamart.com"
	DefaultSearchPath        = "/search.mp"
	DefaultQueryParam        = "ss"
	DefaultUserAgent         = "Mozilla/5.0 (compatible; SmartProcure/1.0)"
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerMinute = 30
	DefaultCacheTTL          = 6 * time.Hour
	maxBodyBytes             = 5 << 20
	cacheKeyPrefix           = "marketplace:search:"
)

// Config holds marketplace client settings
type Config struct {
	BaseURL           string
	SearchPath        string
	QueryParam        string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerMinute int
	CacheTTL          time.Duration
	Selectors         Selectors
}

// Client handles communication with the marketplace search pages.
// It never retries; retry policy belongs to the caller.
type Client struct {
	httpClient  *http.Client
	cfg         Config
	rateLimiter *rate.Limiter
	cache       domain.CacheRepository
	parser      *Parser
	log         logger.Logger
}

// NewClient creates a new marketplace client. cacheRepo may be nil to disable the page cache.
func NewClient(cfg Config, cacheRepo domain.CacheRepository, log logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.SearchPath == "" {
		cfg.SearchPath = DefaultSearchPath
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = DefaultQueryParam
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if log == nil {
		log = logger.NewNop()
	}

	// rate.Limit is requests per second
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:         cfg,
		rateLimiter: limiter,
		cache:       cacheRepo,
		parser:      NewParser(cfg.Selectors),
		log:         log,
	}
}

// SearchURL builds the search page URL for a query
func (c *Client) SearchURL(query string) string {
	params := url.Values{}
	params.Set(c.cfg.QueryParam, query)
	return strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.SearchPath + "?" + params.Encode()
}

// Search fetches and parses one result page.
// 429 yields a *domain.RateLimitError; 5xx, other 4xx and transport failures wrap domain.ErrNetwork;
// 404 is an empty result.
func (c *Client) Search(ctx context.Context, query string) ([]domain.RawListing, error) {
	key := cacheKey(query)
	if listings, ok := c.fromCache(ctx, key); ok {
		c.log.Debug("Search served from cache", logger.String("query", query))
		return listings, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := c.SearchURL(query)
	body, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	if body == nil {
		c.log.Debug("No results page", logger.String("query", query))
		return nil, nil
	}

	listings, err := c.parser.Parse(body, reqURL)
	if err != nil {
		return nil, fmt.Errorf("parse results for %q: %w", query, err)
	}
	for _, l := range listings {
		if l[domain.FieldURL] == "" {
			l[domain.FieldURL] = reqURL
		}
	}

	c.log.Debug("Search completed",
		logger.String("query", query),
		logger.Int("listings", len(listings)),
	)

	if len(listings) > 0 && c.cache != nil {
		if err := c.cache.Set(ctx, key, listings, c.cfg.CacheTTL); err != nil {
			c.log.Warn("Page cache write failed", logger.String("query", query), logger.Error(err))
		}
	}
	return listings, nil
}

// doRequest executes the GET request and maps the status code. A nil body means "no results".
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Status:     resp.StatusCode,
		}
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrNetwork, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}
	if body == nil {
		body = []byte{}
	}
	return body, nil
}

func (c *Client) fromCache(ctx context.Context, key string) ([]domain.RawListing, bool) {
	if c.cache == nil {
		return nil, false
	}
	v, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.log.Warn("Page cache read failed", logger.Error(err))
		}
		return nil, false
	}

	var listings []domain.RawListing
	if err := cache.Decode(v, &listings); err != nil {
		c.log.Warn("Page cache entry unreadable", logger.String("key", key), logger.Error(err))
		return nil, false
	}
	return listings, true
}

// cacheKey normalizes the query so that spacing and case variants share a cache entry
func cacheKey(query string) string {
	return cacheKeyPrefix + strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
