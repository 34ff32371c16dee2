package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/logger"
)

// Fetcher defaults
const (
	DefaultFetchConcurrency = 3
	MaxFetchConcurrency     = 3
	DefaultMaxRetries       = 3
	DefaultBackoffBase      = 500 * time.Millisecond
	DefaultBackoffMax       = 8 * time.Second
	DefaultPolitenessDelay  = time.Second
)

// queryState tracks one query through its fetch lifecycle
type queryState int

const (
	statePending queryState = iota
	stateFetching
	stateRetrying
	stateSucceeded
	stateExhausted
	stateCancelled
)

func (s queryState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateFetching:
		return "fetching"
	case stateRetrying:
		return "retrying"
	case stateSucceeded:
		return "succeeded"
	case stateExhausted:
		return "exhausted"
	case stateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// FetcherConfig holds configuration for the listing fetcher
type FetcherConfig struct {
	Concurrency     int
	PolitenessDelay time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
}

// FetchReport summarizes a fetch run
type FetchReport struct {
	QueriesAttempted int   `json:"queries_attempted"`
	QueriesSucceeded int   `json:"queries_succeeded"`
	QueriesExhausted int   `json:"queries_exhausted"`
	ListingsFetched  int   `json:"listings_fetched"`
	UniqueListings   int   `json:"unique_listings"`
	TargetReached    bool  `json:"target_reached"`
	Cancelled        bool  `json:"cancelled"`
	CancelErr        error `json:"-"`
}

// ListingFetcher runs marketplace searches for a list of queries with retries and politeness
type ListingFetcher struct {
	source  domain.ListingSource
	cfg     FetcherConfig
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	log     logger.Logger
}

// NewListingFetcher creates a listing fetcher. Zero config values fall back to defaults,
// a negative MaxRetries disables retries and a zero PolitenessDelay disables the delay.
func NewListingFetcher(source domain.ListingSource, cfg FetcherConfig, log logger.Logger) *ListingFetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultFetchConcurrency
	}
	if cfg.Concurrency > MaxFetchConcurrency {
		cfg.Concurrency = MaxFetchConcurrency
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if log == nil {
		log = logger.NewNop()
	}

	limit := rate.Inf
	if cfg.PolitenessDelay > 0 {
		limit = rate.Every(cfg.PolitenessDelay)
	}

	return &ListingFetcher{
		source:  source,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepContext,
		log:     log,
	}
}

// collector is the single-writer accumulator shared by the fetch workers.
// Results are kept in one slot per query so the returned order follows the query order,
// not the order in which fetches finish.
type collector struct {
	mu     sync.Mutex
	slots  [][]domain.RawListing
	seen   map[string]bool
	target int
	report FetchReport
}

// add stores the listings of query i and reports whether the target was reached
func (c *collector) add(i int, listings []domain.RawListing) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.report.QueriesSucceeded++
	c.slots[i] = listings
	for _, l := range listings {
		c.report.ListingsFetched++
		key := l.IdentityKey()
		if !c.seen[key] {
			c.seen[key] = true
			c.report.UniqueListings++
		}
	}
	if c.target > 0 && c.report.UniqueListings >= c.target {
		c.report.TargetReached = true
	}
	return c.report.TargetReached
}

func (c *collector) exhausted() {
	c.mu.Lock()
	c.report.QueriesExhausted++
	c.mu.Unlock()
}

// listings concatenates the slots in query order
func (c *collector) listings() []domain.RawListing {
	var out []domain.RawListing
	for _, slot := range c.slots {
		out = append(out, slot...)
	}
	return out
}

func (c *collector) reached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report.TargetReached
}

// Fetch runs queries in order until targetCount unique listings are collected or queries run out.
// Raw duplicates are kept so later stages can merge their provenance. On cancellation the
// listings collected so far are returned with the report marked cancelled. A run that yields
// no listings at all fails with a fetch StageError wrapping ErrDiscovery.
func (f *ListingFetcher) Fetch(ctx context.Context, queries []domain.Query, targetCount int) ([]domain.RawListing, FetchReport, error) {
	col := &collector{
		slots:  make([][]domain.RawListing, len(queries)),
		seen:   make(map[string]bool),
		target: targetCount,
	}

	// runCtx stops in-flight and pending queries once the target is met
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)

	for i, q := range queries {
		if runCtx.Err() != nil || col.reached() {
			break
		}

		// Go blocks until a worker slot frees up, so the stop condition is checked again inside
		g.Go(func() error {
			if runCtx.Err() != nil {
				return nil
			}
			col.mu.Lock()
			col.report.QueriesAttempted++
			col.mu.Unlock()

			listings, state, err := f.runQuery(runCtx, q)
			switch state {
			case stateSucceeded:
				tagged := make([]domain.RawListing, 0, len(listings))
				for _, l := range listings {
					tagged = append(tagged, tagListing(l, q.Text))
				}
				if col.add(i, tagged) {
					stop()
				}
				f.log.Debug("Query succeeded",
					logger.String("query", q.Text),
					logger.Int("listings", len(listings)),
				)
			case stateExhausted:
				col.exhausted()
				f.log.Warn("Query exhausted, skipping",
					logger.String("query", q.Text),
					logger.Error(err),
				)
			case stateCancelled:
				f.log.Debug("Query cancelled", logger.String("query", q.Text))
			}
			return nil
		})
	}
	_ = g.Wait()

	col.mu.Lock()
	defer col.mu.Unlock()
	report := col.report
	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		report.CancelErr = err
	}

	f.log.Info("Fetch finished",
		logger.Int("queries_attempted", report.QueriesAttempted),
		logger.Int("queries_succeeded", report.QueriesSucceeded),
		logger.Int("queries_exhausted", report.QueriesExhausted),
		logger.Int("listings", report.ListingsFetched),
		logger.Int("unique", report.UniqueListings),
		logger.Bool("cancelled", report.Cancelled),
	)

	listings := col.listings()
	if len(listings) == 0 {
		cause := fmt.Errorf("%w: no listings from %d queries", domain.ErrDiscovery, report.QueriesAttempted)
		if report.Cancelled {
			cause = fmt.Errorf("%w: run cancelled before any listing was fetched: %w", domain.ErrDiscovery, report.CancelErr)
		}
		return nil, report, &domain.StageError{
			Stage:            domain.StageFetch,
			QueriesAttempted: report.QueriesAttempted,
			ListingsFetched:  0,
			Err:              cause,
		}
	}

	return listings, report, nil
}

// runQuery drives a single query through pending -> fetching -> (succeeded | retrying -> fetching | exhausted)
func (f *ListingFetcher) runQuery(ctx context.Context, q domain.Query) ([]domain.RawListing, queryState, error) {
	state := statePending
	retries := 0
	var lastErr error

	for {
		switch state {
		case statePending, stateRetrying:
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, stateCancelled, err
			}
			state = stateFetching

		case stateFetching:
			listings, err := f.source.Search(ctx, q.Text)
			if err == nil {
				return listings, stateSucceeded, nil
			}
			if ctx.Err() != nil {
				return nil, stateCancelled, ctx.Err()
			}

			lastErr = err
			if !isRetryable(err) || retries >= f.cfg.MaxRetries {
				return nil, stateExhausted, lastErr
			}

			delay := f.backoff(retries, err)
			retries++
			f.log.Debug("Retrying query",
				logger.String("query", q.Text),
				logger.Int("retry", retries),
				logger.Duration("delay", delay),
				logger.Error(err),
			)
			if err := f.sleep(ctx, delay); err != nil {
				return nil, stateCancelled, err
			}
			state = stateRetrying

		default:
			return nil, state, lastErr
		}
	}
}

// backoff returns the wait before the given retry, honouring a server Retry-After up to the cap
func (f *ListingFetcher) backoff(retry int, err error) time.Duration {
	delay := exponentialBackoff(f.cfg.BackoffBase, f.cfg.BackoffMax, retry)

	var rl *domain.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > delay {
		delay = min(rl.RetryAfter, f.cfg.BackoffMax)
	}
	return delay
}

// exponentialBackoff returns base * 2^retry, capped at ceiling
func exponentialBackoff(base, ceiling time.Duration, retry int) time.Duration {
	delay := base
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return min(delay, ceiling)
}

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrNetwork)
}

// tagListing copies l and records the query that produced it
func tagListing(l domain.RawListing, query string) domain.RawListing {
	out := make(domain.RawListing, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	out[domain.FieldSourceQuery] = query
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
