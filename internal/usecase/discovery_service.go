package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/logger"
)

// DefaultTargetCount is the number of unique listings a run tries to collect
const DefaultTargetCount = 40

// DiscoveryServiceConfig holds configuration for the discovery service
type DiscoveryServiceConfig struct {
	TargetCount int
	RunTimeout  time.Duration
	Queries     QueryGeneratorConfig
	Fetcher     FetcherConfig
	Ranker      RankerConfig
}

// DiscoveryResult is the outcome of one discovery run
type DiscoveryResult struct {
	Requirements *domain.RequirementSpec `json:"requirements"`
	Queries      []domain.Query          `json:"queries"`
	Shortlist    domain.RankedShortlist  `json:"shortlist"`
	ArtifactPath string                  `json:"artifact_path"`
	Fetch        FetchReport             `json:"fetch"`
	Dropped      int                     `json:"dropped_listings"`
	Partial      bool                    `json:"partial"`
}

// DiscoveryService runs the supplier discovery pipeline:
// normalize requirements -> generate queries -> fetch listings -> normalize records -> rank -> persist
type DiscoveryService struct {
	generator  *QueryGenerator
	fetcher    *ListingFetcher
	normalizer *RecordNormalizer
	ranker     *Ranker
	store      domain.ShortlistRepository
	cfg        DiscoveryServiceConfig
	log        logger.Logger
	now        func() time.Time
}

// NewDiscoveryService creates a discovery service with dependencies. expander may be nil.
func NewDiscoveryService(
	source domain.ListingSource,
	expander domain.KeywordExpander,
	store domain.ShortlistRepository,
	config DiscoveryServiceConfig,
	log logger.Logger,
) *DiscoveryService {
	if config.TargetCount <= 0 {
		config.TargetCount = DefaultTargetCount
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &DiscoveryService{
		generator:  NewQueryGenerator(config.Queries, expander, log.With(logger.String("component", "query_generator"))),
		fetcher:    NewListingFetcher(source, config.Fetcher, log.With(logger.String("component", "listing_fetcher"))),
		normalizer: NewRecordNormalizer(),
		ranker:     NewRanker(config.Ranker, log.With(logger.String("component", "ranker"))),
		store:      store,
		cfg:        config,
		log:        log,
		now:        time.Now,
	}
}

// Run normalizes an intake document and runs discovery for it
func (s *DiscoveryService) Run(ctx context.Context, doc map[string]any) (*DiscoveryResult, error) {
	spec, err := NormalizeRequirements(doc)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageNormalize, Err: err}
	}
	return s.Discover(ctx, spec)
}

// Discover runs the pipeline for an already normalized requirement spec.
// If the run is cancelled after some listings arrived, the remaining stages still complete and the
// result is flagged partial. Failures are reported as *domain.StageError.
func (s *DiscoveryService) Discover(ctx context.Context, spec *domain.RequirementSpec) (*DiscoveryResult, error) {
	if spec == nil {
		return nil, &domain.StageError{Stage: domain.StageNormalize, Err: domain.ErrInvalidRequest}
	}

	started := s.now()
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	log := s.log
	if spec.SessionID != "" {
		log = log.With(logger.String("session_id", spec.SessionID))
	}
	log.Info("Discovery started", logger.String("product", spec.ProductType))

	queries, err := s.generator.Generate(ctx, spec)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageGenerate, Err: err}
	}

	fetchStarted := s.now()
	listings, report, err := s.fetcher.Fetch(ctx, queries, s.cfg.TargetCount)
	if err != nil {
		log.Error("Discovery failed", logger.String("stage", domain.StageFetch), logger.Error(err))
		return nil, err
	}
	log.Info("Listings fetched",
		logger.Int("listings", len(listings)),
		logger.Duration("elapsed", s.now().Sub(fetchStarted)),
	)

	result := &DiscoveryResult{
		Requirements: spec,
		Queries:      queries,
		Fetch:        report,
		Partial:      report.Cancelled,
	}
	if result.Partial {
		// Keep what was collected: the remaining stages are local and must not see the cancellation
		ctx = context.WithoutCancel(ctx)
		log.Warn("Run cancelled, continuing with partial listings", logger.Error(report.CancelErr))
	}

	records, dropped := s.normalizer.NormalizeAll(listings)
	result.Dropped = dropped
	if len(records) == 0 {
		return nil, &domain.StageError{
			Stage:            domain.StageNormalize,
			QueriesAttempted: report.QueriesAttempted,
			ListingsFetched:  report.ListingsFetched,
			Err:              fmt.Errorf("%w: all %d listings lacked a usable name or contact", domain.ErrDiscovery, len(listings)),
		}
	}

	result.Shortlist = s.ranker.Rank(spec, records)

	artifact := &domain.ShortlistArtifact{
		CreatedAt:      s.now().UTC(),
		Requirements:   spec,
		Queries:        queries,
		Partial:        result.Partial,
		TotalSuppliers: result.Shortlist.Len(),
		Suppliers:      result.Shortlist.Suppliers,
	}
	path, err := s.store.Save(ctx, artifact)
	if err != nil {
		stageErr := &domain.StageError{}
		if !errors.As(err, &stageErr) {
			stageErr = &domain.StageError{Stage: domain.StagePersist, Err: err}
		}
		stageErr.QueriesAttempted = report.QueriesAttempted
		stageErr.ListingsFetched = report.ListingsFetched
		log.Error("Discovery failed", logger.String("stage", domain.StagePersist), logger.Error(err))
		return nil, stageErr
	}
	result.ArtifactPath = path

	log.Info("Discovery finished",
		logger.Int("suppliers", result.Shortlist.Len()),
		logger.Int("dropped", dropped),
		logger.Bool("partial", result.Partial),
		logger.String("artifact", path),
		logger.Duration("elapsed", s.now().Sub(started)),
	)
	return result, nil
}
