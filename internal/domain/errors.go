package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation is returned when a requirements document has a bad shape
	ErrValidation = errors.New("invalid requirements")

	// ErrGeneration is returned when no search query can be derived from the requirements
	ErrGeneration = errors.New("query generation failed")

	// ErrNetwork is returned when a marketplace request fails at the transport or server level
	ErrNetwork = errors.New("marketplace request failed")

	// ErrRateLimited is returned when the marketplace throttles a request
	ErrRateLimited = errors.New("marketplace rate limit exceeded")

	// ErrDiscovery is returned when a run produced no usable listings at all
	ErrDiscovery = errors.New("supplier discovery found no listings")

	// ErrPersistence is returned when the shortlist artifact cannot be written
	ErrPersistence = errors.New("shortlist persistence failed")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrArtifactNotFound is returned when no shortlist artifact exists
	ErrArtifactNotFound = errors.New("shortlist artifact not found")
)

// RateLimitError carries the server's requested wait, if any
type RateLimitError struct {
	RetryAfter time.Duration
	Status     int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (status %d, retry after %s)", ErrRateLimited, e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("%s (status %d)", ErrRateLimited, e.Status)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Pipeline stage names used in StageError
const (
	StageNormalize = "normalize"
	StageGenerate  = "generate"
	StageFetch     = "fetch"
	StageRank      = "rank"
	StagePersist   = "persist"
)

// StageError reports which pipeline stage failed and how much work was attempted first
type StageError struct {
	Stage            string
	QueriesAttempted int
	ListingsFetched  int
	Err              error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d queries and %d listings: %v",
		e.Stage, e.QueriesAttempted, e.ListingsFetched, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
