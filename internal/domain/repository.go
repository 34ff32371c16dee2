package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// Values are stored JSON-encoded and Get returns the encoded bytes.
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ListingSource performs a single marketplace search.
// Implementations return ErrNetwork or ErrRateLimited wrapped errors and never retry themselves.
type ListingSource interface {
	Search(ctx context.Context, query string) ([]RawListing, error)
}

// KeywordExpander suggests synonym or category search phrases for a product
type KeywordExpander interface {
	Expand(ctx context.Context, spec *RequirementSpec, limit int) ([]string, error)
}

// ShortlistRepository persists and reads back shortlist artifacts
type ShortlistRepository interface {
	Save(ctx context.Context, artifact *ShortlistArtifact) (string, error)
	Load(ctx context.Context, path string) (*ShortlistArtifact, error)
	Latest(ctx context.Context) (string, error)
}
