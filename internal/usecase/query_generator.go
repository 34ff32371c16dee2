package usecase

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/logger"
)

// DefaultMaxQueries caps the number of marketplace searches per run
const DefaultMaxQueries = 4

// Compiled regex patterns for query cleanup
var (
	multipleSpacesRegex = regexp.MustCompile(`\s+`)

	// Lone punctuation left between words, or at either end of the phrase
	orphanPunctuationRegex  = regexp.MustCompile(`\s+[\-/.]+\s+`)
	edgePunctuationRegex    = regexp.MustCompile(`^[\s\-/.]+|[\s\-/.]+$`)
	querySafeCharacterRegex = regexp.MustCompile(`[^\p{L}\p{N}\s.\-/%+]`)
)

// priorityKeys are the specification keys that best narrow a marketplace search, highest signal first
var priorityKeys = []string{
	"material", "grade", "type", "size", "diameter", "length", "thickness",
	"finish", "standard", "purity", "concentration", "color", "capacity", "model",
}

// noiseValues never help a search
var noiseValues = map[string]bool{
	"any":      true,
	"n/a":      true,
	"na":       true,
	"none":     true,
	"standard": true,
	"-":        true,
}

// QueryGeneratorConfig tunes query generation
type QueryGeneratorConfig struct {
	MaxQueries  int
	MaxSynonyms int
}

// QueryGenerator turns a requirement spec into an ordered, weighted list of search phrases
type QueryGenerator struct {
	cfg      QueryGeneratorConfig
	expander domain.KeywordExpander
	log      logger.Logger
}

// NewQueryGenerator creates a query generator. expander may be nil.
func NewQueryGenerator(cfg QueryGeneratorConfig, expander domain.KeywordExpander, log logger.Logger) *QueryGenerator {
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = DefaultMaxQueries
	}
	if cfg.MaxSynonyms < 0 {
		cfg.MaxSynonyms = 0
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &QueryGenerator{cfg: cfg, expander: expander, log: log}
}

// Generate builds search queries, most specific first.
// Combinations of the product with its top two specification values come first and the
// bare product query always closes the deterministic part of the list.
func (g *QueryGenerator) Generate(ctx context.Context, spec *domain.RequirementSpec) ([]domain.Query, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: nil requirement spec", domain.ErrGeneration)
	}

	product := cleanQueryText(spec.ProductType)
	if product == "" {
		return nil, fmt.Errorf("%w: product type is empty after cleanup", domain.ErrGeneration)
	}

	values := rankSpecValues(product, spec.Specifications)

	var texts []string
	switch {
	case len(values) >= 2:
		texts = []string{
			product + " " + values[0] + " " + values[1],
			product + " " + values[0],
			product + " " + values[1],
			product,
		}
	case len(values) == 1:
		texts = []string{product + " " + values[0], product}
	default:
		texts = []string{product}
	}

	if g.expander != nil && g.cfg.MaxSynonyms > 0 {
		texts = append(texts, g.expand(ctx, spec)...)
	}

	texts = dedupeTexts(texts)
	if len(texts) > g.cfg.MaxQueries {
		texts = texts[:g.cfg.MaxQueries]
	}

	queries := make([]domain.Query, len(texts))
	n := float64(len(texts))
	for i, text := range texts {
		queries[i] = domain.Query{
			Text:   text,
			Weight: math.Round((n-float64(i))/n*10000) / 10000,
		}
	}

	g.log.Debug("Generated queries",
		logger.String("product", product),
		logger.Strings("queries", texts),
	)
	return queries, nil
}

// expand asks the keyword expander for synonym phrases. Failures only cost the hints.
func (g *QueryGenerator) expand(ctx context.Context, spec *domain.RequirementSpec) []string {
	hints, err := g.expander.Expand(ctx, spec, g.cfg.MaxSynonyms)
	if err != nil {
		g.log.Warn("Keyword expansion failed", logger.Error(err))
		return nil
	}

	out := make([]string, 0, len(hints))
	for _, h := range hints {
		if cleaned := cleanQueryText(h); cleaned != "" {
			out = append(out, cleaned)
		}
		if len(out) == g.cfg.MaxSynonyms {
			break
		}
	}
	return out
}

// rankSpecValues orders specification values by signal and drops the ones that add nothing to the product text
func rankSpecValues(product string, specs map[string]string) []string {
	if len(specs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, k := range priorityKeys {
		if _, ok := specs[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}

	rest := make([]string, 0, len(specs))
	for k := range specs {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	var values []string
	used := make(map[string]bool)
	for _, k := range keys {
		v := cleanQueryText(specs[k])
		if v == "" || noiseValues[v] || used[v] {
			continue
		}
		if strings.Contains(product, v) {
			continue
		}
		used[v] = true
		values = append(values, v)
	}
	return values
}

// cleanQueryText lower-cases, strips unsafe characters and orphaned punctuation, and collapses whitespace
func cleanQueryText(s string) string {
	cleaned := strings.ToLower(s)
	cleaned = querySafeCharacterRegex.ReplaceAllString(cleaned, " ")
	cleaned = orphanPunctuationRegex.ReplaceAllString(cleaned, " ")
	cleaned = edgePunctuationRegex.ReplaceAllString(cleaned, "")
	return collapseSpaces(cleaned)
}

func dedupeTexts(texts []string) []string {
	seen := make(map[string]bool, len(texts))
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
