package usecase

import (
	"math"
	"sort"
	"strings"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/logger"
)

// Score weights, summing to 100
const (
	ratingWeight  = 40.0
	contactWeight = 30.0
	matchWeight   = 30.0
)

const (
	defaultRating       = 2.5 // assumed for suppliers without a parseable rating
	maxRating           = 5.0
	bothContactsFactor  = 1.0
	oneContactFactor    = 0.6
	DefaultMaxResults   = 20
	scoreRoundingFactor = 10000
)

// RankerConfig holds configuration for the ranker
type RankerConfig struct {
	MaxResults int
}

// Ranker merges duplicate supplier records and orders them by score
type Ranker struct {
	maxResults int
	log        logger.Logger
}

// NewRanker creates a ranker with the given configuration
func NewRanker(config RankerConfig, log logger.Logger) *Ranker {
	maxResults := config.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Ranker{maxResults: maxResults, log: log}
}

// Rank deduplicates records and returns them ordered by descending score.
// Ranking its own output again yields the same shortlist.
func (r *Ranker) Rank(spec *domain.RequirementSpec, records []domain.SupplierRecord) domain.RankedShortlist {
	merged := Deduplicate(records)
	terms := requirementTerms(spec)

	scored := make([]domain.ScoredSupplier, len(merged))
	for i, rec := range merged {
		breakdown := scoreBreakdown(rec, terms)
		scored[i] = domain.ScoredSupplier{
			SupplierRecord: rec,
			Score:          roundScore(breakdown.Rating + breakdown.Contact + breakdown.Match),
			Breakdown:      breakdown,
		}
	}

	// Stable on first-seen order for full ties
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Contact.HasPhone() != b.Contact.HasPhone() {
			return a.Contact.HasPhone()
		}
		if a.Contact.HasEmail() != b.Contact.HasEmail() {
			return a.Contact.HasEmail()
		}
		return ratingOrLowest(a.Rating) > ratingOrLowest(b.Rating)
	})

	if len(scored) > r.maxResults {
		scored = scored[:r.maxResults]
	}

	r.log.Debug("Ranked suppliers",
		logger.Int("input", len(records)),
		logger.Int("unique", len(merged)),
		logger.Int("kept", len(scored)),
	)
	return domain.RankedShortlist{Suppliers: scored}
}

// Deduplicate merges records sharing an id, or sharing a phone number or email address under
// the same normalized name. Suppliers with different names are never merged.
// The first-seen record wins and only has its empty fields filled from later duplicates.
// It keeps its id even when a merge fills in a contact its id was not derived from, so an id
// persisted once stays the key of that supplier.
func Deduplicate(records []domain.SupplierRecord) []domain.SupplierRecord {
	arena := make([]domain.SupplierRecord, 0, len(records))
	byID := make(map[string]int, len(records))
	byPhone := make(map[string]int, len(records))
	byEmail := make(map[string]int, len(records))

	index := func(i int) {
		rec := arena[i]
		byID[rec.ID] = i
		if rec.Contact.HasPhone() {
			if _, ok := byPhone[rec.Contact.Phone]; !ok {
				byPhone[rec.Contact.Phone] = i
			}
		}
		if rec.Contact.HasEmail() {
			if _, ok := byEmail[rec.Contact.Email]; !ok {
				byEmail[rec.Contact.Email] = i
			}
		}
	}
	sameSupplier := func(lookup map[string]int, key, name string) (int, bool) {
		if key == "" {
			return 0, false
		}
		i, ok := lookup[key]
		if !ok || normalizedName(arena[i].Name) != normalizedName(name) {
			return 0, false
		}
		return i, true
	}

	for _, rec := range records {
		i, found := byID[rec.ID]
		if !found {
			i, found = sameSupplier(byPhone, rec.Contact.Phone, rec.Name)
		}
		if !found {
			i, found = sameSupplier(byEmail, rec.Contact.Email, rec.Name)
		}

		if !found {
			rec.SourceQueries = provenance(rec)
			arena = append(arena, rec)
			index(len(arena) - 1)
			continue
		}

		// A contact already owned by another supplier is not copied, so every phone and email
		// belongs to one merged record and re-ranking merges nothing further
		if owner, ok := byPhone[rec.Contact.Phone]; ok && owner != i {
			rec.Contact.Phone = ""
		}
		if owner, ok := byEmail[rec.Contact.Email]; ok && owner != i {
			rec.Contact.Email = ""
		}
		mergeInto(&arena[i], rec)
		index(i)
	}
	return arena
}

// mergeInto fills the empty fields of dst from src and unions the provenance
func mergeInto(dst *domain.SupplierRecord, src domain.SupplierRecord) {
	fill := func(d *string, s string) {
		if *d == "" {
			*d = s
		}
	}
	fill(&dst.Contact.Phone, src.Contact.Phone)
	fill(&dst.Contact.Email, src.Contact.Email)
	fill(&dst.ContactPerson, src.ContactPerson)
	fill(&dst.Location, src.Location)
	fill(&dst.Description, src.Description)
	fill(&dst.SourceURL, src.SourceURL)
	fill(&dst.SourceQuery, src.SourceQuery)
	if dst.Rating == nil && src.Rating != nil {
		rating := *src.Rating
		dst.Rating = &rating
	}

	seen := make(map[string]bool, len(dst.SourceQueries))
	for _, q := range dst.SourceQueries {
		seen[q] = true
	}
	for _, q := range provenance(src) {
		if !seen[q] {
			seen[q] = true
			dst.SourceQueries = append(dst.SourceQueries, q)
		}
	}
}

// provenance returns a copy of the record's source queries, falling back to its source query
func provenance(rec domain.SupplierRecord) []string {
	if len(rec.SourceQueries) > 0 {
		return append([]string(nil), rec.SourceQueries...)
	}
	if rec.SourceQuery != "" {
		return []string{rec.SourceQuery}
	}
	return nil
}

// requirementTerms lists the lower-cased requirement values a good supplier listing should echo
func requirementTerms(spec *domain.RequirementSpec) []string {
	if spec == nil {
		return nil
	}

	var terms []string
	add := func(value string) {
		if v := strings.ToLower(collapseSpaces(value)); v != "" {
			terms = append(terms, v)
		}
	}

	add(spec.ProductType)
	for _, k := range spec.SpecificationKeys() {
		v := strings.ToLower(strings.TrimSpace(spec.Specifications[k]))
		if noiseValues[v] {
			continue
		}
		add(v)
	}
	add(spec.Location)
	return terms
}

func scoreBreakdown(rec domain.SupplierRecord, terms []string) domain.ScoreBreakdown {
	rating := defaultRating
	if rec.Rating != nil {
		rating = *rec.Rating
	}

	contact := 0.0
	switch {
	case rec.Contact.HasPhone() && rec.Contact.HasEmail():
		contact = bothContactsFactor
	case rec.Contact.HasPhone() || rec.Contact.HasEmail():
		contact = oneContactFactor
	}

	return domain.ScoreBreakdown{
		Rating:  roundScore(ratingWeight * rating / maxRating),
		Contact: roundScore(contactWeight * contact),
		Match:   roundScore(matchWeight * matchRatio(rec, terms)),
	}
}

// matchRatio is the share of requirement terms found, case-insensitively, as substrings of the
// listing's description and location
func matchRatio(rec domain.SupplierRecord, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}

	text := strings.ToLower(rec.Description + " " + rec.Location)
	found := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}

func normalizedName(name string) string {
	return strings.ToLower(collapseSpaces(name))
}

func ratingOrLowest(r *float64) float64 {
	if r == nil {
		return -1
	}
	return *r
}

func roundScore(v float64) float64 {
	return math.Round(v*scoreRoundingFactor) / scoreRoundingFactor
}
