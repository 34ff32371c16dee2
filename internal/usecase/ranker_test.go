package usecase

import (
	"fmt"
	"testing"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ratingPtr(v float64) *float64 { return &v }

func record(name, phone, email string, rating *float64, query string) domain.SupplierRecord {
	rec := domain.SupplierRecord{
		Name:        name,
		Contact:     domain.Contact{Phone: phone, Email: email},
		Rating:      rating,
		SourceQuery: query,
	}
	if query != "" {
		rec.SourceQueries = []string{query}
	}
	rec.ID = RecordID(name, rec.Contact)
	return rec
}

func TestRanker_ScoreComposition(t *testing.T) {
	r := NewRanker(RankerConfig{}, nil)
	spec := &domain.RequirementSpec{
		ProductType:    "industrial bolts",
		Specifications: map[string]string{"material": "steel"},
		Location:       "Mumbai",
	}

	full := record("Acme Fasteners", "+919876543210", "a@acme.in", ratingPtr(5), "q")
	full.Description = "Steel industrial bolts manufacturer"
	full.Location = "Mumbai"

	bare := record("Plain Traders", "", "p@plain.in", nil, "q")

	list := r.Rank(spec, []domain.SupplierRecord{bare, full})
	require.Equal(t, 2, list.Len())

	top := list.Suppliers[0]
	assert.Equal(t, "Acme Fasteners", top.Name)
	assert.Equal(t, 40.0, top.Breakdown.Rating)
	assert.Equal(t, 30.0, top.Breakdown.Contact)
	assert.Equal(t, 30.0, top.Breakdown.Match)
	assert.Equal(t, 100.0, top.Score)

	second := list.Suppliers[1]
	assert.Equal(t, 20.0, second.Breakdown.Rating)
	assert.Equal(t, 18.0, second.Breakdown.Contact)
	assert.Equal(t, 0.0, second.Breakdown.Match)
	assert.Equal(t, 38.0, second.Score)
}

func TestRanker_PartialMatch(t *testing.T) {
	tests := []struct {
		name        string
		spec        *domain.RequirementSpec
		description string
		location    string
		want        float64
	}{
		{
			name:        "values echoed inside longer words",
			spec:        &domain.RequirementSpec{ProductType: "hex bolt", Specifications: map[string]string{"size": "M10"}},
			description: "Hex bolts M10x50 stocked",
			want:        30,
		},
		{
			name:        "grade echoed as prefix",
			spec:        &domain.RequirementSpec{ProductType: "sheet", Specifications: map[string]string{"grade": "SS"}},
			description: "SS304 sheet",
			want:        30,
		},
		{
			name:        "location not matched",
			spec:        &domain.RequirementSpec{ProductType: "industrial bolts", Location: "Pune"},
			description: "Industrial Bolts stockist",
			location:    "Mumbai",
			want:        15,
		},
		{
			name:        "location matched",
			spec:        &domain.RequirementSpec{ProductType: "industrial bolts", Location: "Pune"},
			description: "fasteners",
			location:    "Bhosari, Pune",
			want:        15,
		},
		{
			name: "supplier name is not searched",
			spec: &domain.RequirementSpec{ProductType: "industrial bolts"},
			want: 0,
		},
		{
			name:        "noise values are ignored",
			spec:        &domain.RequirementSpec{ProductType: "washers", Specifications: map[string]string{"finish": "any"}},
			description: "spring washers",
			want:        30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record("Industrial Bolts Co", "+919876543210", "", nil, "q")
			rec.Description = tt.description
			rec.Location = tt.location

			b := scoreBreakdown(rec, requirementTerms(tt.spec))
			assert.InDelta(t, tt.want, b.Match, 1e-9)
		})
	}
}

func TestRanker_MergesDuplicatesWithProvenance(t *testing.T) {
	r := NewRanker(RankerConfig{}, nil)

	first := record("Acme Fasteners", "+919876543210", "", nil, "industrial bolts steel")
	dup := record("Acme Fasteners", "+919876543210", "sales@acme.in", ratingPtr(4.1), "industrial bolts")
	dup.Location = "Mumbai"

	list := r.Rank(nil, []domain.SupplierRecord{first, dup})
	require.Equal(t, 1, list.Len())

	got := list.Suppliers[0]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "sales@acme.in", got.Contact.Email)
	assert.Equal(t, "Mumbai", got.Location)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 4.1, *got.Rating)
	assert.Equal(t, "industrial bolts steel", got.SourceQuery)
	assert.Equal(t, []string{"industrial bolts steel", "industrial bolts"}, got.SourceQueries)
}

func TestDeduplicate_SharedPhoneDifferentNameStaysDistinct(t *testing.T) {
	// a phone picked up from a neighbouring card must not swallow another supplier
	alpha := record("Alpha Fasteners", "+919876543210", "", nil, "q1")
	beta := record("Beta Bolts Pvt Ltd", "+919876543210", "", nil, "q1")

	merged := Deduplicate([]domain.SupplierRecord{alpha, beta})
	require.Len(t, merged, 2)
	assert.Equal(t, "Alpha Fasteners", merged[0].Name)
	assert.Equal(t, "Beta Bolts Pvt Ltd", merged[1].Name)
}

func TestDeduplicate_SameNameSharedEmailKeepsFirstID(t *testing.T) {
	a := record("Acme Fasteners", "", "info@acme.in", nil, "q1")
	b := record("ACME  Fasteners", "+919876543210", "info@acme.in", nil, "q2")
	require.NotEqual(t, a.ID, b.ID)

	merged := Deduplicate([]domain.SupplierRecord{a, b})
	require.Len(t, merged, 1)
	assert.Equal(t, "Acme Fasteners", merged[0].Name)
	assert.Equal(t, "+919876543210", merged[0].Contact.Phone)
	assert.Equal(t, []string{"q1", "q2"}, merged[0].SourceQueries)

	// the id stays the one first persisted, not a re-derivation from the filled contact
	assert.Equal(t, a.ID, merged[0].ID)
	assert.NotEqual(t, RecordID(merged[0].Name, merged[0].Contact), merged[0].ID)
	assert.Equal(t, merged, Deduplicate(merged))
}

func TestDeduplicate_DoesNotCopyContactOwnedElsewhere(t *testing.T) {
	a := record("Alpha", "", "x@example.com", nil, "q")
	c := record("Gamma", "+919800000003", "", nil, "q")
	b := record("Alpha", "+919800000003", "x@example.com", nil, "q")

	merged := Deduplicate([]domain.SupplierRecord{a, c, b})
	require.Len(t, merged, 2)
	assert.Equal(t, "Alpha", merged[0].Name)
	assert.Equal(t, "", merged[0].Contact.Phone)
	assert.Equal(t, "+919800000003", merged[1].Contact.Phone)

	again := Deduplicate(merged)
	assert.Equal(t, merged, again)
}

func TestRanker_TieBreaks(t *testing.T) {
	r := NewRanker(RankerConfig{}, nil)

	// Same score: phone beats email-only; higher rating wins among equal contact
	emailOnly := record("Email Only", "", "e@example.com", ratingPtr(3), "q")
	phoneOnly := record("Phone Only", "+919800000001", "", ratingPtr(3), "q")

	list := r.Rank(nil, []domain.SupplierRecord{emailOnly, phoneOnly})
	require.Equal(t, 2, list.Len())
	assert.Equal(t, list.Suppliers[0].Score, list.Suppliers[1].Score)
	assert.Equal(t, "Phone Only", list.Suppliers[0].Name)

	first := record("First", "+919800000002", "", nil, "q")
	second := record("Second", "+919800000003", "", nil, "q")
	list = r.Rank(nil, []domain.SupplierRecord{first, second})
	assert.Equal(t, "First", list.Suppliers[0].Name)
	assert.Equal(t, "Second", list.Suppliers[1].Name)
}

func TestRanker_IsFixedPoint(t *testing.T) {
	r := NewRanker(RankerConfig{}, nil)
	spec := &domain.RequirementSpec{
		ProductType:    "copper wire",
		Specifications: map[string]string{"gauge": "12 awg"},
	}

	var records []domain.SupplierRecord
	for i := 0; i < 12; i++ {
		var rating *float64
		if i%3 != 0 {
			rating = ratingPtr(float64(i%5) + 0.37)
		}
		email := ""
		if i%2 == 0 {
			email = fmt.Sprintf("s%d@example.com", i)
		}
		rec := record(fmt.Sprintf("Supplier %d", i), fmt.Sprintf("+9198000000%02d", i%8), email, rating, fmt.Sprintf("q%d", i%3))
		if i%4 == 0 {
			rec.Description = "copper wire 12 awg"
		}
		records = append(records, rec)
	}

	once := r.Rank(spec, records)
	twice := r.Rank(spec, once.Records())
	assert.Equal(t, once, twice)
}

func TestRanker_MaxResults(t *testing.T) {
	r := NewRanker(RankerConfig{MaxResults: 3}, nil)

	var records []domain.SupplierRecord
	for i := 0; i < 10; i++ {
		records = append(records, record(fmt.Sprintf("S%d", i), fmt.Sprintf("+91980000%04d", i), "", ratingPtr(float64(i%6)), "q"))
	}

	list := r.Rank(nil, records)
	require.Equal(t, 3, list.Len())
	for i := 1; i < list.Len(); i++ {
		assert.GreaterOrEqual(t, list.Suppliers[i-1].Score, list.Suppliers[i].Score)
	}
}
