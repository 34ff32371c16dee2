package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExpander is a hand-written KeywordExpander
type mockExpander struct {
	hints []string
	err   error
	calls int
}

func (m *mockExpander) Expand(ctx context.Context, spec *domain.RequirementSpec, limit int) ([]string, error) {
	m.calls++
	return m.hints, m.err
}

func queryTexts(qs []domain.Query) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}

func TestQueryGenerator_EmptySpecificationsYieldOneBareQuery(t *testing.T) {
	g := NewQueryGenerator(QueryGeneratorConfig{}, nil, nil)

	queries, err := g.Generate(context.Background(), &domain.RequirementSpec{ProductType: "Copper Wire"})
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "copper wire", queries[0].Text)
	assert.Equal(t, 1.0, queries[0].Weight)
}

func TestQueryGenerator_IndustrialBolts(t *testing.T) {
	g := NewQueryGenerator(QueryGeneratorConfig{}, nil, nil)

	queries, err := g.Generate(context.Background(), &domain.RequirementSpec{
		ProductType:    "industrial bolts",
		Quantity:       500,
		Specifications: map[string]string{"material": "steel"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"industrial bolts steel", "industrial bolts"}, queryTexts(queries))
	assert.Equal(t, 1.0, queries[0].Weight)
	assert.Equal(t, 0.5, queries[1].Weight)
}

func TestQueryGenerator_TwoValuesOrderedByPriority(t *testing.T) {
	g := NewQueryGenerator(QueryGeneratorConfig{}, nil, nil)

	queries, err := g.Generate(context.Background(), &domain.RequirementSpec{
		ProductType: "pipes",
		Specifications: map[string]string{
			"application": "plumbing",
			"material":    "PVC",
			"diameter":    "2 inch",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"pipes pvc 2 inch",
		"pipes pvc",
		"pipes 2 inch",
		"pipes",
	}, queryTexts(queries))

	for i := 1; i < len(queries); i++ {
		assert.Greater(t, queries[i-1].Weight, queries[i].Weight)
	}
}

func TestQueryGenerator_SkipsNoiseAndRedundantValues(t *testing.T) {
	g := NewQueryGenerator(QueryGeneratorConfig{}, nil, nil)

	queries, err := g.Generate(context.Background(), &domain.RequirementSpec{
		ProductType: "steel bolts",
		Specifications: map[string]string{
			"material": "Steel",
			"grade":    "any",
			"finish":   "N/A",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"steel bolts"}, queryTexts(queries))
}

func TestQueryGenerator_MaxQueries(t *testing.T) {
	g := NewQueryGenerator(QueryGeneratorConfig{MaxQueries: 2}, nil, nil)

	queries, err := g.Generate(context.Background(), &domain.RequirementSpec{
		ProductType:    "gloves",
		Specifications: map[string]string{"material": "nitrile", "size": "large"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"gloves nitrile large", "gloves nitrile"}, queryTexts(queries))
}

func TestQueryGenerator_Expander(t *testing.T) {
	t.Run("hints appended after the bare query", func(t *testing.T) {
		exp := &mockExpander{hints: []string{"Hex Bolts", "industrial bolts", "fasteners"}}
		g := NewQueryGenerator(QueryGeneratorConfig{MaxQueries: 6, MaxSynonyms: 2}, exp, nil)

		queries, err := g.Generate(context.Background(), &domain.RequirementSpec{ProductType: "industrial bolts"})
		require.NoError(t, err)
		assert.Equal(t, []string{"industrial bolts", "hex bolts"}, queryTexts(queries))
		assert.Equal(t, 1, exp.calls)
	})

	t.Run("expander failure is ignored", func(t *testing.T) {
		exp := &mockExpander{err: errors.New("quota exceeded")}
		g := NewQueryGenerator(QueryGeneratorConfig{MaxSynonyms: 2}, exp, nil)

		queries, err := g.Generate(context.Background(), &domain.RequirementSpec{ProductType: "valves"})
		require.NoError(t, err)
		assert.Equal(t, []string{"valves"}, queryTexts(queries))
	})

	t.Run("not called when synonyms disabled", func(t *testing.T) {
		exp := &mockExpander{hints: []string{"taps"}}
		g := NewQueryGenerator(QueryGeneratorConfig{}, exp, nil)

		_, err := g.Generate(context.Background(), &domain.RequirementSpec{ProductType: "valves"})
		require.NoError(t, err)
		assert.Zero(t, exp.calls)
	})
}

func TestQueryGenerator_Errors(t *testing.T) {
	g := NewQueryGenerator(QueryGeneratorConfig{}, nil, nil)

	_, err := g.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrGeneration)

	_, err = g.Generate(context.Background(), &domain.RequirementSpec{ProductType: " ,- "})
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestCleanQueryText(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"  Industrial   Bolts ", "industrial bolts"},
		{"Bolts, - Nuts", "bolts nuts"},
		{"M10 (hex)!", "m10 hex"},
		{"- 304 grade -", "304 grade"},
		{"", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanQueryText(tc.in))
		})
	}
}
