package relevance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/chainwatch/internal/models"
)

type stubEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	for key, vec := range s.vectors {
		if strings.Contains(text, key) {
			return vec, nil
		}
	}
	return []float64{0, 0, 1}, nil
}

func filterCompany() *models.CompanyProfile {
	return &models.CompanyProfile{
		CompanyName:    "Nayara Energy",
		RawMaterials:   []string{"naphtha", "LPG", "crude oil", "kerosene"},
		KeyGeographies: []string{"India", "UAE", "Iraq", "Oman"},
		MaterialCriticality: map[string]int{
			"crude oil": 10, "LPG": 5, "naphtha": 7, "kerosene": 2,
		},
	}
}

func TestCompanyKeywordsSelection(t *testing.T) {
	suppliers := []models.Supplier{
		{Name: "Small Fry", Tier: 1, SupplyVolumePct: 5},
		{Name: "Big Crude", Tier: 1, SupplyVolumePct: 80},
		{Name: "Mid Gas", Tier: 1, SupplyVolumePct: 40},
		{Name: "Upstream Only", Tier: 2, SupplyVolumePct: 90},
		{Name: "LPG Co", Tier: 1, SupplyVolumePct: 60},
		{Name: "Naphtha Co", Tier: 1, SupplyVolumePct: 30},
		{Name: "Tiny Co", Tier: 1, SupplyVolumePct: 1},
	}

	kw := CompanyKeywords(filterCompany(), suppliers)

	// company + 5 tier-1 by volume + 3 materials by criticality + 3 geos
	require.Len(t, kw, 12)
	assert.Equal(t, "Nayara Energy", kw[0])
	assert.Equal(t, []string{"Big Crude", "LPG Co", "Mid Gas", "Naphtha Co", "Small Fry"}, kw[1:6])
	assert.Equal(t, []string{"crude oil", "naphtha", "LPG"}, kw[6:9])
	assert.Equal(t, []string{"India", "UAE", "Iraq"}, kw[9:12])
	assert.NotContains(t, kw, "Upstream Only")
	assert.NotContains(t, kw, "Tiny Co")
}

func TestAdmitAboveThreshold(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"pipeline":      {1, 0, 0},
		"Nayara Energy": {0.9, 0.1, 0},
	}}
	f := NewFilter(emb, filterCompany(), nil, DefaultThreshold)

	ok, score := f.Admit(context.Background(), &models.Article{Headline: "pipeline disruption"})
	assert.True(t, ok)
	assert.Greater(t, score, 0.9)
}

func TestRejectBelowThreshold(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"celebrity":     {1, 0, 0},
		"Nayara Energy": {0, 1, 0},
	}}
	f := NewFilter(emb, filterCompany(), nil, DefaultThreshold)

	ok, score := f.Admit(context.Background(), &models.Article{Headline: "celebrity gossip"})
	assert.False(t, ok)
	assert.Less(t, score, DefaultThreshold)
}

func TestFailOpenOnEmbedderError(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("embedding service down")}
	f := NewFilter(emb, filterCompany(), nil, DefaultThreshold)

	ok, score := f.Admit(context.Background(), &models.Article{Headline: "anything"})
	assert.True(t, ok)
	assert.InDelta(t, FailOpenScore, score, 1e-9)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Zero(t, Cosine(nil, []float64{1}))
	assert.Zero(t, Cosine([]float64{1, 2}, []float64{1}))
	assert.Zero(t, Cosine([]float64{0, 0}, []float64{1, 1}))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 2500)
	assert.Len(t, Truncate(long, 1000), 1000)
	assert.Equal(t, "short", Truncate("short", 1000))
}
