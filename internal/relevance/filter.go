// Package relevance gates articles on embedding similarity to the company's
// supply chain vocabulary before they reach the LLM.
package relevance

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/models"
)

// DefaultThreshold admits articles scoring at or above this cosine.
const DefaultThreshold = 0.3

// FailOpenScore is returned when the embedding service is unavailable so
// the article still reaches the extractor.
const FailOpenScore = 0.5

const maxEmbedChars = 1000

// Embedder produces a semantic embedding for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Filter scores articles against a fixed keyword vector built once per
// worker from the company profile and supplier catalog.
type Filter struct {
	embedder  Embedder
	keywords  string
	threshold float64
}

// NewFilter builds the keyword text from the profile and catalog.
func NewFilter(embedder Embedder, company *models.CompanyProfile, suppliers []models.Supplier, threshold float64) *Filter {
	return &Filter{
		embedder:  embedder,
		keywords:  strings.Join(CompanyKeywords(company, suppliers), " "),
		threshold: threshold,
	}
}

// CompanyKeywords assembles the vocabulary the filter embeds against:
// company name, top-5 tier-1 suppliers by volume, top-3 materials by
// criticality, top-3 geographies.
func CompanyKeywords(company *models.CompanyProfile, suppliers []models.Supplier) []string {
	keywords := []string{company.CompanyName}

	var tier1 []models.Supplier
	for _, s := range suppliers {
		if s.Tier == 1 {
			tier1 = append(tier1, s)
		}
	}
	sort.SliceStable(tier1, func(i, j int) bool {
		return tier1[i].SupplyVolumePct > tier1[j].SupplyVolumePct
	})
	for i := 0; i < len(tier1) && i < 5; i++ {
		keywords = append(keywords, tier1[i].Name)
	}

	materials := append([]string(nil), company.RawMaterials...)
	sort.SliceStable(materials, func(i, j int) bool {
		return company.MaterialCriticality[materials[i]] > company.MaterialCriticality[materials[j]]
	})
	for i := 0; i < len(materials) && i < 3; i++ {
		keywords = append(keywords, materials[i])
	}

	for i := 0; i < len(company.KeyGeographies) && i < 3; i++ {
		keywords = append(keywords, company.KeyGeographies[i])
	}
	return keywords
}

// Score returns the cosine similarity between the article text and the
// keyword vector. Embedding failures fail open with FailOpenScore so a
// vendor outage never silences the pipeline.
func (f *Filter) Score(ctx context.Context, article *models.Article) float64 {
	text := Truncate(article.Headline+" "+article.Body, maxEmbedChars)

	articleVec, err := f.embedder.Embed(ctx, text)
	if err != nil || len(articleVec) == 0 {
		log.Warn().Err(err).Str("article_id", article.ID).Msg("article embedding failed, admitting with default score")
		return FailOpenScore
	}
	keywordVec, err := f.embedder.Embed(ctx, Truncate(f.keywords, maxEmbedChars))
	if err != nil || len(keywordVec) == 0 {
		log.Warn().Err(err).Msg("keyword embedding failed, admitting with default score")
		return FailOpenScore
	}

	return Cosine(articleVec, keywordVec)
}

// Admit reports whether the article passes the relevance gate and returns
// the score for persistence on the Article.
func (f *Filter) Admit(ctx context.Context, article *models.Article) (bool, float64) {
	score := f.Score(ctx, article)
	return score >= f.threshold, score
}

// Cosine computes cosine similarity in [-1, 1]. Mismatched or zero-length
// vectors yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Truncate limits text to n bytes before embedding.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
