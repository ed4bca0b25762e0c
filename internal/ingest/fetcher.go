package ingest

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/dedup"
	"github.com/chainwatch/chainwatch/internal/models"
	"github.com/chainwatch/chainwatch/internal/store"
	"github.com/chainwatch/chainwatch/internal/stream"
)

// Top keyword count sent to the news search.
const queryTopN = 5

// Counts summarizes one fetch cycle.
type Counts struct {
	Fetched    int `json:"fetched"`
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}

// SnapshotProvider yields the current catalog view.
type SnapshotProvider interface {
	Snapshot() *store.Snapshot
}

// Fetcher runs the periodic ingest cycle: poll, normalize, validate,
// dedup, publish.
type Fetcher struct {
	news     *NewsClient
	dedup    *dedup.Index
	bus      stream.Bus
	catalog  SnapshotProvider
	pageSize int
}

// NewFetcher wires the ingest cycle.
func NewFetcher(news *NewsClient, idx *dedup.Index, bus stream.Bus, catalog SnapshotProvider) *Fetcher {
	return &Fetcher{news: news, dedup: idx, bus: bus, catalog: catalog, pageSize: maxPageSize}
}

// SearchKeywords builds the ordered priority list for the news query:
// company name first, then suppliers by volume, materials by criticality,
// geographies.
func SearchKeywords(snap *store.Snapshot) []string {
	keywords := []string{snap.Company.CompanyName}

	suppliers := append([]models.Supplier(nil), snap.Suppliers...)
	sort.SliceStable(suppliers, func(i, j int) bool {
		return suppliers[i].SupplyVolumePct > suppliers[j].SupplyVolumePct
	})
	for i := range suppliers {
		keywords = append(keywords, suppliers[i].Name)
	}

	materials := append([]string(nil), snap.Company.RawMaterials...)
	sort.SliceStable(materials, func(i, j int) bool {
		return snap.Company.MaterialCriticality[materials[i]] > snap.Company.MaterialCriticality[materials[j]]
	})
	keywords = append(keywords, materials...)

	return append(keywords, snap.Company.KeyGeographies...)
}

// RunCycle executes one fetch pass. A failed outbound call ends the cycle
// cleanly; the next tick retries.
func (f *Fetcher) RunCycle(ctx context.Context) (Counts, error) {
	var counts Counts

	query := BuildQuery(SearchKeywords(f.catalog.Snapshot()), queryTopN)
	raws, err := f.news.FetchEverything(ctx, query, f.pageSize)
	if err != nil {
		log.Error().Err(err).Msg("news fetch failed, ending cycle")
		return counts, err
	}
	counts.Fetched = len(raws)

	for _, raw := range raws {
		article := Normalize(raw)
		if err := Validate(&article); err != nil {
			log.Warn().Err(err).Str("url", raw.URL).Msg("dropping invalid article")
			counts.Invalid++
			continue
		}

		fp := dedup.Fingerprint(article.Headline, article.Body)
		created, err := f.dedup.TryInsert(ctx, fp)
		if err != nil {
			log.Error().Err(err).Msg("dedup check failed, ending cycle")
			return counts, err
		}
		if !created {
			counts.Duplicates++
			continue
		}

		record := models.NormalizedEventRecord{
			EventID:   article.EventID,
			Timestamp: article.Timestamp,
			Source:    article.Source,
			Headline:  article.Headline,
			Body:      article.Body,
			URL:       article.URL,
		}
		if _, err := f.bus.Append(ctx, models.StreamNormalizedEvents, record.Fields()); err != nil {
			log.Error().Err(err).Str("event_id", article.EventID).Msg("stream append failed, ending cycle")
			return counts, err
		}
		counts.New++
	}

	log.Info().
		Int("fetched", counts.Fetched).
		Int("new", counts.New).
		Int("duplicates", counts.Duplicates).
		Int("invalid", counts.Invalid).
		Msg("fetch cycle complete")
	return counts, nil
}
