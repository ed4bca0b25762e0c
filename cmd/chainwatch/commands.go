package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/api"
	"github.com/chainwatch/chainwatch/internal/config"
	"github.com/chainwatch/chainwatch/internal/dedup"
	"github.com/chainwatch/chainwatch/internal/engine"
	"github.com/chainwatch/chainwatch/internal/ingest"
	"github.com/chainwatch/chainwatch/internal/llm"
	"github.com/chainwatch/chainwatch/internal/metrics"
	"github.com/chainwatch/chainwatch/internal/models"
	"github.com/chainwatch/chainwatch/internal/notify"
	"github.com/chainwatch/chainwatch/internal/relevance"
	"github.com/chainwatch/chainwatch/internal/reports"
	"github.com/chainwatch/chainwatch/internal/scheduler"
	"github.com/chainwatch/chainwatch/internal/scoring"
	"github.com/chainwatch/chainwatch/internal/seed"
	"github.com/chainwatch/chainwatch/internal/store"
	"github.com/chainwatch/chainwatch/internal/stream"
)

// catalogRefreshInterval is how often long-running processes re-read the
// company profile and supplier catalog from Mongo.
const catalogRefreshInterval = 5 * time.Minute

// deps holds the shared infrastructure every long-running command wires up.
type deps struct {
	cfg     config.Settings
	docs    *store.Store
	catalog *store.Catalog
	bus     *stream.RedisBus
	reg     *metrics.Registry
}

func bootstrap(ctx context.Context, cfg config.Settings) (*deps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	docs, err := store.New(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, fmt.Errorf("mongodb: %w", err)
	}
	if err := docs.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongodb indexes: %w", err)
	}

	catalog, err := store.NewCatalog(ctx, docs, cfg.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	bus, err := stream.NewRedisBus(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	return &deps{
		cfg:     cfg,
		docs:    docs,
		catalog: catalog,
		bus:     bus,
		reg:     metrics.NewRegistry(),
	}, nil
}

func (d *deps) close(ctx context.Context) {
	if err := d.bus.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close failed")
	}
	if err := d.docs.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("mongodb close failed")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ignoreCancel maps a signal-driven shutdown to a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consumerName identifies this process within a consumer group, so pending
// deliveries can be claimed back after a crash.
func consumerName(stage string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d", stage, host, os.Getpid())
}

func runWorker(cfg config.Settings, stage string) error {
	ctx, cancel := signalContext()
	defer cancel()

	d, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close(context.Background())

	go d.catalog.RefreshLoop(ctx, catalogRefreshInterval)

	gemini := llm.NewClient(cfg.GeminiAPIKey)

	var consumerCfg stream.ConsumerConfig
	var handler stream.Handler

	switch stage {
	case "extract":
		snap := d.catalog.Snapshot()
		gate := relevance.NewFilter(gemini, snap.Company, snap.Suppliers, cfg.NewsRelevanceThreshold)
		extractor := engine.NewExtractor(d.docs, d.catalog, gemini, gate, d.bus, d.reg)
		consumerCfg = stream.ConsumerConfig{Stream: models.StreamNormalizedEvents, Group: models.GroupRiskExtraction}
		handler = extractor.Handle

	case "score":
		thresholds := scoring.Thresholds{
			Critical: cfg.CriticalThresholdScore,
			High:     cfg.HighThresholdScore,
			Medium:   cfg.MediumThresholdScore,
		}
		scorer := engine.NewScorer(d.docs, d.catalog, d.bus, d.reg, thresholds, cfg.Production())
		consumerCfg = stream.ConsumerConfig{Stream: models.StreamRiskEntities, Group: models.GroupRiskScoring}
		handler = scorer.Handle

	case "alert":
		notifier := notify.New(&cfg, d.reg)
		alerter := engine.NewAlerter(d.docs, d.catalog, d.bus, d.reg, gemini, notifier, cfg.AlertThresholdScore)
		go func() {
			ticker := time.NewTicker(catalogRefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					alerter.RebuildGraph()
				}
			}
		}()
		consumerCfg = stream.ConsumerConfig{Stream: models.StreamRiskScores, Group: models.GroupAlertGeneration}
		handler = alerter.Handle

	default:
		return fmt.Errorf("unknown stage %q (want extract, score or alert)", stage)
	}

	consumerCfg.Consumer = consumerName(stage)
	log.Info().
		Str("stage", stage).
		Str("stream", consumerCfg.Stream).
		Str("consumer", consumerCfg.Consumer).
		Msg("worker starting")

	return ignoreCancel(stream.NewConsumer(d.bus, consumerCfg, handler).Run(ctx))
}

func runSchedule(cfg config.Settings, configPath string) error {
	ctx, cancel := signalContext()
	defer cancel()

	d, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close(context.Background())

	go d.catalog.RefreshLoop(ctx, catalogRefreshInterval)

	gemini := llm.NewClient(cfg.GeminiAPIKey)
	news := ingest.NewNewsClient(cfg.NewsAPIKey)
	idx := dedup.NewIndex(d.bus.Client(), dedup.DefaultTTL)
	fetcher := ingest.NewFetcher(news, idx, d.bus, d.catalog)
	repGen := reports.New(d.docs, gemini, d.catalog, cfg.CompanyID, d.catalog.Snapshot().Company.CompanyName)

	runners := map[string]scheduler.Runner{
		scheduler.JobNewsFetch: func(ctx context.Context) error {
			counts, err := fetcher.RunCycle(ctx)
			d.reg.ObserveFetchCycle(counts.Fetched, counts.New, counts.Duplicates, counts.Invalid)
			return err
		},
		scheduler.JobDailyReport: func(ctx context.Context) error {
			_, err := repGen.Daily(ctx)
			return err
		},
		scheduler.JobWeeklyReport: func(ctx context.Context) error {
			_, err := repGen.Weekly(ctx)
			return err
		},
	}

	schedCfg := scheduler.DefaultConfig(cfg.FetchInterval())
	if configPath != "" {
		schedCfg, err = scheduler.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("scheduler config: %w", err)
		}
	}

	log.Info().Int("jobs", len(schedCfg.Jobs)).Msg("scheduler starting")
	return ignoreCancel(scheduler.New(schedCfg, runners).Start(ctx))
}

func runAPI(cfg config.Settings) error {
	ctx, cancel := signalContext()
	defer cancel()

	d, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close(context.Background())

	go d.catalog.RefreshLoop(ctx, catalogRefreshInterval)

	gemini := llm.NewClient(cfg.GeminiAPIKey)
	repGen := reports.New(d.docs, gemini, d.catalog, cfg.CompanyID, d.catalog.Snapshot().Company.CompanyName)

	srv := api.New(d.docs, repGen, d.reg, cfg.CompanyID,
		api.HealthCheck{Name: "mongodb", Check: d.docs.Ping},
		api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return d.bus.Client().Ping(ctx).Err()
		}},
	)

	go func() {
		if err := srv.RunAlertBridge(ctx, d.bus, consumerName("ws")); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("alert bridge stopped")
		}
	}()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("api server listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	log.Info().Msg("api server shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}

func runSeed(cfg config.Settings, withSamples bool) error {
	ctx, cancel := signalContext()
	defer cancel()

	docs, err := store.New(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}
	defer docs.Close(context.Background())

	if err := docs.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("mongodb indexes: %w", err)
	}
	if err := seed.Seed(ctx, docs); err != nil {
		return err
	}
	if withSamples {
		return seed.SampleData(ctx, docs, cfg.AlertThresholdScore)
	}
	return nil
}
