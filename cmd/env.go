package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospector-cli/internal/dedupe"
	"github.com/sells-group/prospector-cli/internal/extract"
	"github.com/sells-group/prospector-cli/internal/fetcher"
	"github.com/sells-group/prospector-cli/internal/monitoring"
	"github.com/sells-group/prospector-cli/internal/pipeline"
	"github.com/sells-group/prospector-cli/internal/resilience"
	"github.com/sells-group/prospector-cli/internal/scorer"
	"github.com/sells-group/prospector-cli/internal/search"
	"github.com/sells-group/prospector-cli/internal/store"
)

// engineHosts maps each engine to the host its requests go to, for per-host
// rate limiting.
var engineHosts = map[string]string{
	search.EngineGoogle:     "www.google.com",
	search.EngineBing:       "www.bing.com",
	search.EngineDuckDuckGo: "duckduckgo.com",
}

// ingestEnv holds the store and the ingestion pipeline built on it.
type ingestEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *ingestEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func newScorer() (*scorer.Scorer, error) {
	w := scorer.WeightsFromConfig(cfg.Scorer)
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return scorer.New(w), nil
}

func newFetcher() *fetcher.HTTPFetcher {
	limiters := make(map[string]*rate.Limiter, len(engineHosts))
	if cfg.Search.MinIntervalMillis > 0 {
		every := rate.Every(time.Duration(cfg.Search.MinIntervalMillis) * time.Millisecond)
		for _, host := range engineHosts {
			limiters[host] = rate.NewLimiter(every, 1)
		}
	}
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgents:   cfg.Fetch.UserAgents,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		RateLimiters: limiters,
	})
}

func newAggregator(f fetcher.Fetcher, metrics *monitoring.Metrics) (*search.Aggregator, error) {
	opts := []search.Option{
		search.WithSiteClause(cfg.Search.SiteClause),
		search.WithGeoClause(cfg.Search.GeoClause),
		search.WithMaxResults(cfg.Search.MaxResultsPerEngine),
	}

	engines := make([]search.Engine, 0, len(cfg.Search.Engines))
	for _, name := range cfg.Search.Engines {
		e, err := search.New(name, f, opts...)
		if err != nil {
			return nil, err
		}
		engines = append(engines, e)
	}

	aggOpts := []search.AggregatorOption{
		search.WithBreaker(resilience.BreakerConfig{
			Threshold: cfg.Search.BreakerThreshold,
			OnOpen: func(name string, failures int) {
				zap.L().Warn("search: engine disabled for this run",
					zap.String("engine", name),
					zap.Int("consecutive_failures", failures),
				)
			},
		}),
	}
	if metrics != nil {
		aggOpts = append(aggOpts, search.WithObserver(func(r search.EngineResult) {
			metrics.RecordSearch(r.Engine, len(r.URLs), r.Err, r.Duration)
		}))
	}
	return search.NewAggregator(engines, aggOpts...), nil
}

// newPipeline builds the ingestion pipeline over st. metrics may be nil.
func newPipeline(st store.Store, metrics *monitoring.Metrics, maxDomains int) (*pipeline.Pipeline, error) {
	sc, err := newScorer()
	if err != nil {
		return nil, err
	}

	f := newFetcher()
	agg, err := newAggregator(f, metrics)
	if err != nil {
		return nil, err
	}

	if maxDomains <= 0 {
		maxDomains = cfg.Dedupe.MaxDomains
	}
	opts := []pipeline.Option{
		pipeline.WithCompetitorFilter(dedupe.NewCompetitorFilter(cfg.Dedupe.CompetitorSubstrings)),
		pipeline.WithMaxDomains(maxDomains),
	}
	if metrics != nil {
		opts = append(opts, pipeline.WithRecorder(metrics))
	}
	ex := extract.New(f, extract.WithAddressKeywords(cfg.Extract.AddressKeywords))
	return pipeline.New(agg, ex, sc, st, opts...), nil
}

// initIngest validates config, opens the store and builds the pipeline.
// Callers should defer env.Close().
func initIngest(ctx context.Context, metrics *monitoring.Metrics, maxDomains int) (*ingestEnv, error) {
	if err := cfg.Validate("ingest"); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	p, err := newPipeline(st, metrics, maxDomains)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "build pipeline")
	}
	return &ingestEnv{Store: st, Pipeline: p}, nil
}
