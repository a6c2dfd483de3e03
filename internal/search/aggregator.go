package search

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/resilience"
)

// EngineResult is one engine's contribution to a query. URLs is empty when
// Err is set.
type EngineResult struct {
	Engine   string        `json:"engine"`
	Query    string        `json:"query"`
	URLs     []string      `json:"urls"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Observer is notified after every engine call.
type Observer func(r EngineResult)

// Aggregator queries every configured engine and merges the results.
type Aggregator struct {
	engines  []Engine
	breakers map[string]*resilience.Breaker
	observe  Observer
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithBreaker guards each engine with its own circuit breaker. An engine
// whose breaker is open contributes no URLs until the next SearchAll.
func WithBreaker(cfg resilience.BreakerConfig) AggregatorOption {
	return func(a *Aggregator) {
		for _, e := range a.engines {
			a.breakers[e.Name()] = resilience.NewBreaker(e.Name(), cfg)
		}
	}
}

// WithObserver registers a callback for per-engine outcomes.
func WithObserver(fn Observer) AggregatorOption {
	return func(a *Aggregator) {
		a.observe = fn
	}
}

// NewAggregator creates an Aggregator over engines, queried in order.
func NewAggregator(engines []Engine, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		engines:  engines,
		breakers: make(map[string]*resilience.Breaker, len(engines)),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Engines returns the engine names in query order.
func (a *Aggregator) Engines() []string {
	names := make([]string, len(a.engines))
	for i, e := range a.engines {
		names[i] = e.Name()
	}
	return names
}

// Search runs query against every engine, one result per engine in engine
// order. A failing or panicking engine yields an empty result with Err set.
func (a *Aggregator) Search(ctx context.Context, query string) []EngineResult {
	results := make([]EngineResult, 0, len(a.engines))
	for _, e := range a.engines {
		start := time.Now()
		var (
			urls []string
			err  error
		)
		if b, ok := a.breakers[e.Name()]; ok {
			urls, err = resilience.Do(b, func() ([]string, error) { return callEngine(ctx, e, query) })
		} else {
			urls, err = callEngine(ctx, e, query)
		}
		if err != nil {
			urls = nil
			zap.L().Warn("search: engine failed",
				zap.String("engine", e.Name()),
				zap.String("query", query),
				zap.String("category", resilience.Classify(err)),
				zap.Error(err),
			)
		}
		r := EngineResult{Engine: e.Name(), Query: query, URLs: urls, Err: err, Duration: time.Since(start)}
		if a.observe != nil {
			a.observe(r)
		}
		results = append(results, r)
	}
	return results
}

// SearchAll runs every query and concatenates the URLs in query-major,
// engine-minor order. It stops early only when ctx is done. Breakers are
// closed at the start, so an engine disabled in one run is tried again in
// the next.
func (a *Aggregator) SearchAll(ctx context.Context, queries []string) []string {
	for _, b := range a.breakers {
		b.Reset()
	}
	var urls []string
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		for _, r := range a.Search(ctx, q) {
			urls = append(urls, r.URLs...)
		}
		zap.L().Info("search: query complete",
			zap.String("query", q),
			zap.Int("total_urls", len(urls)),
		)
	}
	return urls
}

// callEngine isolates a single engine call so a panic is reported as an
// error for that engine only.
func callEngine(ctx context.Context, e Engine, query string) (urls []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			urls = nil
			err = eris.Errorf("search: %s panicked: %v", e.Name(), r)
		}
	}()
	return e.Search(ctx, query)
}
