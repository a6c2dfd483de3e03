// Package pipeline runs one lead ingestion: search fan-out, domain
// dedupe, contact extraction, scoring and storage.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/dedupe"
	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/scorer"
)

// Lead write outcomes reported to the Recorder.
const (
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
	OutcomeNoEmail   = "no_email"
)

// Searcher returns every result URL for the queries, in query order.
type Searcher interface {
	SearchAll(ctx context.Context, queries []string) []string
}

// Extractor pulls contact fields from one candidate site.
type Extractor interface {
	Extract(ctx context.Context, url string) model.Result[model.Contact]
}

// Store is the slice of the lead store a run writes to.
type Store interface {
	Upsert(ctx context.Context, lead model.Lead) (bool, error)
	CreateRun(ctx context.Context, queries []string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, result *model.RunResult) error
}

// Recorder receives per-stage counts, typically Prometheus metrics.
type Recorder interface {
	RecordExtraction(status string)
	RecordLeadWrite(outcome string)
	RecordRun(status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordExtraction(string) {}
func (nopRecorder) RecordLeadWrite(string)  {}
func (nopRecorder) RecordRun(string)        {}

// Pipeline wires the ingestion stages together. Stages run sequentially.
type Pipeline struct {
	search     Searcher
	extract    Extractor
	scorer     *scorer.Scorer
	store      Store
	filter     *dedupe.CompetitorFilter
	maxDomains int
	rec        Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCompetitorFilter drops candidate domains the filter matches.
func WithCompetitorFilter(f *dedupe.CompetitorFilter) Option {
	return func(p *Pipeline) {
		p.filter = f
	}
}

// WithMaxDomains caps the number of distinct domains visited per run.
func WithMaxDomains(n int) Option {
	return func(p *Pipeline) {
		p.maxDomains = n
	}
}

// WithRecorder registers a stage recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.rec = r
		}
	}
}

// DefaultMaxDomains is the per-run domain cap when none is configured.
const DefaultMaxDomains = 100

// New creates a new Pipeline with all dependencies.
func New(search Searcher, extract Extractor, sc *scorer.Scorer, st Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		search:     search,
		extract:    extract,
		scorer:     sc,
		store:      st,
		maxDomains: DefaultMaxDomains,
		rec:        nopRecorder{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes one ingestion over queries and records it as a run. Fetch
// and parse failures are counted, never returned; the only errors are a
// failure to open the run record and context cancellation, in which case
// the partial result is still returned and recorded.
func (p *Pipeline) Run(ctx context.Context, queries []string) (*model.RunResult, error) {
	if len(queries) == 0 {
		return nil, &model.InputError{Field: "queries", Msg: "at least one query is required"}
	}

	run, err := p.store.CreateRun(ctx, queries)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting ingestion", zap.Int("queries", len(queries)))
	start := time.Now()

	result, runErr := p.ingest(ctx, log, queries)
	if runErr != nil {
		result.Error = runErr.Error()
	}

	// The run record is written even after cancellation.
	if err := p.store.FinishRun(context.WithoutCancel(ctx), run.ID, result); err != nil {
		log.Warn("pipeline: failed to record run result", zap.Error(err))
	}
	p.rec.RecordRun(string(result.Status()))

	log.Info("pipeline: ingestion finished",
		zap.String("status", string(result.Status())),
		zap.Int("urls", result.URLs),
		zap.Int("domains", result.Domains),
		zap.Int("competitors_skipped", result.Competitors),
		zap.Int("extracted", result.Extracted),
		zap.Int("fetch_failed", result.FetchFailed),
		zap.Int("no_email", result.NoEmail),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, runErr
}

func (p *Pipeline) ingest(ctx context.Context, log *zap.Logger, queries []string) (*model.RunResult, error) {
	result := &model.RunResult{}

	urls := p.search.SearchAll(ctx, queries)
	result.URLs = len(urls)
	if err := ctx.Err(); err != nil {
		return result, eris.Wrap(err, "pipeline: search interrupted")
	}

	plan := dedupe.BuildPlan(urls, p.maxDomains, p.filter)
	result.Domains = len(plan.Candidates) + len(plan.Skipped)
	result.Competitors = len(plan.Skipped)
	log.Info("pipeline: candidates planned",
		zap.Int("urls", result.URLs),
		zap.Int("candidates", len(plan.Candidates)),
		zap.Int("competitors_skipped", result.Competitors),
	)

	for _, c := range plan.Candidates {
		if err := ctx.Err(); err != nil {
			return result, eris.Wrap(err, "pipeline: extraction interrupted")
		}

		res := p.extract.Extract(ctx, c.URL)
		p.rec.RecordExtraction(string(res.Status))
		switch res.Status {
		case model.StatusFailed:
			result.FetchFailed++
			log.Debug("pipeline: candidate fetch failed", zap.String("url", c.URL), zap.Error(res.Err))
		case model.StatusOK:
			result.Extracted++
		}

		contact := res.Value
		if contact.Email == "" {
			result.NoEmail++
			p.rec.RecordLeadWrite(OutcomeNoEmail)
			continue
		}

		lead := model.Lead{
			Name:    contact.Name,
			Email:   contact.Email,
			Website: contact.Website,
			Phone:   contact.Phone,
			Address: contact.Address,
			Source:  model.SourceScrape,
			Domain:  c.Domain,
			Score:   p.scorer.Score(contact),
		}
		inserted, err := p.store.Upsert(ctx, lead)
		if err != nil {
			return result, eris.Wrap(err, "pipeline: store lead")
		}
		if inserted {
			result.Inserted++
			p.rec.RecordLeadWrite(OutcomeInserted)
		} else {
			result.Duplicates++
			p.rec.RecordLeadWrite(OutcomeDuplicate)
		}
	}

	return result, nil
}
