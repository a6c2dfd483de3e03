package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector-cli/internal/dedupe"
	"github.com/sells-group/prospector-cli/internal/extract"
	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/scorer"
	"github.com/sells-group/prospector-cli/internal/store"
)

type staticSearch []string

func (s staticSearch) SearchAll(context.Context, []string) []string { return s }

type fetchFunc func(ctx context.Context, url string) (string, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }

type extractFunc func(ctx context.Context, url string) model.Result[model.Contact]

func (f extractFunc) Extract(ctx context.Context, url string) model.Result[model.Contact] {
	return f(ctx, url)
}

// memStore is an in-memory Store with first-write-wins upserts.
type memStore struct {
	mu        sync.Mutex
	leads     []model.Lead
	finished  *model.RunResult
	createErr error
}

func (m *memStore) Upsert(ctx context.Context, l model.Lead) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.leads {
		if existing.Email == l.Email {
			return false, nil
		}
	}
	m.leads = append(m.leads, l)
	return true, nil
}

func (m *memStore) CreateRun(_ context.Context, queries []string) (*model.Run, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &model.Run{ID: "run-1", Queries: queries, Status: model.RunStatusRunning}, nil
}

func (m *memStore) FinishRun(_ context.Context, _ string, r *model.RunResult) error {
	m.finished = r
	return nil
}

type countingRecorder struct {
	extractions map[string]int
	writes      map[string]int
	runs        map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{extractions: map[string]int{}, writes: map[string]int{}, runs: map[string]int{}}
}

func (c *countingRecorder) RecordExtraction(s string) { c.extractions[s]++ }
func (c *countingRecorder) RecordLeadWrite(o string)  { c.writes[o]++ }
func (c *countingRecorder) RecordRun(s string)        { c.runs[s]++ }

var pages = map[string]string{
	"https://acme.com/about": `<html><head><title>Acme Builders | Miami GC</title></head><body>
		<p>sales@acme-main.com</p>
		<footer>info@acme.com (305) 555-0100 100 Biscayne Blvd, Miami, FL 33132</footer></body></html>`,
	"https://beta.org/": `<html><head><title>Beta Architects</title></head><body>
		<div class="site-footer">hello@beta.org</div></body></html>`,
	"https://nomail.net/": `<html><head><title>No Mail</title></head><body><footer>Call (954) 555-0199</footer></body></html>`,
	"https://twin.com/": `<html><head><title>Twin</title></head><body><footer>info@acme.com</footer></body></html>`,
}

func pageFetcher() fetchFunc {
	return func(_ context.Context, url string) (string, error) {
		if body, ok := pages[url]; ok {
			return body, nil
		}
		return "", errors.New("dial tcp: connection refused")
	}
}

var searchResults = staticSearch{
	"https://acme.com/about",
	"https://acme.com/contact",
	"https://miamifloorpros.com/",
	"https://beta.org/",
	"https://nomail.net/",
	"https://down.io/",
	"https://twin.com/",
}

func newTestPipeline(st Store, rec Recorder) *Pipeline {
	return New(
		searchResults,
		extract.New(pageFetcher()),
		scorer.Default(),
		st,
		WithCompetitorFilter(dedupe.NewCompetitorFilter([]string{"floor", "tile", "carpet"})),
		WithRecorder(rec),
	)
}

func TestRun_EndToEnd(t *testing.T) {
	st := &memStore{}
	rec := newCountingRecorder()

	res, err := newTestPipeline(st, rec).Run(context.Background(), []string{"General Contractors Miami"})
	require.NoError(t, err)

	assert.Equal(t, 7, res.URLs)
	assert.Equal(t, 6, res.Domains)
	assert.Equal(t, 1, res.Competitors)
	assert.Equal(t, 4, res.Extracted)
	assert.Equal(t, 1, res.FetchFailed)
	assert.Equal(t, 2, res.NoEmail)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, model.RunStatusComplete, res.Status())
	assert.Same(t, res, st.finished)

	require.Len(t, st.leads, 2)
	acme := st.leads[0]
	assert.Equal(t, "info@acme.com", acme.Email)
	assert.Equal(t, "Acme Builders", acme.Name)
	assert.Equal(t, "acme.com", acme.Domain)
	assert.Equal(t, "https://acme.com/about", acme.Website)
	assert.Equal(t, model.SourceScrape, acme.Source)
	assert.InDelta(t, 5.0, acme.Score, 1e-9)

	assert.Equal(t, "hello@beta.org", st.leads[1].Email)
	assert.InDelta(t, 2.0, st.leads[1].Score, 1e-9)

	assert.Equal(t, 4, rec.extractions["ok"])
	assert.Equal(t, 1, rec.extractions["failed"])
	assert.Equal(t, 2, rec.writes[OutcomeInserted])
	assert.Equal(t, 1, rec.writes[OutcomeDuplicate])
	assert.Equal(t, 2, rec.writes[OutcomeNoEmail])
	assert.Equal(t, 1, rec.runs["complete"])
}

func TestRun_MaxDomains(t *testing.T) {
	st := &memStore{}
	p := New(searchResults, extract.New(pageFetcher()), scorer.Default(), st, WithMaxDomains(1))

	res, err := p.Run(context.Background(), []string{"q"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Domains)
	assert.Equal(t, 1, res.Inserted)
}

func TestRun_NoQueries(t *testing.T) {
	_, err := newTestPipeline(&memStore{}, nil).Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, model.IsConfigurationError(err))
}

func TestRun_CreateRunFails(t *testing.T) {
	st := &memStore{createErr: errors.New("database is locked")}
	_, err := newTestPipeline(st, nil).Run(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create run")
	assert.Nil(t, st.finished)
}

func TestRun_EmptySearch(t *testing.T) {
	st := &memStore{}
	p := New(staticSearch{}, extract.New(pageFetcher()), scorer.Default(), st)

	res, err := p.Run(context.Background(), []string{"q"})
	require.NoError(t, err)
	assert.Equal(t, model.RunResult{}, *res)
	assert.Empty(t, st.leads)
}

func TestRun_CanceledMidway(t *testing.T) {
	st := &memStore{}
	rec := newCountingRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	ex := extractFunc(func(_ context.Context, url string) model.Result[model.Contact] {
		calls++
		cancel()
		return model.OK(model.Contact{Website: url, Email: "x@" + dedupe.Domain(url)})
	})
	p := New(searchResults, ex, scorer.Default(), st, WithRecorder(rec))

	res, err := p.Run(ctx, []string{"q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, model.RunStatusFailed, res.Status())
	require.NotNil(t, st.finished)
	assert.NotEmpty(t, st.finished.Error)
	assert.Equal(t, 1, rec.runs["failed"])
}

func TestRun_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(ctx))

	p := newTestPipeline(s, nil)
	res, err := p.Run(ctx, []string{"General Contractors Miami"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	// A second run finds the same leads and stores nothing new.
	res, err = p.Run(ctx, []string{"General Contractors Miami"})
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, 3, res.Duplicates)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, model.RunStatusComplete, r.Status)
		require.NotNil(t, r.Result)
	}
}
