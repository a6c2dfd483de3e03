package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector-cli/internal/model"
)

// mockSource implements Source for testing.
type mockSource struct {
	leads      int
	suppressed int
	candidates []string
	runs       []model.Run

	countErr error
	runsErr  error
}

func (m *mockSource) Count(context.Context) (int, error) { return m.leads, m.countErr }
func (m *mockSource) CountSuppressed(context.Context) (int, error) {
	return m.suppressed, nil
}
func (m *mockSource) Candidates(context.Context) ([]string, error) { return m.candidates, nil }
func (m *mockSource) ListRuns(_ context.Context, limit int) ([]model.Run, error) {
	if m.runsErr != nil {
		return nil, m.runsErr
	}
	if len(m.runs) > limit {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCollector(src Source) *Collector {
	c := NewCollector(src)
	c.nowFunc = func() time.Time { return fixedNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	src := &mockSource{
		leads:      12,
		suppressed: 3,
		candidates: []string{"a@x.com", "b@x.com", "c@x.com"},
		runs: []model.Run{
			{ID: "r4", Status: model.RunStatusRunning, CreatedAt: fixedNow.Add(-10 * time.Minute)},
			{ID: "r3", Status: model.RunStatusComplete, CreatedAt: fixedNow.Add(-1 * time.Hour),
				Result: &model.RunResult{URLs: 0}},
			{ID: "r2", Status: model.RunStatusFailed, CreatedAt: fixedNow.Add(-2 * time.Hour),
				Result: &model.RunResult{URLs: 10, Inserted: 1, Error: "store closed"}},
			{ID: "r1", Status: model.RunStatusComplete, CreatedAt: fixedNow.Add(-3 * time.Hour),
				Result: &model.RunResult{URLs: 40, Inserted: 7}},
			{ID: "old", Status: model.RunStatusFailed, CreatedAt: fixedNow.Add(-48 * time.Hour)},
		},
	}

	snap, err := newTestCollector(src).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 12, snap.Leads)
	assert.Equal(t, 3, snap.Suppressed)
	assert.Equal(t, 3, snap.Eligible)
	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, 1, snap.RunsNoURLs)
	assert.Equal(t, 8, snap.LeadsInserted)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 1e-9)
	require.NotNil(t, snap.LastRunAt)
	assert.Equal(t, fixedNow.Add(-10*time.Minute), *snap.LastRunAt)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := newTestCollector(&mockSource{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Nil(t, snap.LastRunAt)
}

func TestCollector_Errors(t *testing.T) {
	_, err := newTestCollector(&mockSource{countErr: errors.New("db gone")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count leads")

	_, err = newTestCollector(&mockSource{runsErr: errors.New("db gone")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")
}
