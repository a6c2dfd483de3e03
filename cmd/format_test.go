package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector-cli/internal/config"
	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/monitoring"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "Miami M...", truncate("Miami Master Flooring", 10))
	assert.Equal(t, "Café C...", truncate("Café Construction", 9))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "3f2a9c1e", shortID("3f2a9c1e-7b7d-4c1a-9a57-0f1f6e2d9b10"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestFormatLeads(t *testing.T) {
	var buf bytes.Buffer
	formatLeads(&buf, []model.Lead{
		{Name: "Acme Builders", Email: "info@acme.com", Phone: "(305) 555-0100", Website: "https://acme.com", Score: 5},
		{Email: "hello@beta.org", Score: 2.5},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "SCORE"))
	assert.Contains(t, lines[1], "5.0")
	assert.Contains(t, lines[1], "Acme Builders")
	assert.Contains(t, lines[1], "info@acme.com")
	assert.Contains(t, lines[2], "2.5")
	assert.Contains(t, lines[2], "hello@beta.org")
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, []model.Run{
		{
			ID:        "3f2a9c1e-7b7d-4c1a-9a57-0f1f6e2d9b10",
			Queries:   []string{"Architects Broward County"},
			Status:    model.RunStatusComplete,
			Result:    &model.RunResult{URLs: 12, Inserted: 3},
			CreatedAt: time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC),
		},
		{
			ID:      "running-run",
			Queries: []string{"Home Builders"},
			Status:  model.RunStatusRunning,
		},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "3f2a9c1e ")
	assert.Contains(t, lines[1], "complete")
	assert.Contains(t, lines[1], "Architects Broward County")
	assert.Contains(t, lines[2], "running")
	assert.Contains(t, lines[2], "-")
}

func TestFormatSnapshot(t *testing.T) {
	last := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	formatSnapshot(&buf, &monitoring.Snapshot{
		Leads:         10,
		Suppressed:    2,
		Eligible:      8,
		RunsComplete:  3,
		RunsFailed:    1,
		LeadsInserted: 7,
		LookbackHours: 24,
		LastRunAt:     &last,
	})
	out := buf.String()

	assert.Contains(t, out, "Leads:          10")
	assert.Contains(t, out, "Eligible:       8")
	assert.Contains(t, out, "3 complete, 1 failed, 0 running")
	assert.Contains(t, out, "New leads (24h): 7")
	assert.Contains(t, out, "2026-03-02T15:04:05Z")
}

func TestCampaignContent(t *testing.T) {
	prevCfg, prevSubject, prevBody := cfg, campaignSubject, campaignBodyFile
	t.Cleanup(func() { cfg, campaignSubject, campaignBodyFile = prevCfg, prevSubject, prevBody })

	cfg = &config.Config{Campaign: config.CampaignConfig{
		SenderName:     "Jordan",
		SenderEmail:    "jordan@miamimasterflooring.com",
		DefaultSubject: "Premium Flooring Partner",
	}}

	campaignSubject, campaignBodyFile = "", ""
	subject, body, err := campaignContent()
	require.NoError(t, err)
	assert.Equal(t, "Premium Flooring Partner", subject)
	assert.Contains(t, body, "jordan@miamimasterflooring.com")

	file := filepath.Join(t.TempDir(), "body.html")
	require.NoError(t, os.WriteFile(file, []byte("<p>Custom</p>"), 0o600))
	campaignSubject, campaignBodyFile = "Spring offer", file
	subject, body, err = campaignContent()
	require.NoError(t, err)
	assert.Equal(t, "Spring offer", subject)
	assert.Equal(t, "<p>Custom</p>", body)

	campaignBodyFile = filepath.Join(t.TempDir(), "missing.html")
	_, _, err = campaignContent()
	assert.Error(t, err)
}

func TestResolveCap(t *testing.T) {
	n, err := resolveCap(0, 150)
	require.NoError(t, err)
	assert.Equal(t, 150, n)

	n, err = resolveCap(10, 150)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	for _, bad := range []int{9, 501, -1} {
		_, err := resolveCap(bad, 150)
		assert.True(t, model.IsConfigurationError(err), "cap %d", bad)
	}
}
