package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves the test into an empty directory so no config.yaml or
// .env from the repository is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Empty(t, cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"google", "bing", "duckduckgo"}, cfg.Search.Engines)
	assert.Equal(t, DefaultGeoClause, cfg.Search.GeoClause)
	assert.Equal(t, 40, cfg.Search.MaxResultsPerEngine)
	assert.Equal(t, 3, cfg.Search.BreakerThreshold)
	assert.Len(t, cfg.Search.DefaultQueries, 10)
	assert.Equal(t, 15, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, int64(2<<20), cfg.Fetch.MaxBodyBytes)
	assert.Equal(t, 100, cfg.Dedupe.MaxDomains)
	assert.Equal(t, []string{"floor", "tile", "carpet"}, cfg.Dedupe.CompetitorSubstrings)
	assert.Equal(t, []string{"Miami", "Broward", "Palm Beach", "Florida", "FL"}, cfg.Extract.AddressKeywords)
	assert.InDelta(t, 2.0, cfg.Scorer.EmailWeight, 0.001)
	assert.InDelta(t, 1.0, cfg.Scorer.PhoneWeight, 0.001)
	assert.InDelta(t, 1.0, cfg.Scorer.AddressWeight, 0.001)
	assert.InDelta(t, 1.0, cfg.Scorer.GeoWeights["miami"], 0.001)
	assert.InDelta(t, 0.5, cfg.Scorer.GeoWeights["palm beach"], 0.001)
	assert.Equal(t, "sendgrid", cfg.Campaign.Transport)
	assert.Equal(t, 150, cfg.Campaign.DailyCap)
	assert.Equal(t, 300, cfg.Campaign.PacingMillis)
	assert.Equal(t, "https://api.sendgrid.com", cfg.SendGrid.BaseURL)
	assert.Empty(t, cfg.SendGrid.APIKey)
	assert.InDelta(t, 0.5, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 60, cfg.Monitoring.AlertCooldownMins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
log:
  level: debug
  format: console
campaign:
  daily_cap: 50
dedupe:
  competitor_substrings: ["flooring"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/leads", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 50, cfg.Campaign.DailyCap)
	assert.Equal(t, []string{"flooring"}, cfg.Dedupe.CompetitorSubstrings)
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.Dedupe.MaxDomains)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("PROSPECTOR_LOG_LEVEL", "warn")
	t.Setenv("PROSPECTOR_SENDGRID_API_KEY", "SG.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "SG.test", cfg.SendGrid.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PROSPECTOR_SMTP_HOST=smtp.example.com\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PROSPECTOR_SMTP_HOST") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Search.Engines = []string{"google"}
	cfg.Fetch.TimeoutSecs = 15
	cfg.Dedupe.MaxDomains = 100
	cfg.Campaign.Transport = "sendgrid"
	cfg.Campaign.SenderEmail = "info@miamimasterflooring.com"
	cfg.Campaign.DailyCap = 150
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ingest ok", mode: "ingest", mutate: func(*Config) {}},
		{name: "campaign ok", mode: "campaign", mutate: func(*Config) {}},
		{name: "serve ok", mode: "serve", mutate: func(*Config) {}},
		{
			name:    "unknown driver",
			mode:    "ingest",
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: "store.driver",
		},
		{
			name:    "postgres without url",
			mode:    "serve",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: "store.database_url",
		},
		{
			name:    "no engines",
			mode:    "ingest",
			mutate:  func(c *Config) { c.Search.Engines = nil },
			wantErr: "search.engines",
		},
		{
			name:    "cap below range",
			mode:    "campaign",
			mutate:  func(c *Config) { c.Campaign.DailyCap = 5 },
			wantErr: "daily_cap",
		},
		{
			name:    "cap above range",
			mode:    "campaign",
			mutate:  func(c *Config) { c.Campaign.DailyCap = 501 },
			wantErr: "daily_cap",
		},
		{
			name:    "unknown transport",
			mode:    "campaign",
			mutate:  func(c *Config) { c.Campaign.Transport = "pigeon" },
			wantErr: "campaign.transport",
		},
		{
			name:   "cap ignored outside campaign",
			mode:   "ingest",
			mutate: func(c *Config) { c.Campaign.DailyCap = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
