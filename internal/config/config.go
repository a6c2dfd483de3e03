package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Dedupe     DedupeConfig     `yaml:"dedupe" mapstructure:"dedupe"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Scorer     ScorerConfig     `yaml:"scorer" mapstructure:"scorer"`
	Campaign   CampaignConfig   `yaml:"campaign" mapstructure:"campaign"`
	SendGrid   SendGridConfig   `yaml:"sendgrid" mapstructure:"sendgrid"`
	SMTP       SMTPConfig       `yaml:"smtp" mapstructure:"smtp"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SearchConfig configures the search engine fan-out.
type SearchConfig struct {
	Engines             []string `yaml:"engines" mapstructure:"engines"`
	GeoClause           string   `yaml:"geo_clause" mapstructure:"geo_clause"`
	SiteClause          string   `yaml:"site_clause" mapstructure:"site_clause"`
	MaxResultsPerEngine int      `yaml:"max_results_per_engine" mapstructure:"max_results_per_engine"`
	MinIntervalMillis   int      `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	BreakerThreshold    int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	DefaultQueries      []string `yaml:"default_queries" mapstructure:"default_queries"`
}

// FetchConfig configures single-page HTTP fetches.
type FetchConfig struct {
	TimeoutSecs  int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	UserAgents   []string `yaml:"user_agents" mapstructure:"user_agents"`
}

// DedupeConfig configures domain collapsing and competitor exclusion.
type DedupeConfig struct {
	MaxDomains           int      `yaml:"max_domains" mapstructure:"max_domains"`
	CompetitorSubstrings []string `yaml:"competitor_substrings" mapstructure:"competitor_substrings"`
}

// ExtractConfig configures contact extraction.
type ExtractConfig struct {
	AddressKeywords []string `yaml:"address_keywords" mapstructure:"address_keywords"`
}

// ScorerConfig configures lead scoring weights.
type ScorerConfig struct {
	EmailWeight   float64            `yaml:"email_weight" mapstructure:"email_weight"`
	PhoneWeight   float64            `yaml:"phone_weight" mapstructure:"phone_weight"`
	AddressWeight float64            `yaml:"address_weight" mapstructure:"address_weight"`
	GeoWeights    map[string]float64 `yaml:"geo_weights" mapstructure:"geo_weights"`
}

// CampaignConfig configures outbound email campaigns.
type CampaignConfig struct {
	Transport      string `yaml:"transport" mapstructure:"transport"`
	SenderName     string `yaml:"sender_name" mapstructure:"sender_name"`
	SenderEmail    string `yaml:"sender_email" mapstructure:"sender_email"`
	ReplyTo        string `yaml:"reply_to" mapstructure:"reply_to"`
	DailyCap       int    `yaml:"daily_cap" mapstructure:"daily_cap"`
	PacingMillis   int    `yaml:"pacing_ms" mapstructure:"pacing_ms"`
	DefaultSubject string `yaml:"default_subject" mapstructure:"default_subject"`
}

// SendGridConfig holds SendGrid API settings.
type SendGridConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SMTPConfig holds SMTP relay settings used when campaign.transport is "smtp".
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run health checks and alert delivery.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	AlertCooldownMins    int     `yaml:"alert_cooldown_mins" mapstructure:"alert_cooldown_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultGeoClause is the geographic disjunction appended to every query.
const DefaultGeoClause = "Miami OR 'Miami-Dade' OR 'South Florida' OR 'Broward County' OR 'Palm Beach County' OR Fort Lauderdale OR Hollywood OR Doral OR Hialeah OR 'Miami Beach' OR Homestead OR 'Coral Gables' OR Weston OR Miramar OR 'Pembroke Pines' OR Boca Raton"

// DefaultQueries are the searches run when none are given.
var DefaultQueries = []string{
	"General Contractors South Florida",
	"Construction Companies Miami-Dade",
	"Architecture Firms South Florida",
	"Flooring Installation Contractors Miami-Dade & Broward",
	"Commercial Flooring Companies Broward",
	"Tile Installation Specialists South Florida",
	"General Contractors Fort Lauderdale",
	"Construction Companies Palm Beach County",
	"Commercial Builders Miami",
	"Architects Broward County",
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// Credentials are usually supplied out of band through a .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("search.engines", []string{"google", "bing", "duckduckgo"})
	v.SetDefault("search.geo_clause", DefaultGeoClause)
	v.SetDefault("search.site_clause", "site:.com OR site:.net OR site:.org")
	v.SetDefault("search.max_results_per_engine", 40)
	v.SetDefault("search.min_interval_ms", 1000)
	v.SetDefault("search.breaker_threshold", 3)
	v.SetDefault("search.default_queries", DefaultQueries)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.max_body_bytes", 2<<20)
	v.SetDefault("dedupe.max_domains", 100)
	v.SetDefault("dedupe.competitor_substrings", []string{"floor", "tile", "carpet"})
	v.SetDefault("extract.address_keywords", []string{"Miami", "Broward", "Palm Beach", "Florida", "FL"})
	v.SetDefault("scorer.email_weight", 2.0)
	v.SetDefault("scorer.phone_weight", 1.0)
	v.SetDefault("scorer.address_weight", 1.0)
	v.SetDefault("scorer.geo_weights", map[string]float64{"miami": 1.0, "broward": 0.5, "palm beach": 0.5})
	v.SetDefault("campaign.transport", "sendgrid")
	v.SetDefault("campaign.sender_name", "Miami Master Flooring")
	v.SetDefault("campaign.sender_email", "info@miamimasterflooring.com")
	v.SetDefault("campaign.reply_to", "info@miamimasterflooring.com")
	v.SetDefault("campaign.daily_cap", 150)
	v.SetDefault("campaign.pacing_ms", 300)
	v.SetDefault("campaign.default_subject", "Premium Flooring Solutions for Your Projects - Miami Master Flooring")
	v.SetDefault("sendgrid.base_url", "https://api.sendgrid.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.alert_cooldown_mins", 60)

	// Keys without defaults still need binding so env overrides unmarshal.
	for _, key := range []string{"store.database_url", "sendgrid.api_key", "smtp.host", "smtp.username", "smtp.password", "monitoring.webhook_url"} {
		_ = v.BindEnv(key)
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Mode is one of
// "ingest", "campaign" or "serve"; unknown modes only get the common checks.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres (PROSPECTOR_STORE_DATABASE_URL)")
	}

	switch mode {
	case "ingest":
		if c.Fetch.TimeoutSecs <= 0 {
			errs = append(errs, "fetch.timeout_secs must be positive")
		}
		if c.Dedupe.MaxDomains <= 0 {
			errs = append(errs, "dedupe.max_domains must be positive")
		}
		if len(c.Search.Engines) == 0 {
			errs = append(errs, "search.engines must name at least one engine")
		}
	case "campaign":
		if c.Campaign.DailyCap < 10 || c.Campaign.DailyCap > 500 {
			errs = append(errs, "campaign.daily_cap must be between 10 and 500")
		}
		if c.Campaign.SenderEmail == "" {
			errs = append(errs, "campaign.sender_email is required")
		}
		switch c.Campaign.Transport {
		case "sendgrid", "smtp":
		default:
			errs = append(errs, "campaign.transport must be sendgrid or smtp")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be positive")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
