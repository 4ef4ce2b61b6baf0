package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig                  `yaml:"log" mapstructure:"log"`
	Store      StoreConfig                `yaml:"store" mapstructure:"store"`
	Server     ServerConfig               `yaml:"server" mapstructure:"server"`
	Campaign   CampaignConfig             `yaml:"campaign" mapstructure:"campaign"`
	Scoring    ScoringConfig              `yaml:"scoring" mapstructure:"scoring"`
	Cache      CacheConfig                `yaml:"cache" mapstructure:"cache"`
	Resilience ResilienceConfig           `yaml:"resilience" mapstructure:"resilience"`
	Providers  ProvidersConfig            `yaml:"providers" mapstructure:"providers"`
	Pricing    map[string]ProviderPricing `yaml:"pricing" mapstructure:"pricing"`
	Routing    RoutingConfig              `yaml:"routing" mapstructure:"routing"`
	Qualify    QualifyConfig              `yaml:"qualify" mapstructure:"qualify"`
	Notion     NotionConfig               `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig           `yaml:"salesforce" mapstructure:"salesforce"`
	Monitoring MonitoringConfig           `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// CampaignConfig holds request defaults and controller limits.
type CampaignConfig struct {
	TargetCount         int     `yaml:"target_count" mapstructure:"target_count"`
	BudgetLimitUSD      float64 `yaml:"budget_limit_usd" mapstructure:"budget_limit_usd"`
	MinConfidenceScore  int     `yaml:"min_confidence_score" mapstructure:"min_confidence_score"`
	ExportCap           int     `yaml:"export_cap" mapstructure:"export_cap"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	MaxQueries          int     `yaml:"max_queries" mapstructure:"max_queries"`
	Concurrency         int     `yaml:"concurrency" mapstructure:"concurrency"`
	SearchLimit         int     `yaml:"search_limit" mapstructure:"search_limit"`
	SearchProvider      string  `yaml:"search_provider" mapstructure:"search_provider"`
	ProviderTimeoutSecs int     `yaml:"provider_timeout_secs" mapstructure:"provider_timeout_secs"`
	SinkTimeoutSecs     int     `yaml:"sink_timeout_secs" mapstructure:"sink_timeout_secs"`
}

// ScoringConfig configures the pre-validation scorer. Zero weights fall
// back to the scorer defaults.
type ScoringConfig struct {
	Threshold int            `yaml:"threshold" mapstructure:"threshold"`
	Weights   map[string]int `yaml:"weights" mapstructure:"weights"`
}

// CacheConfig configures provider result caching.
type CacheConfig struct {
	SearchTTLMins     int  `yaml:"search_ttl_mins" mapstructure:"search_ttl_mins"`
	LookupTTLHours    int  `yaml:"lookup_ttl_hours" mapstructure:"lookup_ttl_hours"`
	Persist           bool `yaml:"persist" mapstructure:"persist"`
	PurgeIntervalMins int  `yaml:"purge_interval_mins" mapstructure:"purge_interval_mins"`
}

// ResilienceConfig configures breakers and search retries.
type ResilienceConfig struct {
	FailureThreshold      int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs          int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	RetryMaxAttempts      int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs int `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

// ProviderConfig holds credentials and throttling for one provider. A
// provider with an empty key is not registered unless it needs none.
type ProviderConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Disabled    bool    `yaml:"disabled" mapstructure:"disabled"`
}

// RegistryConfig is a JSON registry or directory endpoint.
type RegistryConfig struct {
	ProviderConfig `yaml:",inline" mapstructure:",squash"`
	// Kind is government, license or association.
	Kind string `yaml:"kind" mapstructure:"kind"`
}

// ProvidersConfig lists every provider adapter.
type ProvidersConfig struct {
	Google     ProviderConfig            `yaml:"google" mapstructure:"google"`
	Website    WebsiteConfig             `yaml:"website" mapstructure:"website"`
	Hunter     ProviderConfig            `yaml:"hunter" mapstructure:"hunter"`
	Apollo     ProviderConfig            `yaml:"apollo" mapstructure:"apollo"`
	ProPublica ProviderConfig            `yaml:"propublica" mapstructure:"propublica"`
	Registries map[string]RegistryConfig `yaml:"registries" mapstructure:"registries"`
}

// WebsiteConfig configures the free homepage checker.
type WebsiteConfig struct {
	ProviderConfig `yaml:",inline" mapstructure:",squash"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ProviderPricing overrides the built-in price of a provider.
type ProviderPricing struct {
	PerCall       map[string]float64 `yaml:"per_call" mapstructure:"per_call"`
	BillOnAttempt bool               `yaml:"bill_on_attempt" mapstructure:"bill_on_attempt"`
}

// RoutingConfig points at optional routing tables.
type RoutingConfig struct {
	TablesPath string `yaml:"tables_path" mapstructure:"tables_path"`
}

// QualifyConfig toggles owner qualification rules.
type QualifyConfig struct {
	DisableFallback    bool `yaml:"disable_fallback" mapstructure:"disable_fallback"`
	FallbackConfidence int  `yaml:"fallback_confidence" mapstructure:"fallback_confidence"`
}

// NotionConfig holds the Notion lead export settings.
type NotionConfig struct {
	Token  string  `yaml:"token" mapstructure:"token"`
	LeadDB string  `yaml:"lead_db" mapstructure:"lead_db"`
	RPS    float64 `yaml:"rps" mapstructure:"rps"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string  `yaml:"client_id" mapstructure:"client_id"`
	Username string  `yaml:"username" mapstructure:"username"`
	KeyPath  string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string  `yaml:"login_url" mapstructure:"login_url"`
	RPS      float64 `yaml:"rps" mapstructure:"rps"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	ErrorAbortRateThreshold float64 `yaml:"error_abort_rate_threshold" mapstructure:"error_abort_rate_threshold"`
	CostThresholdUSD        float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

// secretKeys have no default but must still be visible to AutomaticEnv.
var secretKeys = []string{
	"store.database_url",
	"providers.google.key",
	"providers.hunter.key",
	"providers.apollo.key",
	"providers.propublica.key",
	"notion.token",
	"notion.lead_db",
	"salesforce.client_id",
	"salesforce.username",
	"salesforce.key_path",
	"monitoring.webhook_url",
}

func setDefaults(v *viper.Viper) {
	for _, k := range secretKeys {
		v.SetDefault(k, "")
	}

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "prospect.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("campaign.target_count", 25)
	v.SetDefault("campaign.budget_limit_usd", 5.0)
	v.SetDefault("campaign.min_confidence_score", 60)
	v.SetDefault("campaign.export_cap", 100)
	v.SetDefault("campaign.max_attempts", 20)
	v.SetDefault("campaign.max_queries", 12)
	v.SetDefault("campaign.concurrency", 4)
	v.SetDefault("campaign.search_limit", 20)
	v.SetDefault("campaign.search_provider", "google")
	v.SetDefault("campaign.provider_timeout_secs", 15)
	v.SetDefault("campaign.sink_timeout_secs", 30)

	v.SetDefault("scoring.threshold", 50)

	v.SetDefault("cache.search_ttl_mins", 15)
	v.SetDefault("cache.lookup_ttl_hours", 168)
	v.SetDefault("cache.persist", true)
	v.SetDefault("cache.purge_interval_mins", 60)

	v.SetDefault("resilience.failure_threshold", 3)
	v.SetDefault("resilience.cooldown_secs", 60)
	v.SetDefault("resilience.retry_max_attempts", 2)
	v.SetDefault("resilience.retry_initial_backoff_ms", 500)
	v.SetDefault("resilience.retry_max_backoff_ms", 10000)

	v.SetDefault("providers.google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("providers.google.rps", 5)
	v.SetDefault("providers.website.rps", 10)
	v.SetDefault("providers.website.burst", 5)
	v.SetDefault("providers.website.timeout_secs", 10)
	v.SetDefault("providers.website.user_agent", "Mozilla/5.0 (compatible; prospect-cli/1.0)")
	v.SetDefault("providers.hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("providers.hunter.rps", 10)
	v.SetDefault("providers.apollo.base_url", "https://api.apollo.io/api/v1")
	v.SetDefault("providers.apollo.rps", 3)
	v.SetDefault("providers.propublica.base_url", "https://projects.propublica.org/nonprofits/api/v2")
	v.SetDefault("providers.propublica.rps", 2)

	v.SetDefault("qualify.fallback_confidence", 60)

	v.SetDefault("notion.rps", 3)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rps", 5)

	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.error_abort_rate_threshold", 0.25)
}

// Validate checks the keys required by the given command.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "discover", "serve":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateCampaign()...)
		if c.Campaign.SearchProvider == "google" && c.Providers.Google.Key == "" {
			errs = append(errs, "providers.google.key is required")
		}
		if c.Notion.Token != "" && c.Notion.LeadDB == "" {
			errs = append(errs, "notion.lead_db is required when notion.token is set")
		}
		if c.Salesforce.ClientID != "" && (c.Salesforce.Username == "" || c.Salesforce.KeyPath == "") {
			errs = append(errs, "salesforce.username and salesforce.key_path are required when salesforce.client_id is set")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "campaigns", "migrate", "status":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required for the sqlite driver"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the postgres driver"}
		}
	default:
		return []string{fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver)}
	}
	return nil
}

func (c *Config) validateCampaign() []string {
	var errs []string
	if c.Campaign.Concurrency < 1 || c.Campaign.Concurrency > 32 {
		errs = append(errs, "campaign.concurrency must be between 1 and 32")
	}
	if c.Campaign.BudgetLimitUSD < 0 {
		errs = append(errs, "campaign.budget_limit_usd must be >= 0")
	}
	if c.Campaign.MinConfidenceScore < 0 || c.Campaign.MinConfidenceScore > 100 {
		errs = append(errs, "campaign.min_confidence_score must be between 0 and 100")
	}
	if c.Scoring.Threshold < 0 || c.Scoring.Threshold > 100 {
		errs = append(errs, "scoring.threshold must be between 0 and 100")
	}
	for name, w := range c.Scoring.Weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("scoring.weights.%s must be >= 0", name))
		}
	}
	for name, p := range c.Pricing {
		for capability, price := range p.PerCall {
			if price < 0 {
				errs = append(errs, fmt.Sprintf("pricing.%s.per_call.%s must be >= 0", name, capability))
			}
		}
	}
	for name, r := range c.Providers.Registries {
		switch r.Kind {
		case "government", "license", "association":
		default:
			errs = append(errs, fmt.Sprintf("providers.registries.%s.kind %q must be government, license or association", name, r.Kind))
		}
		if r.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("providers.registries.%s.base_url is required", name))
		}
	}
	return errs
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
