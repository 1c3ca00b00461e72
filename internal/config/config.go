package config

import (
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
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Cohere     CohereConfig     `yaml:"cohere" mapstructure:"cohere"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Draft      DraftConfig      `yaml:"draft" mapstructure:"draft"`
	Rank       RankConfig       `yaml:"rank" mapstructure:"rank"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Refine     RefineConfig     `yaml:"refine" mapstructure:"refine"`
	Supervisor SupervisorConfig `yaml:"supervisor" mapstructure:"supervisor"`
	Sheet      SheetConfig      `yaml:"sheet" mapstructure:"sheet"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Kafka      KafkaConfig      `yaml:"kafka" mapstructure:"kafka"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the result store backend.
type StoreConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	MaxBatches   int    `yaml:"max_batches" mapstructure:"max_batches"`
	MaxDrafts    int    `yaml:"max_drafts" mapstructure:"max_drafts"`
	MaxCompanies int    `yaml:"max_companies" mapstructure:"max_companies"`
}

// RedisConfig configures the optional Redis connection used for refinement locks.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	Model     string  `yaml:"model" mapstructure:"model"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CohereConfig holds Cohere embedding settings for SSR ranking.
type CohereConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LLMConfig selects the language-model provider used for drafting and refinement.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// ResearchConfig configures the research stage.
type ResearchConfig struct {
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	NewsFeedURL  string `yaml:"news_feed_url" mapstructure:"news_feed_url"`
	MaxHeadlines int    `yaml:"max_headlines" mapstructure:"max_headlines"`
}

// VariantSpec describes one entry of the draft variant catalog.
type VariantSpec struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Label   string `yaml:"label" mapstructure:"label"`
	Product string `yaml:"product" mapstructure:"product"`
	Tone    string `yaml:"tone" mapstructure:"tone"`
}

// DraftConfig configures the draft stage.
type DraftConfig struct {
	TimeoutSecs int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Sender      string        `yaml:"sender" mapstructure:"sender"`
	Variants    []VariantSpec `yaml:"variants" mapstructure:"variants"`
}

// RankConfig configures the optional ranking stage.
type RankConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Method      string `yaml:"method" mapstructure:"method"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxWorkers       int `yaml:"max_workers" mapstructure:"max_workers"`
	RetryAttempts    int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs   int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// RefineConfig configures the refinement session.
type RefineConfig struct {
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Locker          string `yaml:"locker" mapstructure:"locker"`
	LockTTLSecs     int    `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
	ArticleMaxChars int    `yaml:"article_max_chars" mapstructure:"article_max_chars"`
}

// SupervisorConfig configures the backend process supervisor.
type SupervisorConfig struct {
	HealthURL    string `yaml:"health_url" mapstructure:"health_url"`
	StartCommand string `yaml:"start_command" mapstructure:"start_command"`
	PollSecs     int    `yaml:"poll_secs" mapstructure:"poll_secs"`
	WaitSecs     int    `yaml:"wait_secs" mapstructure:"wait_secs"`
	AutoStart    bool   `yaml:"auto_start" mapstructure:"auto_start"`
}

// SheetConfig configures the spreadsheet routing layer.
type SheetConfig struct {
	TemplateColumn string `yaml:"template_column" mapstructure:"template_column"`
	AIMarker       string `yaml:"ai_marker" mapstructure:"ai_marker"`
	SentColumn     string `yaml:"sent_column" mapstructure:"sent_column"`
	EmailColumn    string `yaml:"email_column" mapstructure:"email_column"`
	TestRecipient  string `yaml:"test_recipient" mapstructure:"test_recipient"`
	LegacyTemplate string `yaml:"legacy_template" mapstructure:"legacy_template"`
	Schedule       string `yaml:"schedule" mapstructure:"schedule"`
}

// ExportConfig configures result export.
type ExportConfig struct {
	S3Bucket string `yaml:"s3_bucket" mapstructure:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix" mapstructure:"s3_prefix"`
	S3Region string `yaml:"s3_region" mapstructure:"s3_region"`
}

// KafkaConfig configures the optional batch event publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Cohere     CoherePricing           `yaml:"cohere" mapstructure:"cohere"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// CoherePricing holds Cohere embedding pricing.
type CoherePricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultVariants is the variant catalog used when none is configured.
func DefaultVariants() []VariantSpec {
	return []VariantSpec{
		{Key: "opi_professional", Label: "One Payment Infra / professional", Product: "One Payment Infra", Tone: "professional, trustworthy"},
		{Key: "opi_curiosity", Label: "One Payment Infra / curiosity", Product: "One Payment Infra", Tone: "question-led, curiosity"},
		{Key: "finance_professional", Label: "Finance automation / professional", Product: "Commerce finance automation", Tone: "professional, trustworthy"},
		{Key: "finance_curiosity", Label: "Finance automation / curiosity", Product: "Commerce finance automation", Tone: "question-led, curiosity"},
	}
}

// Load reads configuration from .env, ./config.yaml if present, and the
// environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike ./config.yaml, a
// named file must exist.
func LoadFile(path string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("store.max_batches", 20)
	v.SetDefault("store.max_drafts", 100)
	v.SetDefault("store.max_companies", 50)
	v.SetDefault("redis.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.rate_limit", 5)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4000)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("cohere.model", "embed-multilingual-v3.0")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.rate_limit", 2)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("research.timeout_secs", 30)
	v.SetDefault("research.max_headlines", 5)
	v.SetDefault("draft.timeout_secs", 90)
	v.SetDefault("draft.sender", "PortOne")
	v.SetDefault("rank.enabled", true)
	v.SetDefault("rank.method", "ssr")
	v.SetDefault("rank.timeout_secs", 30)
	v.SetDefault("batch.max_workers", 0)
	v.SetDefault("batch.retry_attempts", 1)
	v.SetDefault("batch.retry_backoff_ms", 1000)
	v.SetDefault("batch.breaker_threshold", 5)
	v.SetDefault("batch.breaker_reset_secs", 30)
	v.SetDefault("refine.timeout_secs", 60)
	v.SetDefault("refine.locker", "local")
	v.SetDefault("refine.lock_ttl_secs", 120)
	v.SetDefault("refine.article_max_chars", 12000)
	v.SetDefault("supervisor.health_url", "http://localhost:5001/health")
	v.SetDefault("supervisor.poll_secs", 2)
	v.SetDefault("supervisor.wait_secs", 30)
	v.SetDefault("sheet.template_column", "이메일템플릿형식")
	v.SetDefault("sheet.ai_marker", "claude 개인화 메일")
	v.SetDefault("sheet.sent_column", "1차발송여부")
	v.SetDefault("sheet.email_column", "대표이메일")
	v.SetDefault("kafka.topic", "outreach.batch.completed")
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.cohere.per_mtok", 0.10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Draft.Variants) == 0 {
		cfg.Draft.Variants = DefaultVariants()
	}

	return &cfg, nil
}

// Validate checks that the settings required by a command mode are present.
// Known modes: "generate", "serve", "refine", "offline".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "offline":
	case "generate", "serve", "refine":
		if c.Perplexity.Key == "" && mode != "refine" {
			errs = append(errs, "perplexity.key is required")
		}
		switch c.LLM.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case "gemini":
			if c.Gemini.Key == "" {
				errs = append(errs, "gemini.key is required")
			}
		default:
			errs = append(errs, "llm.provider must be anthropic or gemini")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if c.Batch.MaxWorkers < 0 || c.Batch.MaxWorkers > 50 {
		errs = append(errs, "batch.max_workers must be between 0 and 50")
	}
	if c.Refine.Locker == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when refine.locker is redis")
	}
	seen := make(map[string]bool, len(c.Draft.Variants))
	for _, vs := range c.Draft.Variants {
		if vs.Key == "" {
			errs = append(errs, "draft.variants entries need a key")
			continue
		}
		if seen[vs.Key] {
			errs = append(errs, "draft.variants key "+vs.Key+" is duplicated")
		}
		seen[vs.Key] = true
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
