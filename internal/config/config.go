package config

import (
	"time"
)

// Config is the root application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Batch      BatchConfig      `yaml:"batch"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// ClassifierConfig holds settings for the external classification service.
type ClassifierConfig struct {
	APIKey        string        `yaml:"api_key"         env:"ANTHROPIC_API_KEY"          env-required:"true"`
	Model         string        `yaml:"model"           env:"CLASSIFIER_MODEL"           env-default:"claude-3-5-haiku-20241022"`
	MaxTokens     int           `yaml:"max_tokens"      env:"CLASSIFIER_MAX_TOKENS"      env-default:"4096"`
	MaxRetries    int           `yaml:"max_retries"     env:"CLASSIFIER_MAX_RETRIES"     env-default:"3"`
	RetryBaseWait time.Duration `yaml:"retry_base_wait" env:"CLASSIFIER_RETRY_BASE_WAIT" env-default:"1s"`
}

// PipelineConfig holds the tuned constants of the extraction and
// attribution pipeline. The thresholds and window sizes are empirically
// tuned; they are exposed here rather than hard-coded so they can be
// adjusted without a code change.
type PipelineConfig struct {
	AutoAcceptThreshold float64 `yaml:"auto_accept_threshold" env:"PIPELINE_AUTO_ACCEPT_THRESHOLD" env-default:"0.93"`
	ReviewThreshold     float64 `yaml:"review_threshold"      env:"PIPELINE_REVIEW_THRESHOLD"      env-default:"0.70"`
	ContextBefore       int     `yaml:"context_before"        env:"PIPELINE_CONTEXT_BEFORE"        env-default:"150"`
	ContextAfter        int     `yaml:"context_after"         env:"PIPELINE_CONTEXT_AFTER"         env-default:"150"`
	MaxBracketLength    int     `yaml:"max_bracket_length"    env:"PIPELINE_MAX_BRACKET_LENGTH"    env-default:"300"`
	EventBatchSize      int     `yaml:"event_batch_size"      env:"PIPELINE_EVENT_BATCH_SIZE"      env-default:"15"`
	RosterLimit         int     `yaml:"roster_limit"          env:"PIPELINE_ROSTER_LIMIT"          env-default:"30"`
	PromptContextLimit  int     `yaml:"prompt_context_limit"  env:"PIPELINE_PROMPT_CONTEXT_LIMIT"  env-default:"500"`
	IngestWorkers       int     `yaml:"ingest_workers"        env:"PIPELINE_INGEST_WORKERS"        env-default:"4"`

	// IndicatorWords overrides the two-word inclusion vocabulary of the
	// candidate filter. Empty means the built-in vocabulary.
	IndicatorWords []string `yaml:"indicator_words" env:"PIPELINE_INDICATOR_WORDS" env-separator:","`
}

// BatchConfig holds settings for bulk processing via the batch API.
type BatchConfig struct {
	MaxRequests  int           `yaml:"max_requests"  env:"BATCH_MAX_REQUESTS"  env-default:"10000"`
	PollInterval time.Duration `yaml:"poll_interval" env:"BATCH_POLL_INTERVAL" env-default:"60s"`
	PollTimeout  time.Duration `yaml:"poll_timeout"  env:"BATCH_POLL_TIMEOUT"  env-default:"0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
