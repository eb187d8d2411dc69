package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Blob      BlobConfig      `yaml:"blob" mapstructure:"blob"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Throttle  ThrottleConfig  `yaml:"throttle" mapstructure:"throttle"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Path is the SQLite database file when the driver is sqlite.
	Path string `yaml:"path" mapstructure:"path"`
}

// BlobConfig configures object storage for nameplate images.
type BlobConfig struct {
	ProductionBucket string `yaml:"production_bucket" mapstructure:"production_bucket"`
	EphemeralBucket  string `yaml:"ephemeral_bucket" mapstructure:"ephemeral_bucket"`
	SignedURLTTLMins int    `yaml:"signed_url_ttl_mins" mapstructure:"signed_url_ttl_mins"`
}

// AnthropicConfig holds Anthropic API settings for the vision extractor.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OCRConfig holds OCR.space API settings.
type OCRConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	Language      string `yaml:"language" mapstructure:"language"`
	Endpoint      string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxImageBytes int64  `yaml:"max_image_bytes" mapstructure:"max_image_bytes"`
}

// ThrottleConfig configures the vision-call rate throttle.
type ThrottleConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute" mapstructure:"tokens_per_minute"`
	TokensPerCall     int `yaml:"tokens_per_call" mapstructure:"tokens_per_call"`
}

// PipelineConfig configures extraction behavior.
type PipelineConfig struct {
	// Method is "llm" or "hybrid".
	Method string `yaml:"method" mapstructure:"method"`
	// Mode is "production" or "ephemeral".
	Mode string `yaml:"mode" mapstructure:"mode"`
}

// BatchConfig configures batch evaluation runs.
type BatchConfig struct {
	MaxConcurrentImages int `yaml:"max_concurrent_images" mapstructure:"max_concurrent_images"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NAMEPLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys configured only through the environment still need a
	// registered default or AutomaticEnv won't surface them to Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "nameplate.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("blob.production_bucket", "")
	v.SetDefault("blob.ephemeral_bucket", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("ocr.key", "")
	v.SetDefault("ocr.endpoint", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_images", 5)
	v.SetDefault("blob.signed_url_ttl_mins", 60)
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.timeout_secs", 60)
	v.SetDefault("ocr.max_image_bytes", 1024*1024)
	v.SetDefault("throttle.requests_per_minute", 450)
	v.SetDefault("throttle.tokens_per_minute", 180000)
	v.SetDefault("throttle.tokens_per_call", 1500)
	v.SetDefault("pipeline.method", "llm")
	v.SetDefault("pipeline.mode", "production")

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
