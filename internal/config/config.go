// Package config loads service configuration from defaults, an optional
// config file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"smartrecipe/internal/auth"
	"smartrecipe/internal/llm"
	"smartrecipe/internal/platform/localllm"
	"smartrecipe/internal/platform/logger"
	"smartrecipe/internal/platform/objectstore"
	"smartrecipe/internal/platform/postgres"
	"smartrecipe/internal/platform/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. SMARTRECIPE_SERVER_PORT.
const EnvPrefix = "SMARTRECIPE"

// Config holds the application configuration
type Config struct {
	Server    ServerConfig       `mapstructure:"server"`
	Database  postgres.Config    `mapstructure:"database"`
	LLM       LLMConfig          `mapstructure:"llm"`
	Storage   objectstore.Config `mapstructure:"storage"`
	Imaging   ImagingConfig      `mapstructure:"imaging"`
	Auth      auth.Config        `mapstructure:"auth"`
	CORS      CORSConfig         `mapstructure:"cors"`
	Logging   logger.Config      `mapstructure:"logging"`
	Telemetry telemetry.Config   `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider string          `mapstructure:"provider"`
	Gemini   GeminiConfig    `mapstructure:"gemini"`
	Local    localllm.Config `mapstructure:"local"`
	Retry    llm.RetryPolicy `mapstructure:"retry"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// ImagingConfig holds flyer preprocessing settings.
type ImagingConfig struct {
	MaxWidth  uint `mapstructure:"max_width"`
	MaxHeight uint `mapstructure:"max_height"`
	Quality   int  `mapstructure:"quality"`
	Sharpen   bool `mapstructure:"sharpen"`
}

// CORSConfig holds cross-origin settings for the browser client.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
)

// Load reads configuration. path may name a config file explicitly; otherwise
// config.{json,yaml} is looked up in the working directory and ./config.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the API server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url (DATABASE_URL) is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret (JWT_SECRET) is required"))
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required"))
	}
	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.Gemini.APIKey == "" {
			errs = append(errs, errors.New("llm.gemini.api_key (GEMINI_API_KEY) is required"))
		}
	case ProviderLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}
	return errors.Join(errs...)
}

// bindEnvVars binds the conventional unprefixed names alongside the prefixed ones.
func bindEnvVars(v *viper.Viper) {
	bind := func(key string, names ...string) {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, prefixed}, names...)...)
	}

	bind("database.url", "DATABASE_URL")
	bind("server.port", "PORT")
	bind("logging.level", "LOG_LEVEL")
	bind("auth.jwt_secret", "JWT_SECRET")
	bind("llm.gemini.api_key", "GEMINI_API_KEY")
	bind("storage.endpoint", "S3_ENDPOINT")
	bind("storage.region", "S3_REGION", "AWS_REGION")
	bind("storage.access_key", "S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	bind("storage.secret_key", "S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	bind("storage.bucket", "S3_BUCKET")
	bind("storage.public_base_url", "S3_PUBLIC_BASE_URL")
	bind("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	bind("cors.allowed_origins", "CORS_ORIGIN")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.request_timeout", time.Duration(0))
	v.SetDefault("server.max_upload_bytes", 10<<20)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", "gemini-2.0-flash")
	v.SetDefault("llm.local.url", localllm.DefaultURL)
	v.SetDefault("llm.local.model", localllm.DefaultModel)
	v.SetDefault("llm.local.temperature", 0.2)
	v.SetDefault("llm.local.max_tokens", 4096)
	v.SetDefault("llm.local.timeout", 2*time.Minute)
	v.SetDefault("llm.retry.max_attempts", 1)
	v.SetDefault("llm.retry.initial_delay", time.Second)
	v.SetDefault("llm.retry.max_delay", 10*time.Second)
	v.SetDefault("llm.retry.multiplier", 2.0)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "sale-images")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.use_path_style", false)

	v.SetDefault("imaging.max_width", 1600)
	v.SetDefault("imaging.max_height", 2000)
	v.SetDefault("imaging.quality", 98)
	v.SetDefault("imaging.sharpen", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", telemetry.DefaultServiceName)
	v.SetDefault("telemetry.service_version", "dev")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}
