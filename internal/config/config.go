// Package config loads service configuration from defaults, an optional config file
// and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonathan/market-research/internal/llm"
)

// Store and artifact drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	ArtifactsLocal = "local"
	ArtifactsS3    = "s3"
)

// Config is the full service configuration. Every key can be set from the
// environment by upper-casing it and replacing dots with underscores, e.g.
// database.url is DATABASE_URL.
type Config struct {
	Log       LogConfig        `mapstructure:"log"`
	Server    ServerConfig     `mapstructure:"server"`
	Store     StoreConfig      `mapstructure:"store"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Mongo     MongoConfig      `mapstructure:"mongo"`
	Redis     RedisConfig      `mapstructure:"redis"`
	LLM       LLMConfig        `mapstructure:"llm"`
	Pipeline  PipelineConfig   `mapstructure:"pipeline"`
	Sweeper   SweeperConfig    `mapstructure:"sweeper"`
	Artifacts ArtifactsConfig  `mapstructure:"artifacts"`
	S3        S3Config         `mapstructure:"s3"`
	RateLimit RateLimitConfig  `mapstructure:"ratelimit"`
	JWT       JWTSettings      `mapstructure:"jwt"`
	Password  PasswordSettings `mapstructure:"password"`
}

// LogConfig selects the logger flavor: prod or development.
type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the request store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig contains the PostgreSQL connection URL.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// MongoConfig contains the MongoDB connection settings.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// RedisConfig enables the distributed run lock when Addr is set.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

// LLMConfig selects the generation provider. An empty APIKey runs every stage on
// fallback data.
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PipelineConfig sizes the worker pool.
type PipelineConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// SweeperConfig controls recovery of stuck requests.
type SweeperConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Schedule   string        `mapstructure:"schedule"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// ArtifactsConfig selects where rendered reports are kept.
type ArtifactsConfig struct {
	Driver  string `mapstructure:"driver"`
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
}

// S3Config contains the bucket settings used when artifacts.driver is s3.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// RateLimitConfig limits API requests per client.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Requests  int           `mapstructure:"requests"`
	Window    time.Duration `mapstructure:"window"`
	Whitelist string        `mapstructure:"whitelist"`
	Blacklist string        `mapstructure:"blacklist"`
}

// JWTSettings are the raw token settings; see JWTConfig.
type JWTSettings struct {
	Secret          string `mapstructure:"secret"`
	ExpirationHours int    `mapstructure:"expiration_hours"`
}

// PasswordSettings are the raw hashing settings; see PasswordConfig.
type PasswordSettings struct {
	BcryptCost int    `mapstructure:"bcrypt_cost"`
	Pepper     string `mapstructure:"pepper"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.mode", "development")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("store.driver", StorePostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "market_research")
	v.SetDefault("redis.addr", "")
	v.SetDefault("llm.provider", string(llm.ProviderGemini))
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 64)
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "@every 5m")
	v.SetDefault("sweeper.stale_after", 30*time.Minute)
	v.SetDefault("artifacts.driver", ArtifactsLocal)
	v.SetDefault("artifacts.dir", "uploads/pdfs")
	v.SetDefault("artifacts.base_url", "/api/downloads")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests", 100)
	v.SetDefault("ratelimit.window", 15*time.Minute)
	v.SetDefault("ratelimit.whitelist", "")
	v.SetDefault("ratelimit.blacklist", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("password.bcrypt_cost", 12)
	v.SetDefault("password.pepper", "")
}

// Load reads configuration. path is an optional config file (any format viper
// understands); environment variables override it.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with explicit values, keyed like "store.driver", that
// take precedence over every other source. Commands use it to map their flags.
func LoadWithOverrides(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// provider-specific key names used by existing deployments
	if err := v.BindEnv("llm.api_key", "LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind llm.api_key: %w", err)
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enums, ranges and the settings each selected driver requires.
// JWT settings are checked by JWTConfig since only the server needs them.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("config error: database.url is required for the postgres store")
		}
	case StoreMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return fmt.Errorf("config error: mongo.uri and mongo.database are required for the mongo store")
		}
	default:
		return fmt.Errorf("config error: unknown store.driver %q", c.Store.Driver)
	}

	if _, err := llm.ParseProvider(c.LLM.Provider); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("config error: llm.timeout must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: server.port out of range: %d", c.Server.Port)
	}
	if c.Pipeline.Workers < 1 || c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("config error: pipeline.workers and pipeline.queue_size must be at least 1")
	}
	if c.Sweeper.Enabled && (c.Sweeper.Schedule == "" || c.Sweeper.StaleAfter <= 0) {
		return fmt.Errorf("config error: sweeper.schedule and a positive sweeper.stale_after are required")
	}

	switch c.Artifacts.Driver {
	case ArtifactsLocal:
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("config error: artifacts.dir is required for local artifacts")
		}
	case ArtifactsS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("config error: s3.bucket is required for s3 artifacts")
		}
	default:
		return fmt.Errorf("config error: unknown artifacts.driver %q", c.Artifacts.Driver)
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("config error: ratelimit.requests and ratelimit.window must be positive")
	}
	return nil
}

// JWTConfig returns the validated token settings.
func (c *Config) JWTConfig() (*JWTConfig, error) {
	return NewJWTConfig(c.JWT.Secret, c.JWT.ExpirationHours)
}

// PasswordConfig returns the validated hashing settings.
func (c *Config) PasswordConfig() (*PasswordConfig, error) {
	return NewPasswordConfig(c.Password.BcryptCost, c.Password.Pepper)
}

// LLMClientConfig returns the provider defaults with the configured model pinned
// to every tier.
func (c *Config) LLMClientConfig() (*llm.Config, error) {
	provider, err := llm.ParseProvider(c.LLM.Provider)
	if err != nil {
		return nil, err
	}
	out := llm.DefaultConfigFor(provider)
	if c.LLM.Model != "" {
		out = out.WithAllModels(c.LLM.Model)
	}
	return out, nil
}
