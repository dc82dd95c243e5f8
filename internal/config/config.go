package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Resolve   ResolveConfig   `yaml:"resolve" mapstructure:"resolve"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Suppliers SuppliersConfig `yaml:"suppliers" mapstructure:"suppliers"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
}

// StoreConfig configures the index backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP resolve endpoint.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// VerifyConfig configures candidate page fetching.
type VerifyConfig struct {
	TimeoutSecs          int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent            string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes         int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RatePerHost          float64 `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	GuardPrivateNetworks bool    `yaml:"guard_private_networks" mapstructure:"guard_private_networks"`
}

// Timeout returns the per-candidate fetch timeout.
func (v VerifyConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSecs) * time.Second
}

// ResolveConfig configures a single resolution.
type ResolveConfig struct {
	BudgetSecs        int `yaml:"budget_secs" mapstructure:"budget_secs"`
	VerifyConcurrency int `yaml:"verify_concurrency" mapstructure:"verify_concurrency"`
	MaxCandidates     int `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// Budget returns the outer time budget for one resolution.
func (r ResolveConfig) Budget() time.Duration {
	return time.Duration(r.BudgetSecs) * time.Second
}

// IndexConfig configures the verified-URL index.
type IndexConfig struct {
	// MaxAgeHours of 0 means entries never expire.
	MaxAgeHours int `yaml:"max_age_hours" mapstructure:"max_age_hours"`
}

// MaxAge returns the freshness window, or 0 for no limit.
func (i IndexConfig) MaxAge() time.Duration {
	return time.Duration(i.MaxAgeHours) * time.Hour
}

// SuppliersConfig points at the supplier table.
type SuppliersConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// JinaConfig holds Jina search settings for the web-search strategy.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// BatchConfig configures batch resolution.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SKUMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "skumatch.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("verify.timeout_secs", 10)
	v.SetDefault("verify.user_agent", "Mozilla/5.0 (compatible; skumatch/1.0)")
	v.SetDefault("verify.max_body_bytes", 2<<20)
	v.SetDefault("verify.rate_per_host", 2.0)
	v.SetDefault("verify.guard_private_networks", true)
	v.SetDefault("resolve.budget_secs", 90)
	v.SetDefault("resolve.verify_concurrency", 1)
	v.SetDefault("resolve.max_candidates", 10)
	v.SetDefault("index.max_age_hours", 0)
	v.SetDefault("suppliers.path", "suppliers.yaml")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("batch.concurrency", 4)

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

// Validate checks the settings a command mode depends on. Modes: resolve,
// batch, serve, migrate, import.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q must be memory, sqlite or postgres", c.Store.Driver))
	}

	switch mode {
	case "migrate", "import":
	case "resolve", "batch", "serve":
		if c.Resolve.VerifyConcurrency < 1 || c.Resolve.VerifyConcurrency > 16 {
			problems = append(problems, "resolve.verify_concurrency must be between 1 and 16")
		}
		if c.Resolve.MaxCandidates < 1 {
			problems = append(problems, "resolve.max_candidates must be > 0")
		}
		if c.Resolve.BudgetSecs < 1 {
			problems = append(problems, "resolve.budget_secs must be > 0")
		}
		if c.Verify.TimeoutSecs < 1 {
			problems = append(problems, "verify.timeout_secs must be > 0")
		}
		if c.Index.MaxAgeHours < 0 {
			problems = append(problems, "index.max_age_hours must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "batch" && (c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50) {
		problems = append(problems, "batch.concurrency must be between 1 and 50")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
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
