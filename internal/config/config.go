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
	Store      StoreConfig    `yaml:"store" mapstructure:"store"`
	Redis      RedisConfig    `yaml:"redis" mapstructure:"redis"`
	ERP        ERPConfig      `yaml:"erp" mapstructure:"erp"`
	Anomaly    AnomalyConfig  `yaml:"anomaly" mapstructure:"anomaly"`
	Validation ValidateConfig `yaml:"validate" mapstructure:"validate"`
	Batch      BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig   `yaml:"server" mapstructure:"server"`
	Log        LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the outcome database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RedisConfig configures the vendor history backend. An empty URL
// falls back to the in-memory store.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// ERPConfig configures the accounts-payable posting client.
type ERPConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DryRun      bool   `yaml:"dry_run" mapstructure:"dry_run"`
}

// AnomalyConfig configures vendor amount scoring.
type AnomalyConfig struct {
	Window     int     `yaml:"window" mapstructure:"window"`
	MinSamples int     `yaml:"min_samples" mapstructure:"min_samples"`
	RejectOver float64 `yaml:"reject_over" mapstructure:"reject_over"`
}

// ValidateConfig configures invoice validation.
type ValidateConfig struct {
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
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
	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "invoice-agent.db")
	v.SetDefault("erp.base_url", "http://localhost:9090")
	v.SetDefault("erp.timeout_secs", 15)
	v.SetDefault("erp.dry_run", false)
	v.SetDefault("anomaly.window", 50)
	v.SetDefault("anomaly.min_samples", 5)
	v.SetDefault("anomaly.reject_over", 0.0)
	v.SetDefault("validate.tolerance", 0.01)
	v.SetDefault("batch.workers", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the configuration is usable for the given mode.
// Modes correspond to CLI commands: "ingest", "batch", "outcomes",
// "history", "serve".
func (c *Config) Validate(mode string) error {
	var missing []string

	checkCommon := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			missing = append(missing, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
		if c.Anomaly.Window < 0 {
			missing = append(missing, "anomaly.window must be >= 0")
		}
		if c.Anomaly.MinSamples < 0 {
			missing = append(missing, "anomaly.min_samples must be >= 0")
		}
		if c.Anomaly.RejectOver < 0 {
			missing = append(missing, "anomaly.reject_over must be >= 0")
		}
		if c.Validation.Tolerance < 0 {
			missing = append(missing, "validate.tolerance must be >= 0")
		}
		if !c.ERP.DryRun && c.ERP.BaseURL == "" {
			missing = append(missing, "erp.base_url is required unless erp.dry_run is set")
		}
	}

	switch mode {
	case "ingest", "outcomes", "history":
		checkCommon()
	case "batch":
		checkCommon()
		if c.Batch.Workers < 1 || c.Batch.Workers > 32 {
			missing = append(missing, "batch.workers must be between 1 and 32")
		}
	case "serve":
		checkCommon()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: invalid for %s mode:\n  %s", mode, strings.Join(missing, "\n  "))
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
