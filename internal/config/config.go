package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// homeDirName is the per-user directory holding jobs, the default database
// and an optional config.yaml.
const homeDirName = ".karla"

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the job store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// HomeDir returns ~/.karla, falling back to a relative .karla when the
// user home directory cannot be determined.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return homeDirName
	}
	return filepath.Join(home, homeDirName)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()
	home := HomeDir()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)

	// Environment
	v.SetEnvPrefix("KARLA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "yaml")
	v.SetDefault("store.dir", filepath.Join(home, "jobs"))
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")

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

// Validate checks the configuration needed by the given mode ("cli" or "serve").
// All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "yaml":
		if c.Store.Dir == "" {
			errs = append(errs, "store.dir is required for the yaml driver")
		}
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver (KARLA_STORE_DATABASE_URL)")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (yaml, sqlite, postgres)", c.Store.Driver))
	}

	switch mode {
	case "cli":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimit <= 0 {
			errs = append(errs, "server.rate_limit must be > 0")
		}
		if c.Server.RateBurst < 1 {
			errs = append(errs, "server.rate_burst must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SQLitePath returns the configured SQLite database path or the default
// ~/.karla/karla.db.
func (c *Config) SQLitePath() string {
	if c.Store.DatabaseURL != "" {
		return c.Store.DatabaseURL
	}
	return filepath.Join(HomeDir(), "karla.db")
}

// InitLogger initializes the global zap logger. When w is non-nil log
// entries go to w instead of the configured output paths.
func InitLogger(cfg LogConfig, w io.Writer) error {
	zapCfg, err := loggerConfig(cfg)
	if err != nil {
		return err
	}

	var logger *zap.Logger
	if w == nil {
		logger, err = zapCfg.Build()
		if err != nil {
			return eris.Wrap(err, "config: build logger")
		}
	} else {
		enc := zapcore.NewJSONEncoder(zapCfg.EncoderConfig)
		if zapCfg.Encoding == "console" {
			enc = zapcore.NewConsoleEncoder(zapCfg.EncoderConfig)
		}
		logger = zap.New(zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zapCfg.Level), zap.AddCaller())
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// loggerConfig maps LogConfig onto a zap config. The console format keeps
// warnings to one line.
func loggerConfig(cfg LogConfig) (zap.Config, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.DisableStacktrace = true
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)
	return zapCfg, nil
}
