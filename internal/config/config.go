package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the event store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// IngestConfig configures discovery, archival, and parsing of export files.
type IngestConfig struct {
	IncomingDir string        `yaml:"incoming_dir" mapstructure:"incoming_dir"`
	ArchiveDir  string        `yaml:"archive_dir" mapstructure:"archive_dir"`
	Pattern     string        `yaml:"pattern" mapstructure:"pattern"`
	SniffBytes  int           `yaml:"sniff_bytes" mapstructure:"sniff_bytes"`
	Interval    time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ServerConfig configures the query API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("ACLED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The required settings also answer to their unprefixed names.
	for key, legacy := range map[string]string{
		"store.database_url":  "DATABASE_URL",
		"ingest.incoming_dir": "INCOMING_DIR",
		"ingest.archive_dir":  "ARCHIVED_DIR",
	} {
		prefixed := "ACLED_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("ingest.pattern", "*acled*.csv")
	v.SetDefault("ingest.sniff_bytes", 8192)
	v.SetDefault("ingest.interval", "15m")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.cors_origins", []string{"*"})
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

// Validate checks the settings ingestion cannot start without: the store
// connection target and the incoming and archive directories.
func (c *Config) Validate() error {
	var missing []string
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url (DATABASE_URL)")
	}
	if c.Ingest.IncomingDir == "" {
		missing = append(missing, "ingest.incoming_dir (INCOMING_DIR)")
	}
	if c.Ingest.ArchiveDir == "" {
		missing = append(missing, "ingest.archive_dir (ARCHIVED_DIR)")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return c.ValidateStore()
}

// ValidateStore checks only the store settings, for commands that never
// touch the ingest directories.
func (c *Config) ValidateStore() error {
	if c.Store.DatabaseURL == "" {
		return eris.New("config: missing required setting: store.database_url (DATABASE_URL)")
	}
	switch c.Store.Driver {
	case "postgres", "sqlite":
		return nil
	default:
		return eris.Errorf("config: unknown store driver %q (want postgres or sqlite)", c.Store.Driver)
	}
}

// ValidateServe checks the store settings plus the API listener settings.
func (c *Config) ValidateServe() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit <= 0 {
		return eris.Errorf("config: server.rate_limit must be positive, got %v", c.Server.RateLimit)
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
