package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/shelf-cli/internal/audit"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Snapshot  SnapshotConfig  `yaml:"snapshot" mapstructure:"snapshot"`
	Download  DownloadConfig  `yaml:"download" mapstructure:"download"`
	Audit     audit.Config    `yaml:"audit" mapstructure:"audit"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	RunLock   RunLockConfig   `yaml:"run_lock" mapstructure:"run_lock"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// StoreConfig configures the database backend.
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

// SnapshotConfig locates the downloaded pages and the store they belong to.
type SnapshotConfig struct {
	HTMLsDir  string `yaml:"htmls_dir" mapstructure:"htmls_dir"`
	StoreName string `yaml:"store_name" mapstructure:"store_name"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	StartURL  string `yaml:"start_url" mapstructure:"start_url"`
}

// DownloadConfig configures the page downloader.
type DownloadConfig struct {
	SleepTime     int    `yaml:"sleep_time" mapstructure:"sleep_time"` // seconds between requests
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RespectRobots bool   `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// Delay returns the pause between two requests.
func (d DownloadConfig) Delay() time.Duration {
	return time.Duration(d.SleepTime) * time.Second
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExtractConfig configures the extraction dispatcher.
type ExtractConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// RunLockConfig configures the lock that keeps pipeline runs from overlapping.
type RunLockConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// TTL returns the lock lifetime.
func (r RunLockConfig) TTL() time.Duration {
	return time.Duration(r.TTLMinutes) * time.Minute
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SHELF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "shelf.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("snapshot.htmls_dir", "htmls")
	v.SetDefault("snapshot.store_name", "Kocie Figle")
	v.SetDefault("snapshot.base_url", "https://kociefigle.pl/")
	v.SetDefault("snapshot.start_url", "https://kociefigle.pl/Karmy-Mokre")
	v.SetDefault("download.sleep_time", 2)
	v.SetDefault("download.user_agent", "shelf-cli/1.0")
	v.SetDefault("download.concurrency", 1)
	v.SetDefault("download.timeout_secs", 30)
	v.SetDefault("download.respect_robots", true)
	v.SetDefault("audit.reference_store", "Kocie Figle")
	v.SetDefault("audit.excluded_marker", "x")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("run_lock.ttl_minutes", 120)
	v.SetDefault("server.port", 8080)

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

// Validate checks the settings a command needs. Every problem is reported at
// once.
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	storeChecks := func() {
		require(c.Store.Driver == "sqlite" || c.Store.Driver == "postgres",
			"store.driver must be sqlite or postgres")
		require(c.Store.DatabaseURL != "", "store.database_url is required")
	}

	switch mode {
	case "download":
		require(c.Snapshot.HTMLsDir != "", "snapshot.htmls_dir is required")
		require(c.Snapshot.StartURL != "", "snapshot.start_url is required")
		require(c.Download.SleepTime >= 0, "download.sleep_time must be >= 0")
		require(c.Download.Concurrency >= 1 && c.Download.Concurrency <= 16,
			"download.concurrency must be between 1 and 16")
	case "ingest":
		storeChecks()
		require(c.Snapshot.StoreName != "", "snapshot.store_name is required")
	case "audit", "history", "export":
		storeChecks()
	case "extract":
		storeChecks()
		require(c.Anthropic.Key != "", "anthropic.key is required")
		require(c.Extract.MaxAttempts >= 1, "extract.max_attempts must be >= 1")
	case "run":
		if err := c.Validate("download"); err != nil {
			problems = append(problems, err.Error())
		}
		if err := c.Validate("extract"); err != nil {
			problems = append(problems, err.Error())
		}
		require(c.RunLock.TTLMinutes > 0, "run_lock.ttl_minutes must be > 0")
	case "serve":
		storeChecks()
		require(c.Server.Port > 0, "server.port must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
