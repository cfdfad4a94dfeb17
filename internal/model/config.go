package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultSyncLimit is the number of messages scanned in the recent phase
// when no limit is configured.
const DefaultSyncLimit = 500

// IMAPConfig holds the mailbox connection settings.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password may be left empty, in which case it is read from the
	// system keyring.
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// TLS selects implicit TLS; when false STARTTLS is used.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// BodyFetchRate caps message body downloads per second. Zero means
	// unlimited.
	BodyFetchRate float64 `mapstructure:"body_fetch_rate" yaml:"body_fetch_rate"`
}

// SyncConfig controls the two sync phases.
type SyncConfig struct {
	// Limit is the maximum number of envelopes scanned in the recent phase.
	// Zero removes the bound.
	Limit int `mapstructure:"limit" yaml:"limit"`

	// BatchSize is the number of envelopes processed between checkpoints.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// BacklogLimit is the maximum number of envelopes scanned in the
	// backlog phase of a single run.
	BacklogLimit int `mapstructure:"backlog_limit" yaml:"backlog_limit"`

	// Sender is the domain notification mail is sent from.
	Sender string `mapstructure:"sender" yaml:"sender"`
}

// DatabaseConfig holds the SQLite location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// configDir returns ~/.config/bcfeed, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "bcfeed")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/bcfeed/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultDatabasePath returns ~/.config/bcfeed/bcfeed.db.
func DefaultDatabasePath() string {
	return filepath.Join(configDir(), "bcfeed.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		IMAP: IMAPConfig{
			Host: "imap.gmail.com",
			Port: "993",
			TLS:  true,
		},
		Sync: SyncConfig{
			Limit:        DefaultSyncLimit,
			BatchSize:    50,
			BacklogLimit: DefaultSyncLimit,
			Sender:       "bandcamp.com",
		},
		Database: DatabaseConfig{Path: DefaultDatabasePath()},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info"},
	}
}

// newViper builds a Viper instance with defaults and environment
// bindings applied.
func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	def := defaultAppConfig()
	v.SetDefault("imap.host", def.IMAP.Host)
	v.SetDefault("imap.port", def.IMAP.Port)
	v.SetDefault("imap.tls", def.IMAP.TLS)
	v.SetDefault("imap.body_fetch_rate", 0)
	v.SetDefault("sync.limit", def.Sync.Limit)
	v.SetDefault("sync.batch_size", def.Sync.BatchSize)
	v.SetDefault("sync.sender", def.Sync.Sender)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("log.level", def.Log.Level)

	v.SetEnvPrefix("BCFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by earlier deployments.
	_ = v.BindEnv("imap.username", "BCFEED_IMAP_USERNAME", "EMAIL_USER")
	_ = v.BindEnv("imap.password", "BCFEED_IMAP_PASSWORD", "EMAIL_PASSWORD")
	_ = v.BindEnv("imap.host", "BCFEED_IMAP_HOST", "EMAIL_HOST")
	_ = v.BindEnv("sync.limit", "BCFEED_SYNC_LIMIT", "EMAIL_SYNC_LIMIT")
	_ = v.BindEnv("sync.backlog_limit")

	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file is not an error; defaults and environment variables
// still apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// An unset backlog limit follows the recent-phase limit.
	if !v.IsSet("sync.backlog_limit") {
		cfg.Sync.BacklogLimit = cfg.Sync.Limit
	}
	if cfg.Sync.BatchSize < 1 {
		cfg.Sync.BatchSize = 50
	}
	if cfg.Sync.Limit < 0 {
		cfg.Sync.Limit = DefaultSyncLimit
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. The password is never written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	imapCfg := cfg.IMAP
	imapCfg.Password = ""

	v.Set("imap", imapCfg)
	v.Set("sync", cfg.Sync)
	v.Set("database", cfg.Database)
	v.Set("server", cfg.Server)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
