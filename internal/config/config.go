package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/poolstation-bridge/internal/poolstation"
)

type Config struct {
	ConfigFile string
	DBPath     string
	LogLevel   zerolog.Level

	EntryID string `json:"entry_id"`

	PoolstationURL     string `json:"poolstation_url"`
	HTTPTimeoutSeconds int    `json:"http_timeout_seconds"`

	UpdateIntervalSeconds        int  `json:"update_interval_seconds"`
	MaxAuthRetries               *int `json:"max_auth_retries"`
	ManualRefreshCooldownSeconds *int `json:"manual_refresh_cooldown_seconds"`
	SetupMaxElapsedSeconds       int  `json:"setup_max_elapsed_seconds"`

	APIPort int    `json:"api_port"`
	LogFile string `json:"log_file"`

	NtfyTopic string `json:"ntfy_topic"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`
}

func Load() Config {
	var configFile, dbPath, logLevel string

	flag.StringVar(&configFile, "config-file", "config.json", "Path to bridge config file")
	flag.StringVar(&dbPath, "db", "data/poolstation.db", "Path to sqlite database")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := LoadFile(configFile)
	if err != nil {
		panic(err.Error())
	}
	cfg.DBPath = dbPath
	cfg.LogLevel = parseLogLevel(logLevel)

	cfg.validate()
	return cfg
}

// LoadFile reads the JSON config at path and fills in defaults.
func LoadFile(path string) (Config, error) {
	var cfg Config
	cfg.ConfigFile = path

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.PoolstationURL == "" {
		cfg.PoolstationURL = poolstation.DefaultBaseURL
	}
	if cfg.HTTPTimeoutSeconds == 0 {
		cfg.HTTPTimeoutSeconds = 30
	}
	if cfg.UpdateIntervalSeconds == 0 {
		cfg.UpdateIntervalSeconds = 60
	}
	if cfg.MaxAuthRetries == nil {
		n := 10
		cfg.MaxAuthRetries = &n
	}
	if cfg.ManualRefreshCooldownSeconds == nil {
		n := 10
		cfg.ManualRefreshCooldownSeconds = &n
	}
	if cfg.SetupMaxElapsedSeconds == 0 {
		cfg.SetupMaxElapsedSeconds = 300
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}
	if cfg.EnableDatadog && cfg.DDAgentAddr == "" {
		cfg.DDAgentAddr = "127.0.0.1:8125"
	}
}

func (cfg Config) HTTPTimeout() time.Duration {
	return time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
}

func (cfg Config) UpdateInterval() time.Duration {
	return time.Duration(cfg.UpdateIntervalSeconds) * time.Second
}

func (cfg Config) RefreshCooldown() time.Duration {
	return time.Duration(*cfg.ManualRefreshCooldownSeconds) * time.Second
}

func (cfg Config) SetupMaxElapsed() time.Duration {
	return time.Duration(cfg.SetupMaxElapsedSeconds) * time.Second
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.EntryID == "" {
		problems = append(problems, "entry_id is required (create one with the debug tool)")
	}
	if u, err := url.Parse(cfg.PoolstationURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("poolstation_url %q is not an absolute URL", cfg.PoolstationURL))
	}
	if cfg.HTTPTimeoutSeconds < 0 {
		problems = append(problems, "http_timeout_seconds must not be negative")
	}
	if cfg.UpdateIntervalSeconds < 0 {
		problems = append(problems, "update_interval_seconds must not be negative")
	}
	if *cfg.MaxAuthRetries < 0 {
		problems = append(problems, "max_auth_retries must not be negative")
	}
	if *cfg.ManualRefreshCooldownSeconds < 0 {
		problems = append(problems, "manual_refresh_cooldown_seconds must not be negative")
	}
	if cfg.APIPort < 1 || cfg.APIPort > 65535 {
		problems = append(problems, fmt.Sprintf("api_port %d out of range", cfg.APIPort))
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}
