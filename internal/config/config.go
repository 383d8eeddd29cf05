// ABOUTME: Configuration loading and parsing for coven-fleet
// ABOUTME: Supports YAML and TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "COVEN_FLEET_CONFIG"

// Built-in defaults, also offered by the startup prompts.
const (
	DefaultHost           = "localhost"
	DefaultPort           = 25565
	DefaultVersion        = "1.21"
	DefaultCount          = 5
	DefaultSpawnDelay     = 2 * time.Second
	DefaultDrainTimeout   = 10 * time.Second
	DefaultUsernamePrefix = "TestBot_"
	DefaultBridgeURL      = "ws://localhost:8765"
	DefaultRequestTimeout = 10 * time.Second
	DefaultChatRate       = 2.0
	DefaultChatBurst      = 3
)

// Config represents the complete coven-fleet configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Fleet   FleetConfig   `yaml:"fleet" toml:"fleet"`
	Bridge  BridgeConfig  `yaml:"bridge" toml:"bridge"`
	Journal JournalConfig `yaml:"journal" toml:"journal"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig identifies the game server the fleet joins
type ServerConfig struct {
	Host    string `yaml:"host" toml:"host"`
	Port    int    `yaml:"port" toml:"port"`
	Version string `yaml:"version" toml:"version"`
}

// FleetConfig controls how agents are spawned and shut down
type FleetConfig struct {
	Count          int    `yaml:"count" toml:"count"`
	UsernamePrefix string `yaml:"username_prefix" toml:"username_prefix"`
	// AuthCommands are chat lines sent after spawn; {name} is the username.
	// Leave unset for the defaults, or set to an empty list to send none.
	AuthCommands []string `yaml:"auth_commands,omitempty" toml:"auth_commands,omitempty"`

	SpawnDelay   time.Duration `yaml:"-" toml:"-"`
	DrainTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	SpawnDelayRaw   string `yaml:"spawn_delay" toml:"spawn_delay"`
	DrainTimeoutRaw string `yaml:"drain_timeout" toml:"drain_timeout"`
}

// BridgeConfig configures the websocket session bridge
type BridgeConfig struct {
	URL       string  `yaml:"url" toml:"url"`
	Secret    string  `yaml:"secret,omitempty" toml:"secret,omitempty"`
	ChatRate  float64 `yaml:"chat_rate" toml:"chat_rate"`
	ChatBurst int     `yaml:"chat_burst" toml:"chat_burst"`

	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// JournalConfig holds the event journal location; an empty path disables it
type JournalConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"` // stderr, stdout or a file path
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    DefaultHost,
			Port:    DefaultPort,
			Version: DefaultVersion,
		},
		Fleet: FleetConfig{
			Count:          DefaultCount,
			UsernamePrefix: DefaultUsernamePrefix,
			SpawnDelay:     DefaultSpawnDelay,
			DrainTimeout:   DefaultDrainTimeout,
		},
		Bridge: BridgeConfig{
			URL:            DefaultBridgeURL,
			ChatRate:       DefaultChatRate,
			ChatBurst:      DefaultChatBurst,
			RequestTimeout: DefaultRequestTimeout,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Path returns the config file to use and whether it was chosen explicitly.
// Priority: flag value > COVEN_FLEET_CONFIG > XDG_CONFIG_HOME/coven/fleet.yaml > ~/.config/coven/fleet.yaml
func Path(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath, true
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "fleet.yaml", false
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "fleet.yaml"), false
}

// Load reads a configuration file on top of the defaults. Files ending in
// .toml are parsed as TOML, anything else as YAML. Environment variables in
// the format ${VAR_NAME} are expanded and duration strings are parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does
// not exist. The boolean reports whether a file was read.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Version == "" {
		return fmt.Errorf("server.version is required")
	}

	if c.Fleet.Count < 0 {
		return fmt.Errorf("fleet.count must not be negative")
	}
	if c.Fleet.SpawnDelay < 0 {
		return fmt.Errorf("fleet.spawn_delay must not be negative")
	}
	if c.Fleet.DrainTimeout <= 0 {
		return fmt.Errorf("fleet.drain_timeout must be positive")
	}

	if c.Bridge.URL == "" {
		return fmt.Errorf("bridge.url is required")
	}
	u, err := url.Parse(c.Bridge.URL)
	if err != nil {
		return fmt.Errorf("bridge.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("bridge.url must use ws or wss scheme")
	}
	if c.Bridge.ChatRate < 0 || c.Bridge.ChatBurst < 0 {
		return fmt.Errorf("bridge.chat_rate and bridge.chat_burst must not be negative")
	}
	if c.Bridge.RequestTimeout < 0 {
		return fmt.Errorf("bridge.request_timeout must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// YAML renders the configuration as a YAML document, durations included.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	out.Fleet.SpawnDelayRaw = c.Fleet.SpawnDelay.String()
	out.Fleet.DrainTimeoutRaw = c.Fleet.DrainTimeout.String()
	out.Bridge.RequestTimeoutRaw = c.Bridge.RequestTimeout.String()

	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"fleet.spawn_delay", cfg.Fleet.SpawnDelayRaw, &cfg.Fleet.SpawnDelay},
		{"fleet.drain_timeout", cfg.Fleet.DrainTimeoutRaw, &cfg.Fleet.DrainTimeout},
		{"bridge.request_timeout", cfg.Bridge.RequestTimeoutRaw, &cfg.Bridge.RequestTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
