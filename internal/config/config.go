// Package config handles EM&V assistant configuration loading.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/emvassist/config.yaml, /etc/emvassist/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "emvassist", "config.yaml"))
	}

	paths = append(paths, "/etc/emvassist/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all assistant configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	AI        AIConfig        `yaml:"ai"`
	Storage   StorageConfig   `yaml:"storage"`
	Page      PageConfig      `yaml:"page"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	API       APIConfig       `yaml:"api"`
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error"`
	LogFormat string          `yaml:"log_format" validate:"omitempty,oneof=text json"`
	LogFile   string          `yaml:"log_file"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port" validate:"min=1,max=65535"`
}

// Addr returns the host:port the server binds to. An empty Address
// binds all interfaces.
func (l ListenConfig) Addr() string {
	return net.JoinHostPort(l.Address, strconv.Itoa(l.Port))
}

// AIConfig points at the remote AI backend.
type AIConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	// PollInterval re-probes /health in the background. Zero means the
	// capability is only re-checked when a question fails.
	PollInterval time.Duration `yaml:"poll_interval" validate:"min=0"`
}

// StorageConfig locates the local key/value store that holds history
// and preferences.
type StorageConfig struct {
	Path   string `yaml:"path" validate:"required"`
	Driver string `yaml:"driver" validate:"oneof=sqlite3 sqlite"`
}

// PageConfig selects where project fields and analysis results are read
// from. HTMLFile is watched with fsnotify; URL is opened in a browser
// and polled every WatchInterval. At most one may be set.
type PageConfig struct {
	HTMLFile      string        `yaml:"html_file" validate:"excluded_with=URL"`
	URL           string        `yaml:"url" validate:"omitempty,url"`
	BrowserURL    string        `yaml:"browser_url"` // DevTools control URL; empty launches a local browser
	WatchInterval time.Duration `yaml:"watch_interval" validate:"min=0"`
}

// KnowledgeConfig extends the built-in knowledge base.
type KnowledgeConfig struct {
	OverlayFile string `yaml:"overlay_file"`
}

// APIConfig tunes the inbound HTTP API.
type APIConfig struct {
	RateLimit  float64       `yaml:"rate_limit" validate:"min=0"` // asks per second; 0 disables limiting
	Burst      int           `yaml:"burst" validate:"min=0"`
	SessionTTL time.Duration `yaml:"session_ttl" validate:"min=0"`
}

// Load reads configuration from a YAML file. A .env file next to the
// config is loaded into the environment first so ${VAR} references can
// come from it; variables already set are not overridden.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8090
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "http://localhost:8000"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "emvassist.db"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite3"
	}
	if c.Page.WatchInterval == 0 {
		c.Page.WatchInterval = 5 * time.Second
	}
	if c.API.SessionTTL == 0 {
		c.API.SessionTTL = 30 * time.Minute
	}
	if c.API.RateLimit > 0 && c.API.Burst == 0 {
		c.API.Burst = 1
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. The error lists every offending
// field by its YAML path.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", yamlPath(fe.StructNamespace()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// yamlPath turns "Config.AI.BaseURL" into "ai.base_url".
func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 && parts[0] == "Config" {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = fieldYAMLNames[p]
		if parts[i] == "" {
			parts[i] = strings.ToLower(p)
		}
	}
	return strings.Join(parts, ".")
}

var fieldYAMLNames = map[string]string{
	"Listen": "listen", "Port": "port",
	"AI": "ai", "BaseURL": "base_url", "PollInterval": "poll_interval",
	"Storage": "storage", "Path": "path", "Driver": "driver",
	"Page": "page", "HTMLFile": "html_file", "URL": "url", "WatchInterval": "watch_interval",
	"API": "api", "RateLimit": "rate_limit", "Burst": "burst", "SessionTTL": "session_ttl",
	"LogLevel": "log_level", "LogFormat": "log_format",
}
