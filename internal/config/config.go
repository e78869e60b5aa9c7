// Package config handles Square15 configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first.
// Then: ./config.yaml, ~/.config/square15/config.yaml, /etc/square15/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "square15", "config.yaml"))
	}

	paths = append(paths, "/etc/square15/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
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

// Config holds all Square15 configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Database  DatabaseConfig  `yaml:"database"`
	Models    ModelsConfig    `yaml:"models"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Agent     AgentConfig     `yaml:"agent"`
	Auth      AuthConfig      `yaml:"auth"`
	Business  BusinessConfig  `yaml:"business"`
	Email     EmailConfig     `yaml:"email"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Jobs      JobsConfig      `yaml:"jobs"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DatabaseConfig selects the SQLite driver and file.
type DatabaseConfig struct {
	// Driver is "sqlite3" (mattn, cgo) or "sqlite" (modernc, pure Go).
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// ModelsConfig defines model routing settings.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	OllamaURL string        `yaml:"ollama_url"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to the provider that serves it.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // ollama, anthropic, openai
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// OpenAIConfig defines settings for OpenAI or any compatible endpoint.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	MaxRounds       int     `yaml:"max_rounds"`
	Temperature     float64 `yaml:"temperature"`
	HistoryWindow   int     `yaml:"history_window"`
	PrintableRatio  float64 `yaml:"printable_ratio"`
	ToolTimeoutSec  int     `yaml:"tool_timeout_sec"`
	ModelTimeoutSec int     `yaml:"model_timeout_sec"`
	ParallelTools   int     `yaml:"parallel_tools"`
	// SystemPromptFile replaces the built-in system prompt when set.
	SystemPromptFile string `yaml:"system_prompt_file"`
}

// AuthConfig holds credential resolution settings.
type AuthConfig struct {
	JWTSecret   string         `yaml:"jwt_secret"`
	Issuer      string         `yaml:"issuer"`
	TokenTTLMin int            `yaml:"token_ttl_min"`
	APIKeys     []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig is a long-lived key for service integrations. Hash is a
// bcrypt hash of the key; the key itself never appears in config.
type APIKeyConfig struct {
	Name   string `yaml:"name"`
	Hash   string `yaml:"hash"`
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
	Role   string `yaml:"role"`
}

// BusinessConfig carries the values printed on documents.
type BusinessConfig struct {
	Name             string  `yaml:"name"`
	Currency         string  `yaml:"currency"`
	TaxRate          float64 `yaml:"tax_rate"`
	PaymentTermsDays int     `yaml:"payment_terms_days"`
	PaymentDetails   string  `yaml:"payment_details"`
	SalesInbox       string  `yaml:"sales_inbox"`
}

// EmailConfig configures outbound mail. Email is disabled when SMTP.Host
// is empty.
type EmailConfig struct {
	From string     `yaml:"from"`
	SMTP SMTPConfig `yaml:"smtp"`
}

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// StartTLS upgrades a plain connection. When false and Port is 465,
	// implicit TLS is used.
	StartTLS bool `yaml:"starttls"`
}

// Configured reports whether SMTP delivery is possible.
func (c SMTPConfig) Configured() bool {
	return c.Host != ""
}

// MQTTConfig configures the event publisher. Disabled when Broker is empty.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	KeepAlive   int    `yaml:"keep_alive"`
}

// Configured reports whether an MQTT broker is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// JobsConfig holds cron specs for background jobs. An empty spec
// disables the job.
type JobsConfig struct {
	OverdueSweep string `yaml:"overdue_sweep"`
}

// envRef matches ${NAME}. Bare $NAME is left alone so bcrypt hashes
// ($2a$10$...) survive loading.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// Load reads configuration from a YAML file, expands ${VAR} references
// from the environment, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := expandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{
		Listen:   ListenConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "sqlite3", Path: "square15.db"},
		Models: ModelsConfig{
			Default:   "qwen3:8b",
			OllamaURL: "http://localhost:11434",
			Available: []ModelConfig{
				{Name: "qwen3:8b", Provider: "ollama"},
			},
		},
		Agent: AgentConfig{
			MaxRounds:       5,
			Temperature:     0.3,
			HistoryWindow:   2,
			PrintableRatio:  0.6,
			ToolTimeoutSec:  30,
			ModelTimeoutSec: 120,
			ParallelTools:   4,
		},
		Auth: AuthConfig{Issuer: "square15", TokenTTLMin: 60 * 12},
		Business: BusinessConfig{
			Name:             "Square 15",
			Currency:         "ZAR",
			TaxRate:          0.15,
			PaymentTermsDays: 30,
		},
		MQTT: MQTTConfig{ClientID: "square15", TopicPrefix: "square15", KeepAlive: 30},
		Jobs: JobsConfig{OverdueSweep: "@daily"},
	}
	return cfg
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Listen.Port == 0 {
		c.Listen.Port = def.Listen.Port
	}
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
	if c.Agent.MaxRounds <= 0 {
		c.Agent.MaxRounds = def.Agent.MaxRounds
	}
	if c.Agent.HistoryWindow <= 0 {
		c.Agent.HistoryWindow = def.Agent.HistoryWindow
	}
	if c.Agent.PrintableRatio <= 0 {
		c.Agent.PrintableRatio = def.Agent.PrintableRatio
	}
	if c.Agent.ToolTimeoutSec <= 0 {
		c.Agent.ToolTimeoutSec = def.Agent.ToolTimeoutSec
	}
	if c.Agent.ModelTimeoutSec <= 0 {
		c.Agent.ModelTimeoutSec = def.Agent.ModelTimeoutSec
	}
	if c.Agent.ParallelTools <= 0 {
		c.Agent.ParallelTools = def.Agent.ParallelTools
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = def.Auth.Issuer
	}
	if c.Auth.TokenTTLMin <= 0 {
		c.Auth.TokenTTLMin = def.Auth.TokenTTLMin
	}
	if c.Business.PaymentTermsDays <= 0 {
		c.Business.PaymentTermsDays = def.Business.PaymentTermsDays
	}
	if c.Business.Currency == "" {
		c.Business.Currency = def.Business.Currency
	}
	if c.Email.SMTP.Configured() && c.Email.SMTP.Port == 0 {
		c.Email.SMTP.Port = 587
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.KeepAlive <= 0 {
		c.MQTT.KeepAlive = def.MQTT.KeepAlive
	}
}

// Validate reports configuration that cannot work at runtime.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite3 or sqlite", c.Database.Driver))
	}

	if c.Models.Default == "" {
		errs = append(errs, errors.New("models.default is required"))
	}
	for _, m := range c.Models.Available {
		switch m.Provider {
		case "ollama", "":
		case "anthropic":
			if c.Anthropic.APIKey == "" {
				errs = append(errs, fmt.Errorf("model %s uses anthropic but anthropic.api_key is empty", m.Name))
			}
		case "openai":
			if c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
				errs = append(errs, fmt.Errorf("model %s uses openai but openai.api_key is empty", m.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("model %s: unknown provider %q", m.Name, m.Provider))
		}
	}

	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f out of range [0, 2]", c.Agent.Temperature))
	}
	if c.Agent.PrintableRatio > 1 {
		errs = append(errs, fmt.Errorf("agent.printable_ratio %.2f must be <= 1", c.Agent.PrintableRatio))
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	for _, k := range c.Auth.APIKeys {
		if !strings.HasPrefix(k.Hash, "$2") {
			errs = append(errs, fmt.Errorf("auth.api_keys[%s]: hash is not a bcrypt hash", k.Name))
		}
	}

	if c.Business.TaxRate < 0 || c.Business.TaxRate >= 1 {
		errs = append(errs, fmt.Errorf("business.tax_rate %.2f out of range [0, 1)", c.Business.TaxRate))
	}

	if c.Email.SMTP.Configured() && c.Email.From == "" {
		errs = append(errs, errors.New("email.from is required when email.smtp.host is set"))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}

	return errors.Join(errs...)
}
