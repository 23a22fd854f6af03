// Package config loads the jobagent configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/jobagent/internal/agent"
	"github.com/nextlevelbuilder/jobagent/internal/cron"
	"github.com/nextlevelbuilder/jobagent/internal/mcp"
	"github.com/nextlevelbuilder/jobagent/internal/providers"
	"github.com/nextlevelbuilder/jobagent/internal/tools"
	"github.com/nextlevelbuilder/jobagent/internal/tracing/otelexport"
)

const envPrefix = "JOBAGENT_"

// Session backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the root configuration. Every section has usable defaults, so an
// empty file (or none at all) is valid apart from provider credentials.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Provider  ProviderConfig  `json:"provider"`
	Redis     RedisConfig     `json:"redis"`
	Sessions  SessionsConfig  `json:"sessions"`
	Worker    WorkerConfig    `json:"worker"`
	Tools     ToolsConfig     `json:"tools"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Schedules []cron.Schedule `json:"schedules,omitempty"`
	LogLevel  string          `json:"logLevel"` // debug | info | warn | error
}

// AgentConfig holds the per-run loop settings. These are hot-reloadable.
type AgentConfig struct {
	MaxIterations             int    `json:"maxIterations"`
	MaxCommandRepeats         int    `json:"maxCommandRepeats"`
	ToolResultLimit           int    `json:"toolResultLimit"`
	ToolTimeoutSec            int    `json:"toolTimeoutSec"`
	SystemPrompt              string `json:"systemPrompt,omitempty"`
	FailFastOnPermanentErrors bool   `json:"failFastOnPermanentErrors"`
	InjectionAction           string `json:"injectionAction"` // off | log | warn | block
}

type ProviderConfig struct {
	Name              string  `json:"name"` // gollm provider: openai, anthropic, groq, ollama, ...
	Model             string  `json:"model"`
	APIKey            string  `json:"apiKey,omitempty"`
	MaxTokens         int     `json:"maxTokens"`
	Temperature       float64 `json:"temperature"`
	RequestsPerMinute int     `json:"requestsPerMinute"` // 0 = unthrottled
	Burst             int     `json:"burst"`
}

type RedisConfig struct {
	URL          string `json:"url"`
	ResultTTLSec int    `json:"resultTtlSec"` // 0 keeps finished jobs forever
}

type SessionsConfig struct {
	Backend     string `json:"backend"` // memory | sqlite | postgres
	Path        string `json:"path"`    // sqlite file
	PostgresDSN string `json:"postgresDsn,omitempty"`
}

type WorkerConfig struct {
	Concurrency      int `json:"concurrency"`
	PollTimeoutSec   int `json:"pollTimeoutSec"`
	ShutdownGraceSec int `json:"shutdownGraceSec"`
	ProgressBuffer   int `json:"progressBuffer"`
}

type ToolsConfig struct {
	RateLimitPerHour int                       `json:"rateLimitPerHour"` // per job, 0 = unlimited
	ScrubCredentials bool                      `json:"scrubCredentials"`
	SpawnJob         bool                      `json:"spawnJob"`
	WebFetch         WebFetchConfig            `json:"webFetch"`
	Browser          BrowserConfig             `json:"browser"`
	Commands         []tools.CommandToolConfig `json:"commands,omitempty"`
	DenyPatterns     []string                  `json:"denyPatterns,omitempty"`
	MCPServers       []mcp.ServerConfig        `json:"mcpServers,omitempty"`
}

type WebFetchConfig struct {
	Enabled     bool `json:"enabled"`
	MaxChars    int  `json:"maxChars"`
	CacheTTLSec int  `json:"cacheTtlSec"`
	CacheSize   int  `json:"cacheSize"`
	TimeoutSec  int  `json:"timeoutSec"`
}

// BrowserConfig enables the browse tool, which drives a local Chrome.
type BrowserConfig struct {
	Enabled    bool   `json:"enabled"`
	Headless   bool   `json:"headless"`
	ChromePath string `json:"chromePath,omitempty"`
	MaxChars   int    `json:"maxChars"`
	TimeoutSec int    `json:"timeoutSec"`
}

type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // grpc | http
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	SampleRatio float64           `json:"sampleRatio,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxIterations:             agent.DefaultMaxIterations,
			MaxCommandRepeats:         agent.DefaultMaxCommandRepeats,
			ToolResultLimit:           agent.DefaultToolResultLimit,
			ToolTimeoutSec:            int(agent.DefaultToolTimeout / time.Second),
			FailFastOnPermanentErrors: true,
			InjectionAction:           agent.InjectionWarn,
		},
		Provider: ProviderConfig{
			Name:        "openai",
			Model:       "gpt-4o-mini",
			MaxTokens:   2048,
			Temperature: 0.2,
			Burst:       1,
		},
		Redis: RedisConfig{
			URL:          "redis://localhost:6379/0",
			ResultTTLSec: 7 * 24 * 3600,
		},
		Sessions: SessionsConfig{
			Backend: BackendSQLite,
			Path:    "jobagent.db",
		},
		Worker: WorkerConfig{
			Concurrency:      4,
			PollTimeoutSec:   5,
			ShutdownGraceSec: 30,
			ProgressBuffer:   256,
		},
		Tools: ToolsConfig{
			RateLimitPerHour: 120,
			ScrubCredentials: true,
			SpawnJob:         true,
			WebFetch: WebFetchConfig{
				Enabled:     true,
				MaxChars:    20000,
				CacheTTLSec: 900,
				CacheSize:   256,
				TimeoutSec:  30,
			},
			Browser: BrowserConfig{
				Headless:   true,
				MaxChars:   20000,
				TimeoutSec: 45,
			},
		},
		Telemetry: TelemetryConfig{Protocol: "grpc"},
		LogLevel:  "info",
	}
}

// Load reads path onto the defaults, applies JOBAGENT_* overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			slog.Debug("config file not found, using defaults", "path", path)
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyKeyring()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses JSON5, or YAML for .yaml/.yml files. YAML goes through
// JSON so both formats share the json field names.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return err
		}
		if doc == nil {
			return nil
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, cfg)
	default:
		return json5.Unmarshal(data, cfg)
	}
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := os.Getenv(envPrefix + key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("PROVIDER", &c.Provider.Name)
	str("MODEL", &c.Provider.Model)
	str("API_KEY", &c.Provider.APIKey)
	str("REDIS_URL", &c.Redis.URL)
	str("SESSIONS_BACKEND", &c.Sessions.Backend)
	str("SESSIONS_PATH", &c.Sessions.Path)
	str("POSTGRES_DSN", &c.Sessions.PostgresDSN)
	str("LOG_LEVEL", &c.LogLevel)
	str("OTEL_ENDPOINT", &c.Telemetry.Endpoint)
	if c.Telemetry.Endpoint != "" && os.Getenv(envPrefix+"OTEL_ENDPOINT") != "" {
		c.Telemetry.Enabled = true
	}
	if err := num("WORKER_CONCURRENCY", &c.Worker.Concurrency); err != nil {
		return err
	}
	if err := num("MAX_ITERATIONS", &c.Agent.MaxIterations); err != nil {
		return err
	}

	// Provider-specific key, e.g. JOBAGENT_ANTHROPIC_API_KEY.
	if c.Provider.APIKey == "" && c.Provider.Name != "" {
		str(strings.ToUpper(c.Provider.Name)+"_API_KEY", &c.Provider.APIKey)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Provider.Name == "" {
		return fmt.Errorf("provider.name is required")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.maxIterations must be >= 1, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxCommandRepeats < 1 {
		return fmt.Errorf("agent.maxCommandRepeats must be >= 1, got %d", c.Agent.MaxCommandRepeats)
	}
	if c.Agent.ToolResultLimit < 1 {
		return fmt.Errorf("agent.toolResultLimit must be >= 1, got %d", c.Agent.ToolResultLimit)
	}
	switch c.Agent.InjectionAction {
	case agent.InjectionOff, agent.InjectionLog, agent.InjectionWarn, agent.InjectionBlock:
	default:
		return fmt.Errorf("agent.injectionAction must be off, log, warn or block, got %q", c.Agent.InjectionAction)
	}
	switch c.Sessions.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Sessions.Path == "" {
			return fmt.Errorf("sessions.path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Sessions.PostgresDSN == "" {
			return fmt.Errorf("sessions.postgresDsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown sessions.backend %q", c.Sessions.Backend)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	seen := make(map[string]bool)
	for _, cmd := range c.Tools.Commands {
		if !IsValidToolName(cmd.Name) {
			return fmt.Errorf("tools.commands: invalid tool name %q", cmd.Name)
		}
		if seen[cmd.Name] {
			return fmt.Errorf("tools.commands: duplicate tool name %q", cmd.Name)
		}
		seen[cmd.Name] = true
		if strings.TrimSpace(cmd.Command) == "" {
			return fmt.Errorf("tools.commands.%s: command is required", cmd.Name)
		}
	}
	for _, srv := range c.Tools.MCPServers {
		if srv.Name == "" || srv.Command == "" {
			return fmt.Errorf("tools.mcpServers: name and command are required")
		}
	}
	names := make(map[string]bool)
	for _, s := range c.Schedules {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("schedules: %w", err)
		}
		if names[s.Name] {
			return fmt.Errorf("schedules: duplicate name %q", s.Name)
		}
		names[s.Name] = true
	}
	return nil
}

// normalize canonicalizes names that end up in the tool catalogue.
func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Sessions.Backend = strings.ToLower(strings.TrimSpace(c.Sessions.Backend))
	c.Agent.InjectionAction = strings.ToLower(strings.TrimSpace(c.Agent.InjectionAction))
	for i := range c.Tools.Commands {
		c.Tools.Commands[i].Name = NormalizeToolName(c.Tools.Commands[i].Name)
	}
	for i := range c.Tools.MCPServers {
		if p := c.Tools.MCPServers[i].Prefix; p != "" {
			c.Tools.MCPServers[i].Prefix = NormalizeToolName(p)
		}
	}
}

// LoopConfig returns the loop settings from the agent section. Collaborators
// (provider, stores, sinks) are left for the caller to fill in.
func (c *Config) LoopConfig() agent.LoopConfig {
	return agent.LoopConfig{
		MaxIterations:             c.Agent.MaxIterations,
		MaxCommandRepeats:         c.Agent.MaxCommandRepeats,
		ToolResultLimit:           c.Agent.ToolResultLimit,
		ToolTimeout:               time.Duration(c.Agent.ToolTimeoutSec) * time.Second,
		SystemPrompt:              c.Agent.SystemPrompt,
		FailFastOnPermanentErrors: c.Agent.FailFastOnPermanentErrors,
		ScrubCredentials:          c.Tools.ScrubCredentials,
		InjectionAction:           c.Agent.InjectionAction,
	}
}

func (c *Config) GollmConfig() providers.GollmConfig {
	return providers.GollmConfig{
		Provider:    c.Provider.Name,
		Model:       c.Provider.Model,
		APIKey:      c.Provider.APIKey,
		MaxTokens:   c.Provider.MaxTokens,
		Temperature: c.Provider.Temperature,
	}
}

func (c *Config) WebFetchConfig() tools.WebFetchConfig {
	wf := c.Tools.WebFetch
	return tools.WebFetchConfig{
		MaxChars:  wf.MaxChars,
		CacheTTL:  time.Duration(wf.CacheTTLSec) * time.Second,
		CacheSize: wf.CacheSize,
		Timeout:   time.Duration(wf.TimeoutSec) * time.Second,
	}
}

func (c *Config) BrowseConfig() tools.BrowseConfig {
	b := c.Tools.Browser
	return tools.BrowseConfig{
		MaxChars: b.MaxChars,
		Timeout:  time.Duration(b.TimeoutSec) * time.Second,
	}
}

func (c *Config) OTelConfig() otelexport.Config {
	t := c.Telemetry
	return otelexport.Config{
		Endpoint:    t.Endpoint,
		Protocol:    t.Protocol,
		Insecure:    t.Insecure,
		ServiceName: t.ServiceName,
		Headers:     t.Headers,
		SampleRatio: t.SampleRatio,
	}
}

// ParseLogLevel maps a config level name to a slog level. Unknown names are info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
