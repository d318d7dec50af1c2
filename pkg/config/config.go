package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
	"github.com/emanuelteklu/cc-sidecar/pkg/paths"
)

const (
	DefaultModel           = "claude-sonnet-4-20250514"
	DefaultMaxTokens       = 4096
	DefaultBaseURL         = "https://api.anthropic.com"
	DefaultBind            = "127.0.0.1:8000"
	DefaultProviderTimeout = 5 * time.Minute
)

// EnvConfigPath names the YAML file Load reads.
const EnvConfigPath = "SIDECAR_CONFIG"

// Config is built once at startup and then only read.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Provider    ProviderConfig    `yaml:"provider"`
	Agent       AgentConfig       `yaml:"agent"`
	Paths       PathsConfig       `yaml:"paths"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type ServerConfig struct {
	Bind              string        `yaml:"bind"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig controls bearer token verification. An empty JWTSecret puts the
// server in dev mode, where every request is accepted.
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	AdminUserID string `yaml:"admin_user_id"`
	SupabaseURL string `yaml:"supabase_url"`
}

// DevMode reports whether authentication is bypassed.
func (a AuthConfig) DevMode() bool {
	return strings.TrimSpace(a.JWTSecret) == ""
}

// Issuer returns the expected "iss" claim, or "" when no project URL is set.
func (a AuthConfig) Issuer() string {
	base := strings.TrimRight(strings.TrimSpace(a.SupabaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/auth/v1"
}

type ProviderConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"` // requests per second; 0 disables
	Burst       int           `yaml:"burst"`
	NetworkLogs bool          `yaml:"network_logs"`
}

type AgentConfig struct {
	ToolsEnabled bool `yaml:"tools_enabled"`
	MaxToolTurns int  `yaml:"max_tool_turns"`
}

// PathsConfig locates the workspace data. Empty derived entries are filled
// from ClawdbotDir and OpsDir after overrides are applied.
type PathsConfig struct {
	ClawdbotDir  string   `yaml:"clawdbot_dir"`
	OpsDir       string   `yaml:"ops_dir"`
	AllowedRoots []string `yaml:"allowed_roots"`
	TaskQueue    string   `yaml:"task_queue"`
	TokenUsage   string   `yaml:"token_usage"`
	ResearchDir  string   `yaml:"research_dir"`
}

type DiagnosticsConfig struct {
	CommandTimeout time.Duration `yaml:"command_timeout"`
	ProcessCommand []string      `yaml:"process_command"`
	ProjectRepo    string        `yaml:"project_repo"`
	DevDir         string        `yaml:"dev_dir"`
	SignalsWindow  time.Duration `yaml:"signals_window"`
	SignalsLimit   int           `yaml:"signals_limit"`
	RepoTimeout    time.Duration `yaml:"repo_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	Tracing       bool `yaml:"tracing"`
	PublicMetrics bool `yaml:"public_metrics"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind: DefaultBind,
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://localhost:5180",
				"https://emanuelteklu.com",
			},
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
		},
		Provider: ProviderConfig{
			BaseURL:   DefaultBaseURL,
			Model:     DefaultModel,
			MaxTokens: DefaultMaxTokens,
			Timeout:   DefaultProviderTimeout,
			Burst:     1,
		},
		Agent: AgentConfig{
			ToolsEnabled: true,
			MaxToolTurns: 4,
		},
		Paths: PathsConfig{
			ClawdbotDir: "~/clawdbot",
			OpsDir:      "~/Desktop/Manny/ops",
		},
		Diagnostics: DiagnosticsConfig{
			CommandTimeout: 10 * time.Second,
			ProcessCommand: []string{"pm2", "jlist"},
			ProjectRepo:    "~/dev/emanuelteklu",
			DevDir:         "~/dev",
			SignalsWindow:  7 * 24 * time.Hour,
			SignalsLimit:   50,
			RepoTimeout:    5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultConfigPath is the YAML file read when SIDECAR_CONFIG is unset.
func DefaultConfigPath() string {
	return paths.InHome(".clawdbot", "sidecar.yaml")
}

// Load builds the configuration: defaults, then the YAML file named by
// SIDECAR_CONFIG (a missing file is ignored), then environment overrides.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv(EnvConfigPath))
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	cfg := DefaultConfig()
	if err := loadAndMerge(cfg, paths.ExpandHome(path)); err != nil {
		if !os.IsNotExist(err) || explicit {
			return nil, errors.Wrap(err, errors.ErrCodeConfigLoad, "loading config").
				WithContext("path", path)
		}
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	setString("SUPABASE_JWT_SECRET", &cfg.Auth.JWTSecret)
	setString("ADMIN_USER_ID", &cfg.Auth.AdminUserID)
	setString("SUPABASE_URL", &cfg.Auth.SupabaseURL)
	setString("ANTHROPIC_API_KEY", &cfg.Provider.APIKey)

	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CLAUDE_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("CLAUDE_MAX_TOKENS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Provider.MaxTokens = n
		}
	}
	if val, ok := envBool("SIDECAR_NETWORK_LOGS"); ok {
		cfg.Provider.NetworkLogs = val
	}

	if v := strings.TrimSpace(os.Getenv("CLAWDBOT_DIR")); v != "" {
		cfg.Paths.ClawdbotDir = v
	}
	if v := strings.TrimSpace(os.Getenv("OPS_DIR")); v != "" {
		cfg.Paths.OpsDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SIDECAR_ALLOWED_ROOTS")); v != "" {
		cfg.Paths.AllowedRoots = paths.SplitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("DEV_DIR")); v != "" {
		cfg.Diagnostics.DevDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SIDECAR_PROJECT_REPO")); v != "" {
		cfg.Diagnostics.ProjectRepo = v
	}

	if v := strings.TrimSpace(os.Getenv("SIDECAR_BIND")); v != "" {
		cfg.Server.Bind = v
	}
	if v := strings.TrimSpace(os.Getenv("SIDECAR_ALLOWED_ORIGINS")); v != "" {
		cfg.Server.AllowedOrigins = splitCommaList(v)
	}
	if v := strings.TrimSpace(os.Getenv("SIDECAR_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("SIDECAR_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
	if val, ok := envBool("SIDECAR_TRACING"); ok {
		cfg.Telemetry.Tracing = val
	}
	if val, ok := envBool("SIDECAR_PUBLIC_METRICS"); ok {
		cfg.Telemetry.PublicMetrics = val
	}
	if val, ok := envBool("SIDECAR_AGENT_TOOLS"); ok {
		cfg.Agent.ToolsEnabled = val
	}
}

// resolvePaths expands "~" and derives the data file locations.
func (c *Config) resolvePaths() {
	p := &c.Paths
	p.ClawdbotDir = paths.ExpandHome(p.ClawdbotDir)
	p.OpsDir = paths.ExpandHome(p.OpsDir)

	if len(p.AllowedRoots) == 0 {
		p.AllowedRoots = []string{p.ClawdbotDir, p.OpsDir}
	}
	for i, root := range p.AllowedRoots {
		p.AllowedRoots[i] = paths.ExpandHome(root)
	}

	if p.TaskQueue == "" {
		p.TaskQueue = filepath.Join(p.ClawdbotDir, "data", "task-queue.json")
	}
	if p.TokenUsage == "" {
		p.TokenUsage = filepath.Join(p.OpsDir, "token-usage.json")
	}
	if p.ResearchDir == "" {
		p.ResearchDir = filepath.Join(p.ClawdbotDir, "overnight")
	}
	p.TaskQueue = paths.ExpandHome(p.TaskQueue)
	p.TokenUsage = paths.ExpandHome(p.TokenUsage)
	p.ResearchDir = paths.ExpandHome(p.ResearchDir)

	c.Diagnostics.DevDir = paths.ExpandHome(c.Diagnostics.DevDir)
	c.Diagnostics.ProjectRepo = paths.ExpandHome(c.Diagnostics.ProjectRepo)
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Server.Bind) == "" {
		return invalid("server.bind must not be empty")
	}
	if strings.TrimSpace(c.Provider.Model) == "" {
		return invalid("provider.model must not be empty")
	}
	if c.Provider.MaxTokens <= 0 {
		return invalid("provider.max_tokens must be positive, got %d", c.Provider.MaxTokens)
	}
	if c.Provider.Timeout <= 0 {
		return invalid("provider.timeout must be positive")
	}
	if c.Provider.RateLimit < 0 {
		return invalid("provider.rate_limit must not be negative")
	}
	if c.Agent.MaxToolTurns < 0 {
		return invalid("agent.max_tool_turns must not be negative")
	}
	if len(c.Paths.AllowedRoots) == 0 {
		return invalid("paths.allowed_roots must name at least one directory")
	}
	for _, root := range c.Paths.AllowedRoots {
		if !filepath.IsAbs(root) {
			return invalid("allowed root %q must be absolute", root)
		}
	}
	if c.Diagnostics.CommandTimeout <= 0 || c.Diagnostics.RepoTimeout <= 0 {
		return invalid("diagnostics timeouts must be positive")
	}
	if c.Diagnostics.SignalsLimit <= 0 {
		return invalid("diagnostics.signals_limit must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return invalid("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}
	return nil
}

// ValidationWarnings lists settings that are legal but worth shouting about.
func (c *Config) ValidationWarnings() []string {
	var warnings []string
	if c.Auth.DevMode() {
		warnings = append(warnings, "SUPABASE_JWT_SECRET is empty: authentication is disabled (dev mode)")
	} else if strings.TrimSpace(c.Auth.AdminUserID) == "" {
		warnings = append(warnings, "ADMIN_USER_ID is empty: any valid token is accepted")
	}
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		warnings = append(warnings, "ANTHROPIC_API_KEY is empty: agent runs will fail")
	}
	if !isLoopbackBindAddress(c.Server.Bind) && c.Auth.DevMode() {
		warnings = append(warnings, fmt.Sprintf("dev mode auth on non-loopback bind %s", c.Server.Bind))
	}
	return warnings
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func isLoopbackBindAddress(addr string) bool {
	host := strings.TrimSpace(addr)
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	host = strings.Trim(host, "[]")
	switch host {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return strings.HasPrefix(host, "127.")
}
