package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"govpulse/internal/signal"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Scope modes.
const (
	ScopeActive = "active"
	ScopeAll    = "all"
)

// Built-in per-feature sources read from the record store.
const (
	SourceApprovals  = "approvals"
	SourceRaid       = "raid"
	SourceMilestones = "milestones"
	// SourceConsolidated is the governance_signals view.
	SourceConsolidated = "governance_signals"
)

var builtinSources = map[string]bool{
	SourceApprovals:    true,
	SourceRaid:         true,
	SourceMilestones:   true,
	SourceConsolidated: true,
}

// Config models govpulse.yml.
type Config struct {
	Signals struct {
		Thresholds       signal.Thresholds `yaml:"thresholds"`
		ScopeMode        string            `yaml:"scope_mode"`
		WindowDays       int               `yaml:"window_days"`
		IncludeIdle      bool              `yaml:"include_idle"`
		InactiveStatuses []string          `yaml:"inactive_statuses"`
	} `yaml:"signals"`
	Sources struct {
		Primary     string         `yaml:"primary"`
		Fallbacks   []string       `yaml:"fallbacks"`
		Remote      []RemoteSource `yaml:"remote"`
		Concurrency int            `yaml:"concurrency"`
	} `yaml:"sources"`
}

// RemoteSource is an HTTP feed fetched alongside the store.
type RemoteSource struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Kind    string            `yaml:"kind"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	th := c.Signals.Thresholds
	if th.RiskDays < 0 || th.BreachDays < 0 {
		return invalid("signals.thresholds must not be negative")
	}
	if th.BreachDays < th.RiskDays {
		return invalid("signals.thresholds.breach_days (%d) must be >= risk_days (%d)", th.BreachDays, th.RiskDays)
	}
	switch c.Signals.ScopeMode {
	case ScopeActive, ScopeAll:
	default:
		return invalid("signals.scope_mode must be %q or %q", ScopeActive, ScopeAll)
	}
	if c.Signals.WindowDays < 0 {
		return invalid("signals.window_days must not be negative")
	}
	if c.Sources.Primary != "" && c.Sources.Primary != SourceConsolidated {
		return invalid("sources.primary must be %q or empty", SourceConsolidated)
	}
	seen := map[string]bool{}
	if c.Sources.Primary != "" {
		seen[c.Sources.Primary] = true
	}
	for _, name := range c.Sources.Fallbacks {
		if !builtinSources[name] || name == SourceConsolidated {
			return invalid("sources.fallbacks: unknown source %q", name)
		}
		if seen[name] {
			return invalid("sources: duplicate source %q", name)
		}
		seen[name] = true
	}
	for i, r := range c.Sources.Remote {
		if r.Name == "" {
			return invalid("sources.remote[%d].name is required", i)
		}
		if seen[r.Name] {
			return invalid("sources: duplicate source %q", r.Name)
		}
		seen[r.Name] = true
		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("sources.remote[%s].url must be an absolute http(s) url", r.Name)
		}
		if r.Kind != "" && signal.ParseKind(r.Kind) == signal.KindUnknown && r.Kind != string(signal.KindUnknown) {
			return invalid("sources.remote[%s].kind %q is not a known record kind", r.Name, r.Kind)
		}
		if r.Timeout < 0 {
			return invalid("sources.remote[%s].timeout must not be negative", r.Name)
		}
	}
	if c.Sources.Concurrency < 0 {
		return invalid("sources.concurrency must not be negative")
	}
	return nil
}

// IsInactive reports whether a project status is excluded in active scope.
func (c *Config) IsInactive(status string) bool {
	for _, s := range c.Signals.InactiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "govpulse.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with gp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns Default() when the config file does not exist.
func LoadOrDefault(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(err)
	}
	return cfg
}

func seed() Config {
	var cfg Config
	cfg.Signals.Thresholds = signal.DefaultThresholds
	cfg.Signals.ScopeMode = ScopeActive
	cfg.Signals.WindowDays = 14
	cfg.Signals.IncludeIdle = true
	cfg.Signals.InactiveStatuses = []string{"closed", "archived"}
	cfg.Sources.Primary = SourceConsolidated
	cfg.Sources.Fallbacks = []string{SourceApprovals, SourceRaid, SourceMilestones}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted keys keep
// their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := seed()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: yaml: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `signals:
  thresholds:
    risk_days: 3
    breach_days: 7
  scope_mode: active
  window_days: 14
  include_idle: true
  inactive_statuses: [closed, archived]

sources:
  primary: governance_signals
  fallbacks: [approvals, raid, milestones]
  concurrency: 0
`
