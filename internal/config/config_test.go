package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.Signals.Thresholds.RiskDays)
	assert.Equal(t, 7, cfg.Signals.Thresholds.BreachDays)
	assert.Equal(t, ScopeActive, cfg.Signals.ScopeMode)
	assert.Equal(t, 14, cfg.Signals.WindowDays)
	assert.Equal(t, SourceConsolidated, cfg.Sources.Primary)
	assert.Equal(t, []string{SourceApprovals, SourceRaid, SourceMilestones}, cfg.Sources.Fallbacks)
	assert.True(t, cfg.IsInactive("archived"))
	assert.False(t, cfg.IsInactive("active"))
}

func TestFromYAML_PartialKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("signals:\n  thresholds:\n    breach_days: 10\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Signals.Thresholds.RiskDays)
	assert.Equal(t, 10, cfg.Signals.Thresholds.BreachDays)
	assert.Equal(t, ScopeActive, cfg.Signals.ScopeMode)
	assert.Equal(t, []string{"closed", "archived"}, cfg.Signals.InactiveStatuses)
	assert.True(t, cfg.Signals.IncludeIdle)
}

func TestFromYAML_PrimaryCanBeDisabled(t *testing.T) {
	cfg, err := FromYAML([]byte("sources:\n  primary: \"\"\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Sources.Primary)
}

func TestFromYAML_Remote(t *testing.T) {
	cfg, err := FromYAML([]byte(`
sources:
  fallbacks: [approvals]
  remote:
    - name: vendor-risks
      url: https://risk.example.com/api/items
      kind: risk
      timeout: 5s
      headers:
        X-Token: abc
`))
	require.NoError(t, err)
	require.Len(t, cfg.Sources.Remote, 1)
	r := cfg.Sources.Remote[0]
	assert.Equal(t, 5*time.Second, r.Timeout)
	assert.Equal(t, "abc", r.Headers["X-Token"])
	assert.Equal(t, SourceConsolidated, cfg.Sources.Primary)
	assert.Equal(t, []string{SourceApprovals}, cfg.Sources.Fallbacks)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]string{
		"inverted thresholds": "signals:\n  thresholds: {risk_days: 9, breach_days: 2}\n",
		"bad scope":           "signals:\n  scope_mode: some\n",
		"negative window":     "signals:\n  window_days: -1\n",
		"unknown fallback":    "sources:\n  fallbacks: [tickets]\n",
		"duplicate fallback":  "sources:\n  fallbacks: [raid, raid]\n",
		"bad primary":         "sources:\n  primary: approvals\n",
		"remote without url":  "sources:\n  remote: [{name: x}]\n",
		"remote bad kind":     "sources:\n  remote: [{name: x, url: 'http://h/x', kind: widget}]\n",
		"remote dup name":     "sources:\n  fallbacks: [raid]\n  remote: [{name: raid, url: 'http://h/x'}]\n",
		"not yaml":            "signals: [",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalid, name)
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "govpulse.yml"), []byte("signals:\n  scope_mode: all\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, cfg.Signals.ScopeMode)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("GOVPULSE_ADDR", ":9999")
	t.Setenv("GOVPULSE_DB_DRIVER", "postgres")
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9999", env.Addr)
	assert.Equal(t, "postgres", env.DBDriver)
	assert.Equal(t, "info", env.LogLevel)
}
