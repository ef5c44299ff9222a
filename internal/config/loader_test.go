package config_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
)

const sampleYAML = `
version: v1
provider:
  kind: rest
  base_url: http://localhost:5000
session:
  root_node: 7
layout:
  node_charge: -250
  label_anchors: false
viewport:
  width: 1024
  height: 768
  sidebar: 240
  header: 40
  toolbar: 40
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kgx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.Session.RootNode)
	assert.Equal(t, -250.0, cfg.Layout.NodeCharge)
	assert.Equal(t, 90.0, cfg.Layout.LinkDistance)
	assert.Equal(t, 0.4, cfg.Layout.VelocityDecay)
	assert.False(t, cfg.Layout.AnchorsEnabled())
	assert.InDelta(t, 1-math.Pow(0.001, 1.0/300), cfg.Layout.AlphaDecay, 1e-12)
	assert.Equal(t, 4, cfg.Session.FetchWorkers)
	assert.Equal(t, "#ef6c00", cfg.Render.InferredColor)
	require.NoError(t, config.Validate(cfg))
}

func TestParse_EnvOverridesProvider(t *testing.T) {
	t.Setenv("KGX_PROVIDER_KIND", "sqlite")
	t.Setenv("KNOWLEDGE_DB_PATH", "/tmp/knowledge.db")
	t.Setenv("KGX_ROOT_NODE", "42")

	cfg, err := config.Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Provider.Kind)
	assert.Equal(t, "/tmp/knowledge.db", cfg.Provider.DBPath)
	assert.Equal(t, int64(42), cfg.Session.RootNode)
	assert.Equal(t, "http://localhost:5000", cfg.Provider.BaseURL)
}

func TestViewportCenter_ExcludesChrome(t *testing.T) {
	v := config.ViewportConf{Width: 1000, Height: 800, Sidebar: 200, Header: 50, Toolbar: 50}
	x, y := v.Center()
	assert.Equal(t, 600.0, x)
	assert.Equal(t, 450.0, y)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.Kind = "rest"
	cfg.Layout.VelocityDecay = 1.5
	cfg.Render.InferredColor = "orange"

	err := config.Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider.base_url is required")
	assert.Contains(t, err.Error(), "layout.velocity_decay")
	assert.Contains(t, err.Error(), "render.inferred_color")
}

func TestValidate_RequiresVersion(t *testing.T) {
	cfg := config.Default()
	cfg.Version = ""
	assert.ErrorContains(t, config.Validate(cfg), "version is required")
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, config.Validate(config.Default()))
}

func TestLoader_ReloadNotifiesAndRejectsInvalid(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := config.NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, -250.0, l.Config().Layout.NodeCharge)

	var seen []*config.Config
	l.OnChange(func(c *config.Config) { seen = append(seen, c) })

	updated := sampleYAML + "render:\n  font_size: 18\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, 18.0, cfg.Render.FontSize)
	require.Len(t, seen, 1)

	require.NoError(t, os.WriteFile(path, []byte("version: v1\nprovider:\n  kind: ftp\n"), 0o600))
	_, err = l.Reload()
	require.Error(t, err)
	assert.Equal(t, 18.0, l.Config().Render.FontSize)
	assert.Len(t, seen, 1)
}
