package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUIDefaults(t *testing.T) {
	c := &UIConfig{Port: 41000}
	ApplyUIDefaults(c)

	assert.Equal(t, DefaultHost, c.Host)
	assert.Equal(t, 41000, c.Port)
	assert.Equal(t, 30000, c.PortMin)
	assert.Equal(t, 60000, c.PortMax)
	assert.Equal(t, DefaultMaxConns, c.MaxConns)

	ApplyUIDefaults(nil)
}

func TestApplyPlotDefaults(t *testing.T) {
	c := &PlotConfig{Bins: 12}
	ApplyPlotDefaults(c)

	assert.Equal(t, DefaultPlotConfig().Width, c.Width)
	assert.Equal(t, DefaultPlotConfig().Height, c.Height)
	assert.Equal(t, DefaultPlotConfig().MaxLag, c.MaxLag)
	assert.Equal(t, 12, c.Bins)
	assert.Equal(t, "acf", c.DefaultKind)
}

func TestFindConfigFileUpward(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Empty(t, FindConfigFile(nested))

	cfgPath := filepath.Join(root, ConfigFileNameAlt)
	require.NoError(t, os.WriteFile(cfgPath, []byte("verbose: true\n"), 0o600))

	assert.Equal(t, cfgPath, FindConfigFileUpward(nested))

	preferred := filepath.Join(root, ConfigFileName)
	require.NoError(t, os.WriteFile(preferred, []byte("verbose: true\n"), 0o600))
	assert.Equal(t, preferred, FindConfigFile(root))
}
