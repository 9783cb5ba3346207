// Package main provides tests for the LeapFit CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapfit/internal/cli"
	"github.com/leapstack-labs/leapfit/internal/cli/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "LeapFit")
}

func TestImportThenSummary(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	fit := `{"name":"coin","parameters":["p","lp__"],"draws":[` +
		`[[0.41,-7.1],[0.52,-6.9]],[[0.47,-7.0],[0.39,-7.3]],[[0.55,-6.8],[0.44,-7.0]],` +
		`[[0.50,-6.9],[0.46,-7.0]],[[0.43,-7.1],[0.58,-6.7]],[[0.49,-6.9],[0.51,-6.9]]]}`
	src := filepath.Join(dir, "coin.json")
	require.NoError(t, os.WriteFile(src, []byte(fit), 0o600))

	out, err := execute(t, "import", src, "-o", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported coin: 6 draws x 2 chains x 2 parameters")

	out, err = execute(t, "summary", "coin", "-o", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Summary of coin")
	assert.Contains(t, out, "lp__")

	_, err = os.Stat(filepath.Join(dir, config.DefaultStateFile))
	assert.NoError(t, err, "the cache lives under the working directory")
}

func TestServeRequiresFit(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "serve")
	assert.Error(t, err)
}
