// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapfit/internal/cli/output"
)

// StanHeader is the column header of the generated Stan CSV files.
const StanHeader = "lp__,accept_stat__,stepsize__,treedepth__,n_leapfrog__,divergent__,energy__,mu,tau,theta.1,theta.2"

// SetupStanCSV writes one CmdStan-style CSV file per chain with the given
// number of draws and returns their paths.
func SetupStanCSV(t *testing.T, chains, draws int) []string {
	t.Helper()

	dir := t.TempDir()
	paths := make([]string, chains)
	for c := range chains {
		var sb strings.Builder
		sb.WriteString("# model = eight_schools_model\n")
		sb.WriteString("# method = sample (Default)\n")
		sb.WriteString(StanHeader + "\n")
		sb.WriteString("# Adaptation terminated\n")
		for d := range draws {
			x := float64(d%7) - 3 + float64(c)/10
			fmt.Fprintf(&sb, "%g,0.9,0.3,3,7,0,%g,%g,%g,%g,%g\n",
				-10-x*x, 12+x, 4+x/2, 3+x*x/4, 4+x, 4-x)
		}
		sb.WriteString("# Elapsed Time: 0.05 seconds (Warm-up)\n")

		paths[c] = filepath.Join(dir, fmt.Sprintf("eight_schools-%d.csv", c+1))
		if err := os.WriteFile(paths[c], []byte(sb.String()), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", paths[c], err)
		}
	}
	return paths
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
