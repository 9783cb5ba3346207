package output

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func newTest(mode Mode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{"", false, ModeMarkdown},
		{ModeJSON, true, ModeJSON},
		{ModeYAML, false, ModeYAML},
		{ModeText, false, ModeText},
	}
	for _, tt := range tests {
		r, _, _ := newTest(tt.mode, tt.isTTY)
		assert.Equal(t, tt.want, r.EffectiveMode(), "mode=%q tty=%v", tt.mode, tt.isTTY)
	}
}

func TestNewRenderer_BufferIsNotATerminal(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestMarkdownOutput(t *testing.T) {
	r, out, errOut := newTest(ModeMarkdown, false)

	r.Header(1, "Fits (2 total)")
	r.KeyValue("Draws", "1000")
	r.Success("imported")
	r.Warning("chain 2 is shorter")

	got := out.String()
	assert.Contains(t, got, "# Fits (2 total)\n")
	assert.Contains(t, got, "- **Draws**: 1000")
	assert.Contains(t, got, "✓ imported")
	assert.Contains(t, errOut.String(), "! chain 2 is shorter")
	assert.False(t, ansiPattern.MatchString(got+errOut.String()))
}

func TestTable(t *testing.T) {
	rows := [][]string{{"mu", "4.39"}, {"theta[1,2]", "-0.12"}}

	r, out, _ := newTest(ModeMarkdown, false)
	r.Table([]string{"Parameter", "Mean"}, rows, 1)
	md := out.String()
	assert.Contains(t, strings.ToLower(md), "| parameter")
	assert.Contains(t, md, "theta[1,2]")
	assert.Contains(t, md, "---")

	r, out, _ = newTest(ModeText, false)
	r.Table([]string{"Parameter", "Mean"}, rows, 1)
	txt := out.String()
	assert.Contains(t, txt, "┌")
	assert.Contains(t, txt, "-0.12")
	assert.False(t, ansiPattern.MatchString(txt), "no color without a terminal")
}

func TestStructured(t *testing.T) {
	v := map[string]any{"name": "eight_schools", "chains": 4}

	r, out, _ := newTest(ModeJSON, false)
	ok, err := r.Structured(v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"name":"eight_schools","chains":4}`, out.String())

	r, out, _ = newTest(ModeYAML, false)
	ok, err = r.Structured(v)
	require.NoError(t, err)
	assert.True(t, ok)
	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &back))
	assert.Equal(t, "eight_schools", back["name"])

	r, out, _ = newTest(ModeText, true)
	ok, err = r.Structured(v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, out.String())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "## Summary", FormatHeader(2, "Summary"))
	assert.Equal(t, "# Top", FormatHeader(0, "Top"))
	assert.Equal(t, "- **Chains**: 4", FormatKeyValue("Chains", "4"))
	assert.Equal(t, "```json\n{}\n```", FormatCodeBlock("json", "{}\n"))
}

func TestRendererContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	r, _, _ := newTest(ModeJSON, false)
	ctx := WithRenderer(context.Background(), r)
	assert.Same(t, r, FromContext(ctx))
}
