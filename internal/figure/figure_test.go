package figure

import (
	"bytes"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapfit/internal/testutil"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Broadcast() { c.n.Add(1) }

func testFit(t *testing.T) *core.Fit {
	t.Helper()
	const draws = 50
	params := []string{"mu", "eta[1]", "eta[2]", "lp__"}
	return testutil.NewFit(t, "test", params, draws, 2, func(d, c, p int) float64 {
		x := float64(d) / draws
		return []float64{math.Sin(x*7 + float64(c)), x, -x, -float64(d)}[p]
	})
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"acf", "hist", "trace", " ACF "} {
		_, err := ParseKind(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseKind("density")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestContentType(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"png", "image/png"},
		{"jpg", "image/jpeg"},
		{"svg", "image/svg+xml"},
		{"pdf", "application/pdf"},
		{"ps", "application/postscript"},
		{"eps", "application/postscript"},
		{"tif", "image/tiff"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got, err := ContentType(tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ContentType("emf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRender_Kinds(t *testing.T) {
	fit := testFit(t)
	for _, kind := range []Kind{KindACF, KindHist, KindTrace} {
		t.Run(string(kind), func(t *testing.T) {
			data, err := Render(fit, Spec{Kind: kind, Params: []string{"mu", "eta[1]"}, Width: 320, Height: 240}, "png")
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(data, pngMagic))
		})
	}
}

func TestRender_Formats(t *testing.T) {
	fit := testFit(t)
	spec := Spec{Kind: KindHist, Params: []string{"mu"}, Width: 200, Height: 150}

	svg, err := Render(fit, spec, "svg")
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")

	pdf, err := Render(fit, spec, "pdf")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	for _, format := range []string{"ps", "eps"} {
		out, err := Render(fit, spec, format)
		require.NoError(t, err, format)
		assert.True(t, bytes.HasPrefix(out, []byte("%!PS-Adobe")), "%s header: %q", format, out[:min(len(out), 24)])
	}
}

func TestFixPostScriptMagic(t *testing.T) {
	assert.Equal(t, "%!PS-Adobe-3.0", string(fixPostScriptMagic([]byte("%%!PS-Adobe-3.0"))))
	assert.Equal(t, "%!PS-Adobe-3.0", string(fixPostScriptMagic([]byte("%!PS-Adobe-3.0"))))
}

func TestRender_AllNaNSeriesDrawsEmptyPanel(t *testing.T) {
	params := []string{"y_rep[1]", "mu"}
	fit := testutil.NewFit(t, "nan", params, 20, 2, func(d, c, p int) float64 {
		if p == 0 || (p == 1 && c == 1) {
			return math.NaN()
		}
		return math.Sin(float64(d))
	})

	for _, kind := range []Kind{KindACF, KindHist, KindTrace} {
		out, err := Render(fit, Spec{Kind: kind, Params: params, Width: 200, Height: 150}, "png")
		require.NoError(t, err, kind)
		assert.True(t, bytes.HasPrefix(out, pngMagic), kind)
	}

	_, err := NewController(fit, Options{Width: 200, Height: 150})
	assert.NoError(t, err, "an all-NaN first parameter still renders")
}

func TestRender_Errors(t *testing.T) {
	fit := testFit(t)

	_, err := Render(fit, Spec{Kind: KindACF, Params: []string{"mu"}}, "emf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Render(fit, Spec{Kind: KindACF}, "png")
	assert.ErrorIs(t, err, ErrNoParameters)

	_, err = Render(fit, Spec{Kind: KindACF, Params: []string{"nope"}}, "png")
	assert.ErrorIs(t, err, core.ErrUnknownParameter)

	_, err = Render(fit, Spec{Kind: "pairs", Params: []string{"mu"}}, "png")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestController_DefaultsToFirstParameter(t *testing.T) {
	c, err := NewController(testFit(t), Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	cfg := c.Config()
	assert.Equal(t, []string{"mu"}, cfg[KeyACFSelect])
	assert.Equal(t, "acf", cfg[KeyKind])

	id, frame := c.Frame()
	assert.NotEmpty(t, id)
	assert.True(t, bytes.HasPrefix(frame, pngMagic))
}

func TestController_DropsUnknownStoredSelection(t *testing.T) {
	c, err := NewController(testFit(t), Options{Select: []string{"gone"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"mu"}, c.Selected())
}

func TestController_ChangesRerenderAndNotify(t *testing.T) {
	n := &countingNotifier{}
	c, err := NewController(testFit(t), Options{Width: 300, Height: 200, Notify: n})
	require.NoError(t, err)
	first := c.Info().ID

	id, err := c.SelectACF([]string{"eta[1]", "eta[2]"})
	require.NoError(t, err)
	assert.NotEqual(t, first, id)
	assert.Equal(t, []string{"eta[1]", "eta[2]"}, c.Selected())

	id2, err := c.Change(KindTrace, nil)
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
	assert.Equal(t, KindTrace, c.Info().Kind)
	assert.Equal(t, []string{"eta[1]", "eta[2]"}, c.Selected(), "empty params keep the selection")

	_, err = c.Resize(400, 240)
	require.NoError(t, err)
	info := c.Info()
	assert.Equal(t, 400, info.Width)
	assert.Equal(t, 240, info.Height)

	assert.Equal(t, int32(3), n.n.Load())
}

func TestController_ChangeNormalisesKind(t *testing.T) {
	c, err := NewController(testFit(t), Options{Width: 200, Height: 150})
	require.NoError(t, err)

	_, err = c.Change("HIST", nil)
	require.NoError(t, err)
	assert.Equal(t, KindHist, c.Info().Kind)

	_, err = c.Change(" ACF ", nil)
	require.NoError(t, err)
	assert.Equal(t, KindACF, c.Info().Kind)
}

func TestController_RejectsBadInputWithoutChanging(t *testing.T) {
	n := &countingNotifier{}
	c, err := NewController(testFit(t), Options{Notify: n})
	require.NoError(t, err)
	before := c.Info()

	_, err = c.SelectACF([]string{"mu", "missing"})
	assert.ErrorIs(t, err, core.ErrUnknownParameter)

	_, err = c.Change("pairs", nil)
	assert.ErrorIs(t, err, ErrUnknownKind)

	assert.Equal(t, before.ID, c.Info().ID)
	assert.Equal(t, before.Params, c.Selected())
	assert.Zero(t, n.n.Load())
}

func TestController_SetFitKeepsSurvivingSelection(t *testing.T) {
	c, err := NewController(testFit(t), Options{Select: []string{"eta[1]", "lp__"}})
	require.NoError(t, err)

	smaller, err := core.NewFit("reloaded", []string{"lp__", "tau"}, 3, 1, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	_, err = c.SetFit(smaller)
	require.NoError(t, err)
	assert.Equal(t, []string{"lp__"}, c.Selected())
	assert.Equal(t, "reloaded", c.Info().Fit)
}

func TestController_Download(t *testing.T) {
	c, err := NewController(testFit(t), Options{Width: 200, Height: 150})
	require.NoError(t, err)

	data, ct, err := c.Download("svg")
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", ct)
	assert.Contains(t, string(data), "<svg")

	_, _, err = c.Download("emf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, MinSize, clamp(10))
	assert.Equal(t, MaxSize, clamp(99999))
	assert.Equal(t, 500, clamp(500))
}
