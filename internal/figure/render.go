// Package figure renders diagnostic plots of a fit and keeps the figure
// currently shown by the viewer.
package figure

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/leapstack-labs/leapfit/internal/diag"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

// Kind selects the plot drawn for the selected parameters.
type Kind string

// Plot kinds.
const (
	KindACF   Kind = "acf"
	KindHist  Kind = "hist"
	KindTrace Kind = "trace"
)

// Default figure size in pixels.
const (
	DefaultWidth  = 960
	DefaultHeight = 640
)

// Size limits in pixels. Resize requests are clamped to them.
const (
	MinSize = 64
	MaxSize = 4096
)

// screenDPI converts pixel sizes to plot lengths. It matches the default
// resolution of the raster canvases.
const screenDPI = 96

// Errors returned by rendering.
var (
	ErrUnsupportedFormat = errors.New("unsupported figure format")
	ErrUnknownKind       = errors.New("unknown figure kind")
	ErrNoParameters      = errors.New("no parameters selected")
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindACF, KindHist, KindTrace:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Spec describes one figure.
type Spec struct {
	Kind   Kind
	Params []string
	Width  int
	Height int
	MaxLag int
	Bins   int
}

var mimeTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"svg":  "image/svg+xml",
	"pdf":  "application/pdf",
	"eps":  "application/postscript",
	"ps":   "application/postscript",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
}

// Formats lists the supported download formats.
func Formats() []string {
	return []string{"png", "jpeg", "jpg", "svg", "pdf", "eps", "ps", "tif", "tiff"}
}

// ContentType returns the MIME type served for a format.
func ContentType(format string) (string, error) {
	mt, ok := mimeTypes[strings.ToLower(format)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return mt, nil
}

func canvasFormat(format string) string {
	f := strings.ToLower(format)
	if f == "ps" {
		return "eps"
	}
	return f
}

func pixels(px int) vg.Length {
	return vg.Length(px) / screenDPI * vg.Inch
}

// Render draws the figure described by spec and encodes it in format.
func Render(fit *core.Fit, spec Spec, format string) ([]byte, error) {
	if _, err := ContentType(format); err != nil {
		return nil, err
	}
	if len(spec.Params) == 0 {
		return nil, ErrNoParameters
	}
	idx, err := fit.Resolve(spec.Params)
	if err != nil {
		return nil, err
	}
	if spec.Width <= 0 {
		spec.Width = DefaultWidth
	}
	if spec.Height <= 0 {
		spec.Height = DefaultHeight
	}

	var grid [][]*plot.Plot
	switch spec.Kind {
	case KindACF:
		grid, err = acfPlots(fit, idx, spec.MaxLag)
	case KindHist:
		grid, err = histPlots(fit, idx, spec.Bins)
	case KindTrace:
		grid, err = tracePlots(fit, idx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	if err != nil {
		return nil, err
	}

	c, err := draw.NewFormattedCanvas(pixels(spec.Width), pixels(spec.Height), canvasFormat(format))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, format, err)
	}
	dc := draw.New(c)
	tiles := draw.Tiles{
		Rows:      len(grid),
		Cols:      len(grid[0]),
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}
	canvases := plot.Align(grid, tiles, dc)
	for j, row := range grid {
		for i, p := range row {
			p.Draw(canvases[j][i])
		}
	}

	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode %s figure: %w", format, err)
	}
	out := buf.Bytes()
	if canvasFormat(format) == "eps" {
		out = fixPostScriptMagic(out)
	}
	return out, nil
}

// fixPostScriptMagic repairs the doubled comment marker vgeps writes in
// front of the PostScript header, which readers reject.
func fixPostScriptMagic(b []byte) []byte {
	if bytes.HasPrefix(b, []byte("%%!PS")) {
		return b[1:]
	}
	return b
}

// acfPlots lays out one row per parameter and one column per chain.
func acfPlots(fit *core.Fit, idx []int, maxLag int) ([][]*plot.Plot, error) {
	band := diag.ConfidenceBand(fit.NumDraws)
	grid := make([][]*plot.Plot, len(idx))
	for r, param := range idx {
		grid[r] = make([]*plot.Plot, fit.NumChains)
		for c := 0; c < fit.NumChains; c++ {
			p := plot.New()
			if r == 0 {
				p.Title.Text = fmt.Sprintf("chain %d", c+1)
			}
			if c == 0 {
				p.Y.Label.Text = fit.Parameters[param]
			}
			if r == len(idx)-1 {
				p.X.Label.Text = "lag"
			}
			p.Y.Min, p.Y.Max = -1, 1
			grid[r][c] = p

			series := finite(fit.Chain(param, c))
			if len(series) == 0 {
				continue
			}
			acf, err := diag.ACF(series, maxLag)
			if err != nil {
				return nil, fmt.Errorf("%s chain %d: %w", fit.Parameters[param], c+1, err)
			}

			bars, err := plotter.NewBarChart(plotter.Values(acf), vg.Points(2))
			if err != nil {
				return nil, err
			}
			bars.Color = plotutil.Color(0)
			bars.LineStyle.Width = 0

			upper := bandLine(band, len(acf)-1)
			lower := bandLine(-band, len(acf)-1)
			p.Add(bars, upper, lower, plotter.NewGrid())
		}
	}
	return grid, nil
}

func bandLine(y float64, maxLag int) *plotter.Function {
	f := plotter.NewFunction(func(float64) float64 { return y })
	f.XMin, f.XMax = 0, float64(maxLag)
	f.Color = color.Gray{Y: 96}
	f.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	return f
}

// histPlots draws one pooled histogram per parameter, laid out in a grid.
func histPlots(fit *core.Fit, idx []int, bins int) ([][]*plot.Plot, error) {
	cols := int(math.Ceil(math.Sqrt(float64(len(idx)))))
	rows := (len(idx) + cols - 1) / cols
	grid := make([][]*plot.Plot, rows)
	for r := range grid {
		grid[r] = make([]*plot.Plot, cols)
		for c := range grid[r] {
			grid[r][c] = plot.New()
			grid[r][c].HideAxes()
		}
	}

	for i, param := range idx {
		p := plot.New()
		p.Title.Text = fit.Parameters[param]
		grid[i/cols][i%cols] = p

		values := finite(fit.Pooled(param))
		if len(values) == 0 {
			continue
		}
		h, err := diag.NewHistogram(values, bins)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fit.Parameters[param], err)
		}
		hb := make([]plotter.HistogramBin, len(h.Counts))
		for b := range hb {
			hb[b] = plotter.HistogramBin{Min: h.Edges[b], Max: h.Edges[b+1], Weight: h.Counts[b]}
		}
		p.Add(&plotter.Histogram{
			Bins:      hb,
			Width:     h.Edges[1] - h.Edges[0],
			FillColor: plotutil.Color(i),
			LineStyle: plotter.DefaultLineStyle,
		})
	}
	return grid, nil
}

// tracePlots draws the chains of each parameter against the draw number.
func tracePlots(fit *core.Fit, idx []int) ([][]*plot.Plot, error) {
	grid := make([][]*plot.Plot, len(idx))
	for r, param := range idx {
		p := plot.New()
		p.Y.Label.Text = fit.Parameters[param]
		if r == len(idx)-1 {
			p.X.Label.Text = "draw"
		}
		for c := 0; c < fit.NumChains; c++ {
			series := fit.Chain(param, c)
			xy := make(plotter.XYs, 0, len(series))
			for d, v := range series {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				xy = append(xy, plotter.XY{X: float64(d + 1), Y: v})
			}
			if len(xy) == 0 {
				continue
			}
			l, err := plotter.NewLine(xy)
			if err != nil {
				return nil, fmt.Errorf("%s chain %d: %w", fit.Parameters[param], c+1, err)
			}
			l.Color = plotutil.Color(c)
			p.Add(l)
			if fit.NumChains > 1 {
				p.Legend.Add(fmt.Sprintf("chain %d", c+1), l)
			}
		}
		p.Legend.Top = true
		grid[r] = []*plot.Plot{p}
	}
	return grid, nil
}

// finite drops NaN and infinite values.
func finite(x []float64) []float64 {
	out := x[:0:0]
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
