package viewer

import (
	"context"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/bytedance/sonic"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/leapstack-labs/leapfit/internal/diag"
	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/internal/ui/resources"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"

var numbers = message.NewPrinter(language.English)

type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(parts ...string) {
	for _, p := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, p)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) render(ctx context.Context, c templ.Component) {
	if h.err != nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

// Page renders the full viewer page.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!doctype html><html lang="en"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.raw(`<title>`)
		h.text(data.Title)
		h.raw(` - LeapFit</title>`)
		h.raw(`<link rel="stylesheet" href="`, resources.StaticPath("style.css"), `">`)
		h.raw(`<script type="module" src="`, datastarScript, `"></script>`)
		h.raw(`<script defer src="/figure.js"></script>`)
		h.raw(`</head><body>`)

		h.raw(`<main id="viewer" data-signals="`, templ.EscapeString(selectionSignals(data.Selected)), `"`,
			` data-init="@get('/updates')">`)
		h.raw(`<header class="toolbar"><h1>`)
		h.text(data.Info.Fit)
		if data.IsDev {
			h.raw(` <small class="dev">dev</small>`)
		}
		h.raw(`</h1><nav class="kinds">`)
		for _, k := range []figure.Kind{figure.KindACF, figure.KindHist, figure.KindTrace} {
			h.raw(`<button type="button" data-kind="`, string(k), `">`, kindLabel(k), `</button>`)
		}
		h.raw(`</nav><nav class="downloads">`)
		for _, f := range data.Formats {
			h.raw(`<a href="/download.`, templ.EscapeString(f), `" download>`, templ.EscapeString(f), `</a>`)
		}
		h.raw(`</nav><button type="button" id="closeapp">Close</button></header>`)

		h.raw(`<section class="layout"><aside>`)
		h.render(ctx, Picker(data.Groups, data.Selected))
		h.raw(`</aside><section class="figure-pane">`)
		h.render(ctx, FigureInfo(data.Info))
		h.raw(`<div id="figure" data-ws="`, templ.EscapeString(data.WSURI), `">`,
			`<img id="figure-img" alt="figure"></div>`)
		h.raw(`</section></section>`)
		h.render(ctx, SummaryTable(data.Summary))
		h.raw(`</main></body></html>`)
		return h.err
	})
}

func kindLabel(k figure.Kind) string {
	switch k {
	case figure.KindACF:
		return "Autocorrelation"
	case figure.KindHist:
		return "Histogram"
	case figure.KindTrace:
		return "Trace"
	default:
		return string(k)
	}
}

func selectionSignals(selected []string) string {
	if selected == nil {
		selected = []string{}
	}
	data, err := sonic.MarshalString(SelectSignals{Selected: selected})
	if err != nil {
		return `{"selected":[]}`
	}
	return data
}

// Picker renders the grouped parameter checkboxes.
func Picker(groups core.ParameterGroups, selected []string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<form id="picker" class="picker">`)
		for _, g := range groups {
			h.raw(`<fieldset><legend>`)
			h.text(g.Name)
			h.raw(`</legend>`)
			for _, p := range g.Parameters {
				h.raw(`<label><input type="checkbox" data-bind:selected value="`, templ.EscapeString(p), `"`)
				if slices.Contains(selected, p) {
					h.raw(` checked`)
				}
				h.raw(`> `)
				h.text(p)
				h.raw(`</label>`)
			}
			h.raw(`</fieldset>`)
		}
		h.raw(`<button type="button" data-on:click="@post('/acf_select')">Apply</button></form>`)
		return h.err
	})
}

// FigureInfo renders the description of the current figure.
func FigureInfo(info figure.Info) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<div id="figure-info" class="figure-info" data-figure-id="`, templ.EscapeString(info.ID), `">`)
		h.raw(`<span class="kind">`, kindLabel(info.Kind), `</span> `)
		h.raw(`<span class="params">`)
		h.text(strings.Join(info.Params, ", "))
		h.raw(`</span> `)
		h.raw(`<span class="shape">`)
		h.text(numbers.Sprintf("%d draws x %d chains", info.NumDraws, info.NumChains))
		h.raw(`</span></div>`)
		return h.err
	})
}

// SummaryTable renders the posterior summary.
func SummaryTable(s *diag.Summary) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<section id="summary" class="summary">`)
		if s == nil {
			h.raw(`</section>`)
			return h.err
		}
		h.raw(`<table><thead><tr><th>parameter</th><th>mean</th><th>se_mean</th><th>sd</th>`)
		for _, p := range s.Probs {
			h.raw(`<th>`, numbers.Sprintf("%g%%", p*100), `</th>`)
		}
		h.raw(`<th>n_eff</th><th>Rhat</th></tr></thead><tbody>`)
		for _, ps := range s.Params {
			h.raw(`<tr><td>`)
			h.text(ps.Name)
			h.raw(`</td>`)
			cells := append([]float64{ps.Mean, ps.SEMean, ps.SD}, ps.Quantiles...)
			for _, v := range cells {
				h.raw(`<td>`, formatStat(v, 2), `</td>`)
			}
			h.raw(`<td>`, formatStat(ps.NEff, 0), `</td><td>`, formatStat(ps.RHat, 2), `</td></tr>`)
		}
		h.raw(`</tbody></table></section>`)
		return h.err
	})
}

// Closed replaces the page once the viewer has stopped.
func Closed() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<main id="viewer"><p class="closed">The viewer has been closed.</p></main>`)
		return err
	})
}

func formatStat(v float64, digits int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return numbers.Sprintf("%."+strconv.Itoa(digits)+"f", v)
}
