package figure

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapfit/pkg/core"
)

// Configuration keys of the viewer state.
const (
	KeyACFSelect = "acf_select"
	KeyKind      = "kind"
)

// Broadcaster is told about every figure change.
type Broadcaster interface {
	Broadcast()
}

// Options configure a Controller.
type Options struct {
	Kind   Kind
	Select []string
	Width  int
	Height int
	MaxLag int
	Bins   int
	Logger *slog.Logger
	Notify Broadcaster
}

// Info describes the current figure.
type Info struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Params     []string  `json:"params"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Fit        string    `json:"fit"`
	NumDraws   int       `json:"draws"`
	NumChains  int       `json:"chains"`
	RenderedAt time.Time `json:"rendered_at"`
}

// Controller owns the figure shown by the viewer. Every change re-renders
// the whole figure and notifies subscribers.
type Controller struct {
	mu     sync.RWMutex
	fit    *core.Fit
	spec   Spec
	id     string
	frame  []byte
	at     time.Time
	logger *slog.Logger
	notify Broadcaster
}

// NewController renders the initial figure for fit. Without a selection the
// first parameter is shown.
func NewController(fit *core.Fit, opts Options) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	kind := opts.Kind
	if kind == "" {
		kind = KindACF
	}
	c := &Controller{
		fit: fit,
		spec: Spec{
			Kind:   kind,
			Params: opts.Select,
			Width:  opts.Width,
			Height: opts.Height,
			MaxLag: opts.MaxLag,
			Bins:   opts.Bins,
		},
		logger: logger,
		notify: opts.Notify,
	}
	if c.spec.Width <= 0 {
		c.spec.Width = DefaultWidth
	}
	if c.spec.Height <= 0 {
		c.spec.Height = DefaultHeight
	}

	if _, err := fit.Resolve(c.spec.Params); err != nil {
		logger.Warn("ignoring stored selection", "error", err)
		c.spec.Params = nil
	}
	if len(c.spec.Params) == 0 {
		c.spec.Params = defaultSelection(fit)
	}
	if err := c.render(); err != nil {
		return nil, err
	}
	return c, nil
}

func defaultSelection(fit *core.Fit) []string {
	return []string{fit.Parameters[0]}
}

// Fit returns the fit being displayed.
func (c *Controller) Fit() *core.Fit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fit
}

// Config returns a copy of the configuration map.
func (c *Controller) Config() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]any{
		KeyACFSelect: slices.Clone(c.spec.Params),
		KeyKind:      string(c.spec.Kind),
	}
}

// Selected returns the selected parameters.
func (c *Controller) Selected() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.spec.Params)
}

// Info describes the current figure.
func (c *Controller) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Info{
		ID:         c.id,
		Kind:       c.spec.Kind,
		Params:     slices.Clone(c.spec.Params),
		Width:      c.spec.Width,
		Height:     c.spec.Height,
		Fit:        c.fit.Name,
		NumDraws:   c.fit.NumDraws,
		NumChains:  c.fit.NumChains,
		RenderedAt: c.at,
	}
}

// Change switches the plot kind. A non-empty params list also replaces
// the selection. It returns the new figure id.
func (c *Controller) Change(kind Kind, params []string) (string, error) {
	parsed, err := ParseKind(string(kind))
	if err != nil {
		return "", err
	}
	return c.update(func(s *Spec) error {
		s.Kind = parsed
		if len(params) > 0 {
			if _, err := c.fit.Resolve(params); err != nil {
				return err
			}
			s.Params = slices.Clone(params)
		}
		return nil
	})
}

// SelectACF replaces the selected parameters. An empty list selects the
// first parameter.
func (c *Controller) SelectACF(params []string) (string, error) {
	return c.update(func(s *Spec) error {
		if len(params) == 0 {
			s.Params = defaultSelection(c.fit)
			return nil
		}
		if _, err := c.fit.Resolve(params); err != nil {
			return err
		}
		s.Params = slices.Clone(params)
		return nil
	})
}

// Resize changes the pixel size of the figure. Sizes are clamped to
// [MinSize, MaxSize].
func (c *Controller) Resize(width, height int) (string, error) {
	return c.update(func(s *Spec) error {
		s.Width = clamp(width)
		s.Height = clamp(height)
		return nil
	})
}

// SetFit swaps the displayed fit, keeping the selected parameters that
// still exist.
func (c *Controller) SetFit(fit *core.Fit) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, prevSpec := c.fit, c.spec
	var keep []string
	for _, p := range c.spec.Params {
		if _, err := fit.ParamIndex(p); err == nil {
			keep = append(keep, p)
		}
	}
	c.fit = fit
	c.spec.Params = keep
	if len(keep) == 0 {
		c.spec.Params = defaultSelection(fit)
	}
	if err := c.render(); err != nil {
		c.fit, c.spec = prev, prevSpec
		return "", err
	}
	c.broadcast()
	return c.id, nil
}

func (c *Controller) update(apply func(*Spec) error) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.spec
	prev.Params = slices.Clone(c.spec.Params)
	if err := apply(&c.spec); err != nil {
		c.spec = prev
		return "", err
	}
	if err := c.render(); err != nil {
		c.spec = prev
		return "", err
	}
	c.broadcast()
	return c.id, nil
}

// render draws the current spec as PNG. Callers hold the write lock.
func (c *Controller) render() error {
	start := time.Now()
	frame, err := Render(c.fit, c.spec, "png")
	if err != nil {
		return fmt.Errorf("failed to render %s figure: %w", c.spec.Kind, err)
	}
	c.frame = frame
	c.id = uuid.NewString()
	c.at = time.Now().UTC()
	c.logger.Debug("rendered figure",
		"id", c.id, "kind", c.spec.Kind, "params", len(c.spec.Params),
		"bytes", len(frame), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (c *Controller) broadcast() {
	if c.notify != nil {
		c.notify.Broadcast()
	}
}

// Frame returns the id and PNG encoding of the current figure.
func (c *Controller) Frame() (string, []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id, c.frame
}

// Download renders the current figure in format.
func (c *Controller) Download(format string) ([]byte, string, error) {
	ct, err := ContentType(format)
	if err != nil {
		return nil, "", err
	}
	c.mu.RLock()
	fit, spec := c.fit, c.spec
	c.mu.RUnlock()

	data, err := Render(fit, spec, format)
	if err != nil {
		return nil, "", err
	}
	return data, ct, nil
}

func clamp(px int) int {
	return max(MinSize, min(MaxSize, px))
}
