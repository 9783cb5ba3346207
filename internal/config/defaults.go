package config

import (
	"github.com/leapstack-labs/leapfit/internal/diag"
	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/internal/port"
)

// Default configuration values.
const (
	DefaultHost     = "127.0.0.1"
	DefaultMaxConns = 64
)

// DefaultUIConfig returns a UIConfig with default values.
func DefaultUIConfig() *UIConfig {
	return &UIConfig{
		Host:     DefaultHost,
		PortMin:  port.DefaultMin,
		PortMax:  port.DefaultMax,
		AutoOpen: true,
		Watch:    true,
		MaxConns: DefaultMaxConns,
	}
}

// DefaultPlotConfig returns a PlotConfig with default values.
func DefaultPlotConfig() *PlotConfig {
	return &PlotConfig{
		Width:       figure.DefaultWidth,
		Height:      figure.DefaultHeight,
		MaxLag:      diag.DefaultMaxLag,
		Bins:        diag.DefaultBins,
		DefaultKind: string(figure.KindACF),
	}
}

// ApplyUIDefaults fills unset UI values. A zero Port means "pick a free one".
func ApplyUIDefaults(c *UIConfig) {
	if c == nil {
		return
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.PortMin == 0 {
		c.PortMin = port.DefaultMin
	}
	if c.PortMax == 0 {
		c.PortMax = port.DefaultMax
	}
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
}

// ApplyPlotDefaults fills unset plot values.
func ApplyPlotDefaults(c *PlotConfig) {
	if c == nil {
		return
	}
	if c.Width == 0 {
		c.Width = figure.DefaultWidth
	}
	if c.Height == 0 {
		c.Height = figure.DefaultHeight
	}
	if c.MaxLag == 0 {
		c.MaxLag = diag.DefaultMaxLag
	}
	if c.Bins == 0 {
		c.Bins = diag.DefaultBins
	}
	if c.DefaultKind == "" {
		c.DefaultKind = string(figure.KindACF)
	}
}
