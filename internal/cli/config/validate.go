package config

import (
	"fmt"

	"github.com/leapstack-labs/leapfit/internal/figure"
)

var outputModes = map[string]bool{
	"": true, "auto": true, "text": true, "markdown": true, "json": true, "yaml": true,
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !outputModes[c.OutputFormat] {
		return fmt.Errorf("unknown output format %q (want auto, text, markdown, json or yaml)", c.OutputFormat)
	}

	ui := c.GetUIConfig()
	if ui.Port < 0 || ui.Port > 65535 {
		return fmt.Errorf("ui.port out of range: %d", ui.Port)
	}
	if ui.PortMin < 1 || ui.PortMax > 65535 || ui.PortMin > ui.PortMax {
		return fmt.Errorf("invalid ui port range %d..%d", ui.PortMin, ui.PortMax)
	}

	plot := c.GetPlotConfig()
	if _, err := figure.ParseKind(plot.DefaultKind); err != nil {
		return fmt.Errorf("plot.default_kind: %w", err)
	}
	if plot.Width < 0 || plot.Height < 0 || plot.MaxLag < 0 || plot.Bins < 0 {
		return fmt.Errorf("plot sizes must not be negative")
	}
	return nil
}
