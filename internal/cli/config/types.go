// Package config provides configuration management for the LeapFit CLI.
//
// The viewer and plot sections are defined in internal/config and
// re-exported here via type aliases for convenience.
package config

import (
	sharedcfg "github.com/leapstack-labs/leapfit/internal/config"
)

// UIConfig is an alias for the shared viewer configuration.
type UIConfig = sharedcfg.UIConfig

// PlotConfig is an alias for the shared plot configuration.
type PlotConfig = sharedcfg.PlotConfig

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string      `koanf:"state_path"`
	Verbose      bool        `koanf:"verbose"`
	OutputFormat string      `koanf:"output"`
	UI           *UIConfig   `koanf:"ui"`
	Plot         *PlotConfig `koanf:"plot"`
	// ACFSelect is the initial parameter selection of the ACF figure.
	ACFSelect []string `koanf:"acf_select"`
}

// GetUIConfig returns the UI config with defaults applied for any unset values.
func (c *Config) GetUIConfig() *UIConfig {
	if c.UI == nil {
		c.UI = sharedcfg.DefaultUIConfig()
	}
	sharedcfg.ApplyUIDefaults(c.UI)
	return c.UI
}

// GetPlotConfig returns the plot config with defaults applied for any unset values.
func (c *Config) GetPlotConfig() *PlotConfig {
	if c.Plot == nil {
		c.Plot = sharedcfg.DefaultPlotConfig()
	}
	sharedcfg.ApplyPlotDefaults(c.Plot)
	return c.Plot
}

// Default configuration values.
const (
	DefaultStateFile = ".leapfit/cache.db"
	DefaultOutput    = "auto" // TTY=text, non-TTY=markdown
)
