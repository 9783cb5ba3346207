// Package config holds the configuration types shared by the CLI and the
// viewer, with their defaults.
package config

// UIConfig configures the viewer's web server.
type UIConfig struct {
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	PortMin       int    `koanf:"port_min"`
	PortMax       int    `koanf:"port_max"`
	AutoOpen      bool   `koanf:"auto_open"`
	Watch         bool   `koanf:"watch"`
	SessionSecret string `koanf:"session_secret"`
	MaxConns      int    `koanf:"max_conns"`
}

// PlotConfig configures the rendered figure.
type PlotConfig struct {
	Width       int    `koanf:"width"`
	Height      int    `koanf:"height"`
	MaxLag      int    `koanf:"max_lag"`
	Bins        int    `koanf:"bins"`
	DefaultKind string `koanf:"default_kind"`
}
