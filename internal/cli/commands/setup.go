package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapfit/internal/cli/config"
	"github.com/leapstack-labs/leapfit/internal/cli/output"
	sharedcfg "github.com/leapstack-labs/leapfit/internal/config"
	"github.com/leapstack-labs/leapfit/internal/stanfit"
	"github.com/leapstack-labs/leapfit/internal/state"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    core.Store
	Loader   *stanfit.Loader
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with the fit cache opened.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutStore(cmd)

	store, err := openStore(cmdCtx.Cfg.StatePath)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Store = store

	cleanup := func() {
		_ = store.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext without the fit cache.
// Useful for commands that only read files.
func NewCommandContextWithoutStore(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if cfg == nil {
		cfg = getConfig()
	}
	logger := config.GetLogger(ctx)
	r := output.FromContext(ctx)
	if r == nil {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Loader:   stanfit.NewLoader(logger),
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	cfg := &config.Config{
		StatePath:    getEnvOrDefault(config.EnvPrefix+"STATE_PATH", config.DefaultStateFile),
		Verbose:      os.Getenv(config.EnvPrefix+"VERBOSE") == "true",
		OutputFormat: getEnvOrDefault(config.EnvPrefix+"OUTPUT", config.DefaultOutput),
		UI:           sharedcfg.DefaultUIConfig(),
		Plot:         sharedcfg.DefaultPlotConfig(),
	}
	return cfg
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func openStore(path string) (*state.SQLiteStore, error) {
	// Ensure state directory exists
	stateDir := filepath.Dir(path)
	if path != ":memory:" && stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore()
	if err := store.Open(path); err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize fit cache: %w", err)
	}
	return store, nil
}

// isFitName reports whether args name a cached fit rather than files.
func isFitName(args []string) bool {
	return len(args) == 1 && filepath.Ext(args[0]) == ""
}

// resolveFit returns the fit named by args: a cached fit when args is a
// single name, otherwise the fit read from the files, which is then cached.
// The second result lists the files the fit was read from, if any still exist.
func (c *CommandContext) resolveFit(ctx context.Context, args []string, name string) (*core.Fit, []string, error) {
	if isFitName(args) {
		if c.Store == nil {
			return nil, nil, fmt.Errorf("fit cache not available for %q", args[0])
		}
		fit, err := c.Store.GetFit(ctx, args[0])
		if errors.Is(err, core.ErrFitNotFound) {
			return nil, nil, fmt.Errorf("no cached fit named %q (import it first or pass its files)", args[0])
		}
		if err != nil {
			return nil, nil, err
		}
		return fit, existingSources(fit.Source), nil
	}

	fit, err := c.Loader.Load(ctx, name, args...)
	if err != nil {
		return nil, nil, err
	}
	if c.Store != nil {
		if _, err := c.Store.SaveFit(ctx, fit); err != nil {
			c.Logger.Warn("failed to cache fit", "fit", fit.Name, "error", err)
		}
	}
	return fit, args, nil
}

func existingSources(source string) []string {
	if source == "" {
		return nil
	}
	paths := strings.Split(source, ",")
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil
		}
	}
	return paths
}
