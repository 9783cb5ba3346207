package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/internal/port"
	"github.com/leapstack-labs/leapfit/internal/ui"
	"github.com/leapstack-labs/leapfit/internal/ui/notifier"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Name string
	Dev  bool

	// Serve is replaced in tests to avoid binding a socket.
	Serve func(ctx context.Context, server *ui.Server) error
	// Open opens the page URL; nil uses the system browser.
	Open func(url string)
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}
	return newServeCommand(opts)
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve <fit | files...>",
		Aliases: []string{"ui"},
		Short:   "Open the diagnostics viewer for a fit",
		Long: `Start a local web server showing diagnostic plots for a fitted model.

The fit is either the name of a cached fit or CmdStan CSV files (one per
chain) or a JSON fit file. Files are cached under their fit name.

The server binds a random free port between ui.port_min and ui.port_max
unless --port is given, opens the page in a browser, and runs until the
page's Close button is pressed or Ctrl+C.`,
		Example: `  # View a cached fit
  leapfit serve eight_schools

  # View CmdStan output, re-reading it while the sampler writes
  leapfit serve output-1.csv output-2.csv --name eight_schools --watch

  # Start with the histograms of two parameters
  leapfit serve eight_schools --kind hist --select mu --select tau

  # Serve on a fixed port without opening a browser
  leapfit serve eight_schools --port 38000 --no-browser`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Fit name (default: first file name)")
	cmd.Flags().String("host", "", "Interface to bind (default: 127.0.0.1)")
	cmd.Flags().Int("port", 0, "Port to serve on (default: random free port)")
	cmd.Flags().Bool("no-browser", false, "Don't auto-open browser")
	cmd.Flags().Bool("watch", true, "Reload the fit when its files change")
	cmd.Flags().String("kind", "", "Initial figure (acf|hist|trace)")
	cmd.Flags().StringArray("select", nil, "Initially selected parameter (repeatable)")
	cmd.Flags().Int("width", 0, "Figure width in pixels")
	cmd.Flags().Int("height", 0, "Figure height in pixels")
	cmd.Flags().Int("max-lag", 0, "Largest lag of the ACF figure")
	cmd.Flags().Int("bins", 0, "Histogram bins")
	cmd.Flags().BoolVar(&opts.Dev, "dev", false, "Serve assets from disk")
	_ = cmd.Flags().MarkHidden("dev")

	_ = cmd.RegisterFlagCompletionFunc("kind", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(figure.KindACF), string(figure.KindHist), string(figure.KindTrace)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runServe(cmd *cobra.Command, args []string, opts *ServeOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	logger := cmdCtx.Logger
	r := cmdCtx.Renderer
	uiCfg := *cfg.GetUIConfig()
	plotCfg := *cfg.GetPlotConfig()
	selected := cfg.ACFSelect

	// CLI flags override config file
	flags := cmd.Flags()
	if flags.Changed("host") {
		uiCfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		uiCfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("no-browser") {
		noBrowser, _ := flags.GetBool("no-browser")
		uiCfg.AutoOpen = !noBrowser
	}
	if flags.Changed("watch") {
		uiCfg.Watch, _ = flags.GetBool("watch")
	}
	if flags.Changed("kind") {
		plotCfg.DefaultKind, _ = flags.GetString("kind")
	}
	if flags.Changed("select") {
		selected, _ = flags.GetStringArray("select")
	}
	for name, dst := range map[string]*int{
		"width": &plotCfg.Width, "height": &plotCfg.Height, "max-lag": &plotCfg.MaxLag, "bins": &plotCfg.Bins,
	} {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fit, sources, err := cmdCtx.resolveFit(ctx, args, opts.Name)
	if err != nil {
		return err
	}

	kind, err := figure.ParseKind(plotCfg.DefaultKind)
	if err != nil {
		return err
	}

	n := notifier.New()
	ctrl, err := figure.NewController(fit, figure.Options{
		Kind:   kind,
		Select: selected,
		Width:  plotCfg.Width,
		Height: plotCfg.Height,
		MaxLag: plotCfg.MaxLag,
		Bins:   plotCfg.Bins,
		Logger: logger,
		Notify: n,
	})
	if err != nil {
		return fmt.Errorf("failed to render figure: %w", err)
	}

	p := uiCfg.Port
	if p == 0 {
		finder := &port.Finder{Host: uiCfg.Host, Min: uiCfg.PortMin, Max: uiCfg.PortMax}
		if p, err = finder.Find(ctx); err != nil {
			return err
		}
	}

	open := opts.Open
	if open == nil {
		open = openBrowser
	}

	server := ui.NewServer(ui.Config{
		Controller:    ctrl,
		Loader:        cmdCtx.Loader,
		Sources:       sources,
		Store:         cmdCtx.Store,
		Host:          uiCfg.Host,
		Port:          p,
		MaxConns:      uiCfg.MaxConns,
		Watch:         uiCfg.Watch && len(sources) > 0,
		SessionSecret: uiCfg.SessionSecret,
		IsDev:         opts.Dev,
		Logger:        logger,
		Notifier:      n,
		OnListen: func(url string) {
			r.Printf("Serving %s (%d draws, %d chains, %d parameters) on %s\n",
				fit.Name, fit.NumDraws, fit.NumChains, fit.NumParams(), url)
			r.Println("Press Ctrl+C or the Close button to stop")
			if uiCfg.AutoOpen {
				go open(url)
			}
		},
	})

	serve := opts.Serve
	if serve == nil {
		serve = func(ctx context.Context, s *ui.Server) error { return s.Serve(ctx) }
	}
	return serve(ctx, server)
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
