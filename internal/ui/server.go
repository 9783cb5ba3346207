// Package ui serves the diagnostics viewer: one page, its JSON and SSE
// endpoints, and the figure socket.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/internal/ui/notifier"
	"github.com/leapstack-labs/leapfit/internal/ui/router"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

// DefaultMaxConns bounds concurrent connections to the viewer.
const DefaultMaxConns = 64

const reloadDebounce = 250 * time.Millisecond

// FitLoader re-reads a fit from its source files.
type FitLoader interface {
	Load(ctx context.Context, name string, paths ...string) (*core.Fit, error)
}

// Server is the viewer's HTTP server.
type Server struct {
	ctrl         *figure.Controller
	loader       FitLoader
	store        core.Store
	sources      []string
	sessionStore *sessions.CookieStore
	host         string
	port         int
	maxConns     int
	watch        bool
	isDev        bool
	logger       *slog.Logger
	notifier     *notifier.Notifier
	onListen     func(url string)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Config holds configuration for the UI server.
type Config struct {
	Controller *figure.Controller
	// Loader and Sources are used to reload the fit when Watch is set.
	Loader  FitLoader
	Sources []string
	// Store, when set, receives reloaded fits.
	Store         core.Store
	Host          string
	Port          int
	MaxConns      int
	Watch         bool
	SessionSecret string
	IsDev         bool
	Logger        *slog.Logger
	Notifier      *notifier.Notifier
	// OnListen is called with the page URL once the listener is bound.
	OnListen func(url string)
}

// NewServer creates a new UI server instance.
func NewServer(cfg Config) *Server {
	secret := cfg.SessionSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
	}
	sessionStore := sessions.NewCookieStore([]byte(secret))
	sessionStore.MaxAge(86400 * 7)
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	n := cfg.Notifier
	if n == nil {
		n = notifier.New()
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}

	return &Server{
		ctrl:         cfg.Controller,
		loader:       cfg.Loader,
		store:        cfg.Store,
		sources:      cfg.Sources,
		sessionStore: sessionStore,
		host:         host,
		port:         cfg.Port,
		maxConns:     maxConns,
		watch:        cfg.Watch,
		isDev:        cfg.IsDev,
		logger:       logger,
		notifier:     n,
		onListen:     cfg.OnListen,
	}
}

// Notifier returns the server's notifier. The figure controller should
// broadcast through it.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// Stop asks a running server to shut down.
func (s *Server) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Serve binds the listener and blocks until the context is cancelled or
// the page asks to close. Failing to bind is returned as an error.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, s.maxConns)

	r := chi.NewMux()
	r.Use(
		middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: slogPrinter{s.logger}, NoColor: true}),
		middleware.Recoverer,
	)
	deps := router.Deps{
		Controller:   s.ctrl,
		SessionStore: s.sessionStore,
		Notifier:     s.notifier,
		Shutdown:     s.Stop,
		Logger:       s.logger,
		IsDev:        s.isDev,
	}
	if err := router.SetupRoutes(r, deps); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler: r,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := "http://" + ln.Addr().String() + "/"
	s.logger.Info("starting viewer", "url", url)
	if s.onListen != nil {
		s.onListen(url)
	}

	if s.watch && s.loader != nil && len(s.sources) > 0 {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		s.notifier.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Debug("shutting down viewer")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchFiles reloads the fit when one of its source files changes.
func (s *Server) watchFiles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	watched := make(map[string]struct{}, len(s.sources))
	dirs := make(map[string]struct{})
	for _, src := range s.sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			abs = src
		}
		watched[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	// Editors and samplers replace or append to files, so watch directories.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			s.logger.Error("failed to watch directory", "dir", dir, "error", err)
		}
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				name = event.Name
			}
			if _, ok := watched[name]; !ok {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				s.logger.Debug("source changed, reloading fit", "file", name)
				if err := s.reload(ctx); err != nil {
					s.logger.Error("reload failed", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// reload re-reads the sources and swaps the displayed fit.
func (s *Server) reload(ctx context.Context) error {
	name := s.ctrl.Fit().Name
	fit, err := s.loader.Load(ctx, name, s.sources...)
	if err != nil {
		return err
	}
	if _, err := s.ctrl.SetFit(fit); err != nil {
		return err
	}
	if s.store != nil {
		if _, err := s.store.SaveFit(ctx, fit); err != nil {
			s.logger.Warn("failed to cache reloaded fit", "fit", name, "error", err)
		}
	}
	s.logger.Info("fit reloaded", "fit", name, "draws", fit.NumDraws, "chains", fit.NumChains)
	return nil
}

// slogPrinter adapts a slog.Logger to chi's request logger.
type slogPrinter struct {
	logger *slog.Logger
}

func (p slogPrinter) Print(v ...any) {
	p.logger.Debug(fmt.Sprint(v...))
}
