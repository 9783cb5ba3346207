// Package router sets up HTTP routes for the UI server.
package router

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/leapfit/internal/figure"
	socketFeature "github.com/leapstack-labs/leapfit/internal/ui/features/socket"
	viewerFeature "github.com/leapstack-labs/leapfit/internal/ui/features/viewer"
	"github.com/leapstack-labs/leapfit/internal/ui/notifier"
	"github.com/leapstack-labs/leapfit/internal/ui/resources"
)

// Deps are the shared objects handed to every feature.
type Deps struct {
	Controller   *figure.Controller
	SessionStore sessions.Store
	Notifier     *notifier.Notifier
	Shutdown     func()
	Logger       *slog.Logger
	IsDev        bool
}

// SetupRoutes configures all routes for the UI server.
func SetupRoutes(router chi.Router, deps Deps) error {
	router.Handle("/static/*", resources.Handler())
	router.Handle("/figure.js", resources.FileHandler(resources.FigureScript))

	if err := viewerFeature.SetupRoutes(router, deps.Controller, deps.SessionStore, deps.Notifier,
		deps.Shutdown, deps.Logger, deps.IsDev); err != nil {
		return err
	}

	if err := socketFeature.SetupRoutes(router, deps.Controller, deps.Notifier, deps.Logger); err != nil {
		return err
	}

	return nil
}
