package viewer

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/internal/ui/notifier"
)

// SetupRoutes configures routes for the viewer feature.
func SetupRoutes(
	router chi.Router,
	ctrl *figure.Controller,
	sessionStore sessions.Store,
	notify *notifier.Notifier,
	shutdown func(),
	logger *slog.Logger,
	isDev bool,
) error {
	handlers := NewHandlers(ctrl, sessionStore, notify, shutdown, logger, isDev)

	router.Get("/", handlers.ViewerPage)
	router.Get("/updates", handlers.Updates)
	router.Get("/query_parameters", handlers.QueryParameters)
	router.Post("/plot_change", handlers.PlotChange)
	router.Post("/acf_select", handlers.ACFSelect)
	router.Get("/summary", handlers.Summary)
	router.Get("/download.{fmt}", handlers.Download)
	router.Get("/closeapp", handlers.CloseApp)

	return nil
}
