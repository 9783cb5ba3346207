package viewer

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/leapfit/internal/diag"
	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/internal/ui/notifier"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

// Handlers provides HTTP handlers for the viewer.
type Handlers struct {
	ctrl         *figure.Controller
	sessionStore sessions.Store
	notifier     *notifier.Notifier
	shutdown     func()
	logger       *slog.Logger
	isDev        bool
}

// NewHandlers creates a new Handlers instance. shutdown is called once
// by CloseApp.
func NewHandlers(
	ctrl *figure.Controller,
	sessionStore sessions.Store,
	notify *notifier.Notifier,
	shutdown func(),
	logger *slog.Logger,
	isDev bool,
) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if shutdown == nil {
		shutdown = func() {}
	}
	return &Handlers{
		ctrl:         ctrl,
		sessionStore: sessionStore,
		notifier:     notify,
		shutdown:     shutdown,
		logger:       logger,
		isDev:        isDev,
	}
}

// ViewerPage renders the page. A selection stored in the session is
// restored first.
func (h *Handlers) ViewerPage(w http.ResponseWriter, r *http.Request) {
	if stored := h.sessionSelection(r); len(stored) > 0 && !slices.Equal(stored, h.ctrl.Selected()) {
		if _, err := h.ctrl.SelectACF(stored); err != nil {
			h.logger.Debug("session selection no longer applies", "error", err)
		}
	}

	fit := h.ctrl.Fit()
	data := PageData{
		Title:    fit.Name,
		WSURI:    websocketURI(r),
		IsDev:    h.isDev,
		Info:     h.ctrl.Info(),
		Groups:   core.GroupParameters(fit.Parameters),
		Selected: h.ctrl.Selected(),
		Summary:  diag.Summarize(fit),
		Formats:  figure.Formats(),
	}
	if err := Page(data).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func websocketURI(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/ws"
}

// QueryParameters answers with the parameter names grouped by prefix.
func (h *Handlers) QueryParameters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, core.GroupParameters(h.ctrl.Fit().Parameters))
}

// PlotChange switches the figure kind. The form field change_to names the
// kind; repeated params fields optionally replace the selection.
func (h *Handlers) PlotChange(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := figure.ParseKind(r.Form.Get("change_to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.ctrl.Change(kind, formList(r.Form["params"]))
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, changeResponse{ID: id, Kind: kind, Params: h.ctrl.Selected()})
}

// formList drops blank entries. Flat names such as "theta[1,2]" contain
// commas, so values are never split.
func formList(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ACFSelect applies the parameters chosen in the picker and stores them in
// the session.
func (h *Handlers) ACFSelect(w http.ResponseWriter, r *http.Request) {
	// Signals must be read before the SSE writer takes the response.
	var signals SelectSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		sse := datastar.NewSSE(w, r)
		_ = sse.ConsoleError(fmt.Errorf("failed to read signals: %w", err))
		return
	}

	_, selErr := h.ctrl.SelectACF(signals.Selected)
	if selErr == nil {
		h.saveSelection(w, r, h.ctrl.Selected())
	}

	sse := datastar.NewSSE(w, r)
	if selErr != nil {
		_ = sse.ConsoleError(selErr)
	}
	if err := sse.PatchElementTempl(Picker(core.GroupParameters(h.ctrl.Fit().Parameters), h.ctrl.Selected())); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// Updates is the long-lived SSE stream of the page. It pushes the figure
// description after every change and replaces the page on shutdown.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates := h.notifier.Subscribe()
	defer h.notifier.Unsubscribe(updates)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.notifier.Done():
			_ = sse.PatchElementTempl(Closed())
			return
		case <-updates:
			if err := h.sendUpdate(sse); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

func (h *Handlers) sendUpdate(sse *datastar.ServerSentEventGenerator) error {
	if err := sse.PatchElementTempl(FigureInfo(h.ctrl.Info())); err != nil {
		return err
	}
	fit := h.ctrl.Fit()
	if err := sse.PatchElementTempl(Picker(core.GroupParameters(fit.Parameters), h.ctrl.Selected())); err != nil {
		return err
	}
	return sse.PatchElementTempl(SummaryTable(diag.Summarize(fit)))
}

// Summary answers with the posterior summary as JSON.
func (h *Handlers) Summary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, diag.Summarize(h.ctrl.Fit()))
}

// Download renders the current figure in the format named by the URL.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "fmt")
	data, contentType, err := h.ctrl.Download(format)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.ctrl.Fit().Name+"."+format))
	_, _ = w.Write(data)
}

// CloseApp stops the viewer. Connected clients are told before the server
// goes down.
func (h *Handlers) CloseApp(w http.ResponseWriter, _ *http.Request) {
	h.logger.Info("close requested from the browser")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("closing"))
	h.notifier.Shutdown()
	h.shutdown()
}

func (h *Handlers) sessionSelection(r *http.Request) []string {
	if h.sessionStore == nil {
		return nil
	}
	session, err := h.sessionStore.Get(r, sessionName)
	if err != nil {
		return nil
	}
	raw, _ := session.Values[figure.KeyACFSelect].(string)
	return formList(strings.Split(raw, "\n"))
}

func (h *Handlers) saveSelection(w http.ResponseWriter, r *http.Request, selected []string) {
	if h.sessionStore == nil {
		return
	}
	session, err := h.sessionStore.Get(r, sessionName)
	if err != nil {
		h.logger.Debug("replacing unreadable session", "error", err)
	}
	session.Values[figure.KeyACFSelect] = strings.Join(selected, "\n")
	if err := session.Save(r, w); err != nil {
		h.logger.Warn("failed to save session", "error", err)
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, figure.ErrUnknownKind),
		errors.Is(err, figure.ErrUnsupportedFormat),
		errors.Is(err, figure.ErrNoParameters),
		errors.Is(err, core.ErrUnknownParameter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
