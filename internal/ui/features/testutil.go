// Package features provides shared test utilities for UI feature tests.
package features

import (
	"context"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/internal/testutil"
	"github.com/leapstack-labs/leapfit/internal/ui/notifier"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

// TestParameters are the parameters of the fit built by SetupTestFixture.
var TestParameters = []string{"mu", "tau", "theta[1]", "theta[2]", "lp__"}

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Fit          *core.Fit
	Controller   *figure.Controller
	Notifier     *notifier.Notifier
	SessionStore *sessions.CookieStore
}

// TestFit builds a small deterministic fit with two chains.
func TestFit(t *testing.T) *core.Fit {
	t.Helper()
	return testutil.NewFit(t, "eight_schools", TestParameters, 40, 2, func(d, c, p int) float64 {
		x := float64(d)/7 + float64(c)
		return []float64{math.Sin(x), math.Cos(x) + 2, x / 10, -x / 10, -float64(d)}[p]
	})
}

// SetupTestFixture creates a fit, a figure controller wired to a notifier,
// and a cookie session store.
func SetupTestFixture(t *testing.T) *TestFixture {
	t.Helper()

	n := notifier.New()
	fit := TestFit(t)
	ctrl, err := figure.NewController(fit, figure.Options{
		Width:  240,
		Height: 180,
		Logger: testutil.NewTestLogger(t),
		Notify: n,
	})
	require.NoError(t, err)

	return &TestFixture{
		Fit:          fit,
		Controller:   ctrl,
		Notifier:     n,
		SessionStore: NewTestSessionStore(),
	}
}

// RequestWithPathParam wraps a request with chi URL params.
func RequestWithPathParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// RequestWithTimeout wraps a request with a context timeout. The context is
// cancelled when the test ends.
func RequestWithTimeout(t *testing.T, r *http.Request, timeout time.Duration) *http.Request {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	t.Cleanup(cancel)
	return r.WithContext(ctx)
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!"))
}
