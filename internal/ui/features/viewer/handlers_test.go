package viewer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/internal/testutil"
	"github.com/leapstack-labs/leapfit/internal/ui/features"
)

// =============================================================================
// Test Setup Helpers
// =============================================================================

func setupTestHandlers(t *testing.T) (*Handlers, *features.TestFixture, *int) {
	t.Helper()

	fixture := features.SetupTestFixture(t)
	stops := 0
	handlers := NewHandlers(
		fixture.Controller,
		fixture.SessionStore,
		fixture.Notifier,
		func() { stops++ },
		testutil.NewTestLogger(t),
		true,
	)
	return handlers, fixture, &stops
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// =============================================================================
// Page
// =============================================================================

func TestViewerPage(t *testing.T) {
	h, _, _ := setupTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ViewerPage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, want := range []string{
		"<!doctype html>",
		"<title>eight_schools - LeapFit</title>",
		"data-init",
		"/updates",
		`data-ws="ws://example.com/ws"`,
		`id="picker"`,
		`value="theta[2]"`,
		`id="figure-info"`,
		`id="summary"`,
		`href="/download.pdf"`,
		"/figure.js",
	} {
		assert.Contains(t, body, want, "response should contain %q", want)
	}
}

func TestViewerPage_RestoresSessionSelection(t *testing.T) {
	h, fixture, _ := setupTestHandlers(t)

	// Store a selection through the picker endpoint to obtain a session cookie.
	sel := httptest.NewRequest(http.MethodPost, "/acf_select", strings.NewReader(`{"selected":["tau"]}`))
	sel.Header.Set("Content-Type", "application/json")
	selRec := httptest.NewRecorder()
	h.ACFSelect(selRec, sel)
	cookies := selRec.Result().Cookies()
	require.NotEmpty(t, cookies)

	// Someone else changes the selection in the meantime.
	_, err := fixture.Controller.SelectACF([]string{"mu"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ViewerPage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"tau"}, fixture.Controller.Selected())
}

// =============================================================================
// JSON endpoints
// =============================================================================

func TestQueryParameters_GroupsInOrder(t *testing.T) {
	h, _, _ := setupTestHandlers(t)

	rec := httptest.NewRecorder()
	h.QueryParameters(rec, httptest.NewRequest(http.MethodGet, "/query_parameters", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.JSONEq(t, `{"Univariate":["mu","tau","lp__"],"theta":["theta[1]","theta[2]"]}`, body)
	assert.Less(t, strings.Index(body, "Univariate"), strings.Index(body, `"theta"`))
}

func TestPlotChange(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantKind   figure.Kind
		wantParams []string
	}{
		{
			name:       "switch kind keeps selection",
			form:       url.Values{"change_to": {"hist"}},
			wantStatus: http.StatusOK,
			wantKind:   figure.KindHist,
			wantParams: []string{"mu"},
		},
		{
			name:       "switch kind with parameters",
			form:       url.Values{"change_to": {"trace"}, "params": {"theta[1]", "tau"}},
			wantStatus: http.StatusOK,
			wantKind:   figure.KindTrace,
			wantParams: []string{"theta[1]", "tau"},
		},
		{
			name:       "unknown kind",
			form:       url.Values{"change_to": {"pairs"}},
			wantStatus: http.StatusBadRequest,
			wantKind:   figure.KindACF,
			wantParams: []string{"mu"},
		},
		{
			name:       "unknown parameter",
			form:       url.Values{"change_to": {"hist"}, "params": {"sigma"}},
			wantStatus: http.StatusBadRequest,
			wantKind:   figure.KindACF,
			wantParams: []string{"mu"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fixture, _ := setupTestHandlers(t)
			before := fixture.Controller.Info().ID

			rec := httptest.NewRecorder()
			h.PlotChange(rec, postForm("/plot_change", tt.form))

			assert.Equal(t, tt.wantStatus, rec.Code)
			info := fixture.Controller.Info()
			assert.Equal(t, tt.wantKind, info.Kind)
			assert.Equal(t, tt.wantParams, info.Params)

			if tt.wantStatus == http.StatusOK {
				var resp changeResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, info.ID, resp.ID)
				assert.NotEqual(t, before, resp.ID)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	h, _, _ := setupTestHandlers(t)

	rec := httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/summary", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Fit    string `json:"fit"`
		Chains int    `json:"chains"`
		Params []struct {
			Name string `json:"name"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "eight_schools", got.Fit)
	assert.Equal(t, 2, got.Chains)
	assert.Len(t, got.Params, len(features.TestParameters))
}

func TestDownload(t *testing.T) {
	h, _, _ := setupTestHandlers(t)

	req := features.RequestWithPathParam(httptest.NewRequest(http.MethodGet, "/download.svg", nil), "fmt", "svg")
	rec := httptest.NewRecorder()
	h.Download(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "eight_schools.svg")
	assert.Contains(t, rec.Body.String(), "<svg")

	req = features.RequestWithPathParam(httptest.NewRequest(http.MethodGet, "/download.emf", nil), "fmt", "emf")
	rec = httptest.NewRecorder()
	h.Download(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Datastar endpoints
// =============================================================================

func TestACFSelect_UpdatesSelectionAndSession(t *testing.T) {
	h, fixture, _ := setupTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/acf_select", strings.NewReader(`{"selected":["theta[1]","theta[2]"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ACFSelect(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"theta[1]", "theta[2]"}, fixture.Controller.Selected())
	assert.NotEmpty(t, rec.Result().Cookies(), "selection is stored in the session")
	assert.Contains(t, rec.Body.String(), "datastar-patch-elements")
	assert.Contains(t, rec.Body.String(), `id="picker"`)
}

func TestACFSelect_UnknownParameterKeepsSelection(t *testing.T) {
	h, fixture, _ := setupTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/acf_select", strings.NewReader(`{"selected":["nope"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ACFSelect(rec, req)

	assert.Equal(t, []string{"mu"}, fixture.Controller.Selected())
	assert.Empty(t, rec.Result().Cookies())
	assert.Contains(t, rec.Body.String(), "console.error")
}

func TestUpdates_SendsFigureInfoOnBroadcast(t *testing.T) {
	h, fixture, _ := setupTestHandlers(t)

	req := features.RequestWithTimeout(t, httptest.NewRequest(http.MethodGet, "/updates", nil), 300*time.Millisecond)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Updates(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return fixture.Notifier.Len() == 1 }, time.Second, 5*time.Millisecond)
	fixture.Notifier.Broadcast()
	<-done

	body := rec.Body.String()
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, `id="figure-info"`)
	assert.Contains(t, body, `id="summary"`)
}

func TestUpdates_ClosesOnShutdown(t *testing.T) {
	h, fixture, _ := setupTestHandlers(t)

	req := features.RequestWithTimeout(t, httptest.NewRequest(http.MethodGet, "/updates", nil), 2*time.Second)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Updates(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return fixture.Notifier.Len() == 1 }, time.Second, 5*time.Millisecond)
	fixture.Notifier.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updates stream did not end on shutdown")
	}
	assert.Contains(t, rec.Body.String(), "has been closed")
}

func TestCloseApp(t *testing.T) {
	h, fixture, stops := setupTestHandlers(t)

	rec := httptest.NewRecorder()
	h.CloseApp(rec, httptest.NewRequest(http.MethodGet, "/closeapp", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, *stops)
	select {
	case <-fixture.Notifier.Done():
	default:
		t.Error("notifier not shut down")
	}
}
