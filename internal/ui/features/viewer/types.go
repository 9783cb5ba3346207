// Package viewer provides the diagnostics page and its HTTP endpoints.
package viewer

import (
	"github.com/leapstack-labs/leapfit/internal/diag"
	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

// sessionName is the cookie session holding the viewer selection.
const sessionName = "leapfit"

// SelectSignals are the datastar signals posted by the parameter picker.
type SelectSignals struct {
	Selected []string `json:"selected"`
}

// PageData is everything the page template needs.
type PageData struct {
	Title    string
	WSURI    string
	IsDev    bool
	Info     figure.Info
	Groups   core.ParameterGroups
	Selected []string
	Summary  *diag.Summary
	Formats  []string
}

// changeResponse answers a figure change.
type changeResponse struct {
	ID     string      `json:"id"`
	Kind   figure.Kind `json:"kind"`
	Params []string    `json:"params"`
}
