package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapfit/pkg/core"
)

// DrawFunc returns the value of parameter p in draw d of chain c.
type DrawFunc func(d, c, p int) float64

// NewFit builds a fit of the given shape, filling it draw-major with gen.
func NewFit(t testing.TB, name string, params []string, draws, chains int, gen DrawFunc) *core.Fit {
	t.Helper()
	values := make([]float64, 0, draws*chains*len(params))
	for d := range draws {
		for c := range chains {
			for p := range params {
				values = append(values, gen(d, c, p))
			}
		}
	}
	fit, err := core.NewFit(name, params, draws, chains, values)
	require.NoError(t, err)
	return fit
}
