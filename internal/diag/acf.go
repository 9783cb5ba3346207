// Package diag computes MCMC trace diagnostics: autocorrelation, histograms,
// and posterior summaries.
package diag

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultMaxLag is used when the caller does not request a lag count.
const DefaultMaxLag = 40

// ErrEmptySeries is returned for series without values.
var ErrEmptySeries = errors.New("empty series")

// ACF returns the sample autocorrelation of x for lags 0..maxLag.
// The autocovariance at every lag is divided by len(x), so the estimate
// is biased towards zero at long lags. maxLag is clamped to len(x)-1.
// A constant series yields 1 at lag 0 and 0 at every other lag.
func ACF(x []float64, maxLag int) ([]float64, error) {
	n := len(x)
	if n == 0 {
		return nil, ErrEmptySeries
	}
	if maxLag < 0 {
		maxLag = DefaultMaxLag
	}
	if maxLag > n-1 {
		maxLag = n - 1
	}

	acov := Autocovariance(x, maxLag)
	out := make([]float64, maxLag+1)
	out[0] = 1
	if acov[0] == 0 {
		return out, nil
	}
	for k := 1; k <= maxLag; k++ {
		out[k] = acov[k] / acov[0]
	}
	return out, nil
}

// Autocovariance returns the biased autocovariance of x for lags 0..maxLag.
func Autocovariance(x []float64, maxLag int) []float64 {
	n := len(x)
	if maxLag > n-1 {
		maxLag = n - 1
	}
	mean := stat.Mean(x, nil)
	centered := make([]float64, n)
	copy(centered, x)
	floats.AddConst(-mean, centered)

	out := make([]float64, maxLag+1)
	for k := 0; k <= maxLag; k++ {
		out[k] = floats.Dot(centered[:n-k], centered[k:]) / float64(n)
	}
	return out
}

// ConfidenceBand is the approximate 95% band around zero for the
// autocorrelation of white noise of length n.
func ConfidenceBand(n int) float64 {
	if n <= 0 {
		return math.NaN()
	}
	return 1.96 / math.Sqrt(float64(n))
}
