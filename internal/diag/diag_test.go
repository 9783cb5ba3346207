package diag

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapfit/pkg/core"
)

func TestACF(t *testing.T) {
	tests := []struct {
		name   string
		x      []float64
		maxLag int
		want   []float64
	}{
		{
			name:   "alternating series",
			x:      []float64{1, -1, 1, -1},
			maxLag: 2,
			// acov: [4/4, -3/4, 2/4]
			want: []float64{1, -0.75, 0.5},
		},
		{
			name:   "linear trend",
			x:      []float64{1, 2, 3, 4, 5},
			maxLag: 1,
			// centered: -2 -1 0 1 2, acov0 = 10/5, acov1 = 4/5
			want: []float64{1, 0.4},
		},
		{
			name:   "lag clamped to n-1",
			x:      []float64{1, 2},
			maxLag: 10,
			want:   []float64{1, -0.5},
		},
		{
			name:   "constant series",
			x:      []float64{3, 3, 3},
			maxLag: 2,
			want:   []float64{1, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ACF(tt.x, tt.maxLag)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
		})
	}
}

func TestACF_Empty(t *testing.T) {
	_, err := ACF(nil, 5)
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestACF_NegativeLagUsesDefault(t *testing.T) {
	x := make([]float64, 100)
	for i := range x {
		x[i] = math.Sin(float64(i))
	}
	got, err := ACF(x, -1)
	require.NoError(t, err)
	assert.Len(t, got, DefaultMaxLag+1)
}

func TestConfidenceBand(t *testing.T) {
	assert.InDelta(t, 0.196, ConfidenceBand(100), 1e-12)
	assert.True(t, math.IsNaN(ConfidenceBand(0)))
}

func TestNewHistogram(t *testing.T) {
	h, err := NewHistogram([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 10}, 5)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 2, 4, 6, 8, 10}, h.Edges)
	// the maximum lands in the last bin
	assert.Equal(t, []float64{2, 2, 2, 2, 2}, h.Counts)
	assert.Equal(t, 10.0, h.Total())
}

func TestNewHistogram_Degenerate(t *testing.T) {
	h, err := NewHistogram([]float64{2, 2, 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2, 2.5}, h.Edges)
	assert.Equal(t, 3.0, h.Total())
}

func TestNewHistogram_DefaultBins(t *testing.T) {
	h, err := NewHistogram([]float64{1, 2, 3}, 0)
	require.NoError(t, err)
	assert.Len(t, h.Counts, DefaultBins)

	_, err = NewHistogram(nil, 3)
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func normalChains(seed uint64, chains, draws int, shift func(c int) float64) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([][]float64, chains)
	for c := range out {
		out[c] = make([]float64, draws)
		for d := range out[c] {
			out[c][d] = rng.NormFloat64() + shift(c)
		}
	}
	return out
}

func TestRHat(t *testing.T) {
	mixed := normalChains(1, 4, 1000, func(int) float64 { return 0 })
	assert.InDelta(t, 1.0, RHat(splitChains(mixed)), 0.02)

	stuck := normalChains(2, 4, 1000, func(c int) float64 { return float64(c) * 5 })
	assert.Greater(t, RHat(splitChains(stuck)), 1.5)

	assert.True(t, math.IsNaN(RHat(mixed[:1])))
}

func TestEffectiveSampleSize(t *testing.T) {
	iid := normalChains(3, 4, 1000, func(int) float64 { return 0 })
	ess := EffectiveSampleSize(iid)
	assert.Greater(t, ess, 3000.0)
	assert.Less(t, ess, 5500.0)

	// a random walk is strongly autocorrelated
	walk := normalChains(4, 4, 1000, func(int) float64 { return 0 })
	for _, c := range walk {
		for d := 1; d < len(c); d++ {
			c[d] += c[d-1]
		}
	}
	assert.Less(t, EffectiveSampleSize(walk), 200.0)

	assert.True(t, math.IsNaN(EffectiveSampleSize([][]float64{{1, 2, 3}})))
	assert.True(t, math.IsNaN(EffectiveSampleSize([][]float64{{1, 1, 1, 1, 1}})))
}

func TestSummarize(t *testing.T) {
	chains := normalChains(5, 2, 500, func(int) float64 { return 10 })
	values := make([]float64, 0, 1000)
	for d := 0; d < 500; d++ {
		for c := 0; c < 2; c++ {
			values = append(values, chains[c][d])
		}
	}
	fit, err := core.NewFit("normal", []string{"mu"}, 500, 2, values)
	require.NoError(t, err)

	s := Summarize(fit)

	require.Len(t, s.Params, 1)
	p := s.Params[0]
	assert.Equal(t, "mu", p.Name)
	assert.InDelta(t, 10, p.Mean, 0.2)
	assert.InDelta(t, 1, p.SD, 0.15)
	require.Len(t, p.Quantiles, len(SummaryProbs))
	assert.InDelta(t, 10, p.Quantiles[2], 0.2)
	assert.Less(t, p.Quantiles[0], p.Quantiles[4])
	assert.InDelta(t, 1.0, p.RHat, 0.05)
	assert.Greater(t, p.NEff, 100.0)
	assert.Equal(t, 500, s.Draws)
	assert.Equal(t, 2, s.Chains)
}

func TestParamSummary_MarshalJSONNullsUndefined(t *testing.T) {
	ps := ParamSummary{Name: "mu", Mean: 1.5, SD: math.NaN(), Quantiles: []float64{0, math.Inf(1)}, NEff: 10, RHat: math.NaN()}
	data, err := json.Marshal(ps)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"mu","mean":1.5,"se_mean":0,"sd":null,"quantiles":[0,null],"n_eff":10,"rhat":null}`, string(data))
}

func TestEnforceMonotone_StopsBeforeLastPair(t *testing.T) {
	// maxT = 3: the pair (rho[2], rho[3]) is the last one summed and stays as estimated.
	rho := []float64{0.5, 0.2, 0.5, 0.5, 0}
	enforceMonotone(rho, 3)
	assert.Equal(t, []float64{0.5, 0.2, 0.5, 0.5, 0}, rho)

	// maxT = 5: the same pair is now interior and is pulled down to the previous sum.
	rho = []float64{0.5, 0.2, 0.5, 0.5, 0, 0, 0}
	enforceMonotone(rho, 5)
	assert.InDeltaSlice(t, []float64{0.5, 0.2, 0.35, 0.35, 0, 0, 0}, rho, 1e-12)
}
