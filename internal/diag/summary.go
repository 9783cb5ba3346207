package diag

import (
	"math"
	"slices"

	"github.com/bytedance/sonic"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/leapstack-labs/leapfit/pkg/core"
)

// SummaryProbs are the quantiles reported for every parameter.
var SummaryProbs = []float64{0.025, 0.25, 0.5, 0.75, 0.975}

// ParamSummary holds the posterior summary of one parameter.
type ParamSummary struct {
	Name      string    `json:"name" yaml:"name"`
	Mean      float64   `json:"mean" yaml:"mean"`
	SEMean    float64   `json:"se_mean" yaml:"se_mean"`
	SD        float64   `json:"sd" yaml:"sd"`
	Quantiles []float64 `json:"quantiles" yaml:"quantiles"`
	NEff      float64   `json:"n_eff" yaml:"n_eff"`
	RHat      float64   `json:"rhat" yaml:"rhat"`
}

// MarshalJSON encodes undefined statistics (NaN, infinities) as null.
func (p ParamSummary) MarshalJSON() ([]byte, error) {
	qs := make([]*float64, len(p.Quantiles))
	for i, q := range p.Quantiles {
		qs[i] = nullable(q)
	}
	return sonic.Marshal(struct {
		Name      string     `json:"name"`
		Mean      *float64   `json:"mean"`
		SEMean    *float64   `json:"se_mean"`
		SD        *float64   `json:"sd"`
		Quantiles []*float64 `json:"quantiles"`
		NEff      *float64   `json:"n_eff"`
		RHat      *float64   `json:"rhat"`
	}{
		Name:      p.Name,
		Mean:      nullable(p.Mean),
		SEMean:    nullable(p.SEMean),
		SD:        nullable(p.SD),
		Quantiles: qs,
		NEff:      nullable(p.NEff),
		RHat:      nullable(p.RHat),
	})
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Summary is the per-parameter summary of a fit.
type Summary struct {
	Fit    string         `json:"fit" yaml:"fit"`
	Draws  int            `json:"draws" yaml:"draws"`
	Chains int            `json:"chains" yaml:"chains"`
	Probs  []float64      `json:"probs" yaml:"probs"`
	Params []ParamSummary `json:"params" yaml:"params"`
}

// Summarize computes the summary of every parameter in the fit.
func Summarize(fit *core.Fit) *Summary {
	s := &Summary{
		Fit:    fit.Name,
		Draws:  fit.NumDraws,
		Chains: fit.NumChains,
		Probs:  SummaryProbs,
		Params: make([]ParamSummary, 0, fit.NumParams()),
	}
	for p, name := range fit.Parameters {
		s.Params = append(s.Params, SummarizeChains(name, fit.Chains(p)))
	}
	return s
}

// SummarizeChains computes the summary of one parameter from its chains.
func SummarizeChains(name string, chains [][]float64) ParamSummary {
	var pooled []float64
	for _, c := range chains {
		pooled = append(pooled, c...)
	}
	mean, sd := stat.MeanStdDev(pooled, nil)

	sorted := slices.Clone(pooled)
	slices.Sort(sorted)
	qs := make([]float64, len(SummaryProbs))
	for i, p := range SummaryProbs {
		qs[i] = stat.Quantile(p, stat.LinInterp, sorted, nil)
	}

	split := splitChains(chains)
	ess := EffectiveSampleSize(split)

	return ParamSummary{
		Name:      name,
		Mean:      mean,
		SEMean:    sd / math.Sqrt(ess),
		SD:        sd,
		Quantiles: qs,
		NEff:      ess,
		RHat:      RHat(split),
	}
}

// splitChains cuts every chain in two halves. The middle draw of an odd
// length chain is dropped.
func splitChains(chains [][]float64) [][]float64 {
	out := make([][]float64, 0, 2*len(chains))
	for _, c := range chains {
		half := len(c) / 2
		if half == 0 {
			return chains
		}
		out = append(out, c[:half], c[len(c)-half:])
	}
	return out
}

// RHat is the potential scale reduction factor of equal-length chains.
// Pass split chains for split R-hat. It returns NaN when it is undefined.
func RHat(chains [][]float64) float64 {
	m := len(chains)
	if m < 2 {
		return math.NaN()
	}
	n := len(chains[0])
	if n < 2 {
		return math.NaN()
	}

	means := make([]float64, m)
	vars := make([]float64, m)
	for i, c := range chains {
		means[i], vars[i] = stat.MeanVariance(c, nil)
	}
	w := stat.Mean(vars, nil)
	if w == 0 {
		return math.NaN()
	}
	b := stat.Variance(means, nil) // B/n
	nf := float64(n)
	varPlus := (nf-1)/nf*w + b
	return math.Sqrt(varPlus / w)
}

// EffectiveSampleSize estimates the number of independent draws across
// equal-length chains using Geyer's initial monotone sequence.
func EffectiveSampleSize(chains [][]float64) float64 {
	m := len(chains)
	if m == 0 {
		return math.NaN()
	}
	n := len(chains[0])
	if n < 4 {
		return math.NaN()
	}

	acov := make([][]float64, m)
	means := make([]float64, m)
	vars := make([]float64, m)
	nf := float64(n)
	for i, c := range chains {
		acov[i] = Autocovariance(c, n-1)
		means[i] = stat.Mean(c, nil)
		vars[i] = acov[i][0] * nf / (nf - 1)
	}
	meanVar := stat.Mean(vars, nil)
	varPlus := meanVar * (nf - 1) / nf
	if m > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if varPlus == 0 {
		return math.NaN()
	}

	meanAcov := func(t int) float64 {
		sum := 0.0
		for i := range acov {
			sum += acov[i][t]
		}
		return sum / float64(m)
	}

	rho := make([]float64, n)
	rho[0] = 1
	even := 1.0
	odd := 1 - (meanVar-meanAcov(1))/varPlus
	rho[1] = odd

	t := 1
	for t < n-5 && !math.IsNaN(even+odd) && even+odd > 0 {
		even = 1 - (meanVar-meanAcov(t+1))/varPlus
		odd = 1 - (meanVar-meanAcov(t+2))/varPlus
		if even+odd >= 0 {
			rho[t+1] = even
			rho[t+2] = odd
		}
		t += 2
	}
	maxT := t
	if even > 0 {
		rho[maxT+1] = even
	}

	enforceMonotone(rho, maxT)

	ess := float64(m) * nf
	tau := -1 + 2*floats.Sum(rho[:maxT]) + rho[maxT+1]
	tau = math.Max(tau, 1/math.Log10(ess))
	return ess / tau
}

// enforceMonotone makes the pair sums rho[t-1]+rho[t] non-increasing for
// pairs up to maxT-1, the same bound CmdStan uses.
func enforceMonotone(rho []float64, maxT int) {
	for t := 1; t <= maxT-3; t += 2 {
		if rho[t+1]+rho[t+2] > rho[t-1]+rho[t] {
			rho[t+1] = (rho[t-1] + rho[t]) / 2
			rho[t+2] = rho[t+1]
		}
	}
}
