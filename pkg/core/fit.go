package core

import (
	"errors"
	"fmt"
	"time"
)

// LogProbName is the flat name of the log density column produced by the sampler.
const LogProbName = "lp__"

// Sentinel errors for fit construction and lookup.
var (
	ErrShapeMismatch    = errors.New("sample array shape does not match parameter names")
	ErrInvalidParameter = errors.New("invalid parameter name")
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrFitNotFound      = errors.New("fit not found")
)

// Fit holds the posterior draws of a fitted model.
//
// Values is a flat view of a draws x chains x parameters array:
// Values[(draw*NumChains+chain)*len(Parameters)+param].
type Fit struct {
	Name       string
	Source     string
	Parameters []string
	NumDraws   int
	NumChains  int
	Values     []float64
	LoadedAt   time.Time
}

// NewFit builds a Fit and checks that the array shape matches the parameter list.
func NewFit(name string, params []string, draws, chains int, values []float64) (*Fit, error) {
	f := &Fit{
		Name:       name,
		Parameters: params,
		NumDraws:   draws,
		NumChains:  chains,
		Values:     values,
		LoadedAt:   time.Now().UTC(),
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the fit invariants.
func (f *Fit) Validate() error {
	if f.NumDraws <= 0 || f.NumChains <= 0 {
		return fmt.Errorf("%w: %d draws x %d chains", ErrShapeMismatch, f.NumDraws, f.NumChains)
	}
	if len(f.Parameters) == 0 {
		return fmt.Errorf("%w: no parameters", ErrShapeMismatch)
	}
	seen := make(map[string]struct{}, len(f.Parameters))
	for i, p := range f.Parameters {
		if p == "" {
			return fmt.Errorf("%w: empty name at position %d", ErrInvalidParameter, i)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidParameter, p)
		}
		seen[p] = struct{}{}
	}
	want := f.NumDraws * f.NumChains * len(f.Parameters)
	if len(f.Values) != want {
		return fmt.Errorf("%w: have %d values, want %d (%d draws x %d chains x %d parameters)",
			ErrShapeMismatch, len(f.Values), want, f.NumDraws, f.NumChains, len(f.Parameters))
	}
	return nil
}

// NumParams returns the number of parameters in the fit.
func (f *Fit) NumParams() int {
	return len(f.Parameters)
}

// At returns a single sampled value.
func (f *Fit) At(draw, chain, param int) float64 {
	return f.Values[(draw*f.NumChains+chain)*len(f.Parameters)+param]
}

// ParamIndex returns the position of a parameter by flat name.
func (f *Fit) ParamIndex(name string) (int, error) {
	for i, p := range f.Parameters {
		if p == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
}

// Chain returns the draws of one parameter in one chain.
func (f *Fit) Chain(param, chain int) []float64 {
	out := make([]float64, f.NumDraws)
	for d := range out {
		out[d] = f.At(d, chain, param)
	}
	return out
}

// Chains returns the draws of one parameter split by chain.
func (f *Fit) Chains(param int) [][]float64 {
	out := make([][]float64, f.NumChains)
	for c := range out {
		out[c] = f.Chain(param, c)
	}
	return out
}

// Table reshapes one parameter into a draws x chains table.
func (f *Fit) Table(param int) [][]float64 {
	out := make([][]float64, f.NumDraws)
	for d := range out {
		row := make([]float64, f.NumChains)
		for c := range row {
			row[c] = f.At(d, c, param)
		}
		out[d] = row
	}
	return out
}

// Pooled returns the draws of one parameter from all chains, chain by chain.
func (f *Fit) Pooled(param int) []float64 {
	out := make([]float64, 0, f.NumDraws*f.NumChains)
	for c := 0; c < f.NumChains; c++ {
		for d := 0; d < f.NumDraws; d++ {
			out = append(out, f.At(d, c, param))
		}
	}
	return out
}

// Resolve maps parameter names to their positions, preserving order.
func (f *Fit) Resolve(names []string) ([]int, error) {
	idx := make([]int, 0, len(names))
	for _, n := range names {
		i, err := f.ParamIndex(n)
		if err != nil {
			return nil, err
		}
		idx = append(idx, i)
	}
	return idx, nil
}

// FitInfo is a lightweight description of a cached fit.
type FitInfo struct {
	ID        string
	Name      string
	Source    string
	NumDraws  int
	NumChains int
	NumParams int
	CreatedAt time.Time
}

// Info describes the fit without its values.
func (f *Fit) Info() FitInfo {
	return FitInfo{
		Name:      f.Name,
		Source:    f.Source,
		NumDraws:  f.NumDraws,
		NumChains: f.NumChains,
		NumParams: len(f.Parameters),
		CreatedAt: f.LoadedAt,
	}
}
