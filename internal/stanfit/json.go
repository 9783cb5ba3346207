package stanfit

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/bytedance/sonic"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

// fitFile is the JSON layout of an exported fit. Draws is indexed
// [draw][chain][parameter]; non-finite draws are stored as null and read
// back as NaN.
type fitFile struct {
	Name       string         `json:"name"`
	Parameters []string       `json:"parameters"`
	Draws      [][][]*float64 `json:"draws"`
}

// ReadJSONFile reads a fit exported by WriteJSON.
func ReadJSONFile(path string) (*core.Fit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	fit, err := DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fit, nil
}

// DecodeJSON decodes a fit from its JSON form.
func DecodeJSON(data []byte) (*core.Fit, error) {
	var ff fitFile
	if err := sonic.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("invalid fit json: %w", err)
	}

	draws := len(ff.Draws)
	chains := 0
	if draws > 0 {
		chains = len(ff.Draws[0])
	}
	params := len(ff.Parameters)

	values := make([]float64, 0, draws*chains*params)
	for d, perChain := range ff.Draws {
		if len(perChain) != chains {
			return nil, fmt.Errorf("%w: draw %d has %d chains, want %d", core.ErrShapeMismatch, d, len(perChain), chains)
		}
		for c, row := range perChain {
			if len(row) != params {
				return nil, fmt.Errorf("%w: draw %d chain %d has %d values, want %d",
					core.ErrShapeMismatch, d, c, len(row), params)
			}
			for _, v := range row {
				if v == nil {
					values = append(values, math.NaN())
					continue
				}
				values = append(values, *v)
			}
		}
	}
	return core.NewFit(ff.Name, ff.Parameters, draws, chains, values)
}

// WriteJSON writes a fit in the layout read by ReadJSONFile.
func WriteJSON(w io.Writer, fit *core.Fit) error {
	ff := fitFile{
		Name:       fit.Name,
		Parameters: fit.Parameters,
		Draws:      make([][][]*float64, fit.NumDraws),
	}
	p := fit.NumParams()
	for d := range ff.Draws {
		ff.Draws[d] = make([][]*float64, fit.NumChains)
		for c := range ff.Draws[d] {
			off := (d*fit.NumChains + c) * p
			row := make([]*float64, p)
			for i, v := range fit.Values[off : off+p] {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				row[i] = &v
			}
			ff.Draws[d][c] = row
		}
	}

	data, err := sonic.Marshal(&ff)
	if err != nil {
		return fmt.Errorf("failed to encode fit %s: %w", fit.Name, err)
	}
	_, err = w.Write(data)
	return err
}
