// Package stanfit loads fitted models from sampler output files.
package stanfit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/leapfit/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// ErrUnsupportedSource is returned for files the loader cannot read.
var ErrUnsupportedSource = errors.New("unsupported fit source")

// Loader reads fits from CmdStan CSV files (one per chain) or JSON fit files.
type Loader struct {
	logger *slog.Logger

	// Open returns the database used to parse CSV files. The loader closes it.
	Open func() (*sql.DB, error)
}

// NewLoader creates a loader backed by an in-memory DuckDB.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		logger: logger,
		Open: func() (*sql.DB, error) {
			return sql.Open("duckdb", "")
		},
	}
}

// Load reads a fit from the given files. CSV files are treated as one chain
// each; a JSON file holds a whole fit.
func (l *Loader) Load(ctx context.Context, name string, paths ...string) (*core.Fit, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no files given", ErrUnsupportedSource)
	}

	kind := strings.ToLower(filepath.Ext(paths[0]))
	for _, p := range paths[1:] {
		if strings.ToLower(filepath.Ext(p)) != kind {
			return nil, fmt.Errorf("%w: cannot mix %s and %s files", ErrUnsupportedSource, kind, filepath.Ext(p))
		}
	}

	var (
		fit *core.Fit
		err error
	)
	switch kind {
	case ".csv":
		fit, err = l.LoadCSV(ctx, name, paths...)
	case ".json":
		if len(paths) != 1 {
			return nil, fmt.Errorf("%w: expected one JSON file, got %d", ErrUnsupportedSource, len(paths))
		}
		fit, err = ReadJSONFile(paths[0])
		if err == nil && name != "" {
			fit.Name = name
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, paths[0])
	}
	if err != nil {
		return nil, err
	}
	fit.Source = strings.Join(paths, ",")
	return fit, nil
}

// LoadCSV reads one CmdStan CSV file per chain. Chains must share the same
// header; the draw count is cut to the shortest chain.
func (l *Loader) LoadCSV(ctx context.Context, name string, paths ...string) (*core.Fit, error) {
	start := time.Now()

	db, err := l.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open csv reader: %w", err)
	}
	defer func() { _ = db.Close() }()

	var (
		header []string
		chains [][][]float64
	)
	for _, path := range paths {
		cols, rows, err := readChain(ctx, db, path)
		if err != nil {
			return nil, err
		}
		if header == nil {
			header = cols
		} else if !slices.Equal(header, cols) {
			return nil, fmt.Errorf("%w: %s: columns differ from %s", core.ErrShapeMismatch, path, paths[0])
		}
		chains = append(chains, rows)
	}

	draws := len(chains[0])
	for i, c := range chains {
		if len(c) != draws {
			l.logger.Warn("chains have different lengths, truncating",
				"file", paths[i], "draws", len(c), "shortest", min(draws, len(c)))
		}
		draws = min(draws, len(c))
	}
	if draws == 0 {
		return nil, fmt.Errorf("%w: no draws in %s", core.ErrShapeMismatch, strings.Join(paths, ", "))
	}

	idx, names := selectColumns(header)
	values := make([]float64, 0, draws*len(chains)*len(idx))
	for d := 0; d < draws; d++ {
		for c := range chains {
			row := chains[c][d]
			for _, i := range idx {
				values = append(values, row[i])
			}
		}
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(paths[0]), filepath.Ext(paths[0]))
	}
	fit, err := core.NewFit(name, names, draws, len(chains), values)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("loaded stan csv",
		"fit", name, "chains", len(chains), "draws", draws, "params", len(names),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return fit, nil
}

// readChain reads a CmdStan CSV file. Lines starting with '#' hold the
// sampler configuration and timing and are skipped.
func readChain(ctx context.Context, db *sql.DB, path string) ([]string, [][]float64, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	query := fmt.Sprintf(
		"SELECT * FROM read_csv('%s', header=true, comment='#')",
		strings.ReplaceAll(absPath, "'", "''"),
	)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read columns of %s: %w", path, err)
	}

	var out [][]float64
	cells := make([]sql.NullFloat64, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan %s: %w", path, err)
		}
		row := make([]float64, len(cols))
		for i, c := range cells {
			if c.Valid {
				row[i] = c.Float64
			} else {
				row[i] = math.NaN()
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return cols, out, nil
}
