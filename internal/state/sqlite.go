// Package state caches fitted models in SQLite so the viewer can reopen a
// fit without re-reading the sampler output.
package state

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapfit/pkg/core"

	_ "modernc.org/sqlite" // sqlite driver
)

var errNotOpened = errors.New("database not opened")

// SQLiteStore implements core.Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ core.Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite fit cache.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = ":memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps in-memory databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema brings the schema up to date.
func (s *SQLiteStore) InitSchema() error {
	return s.Migrate()
}

// SaveFit stores a fit, replacing any fit with the same name.
func (s *SQLiteStore) SaveFit(ctx context.Context, fit *core.Fit) (string, error) {
	if s.db == nil {
		return "", errNotOpened
	}
	if err := fit.Validate(); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fits WHERE name = ?`, fit.Name); err != nil {
		return "", fmt.Errorf("failed to replace fit %s: %w", fit.Name, err)
	}

	id := uuid.NewString()
	createdAt := fit.LoadedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO fits (id, name, source, num_draws, num_chains, num_params, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, fit.Name, fit.Source, fit.NumDraws, fit.NumChains, fit.NumParams(), createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert fit %s: %w", fit.Name, err)
	}

	paramStmt, err := tx.PrepareContext(ctx, `INSERT INTO fit_parameters (fit_id, position, name) VALUES (?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare parameter insert: %w", err)
	}
	defer func() { _ = paramStmt.Close() }()

	chainStmt, err := tx.PrepareContext(ctx, `INSERT INTO fit_chains (fit_id, param, chain, draws) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare chain insert: %w", err)
	}
	defer func() { _ = chainStmt.Close() }()

	for p, name := range fit.Parameters {
		if _, err := paramStmt.ExecContext(ctx, id, p, name); err != nil {
			return "", fmt.Errorf("failed to insert parameter %s: %w", name, err)
		}
		for c := 0; c < fit.NumChains; c++ {
			if _, err := chainStmt.ExecContext(ctx, id, p, c, encodeDraws(fit.Chain(p, c))); err != nil {
				return "", fmt.Errorf("failed to insert draws of %s chain %d: %w", name, c, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit fit %s: %w", fit.Name, err)
	}
	return id, nil
}

// GetFit loads a cached fit by name.
func (s *SQLiteStore) GetFit(ctx context.Context, name string) (*core.Fit, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	var info core.FitInfo
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, source, num_draws, num_chains, num_params, created_at FROM fits WHERE name = ?`,
		name,
	).Scan(&info.ID, &info.Name, &info.Source, &info.NumDraws, &info.NumChains, &info.NumParams, &info.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrFitNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fit %s: %w", name, err)
	}

	params, err := s.parameters(ctx, info.ID, info.NumParams)
	if err != nil {
		return nil, err
	}

	values := make([]float64, info.NumDraws*info.NumChains*info.NumParams)
	rows, err := s.db.QueryContext(ctx, `SELECT param, chain, draws FROM fit_chains WHERE fit_id = ?`, info.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query draws of %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	seen := 0
	for rows.Next() {
		var (
			p, c int
			blob []byte
		)
		if err := rows.Scan(&p, &c, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan draws of %s: %w", name, err)
		}
		draws, err := decodeDraws(blob)
		if err != nil {
			return nil, fmt.Errorf("fit %s param %d chain %d: %w", name, p, c, err)
		}
		if len(draws) != info.NumDraws || p >= info.NumParams || c >= info.NumChains {
			return nil, fmt.Errorf("%w: fit %s has a corrupt chain (param %d, chain %d, %d draws)",
				core.ErrShapeMismatch, name, p, c, len(draws))
		}
		for d, v := range draws {
			values[(d*info.NumChains+c)*info.NumParams+p] = v
		}
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read draws of %s: %w", name, err)
	}
	if seen != info.NumChains*info.NumParams {
		return nil, fmt.Errorf("%w: fit %s has %d of %d chains",
			core.ErrShapeMismatch, name, seen, info.NumChains*info.NumParams)
	}

	fit, err := core.NewFit(info.Name, params, info.NumDraws, info.NumChains, values)
	if err != nil {
		return nil, err
	}
	fit.Source = info.Source
	fit.LoadedAt = info.CreatedAt
	return fit, nil
}

func (s *SQLiteStore) parameters(ctx context.Context, fitID string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM fit_parameters WHERE fit_id = ? ORDER BY position`, fitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parameters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	params := make([]string, 0, n)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan parameter: %w", err)
		}
		params = append(params, name)
	}
	return params, rows.Err()
}

// ListFits returns the cached fits, newest first.
func (s *SQLiteStore) ListFits(ctx context.Context) ([]core.FitInfo, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, source, num_draws, num_chains, num_params, created_at
		 FROM fits ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.FitInfo
	for rows.Next() {
		var info core.FitInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Source, &info.NumDraws,
			&info.NumChains, &info.NumParams, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fit: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteFit removes a cached fit.
func (s *SQLiteStore) DeleteFit(ctx context.Context, name string) error {
	if s.db == nil {
		return errNotOpened
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM fits WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete fit %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete fit %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrFitNotFound, name)
	}
	return nil
}

// encodeDraws packs draws as little-endian float64 values.
func encodeDraws(draws []float64) []byte {
	buf := make([]byte, 8*len(draws))
	for i, v := range draws {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeDraws(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("%w: blob of %d bytes", core.ErrShapeMismatch, len(blob))
	}
	out := make([]float64, len(blob)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[8*i:]))
	}
	return out, nil
}
