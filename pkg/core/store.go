package core

import "context"

// Store caches fitted models between sessions.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// SaveFit stores a fit, replacing any fit with the same name.
	SaveFit(ctx context.Context, fit *Fit) (string, error)
	// GetFit returns ErrFitNotFound when no fit has that name.
	GetFit(ctx context.Context, name string) (*Fit, error)
	ListFits(ctx context.Context) ([]FitInfo, error)
	DeleteFit(ctx context.Context, name string) error
}
