package call

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("call record not found")
	ErrAlreadyExists   = errors.New("call record already exists")
	ErrVersionConflict = errors.New("call record was modified concurrently")
)

// Store persists call records.
//
// Update replaces the mutable fields of a record previously returned by
// FindByCallID. It fails with ErrVersionConflict when another writer updated
// the record in between, and bumps Version on success.
type Store interface {
	FindByCallID(ctx context.Context, callID string) (*Record, error)
	Create(ctx context.Context, record *Record) error
	Update(ctx context.Context, record *Record) error
}
