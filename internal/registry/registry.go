// Package registry stores issued prescription fingerprints. Every backend is
// append-only: there is no update or delete.
package registry

import (
	"context"

	"github.com/joseph-ayodele/rxverify/internal/entity"
	"github.com/joseph-ayodele/rxverify/internal/repository"
)

// ErrEmptyFingerprint is shared with the Postgres repository so callers see
// one sentinel whatever the backend.
var ErrEmptyFingerprint = repository.ErrEmptyFingerprint

// Registry is the contract the pipeline depends on.
type Registry interface {
	// ExistsAndValid reports whether an entry with exactly this fingerprint
	// exists and is marked valid.
	ExistsAndValid(ctx context.Context, fingerprint string) (bool, error)
	// Insert appends entry, marks it valid and returns its fingerprint.
	// Duplicate fingerprints are accepted.
	Insert(ctx context.Context, entry entity.RegistryEntry) (string, error)
}

// Lister exposes the stored entries in insertion order.
type Lister interface {
	Entries(ctx context.Context) ([]entity.RegistryEntry, error)
}

// Store is what a configured backend provides.
type Store interface {
	Registry
	Lister
	Close() error
}
