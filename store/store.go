// Package store defines the transactional persistence contract behind the
// engine. Backends live in subpackages.
package store

import (
	"context"

	"github.com/xraph/plate/audit"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/reservation"
)

// Tx is one unit of work. Reads and writes made through a Tx become visible
// to other transactions only when the enclosing RunInTx commits.
type Tx interface {
	lp.Store
	reservation.Store
	genealogy.Store
	audit.Store
}

// TxFunc is the body of a unit of work.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the unified storage interface for all Plate entities.
type Store interface {
	// RunInTx runs fn in a serializable read-write transaction. An error from
	// fn rolls everything back. A lost optimistic race, at any point including
	// commit, is reported as plate.ErrConcurrentModification.
	RunInTx(ctx context.Context, fn TxFunc) error

	// ReadTx runs fn against a consistent read-only view. Writes through the
	// Tx fail.
	ReadTx(ctx context.Context, fn TxFunc) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
