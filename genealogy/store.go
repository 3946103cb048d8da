package genealogy

import (
	"context"

	"github.com/xraph/plate/id"
)

// Store persists genealogy records. There is no update or delete.
type Store interface {
	AppendGenealogy(ctx context.Context, r *Record) error
	GetGenealogy(ctx context.Context, genID id.GenealogyID) (*Record, error)

	// ListGenealogy returns matching records ordered by creation time.
	ListGenealogy(ctx context.Context, opts ListOpts) ([]*Record, error)
}
