package plate

import "github.com/xraph/plate/types"

// Re-exported so callers can build quantities without importing types.

// Quantity is re-exported from types package.
type Quantity = types.Quantity

// Entity is re-exported from types package.
type Entity = types.Entity

// Quantity constructors.
var (
	Qty    = types.Qty
	QtyInt = types.QtyInt
	Sum    = types.Sum
)

// NewEntity is re-exported from types package.
var NewEntity = types.NewEntity
