// Package lp defines the License Plate: a uniquely identified, traceable
// quantity of one product in one warehouse.
package lp

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/id"
	"github.com/xraph/plate/types"
)

// Status is the lifecycle state of a license plate.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAvailable  Status = "available"
	StatusReserved   Status = "reserved"
	StatusBlocked    Status = "blocked"
	StatusQuarantine Status = "quarantine"
	StatusConsumed   Status = "consumed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAvailable, StatusReserved, StatusBlocked, StatusQuarantine, StatusConsumed:
		return true
	}
	return false
}

// QAStatus is the quality-assurance disposition of a license plate.
type QAStatus string

const (
	QAPending    QAStatus = "pending"
	QAPassed     QAStatus = "passed"
	QAFailed     QAStatus = "failed"
	QAQuarantine QAStatus = "quarantine"
)

// IsValid reports whether q is a known QA status.
func (q QAStatus) IsValid() bool {
	switch q {
	case QAPending, QAPassed, QAFailed, QAQuarantine:
		return true
	}
	return false
}

// Source records how a license plate came into existence.
type Source string

const (
	SourceManual     Source = "manual"
	SourceReceiving  Source = "receiving"
	SourceProduction Source = "production"
	SourceSplit      Source = "split"
	SourceMerge      Source = "merge"
)

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceManual, SourceReceiving, SourceProduction, SourceSplit, SourceMerge:
		return true
	}
	return false
}

// LicensePlate is a traceable unit of inventory.
//
// Version is the optimistic concurrency token. It increases by one on every
// committed update, including reservation changes that leave the plate's own
// fields untouched.
type LicensePlate struct {
	types.Entity
	ID              id.LicensePlateID `json:"id"`
	TenantID        string            `json:"tenant_id"`
	Number          string            `json:"number"`
	ProductID       string            `json:"product_id"`
	WarehouseID     string            `json:"warehouse_id"`
	LocationID      string            `json:"location_id,omitempty"`
	Quantity        decimal.Decimal   `json:"quantity"`
	UoM             string            `json:"uom"`
	CatchWeight     *decimal.Decimal  `json:"catch_weight,omitempty"`
	BatchNumber     string            `json:"batch_number,omitempty"`
	ExpiryDate      *time.Time        `json:"expiry_date,omitempty"`
	ManufactureDate *time.Time        `json:"manufacture_date,omitempty"`
	Status          Status            `json:"status"`
	QAStatus        QAStatus          `json:"qa_status"`
	Source          Source            `json:"source"`
	ParentID        id.LicensePlateID `json:"parent_id,omitempty"`
	ConsumedByRef   string            `json:"consumed_by_ref,omitempty"`
	Version         int64             `json:"version"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the plate.
func (p *LicensePlate) Clone() *LicensePlate {
	if p == nil {
		return nil
	}
	c := *p
	if p.CatchWeight != nil {
		w := *p.CatchWeight
		c.CatchWeight = &w
	}
	if p.ExpiryDate != nil {
		e := *p.ExpiryDate
		c.ExpiryDate = &e
	}
	if p.ManufactureDate != nil {
		m := *p.ManufactureDate
		c.ManufactureDate = &m
	}
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// IsConsumed reports whether the plate has reached its terminal state.
func (p *LicensePlate) IsConsumed() bool {
	return p.Status == StatusConsumed
}

// IsExpired reports whether the plate's expiry date lies before asOf's day.
func (p *LicensePlate) IsExpired(asOf time.Time) bool {
	return types.Expired(p.ExpiryDate, asOf)
}

// CreateInput describes a new license plate. Zero values take defaults:
// Status available, QAStatus pending, Source manual, and a generated Number.
type CreateInput struct {
	Number          string            `json:"number,omitempty"`
	ProductID       string            `json:"product_id"`
	WarehouseID     string            `json:"warehouse_id"`
	LocationID      string            `json:"location_id,omitempty"`
	Quantity        decimal.Decimal   `json:"quantity"`
	UoM             string            `json:"uom"`
	CatchWeight     *decimal.Decimal  `json:"catch_weight,omitempty"`
	BatchNumber     string            `json:"batch_number,omitempty"`
	ExpiryDate      *time.Time        `json:"expiry_date,omitempty"`
	ManufactureDate *time.Time        `json:"manufacture_date,omitempty"`
	Status          Status            `json:"status,omitempty"`
	QAStatus        QAStatus          `json:"qa_status,omitempty"`
	Source          Source            `json:"source,omitempty"`
	ActorID         string            `json:"actor_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ListOpts filters license plate listings. Empty fields match everything.
type ListOpts struct {
	TenantID    string
	ProductID   string
	WarehouseID string
	LocationIDs []string
	Statuses    []Status
	QAStatuses  []QAStatus
	BatchNumber string
	// ExpiresOnOrBefore keeps only plates with an expiry date on or before
	// this day. Plates without an expiry are excluded when it is set.
	ExpiresOnOrBefore *time.Time
	Limit             int
	Offset            int
}

// Matches reports whether p passes every filter in o. Limit and Offset are
// not considered.
func (o ListOpts) Matches(p *LicensePlate) bool {
	if o.TenantID != "" && p.TenantID != o.TenantID {
		return false
	}
	if o.ProductID != "" && p.ProductID != o.ProductID {
		return false
	}
	if o.WarehouseID != "" && p.WarehouseID != o.WarehouseID {
		return false
	}
	if len(o.LocationIDs) > 0 && !slices.Contains(o.LocationIDs, p.LocationID) {
		return false
	}
	if len(o.Statuses) > 0 && !slices.Contains(o.Statuses, p.Status) {
		return false
	}
	if len(o.QAStatuses) > 0 && !slices.Contains(o.QAStatuses, p.QAStatus) {
		return false
	}
	if o.BatchNumber != "" && p.BatchNumber != o.BatchNumber {
		return false
	}
	if o.ExpiresOnOrBefore != nil {
		if p.ExpiryDate == nil || types.Day(*p.ExpiryDate).After(types.Day(*o.ExpiresOnOrBefore)) {
			return false
		}
	}
	return true
}

// SortByCreation orders plates by creation time, then by ID.
func SortByCreation(plates []*LicensePlate) {
	slices.SortStableFunc(plates, func(a, b *LicensePlate) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
}

func compareIDs(a, b id.ID) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
