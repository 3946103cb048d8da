package postgres

import (
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xraph/plate/audit"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/reservation"
)

// ==================== License plates ====================

const plateColumns = `id, tenant_id, number, product_id, warehouse_id, location_id, quantity, uom,
    catch_weight, batch_number, expiry_date, manufacture_date, status, qa_status, source,
    parent_id, consumed_by_ref, version, metadata, created_at, updated_at`

func plateArgs(p *lp.LicensePlate) []any {
	return []any{
		p.ID.String(), p.TenantID, p.Number, p.ProductID, p.WarehouseID, p.LocationID, p.Quantity, p.UoM,
		nullDecimal(p.CatchWeight), p.BatchNumber, p.ExpiryDate, p.ManufactureDate,
		string(p.Status), string(p.QAStatus), string(p.Source),
		p.ParentID, p.ConsumedByRef, p.Version, metadata(p.Metadata), p.CreatedAt, p.UpdatedAt,
	}
}

func scanPlate(row pgx.Row) (*lp.LicensePlate, error) {
	var (
		p                    lp.LicensePlate
		catchWeight          decimal.NullDecimal
		status, qa, source   string
		expiry, manufactured *time.Time
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Number, &p.ProductID, &p.WarehouseID, &p.LocationID, &p.Quantity, &p.UoM,
		&catchWeight, &p.BatchNumber, &expiry, &manufactured, &status, &qa, &source,
		&p.ParentID, &p.ConsumedByRef, &p.Version, &p.Metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if catchWeight.Valid {
		p.CatchWeight = &catchWeight.Decimal
	}
	p.ExpiryDate = utcPtr(expiry)
	p.ManufactureDate = utcPtr(manufactured)
	p.Status = lp.Status(status)
	p.QAStatus = lp.QAStatus(qa)
	p.Source = lp.Source(source)
	if len(p.Metadata) == 0 {
		p.Metadata = nil
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func collectPlates(rows pgx.Rows) ([]*lp.LicensePlate, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*lp.LicensePlate, error) {
		return scanPlate(row)
	})
}

// ==================== Reservations ====================

const reservationColumns = `id, tenant_id, license_plate_id, demand_ref, quantity, status, created_by,
    over_committed, released_by, released_at, consumed_by, consumed_at, created_at, updated_at`

func reservationArgs(r *reservation.Reservation) []any {
	return []any{
		r.ID.String(), r.TenantID, r.LicensePlateID.String(), r.DemandRef, r.Quantity, string(r.Status), r.CreatedBy,
		r.OverCommitted, r.ReleasedBy, r.ReleasedAt, r.ConsumedBy, r.ConsumedAt, r.CreatedAt, r.UpdatedAt,
	}
}

func scanReservation(row pgx.Row) (*reservation.Reservation, error) {
	var (
		r      reservation.Reservation
		status string
	)
	err := row.Scan(
		&r.ID, &r.TenantID, &r.LicensePlateID, &r.DemandRef, &r.Quantity, &status, &r.CreatedBy,
		&r.OverCommitted, &r.ReleasedBy, &r.ReleasedAt, &r.ConsumedBy, &r.ConsumedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = reservation.Status(status)
	r.ReleasedAt = utcPtr(r.ReleasedAt)
	r.ConsumedAt = utcPtr(r.ConsumedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// ==================== Genealogy ====================

const genealogyColumns = `id, tenant_id, parent_id, child_id, relationship, quantity,
    operation_ref, actor_id, reverses_id, reason, created_at`

func genealogyArgs(r *genealogy.Record) []any {
	return []any{
		r.ID.String(), r.TenantID, r.ParentID.String(), r.ChildID.String(), string(r.Relationship), r.Quantity,
		r.OperationRef, r.ActorID, r.ReversesID, r.Reason, r.CreatedAt,
	}
}

func scanGenealogy(row pgx.Row) (*genealogy.Record, error) {
	var (
		r   genealogy.Record
		rel string
	)
	err := row.Scan(
		&r.ID, &r.TenantID, &r.ParentID, &r.ChildID, &rel, &r.Quantity,
		&r.OperationRef, &r.ActorID, &r.ReversesID, &r.Reason, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Relationship = genealogy.Relationship(rel)
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

// ==================== Audit ====================

const auditColumns = `id, tenant_id, license_plate_id, field, from_value, to_value,
    reason, actor_id, automatic, created_at`

func auditArgs(e *audit.Entry) []any {
	return []any{
		e.ID.String(), e.TenantID, e.LicensePlateID.String(), string(e.Field), e.From, e.To,
		e.Reason, e.ActorID, e.Automatic, e.CreatedAt,
	}
}

func scanAudit(row pgx.Row) (*audit.Entry, error) {
	var (
		e     audit.Entry
		field string
	)
	err := row.Scan(
		&e.ID, &e.TenantID, &e.LicensePlateID, &field, &e.From, &e.To,
		&e.Reason, &e.ActorID, &e.Automatic, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Field = audit.Field(field)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// ==================== Helpers ====================

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func metadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
