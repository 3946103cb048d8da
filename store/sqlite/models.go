package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/audit"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/reservation"
)

// Fixed width keeps text timestamps in chronological order.
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ==================== License plates ====================

const plateColumns = `id, tenant_id, number, product_id, warehouse_id, location_id, quantity, uom,
    catch_weight, batch_number, expiry_date, manufacture_date, status, qa_status, source,
    parent_id, consumed_by_ref, version, metadata, created_at, updated_at`

type plateModel struct {
	ID              string
	TenantID        string
	Number          string
	ProductID       string
	WarehouseID     string
	LocationID      string
	Quantity        string
	UoM             string
	CatchWeight     sql.NullString
	BatchNumber     string
	ExpiryDate      sql.NullString
	ManufactureDate sql.NullString
	Status          string
	QAStatus        string
	Source          string
	ParentID        sql.NullString
	ConsumedByRef   string
	Version         int64
	Metadata        string
	CreatedAt       string
	UpdatedAt       string
}

func toPlateModel(p *lp.LicensePlate) (*plateModel, error) {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if p.Metadata == nil {
		meta = []byte("{}")
	}
	return &plateModel{
		ID:              p.ID.String(),
		TenantID:        p.TenantID,
		Number:          p.Number,
		ProductID:       p.ProductID,
		WarehouseID:     p.WarehouseID,
		LocationID:      p.LocationID,
		Quantity:        p.Quantity.String(),
		UoM:             p.UoM,
		CatchWeight:     nullDecimal(p.CatchWeight),
		BatchNumber:     p.BatchNumber,
		ExpiryDate:      nullDate(p.ExpiryDate),
		ManufactureDate: nullDate(p.ManufactureDate),
		Status:          string(p.Status),
		QAStatus:        string(p.QAStatus),
		Source:          string(p.Source),
		ParentID:        nullID(p.ParentID),
		ConsumedByRef:   p.ConsumedByRef,
		Version:         p.Version,
		Metadata:        string(meta),
		CreatedAt:       formatTime(p.CreatedAt),
		UpdatedAt:       formatTime(p.UpdatedAt),
	}, nil
}

func (m *plateModel) args() []any {
	return []any{
		m.ID, m.TenantID, m.Number, m.ProductID, m.WarehouseID, m.LocationID, m.Quantity, m.UoM,
		m.CatchWeight, m.BatchNumber, m.ExpiryDate, m.ManufactureDate, m.Status, m.QAStatus, m.Source,
		m.ParentID, m.ConsumedByRef, m.Version, m.Metadata, m.CreatedAt, m.UpdatedAt,
	}
}

func scanPlate(row scanner) (*lp.LicensePlate, error) {
	var m plateModel
	err := row.Scan(
		&m.ID, &m.TenantID, &m.Number, &m.ProductID, &m.WarehouseID, &m.LocationID, &m.Quantity, &m.UoM,
		&m.CatchWeight, &m.BatchNumber, &m.ExpiryDate, &m.ManufactureDate, &m.Status, &m.QAStatus, &m.Source,
		&m.ParentID, &m.ConsumedByRef, &m.Version, &m.Metadata, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return fromPlateModel(&m)
}

func fromPlateModel(m *plateModel) (*lp.LicensePlate, error) {
	p := &lp.LicensePlate{
		TenantID:      m.TenantID,
		Number:        m.Number,
		ProductID:     m.ProductID,
		WarehouseID:   m.WarehouseID,
		LocationID:    m.LocationID,
		UoM:           m.UoM,
		BatchNumber:   m.BatchNumber,
		Status:        lp.Status(m.Status),
		QAStatus:      lp.QAStatus(m.QAStatus),
		Source:        lp.Source(m.Source),
		ConsumedByRef: m.ConsumedByRef,
		Version:       m.Version,
	}
	var err error
	if p.ID, err = id.Parse(m.ID); err != nil {
		return nil, err
	}
	if p.ParentID, err = parseNullID(m.ParentID); err != nil {
		return nil, err
	}
	if p.Quantity, err = decimal.NewFromString(m.Quantity); err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	if p.CatchWeight, err = parseNullDecimal(m.CatchWeight); err != nil {
		return nil, fmt.Errorf("catch_weight: %w", err)
	}
	if p.ExpiryDate, err = parseNullDate(m.ExpiryDate); err != nil {
		return nil, err
	}
	if p.ManufactureDate, err = parseNullDate(m.ManufactureDate); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(m.Metadata), &p.Metadata); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if len(p.Metadata) == 0 {
		p.Metadata = nil
	}
	if p.CreatedAt, err = parseTime(m.CreatedAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(m.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// ==================== Reservations ====================

const reservationColumns = `id, tenant_id, license_plate_id, demand_ref, quantity, status, created_by,
    over_committed, released_by, released_at, consumed_by, consumed_at, created_at, updated_at`

type reservationModel struct {
	ID             string
	TenantID       string
	LicensePlateID string
	DemandRef      string
	Quantity       string
	Status         string
	CreatedBy      string
	OverCommitted  bool
	ReleasedBy     string
	ReleasedAt     sql.NullString
	ConsumedBy     string
	ConsumedAt     sql.NullString
	CreatedAt      string
	UpdatedAt      string
}

func toReservationModel(r *reservation.Reservation) *reservationModel {
	return &reservationModel{
		ID:             r.ID.String(),
		TenantID:       r.TenantID,
		LicensePlateID: r.LicensePlateID.String(),
		DemandRef:      r.DemandRef,
		Quantity:       r.Quantity.String(),
		Status:         string(r.Status),
		CreatedBy:      r.CreatedBy,
		OverCommitted:  r.OverCommitted,
		ReleasedBy:     r.ReleasedBy,
		ReleasedAt:     nullTime(r.ReleasedAt),
		ConsumedBy:     r.ConsumedBy,
		ConsumedAt:     nullTime(r.ConsumedAt),
		CreatedAt:      formatTime(r.CreatedAt),
		UpdatedAt:      formatTime(r.UpdatedAt),
	}
}

func (m *reservationModel) args() []any {
	return []any{
		m.ID, m.TenantID, m.LicensePlateID, m.DemandRef, m.Quantity, m.Status, m.CreatedBy,
		m.OverCommitted, m.ReleasedBy, m.ReleasedAt, m.ConsumedBy, m.ConsumedAt, m.CreatedAt, m.UpdatedAt,
	}
}

func scanReservation(row scanner) (*reservation.Reservation, error) {
	var m reservationModel
	err := row.Scan(
		&m.ID, &m.TenantID, &m.LicensePlateID, &m.DemandRef, &m.Quantity, &m.Status, &m.CreatedBy,
		&m.OverCommitted, &m.ReleasedBy, &m.ReleasedAt, &m.ConsumedBy, &m.ConsumedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r := &reservation.Reservation{
		TenantID:      m.TenantID,
		DemandRef:     m.DemandRef,
		Status:        reservation.Status(m.Status),
		CreatedBy:     m.CreatedBy,
		OverCommitted: m.OverCommitted,
		ReleasedBy:    m.ReleasedBy,
		ConsumedBy:    m.ConsumedBy,
	}
	if r.ID, err = id.Parse(m.ID); err != nil {
		return nil, err
	}
	if r.LicensePlateID, err = id.Parse(m.LicensePlateID); err != nil {
		return nil, err
	}
	if r.Quantity, err = decimal.NewFromString(m.Quantity); err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	if r.ReleasedAt, err = parseNullTime(m.ReleasedAt); err != nil {
		return nil, err
	}
	if r.ConsumedAt, err = parseNullTime(m.ConsumedAt); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(m.CreatedAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(m.UpdatedAt); err != nil {
		return nil, err
	}
	return r, nil
}

// ==================== Genealogy ====================

const genealogyColumns = `id, tenant_id, parent_id, child_id, relationship, quantity,
    operation_ref, actor_id, reverses_id, reason, created_at`

func genealogyArgs(r *genealogy.Record) []any {
	return []any{
		r.ID.String(), r.TenantID, r.ParentID.String(), r.ChildID.String(), string(r.Relationship), r.Quantity.String(),
		r.OperationRef, r.ActorID, nullID(r.ReversesID), r.Reason, formatTime(r.CreatedAt),
	}
}

func scanGenealogy(row scanner) (*genealogy.Record, error) {
	var (
		r                    genealogy.Record
		rel, qty, created    string
		genID, parent, child string
		reverses             sql.NullString
	)
	err := row.Scan(
		&genID, &r.TenantID, &parent, &child, &rel, &qty,
		&r.OperationRef, &r.ActorID, &reverses, &r.Reason, &created,
	)
	if err != nil {
		return nil, err
	}
	if r.ID, err = id.Parse(genID); err != nil {
		return nil, err
	}
	if r.ParentID, err = id.Parse(parent); err != nil {
		return nil, err
	}
	if r.ChildID, err = id.Parse(child); err != nil {
		return nil, err
	}
	if r.ReversesID, err = parseNullID(reverses); err != nil {
		return nil, err
	}
	if r.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	r.Relationship = genealogy.Relationship(rel)
	return &r, nil
}

// ==================== Audit ====================

const auditColumns = `id, tenant_id, license_plate_id, field, from_value, to_value,
    reason, actor_id, automatic, created_at`

func auditArgs(e *audit.Entry) []any {
	return []any{
		e.ID.String(), e.TenantID, e.LicensePlateID.String(), string(e.Field), e.From, e.To,
		e.Reason, e.ActorID, e.Automatic, formatTime(e.CreatedAt),
	}
}

func scanAudit(row scanner) (*audit.Entry, error) {
	var (
		e                  audit.Entry
		auditID, lpID, fld string
		created            string
	)
	err := row.Scan(
		&auditID, &e.TenantID, &lpID, &fld, &e.From, &e.To,
		&e.Reason, &e.ActorID, &e.Automatic, &created,
	)
	if err != nil {
		return nil, err
	}
	if e.ID, err = id.Parse(auditID); err != nil {
		return nil, err
	}
	if e.LicensePlateID, err = id.Parse(lpID); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	e.Field = audit.Field(fld)
	return &e, nil
}

// ==================== Helpers ====================

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(dateLayout), Valid: true}
}

func parseNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", s.String, err)
	}
	return &t, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullID(i id.ID) sql.NullString {
	if i.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: i.String(), Valid: true}
}

func parseNullID(s sql.NullString) (id.ID, error) {
	if !s.Valid || s.String == "" {
		return id.Nil, nil
	}
	return id.Parse(s.String)
}
