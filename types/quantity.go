package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quantity is an exact decimal amount of stock in the plate's unit of measure.
// All arithmetic is decimal; float64 never touches a quantity.
type Quantity = decimal.Decimal

// Zero is the zero quantity.
var Zero = decimal.Zero

// Qty parses a decimal literal such as "12.5". It panics on malformed input
// and is intended for constants and tests.
func Qty(s string) Quantity {
	return decimal.RequireFromString(s)
}

// QtyInt converts a whole number of units.
func QtyInt(n int64) Quantity {
	return decimal.NewFromInt(n)
}

// Sum adds quantities. Sum() is zero.
func Sum(qs ...Quantity) Quantity {
	total := decimal.Zero
	for _, q := range qs {
		total = total.Add(q)
	}
	return total
}

// MinQty returns the smaller of a and b.
func MinQty(a, b Quantity) Quantity {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ClampZero returns q, or zero when q is negative.
func ClampZero(q Quantity) Quantity {
	if q.IsNegative() {
		return decimal.Zero
	}
	return q
}

// ──────────────────────────────────────────────────
// Calendar days
// ──────────────────────────────────────────────────

// Day truncates t to midnight UTC of its calendar day. Expiry dates carry no
// time-of-day component.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayPtr is Day for optional dates.
func DayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := Day(*t)
	return &d
}

// Expired reports whether an expiry date lies strictly before the calendar
// day of asOf. A nil expiry never expires; an LP expiring today is still
// usable today.
func Expired(expiry *time.Time, asOf time.Time) bool {
	if expiry == nil {
		return false
	}
	return Day(*expiry).Before(Day(asOf))
}

// DaysUntil returns the whole number of days from asOf to expiry. Negative
// values mean the expiry is in the past.
func DaysUntil(expiry, asOf time.Time) int {
	return int(Day(expiry).Sub(Day(asOf)).Hours() / 24)
}

// SameDay reports whether two optional dates fall on the same calendar day.
// Two nil dates are equal.
func SameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Day(*a).Equal(Day(*b))
}
