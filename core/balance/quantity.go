// Package balance models plan balances as shown on the Tello account page.
package balance

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "tello-renewal/internal/errors"
)

// Unit is the label a quantity is measured in
type Unit string

const (
	UnitGB      Unit = "GB"
	UnitMinutes Unit = "minutes"
	UnitTexts   Unit = "texts"
)

// family groups the spellings the site uses for one unit.
func (u Unit) family() string {
	switch u {
	case "GB":
		return "data"
	case "min", "minutes":
		return "minutes"
	case "text", "texts":
		return "texts"
	}
	return string(u)
}

// Quantity is one measured resource: a finite amount or unlimited.
// The zero value is a finite 0 with no unit.
type Quantity struct {
	value     decimal.Decimal
	unit      Unit
	unlimited bool
}

// Finite returns a quantity of value in unit
func Finite(value decimal.Decimal, unit Unit) Quantity {
	return Quantity{value: value, unit: unit}
}

// Unlimited returns the unlimited sentinel for unit
func Unlimited(unit Unit) Quantity {
	return Quantity{unit: unit, unlimited: true}
}

// Parse reads a balance string of the form "<amount> <unit>", e.g. "10 GB",
// "250 min" or "Unlimited texts".
func Parse(text string) (Quantity, error) {
	amount, unit, ok := strings.Cut(strings.TrimSpace(text), " ")
	if !ok || amount == "" || unit == "" {
		return Quantity{}, apperrors.Parsing("malformed balance "+strconv.Quote(text), nil)
	}

	if strings.EqualFold(amount, "unlimited") {
		return Unlimited(Unit(unit)), nil
	}

	switch unit {
	case "GB":
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return Quantity{}, apperrors.Parsing("invalid data amount "+strconv.Quote(amount), err)
		}
		return Finite(v, UnitGB), nil
	case "min", "minutes":
		n, err := strconv.ParseInt(amount, 10, 64)
		if err != nil {
			return Quantity{}, apperrors.Parsing("invalid minutes amount "+strconv.Quote(amount), err)
		}
		return Finite(decimal.NewFromInt(n), UnitMinutes), nil
	case "text", "texts":
		n, err := strconv.ParseInt(amount, 10, 64)
		if err != nil {
			return Quantity{}, apperrors.Parsing("invalid texts amount "+strconv.Quote(amount), err)
		}
		return Finite(decimal.NewFromInt(n), UnitTexts), nil
	}

	return Quantity{}, apperrors.Parsing("unrecognized unit "+strconv.Quote(unit), nil).
		WithContext("unit", unit)
}

// IsUnlimited reports whether q is the unlimited sentinel
func (q Quantity) IsUnlimited() bool { return q.unlimited }

// Value returns the amount; it is zero for unlimited quantities
func (q Quantity) Value() decimal.Decimal { return q.value }

// Unit returns the unit as stored
func (q Quantity) Unit() Unit { return q.unit }

// Add sums two quantities. Unlimited absorbs anything, whatever its unit
// label, and keeps q's unit; two finite quantities must share a unit family.
func (q Quantity) Add(other Quantity) (Quantity, error) {
	if q.unlimited || other.unlimited {
		return Unlimited(q.unit), nil
	}
	if q.unit.family() != other.unit.family() {
		return Quantity{}, apperrors.Newf(apperrors.TypeUnitMismatch,
			"cannot add %q to %q", other.unit, q.unit)
	}
	return Finite(q.value.Add(other.value), q.unit), nil
}

// Equal reports whether q and other hold the same amount and unit.
func (q Quantity) Equal(other Quantity) bool {
	if q.unit != other.unit || q.unlimited != other.unlimited {
		return false
	}
	return q.unlimited || q.value.Equal(other.value)
}

// String renders "Unlimited <unit>" or "<value> <unit>"
func (q Quantity) String() string {
	if q.unlimited {
		return "Unlimited " + string(q.unit)
	}
	return q.value.String() + " " + string(q.unit)
}
