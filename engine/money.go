package engine

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point currency amount
// =============================================================================

// Money is a currency amount with two decimal places of precision.
// Stores persist it as integer minor units (cents) so that conditional
// comparisons in SQL stay numeric.
type Money struct {
	Value decimal.Decimal
}

// MoneyScale is the number of decimal places carried by Money.
const MoneyScale = 2

// MaxAmount caps any single price, charge, credit or opening balance.
// It keeps every cent value the stores compute far inside int64.
var MaxAmount = Money{Value: decimal.New(1_000_000_000, 0)}

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value).Round(MoneyScale)}
}

// MoneyFromCents converts integer minor units back to Money.
func MoneyFromCents(cents int64) Money {
	return Money{Value: decimal.New(cents, -MoneyScale)}
}

// ParseMoney parses a decimal string such as "12.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money amount %q: %w", s, err)
	}
	return Money{Value: d.Round(MoneyScale)}, nil
}

// Cents returns the amount in integer minor units, rounding half away from zero.
// Values outside int64 saturate instead of wrapping, so a conditional debit
// of an absurd amount fails rather than turning into a credit.
func (m Money) Cents() int64 {
	c := m.Value.Shift(MoneyScale).Round(0)
	switch {
	case c.GreaterThan(maxCents):
		return math.MaxInt64
	case c.LessThan(minCents):
		return math.MinInt64
	}
	return c.IntPart()
}

// CheckAmount rejects negative amounts, amounts finer than a cent and
// amounts above MaxAmount. what names the amount in the error.
func (m Money) CheckAmount(what string) error {
	switch {
	case m.Value.IsNegative():
		return fmt.Errorf("%w: %s %s is negative", ErrInvalidAmount, what, m.Value)
	case !m.Value.Equal(m.Value.Round(MoneyScale)):
		return fmt.Errorf("%w: %s %s has more than %d decimal places", ErrInvalidAmount, what, m.Value, MoneyScale)
	case m.Value.GreaterThan(MaxAmount.Value):
		return fmt.Errorf("%w: %s %s exceeds %s", ErrInvalidAmount, what, m.Value, MaxAmount)
	}
	return nil
}

// MulHours prices a duration: hourly rate × hours, rounded to cents.
func (m Money) MulHours(hours decimal.Decimal) Money {
	return Money{Value: m.Value.Mul(hours).Round(MoneyScale)}
}

func (m Money) Add(o Money) Money { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool { return m.Value.IsZero() }
func (m Money) IsNegative() bool { return m.Value.IsNegative() }
func (m Money) IsPositive() bool { return m.Value.IsPositive() }
func (m Money) LessThan(o Money) bool { return m.Value.LessThan(o.Value) }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) Equal(o Money) bool { return m.Value.Equal(o.Value) }
func (m Money) String() string { return m.Value.StringFixed(MoneyScale) }

func (m Money) Convert(rate decimal.Decimal) Money {
	return Money{Value: m.Value.Mul(rate).Round(MoneyScale)}
}

// Float64 is for presentation only. Never feed the result back into arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.Value.Round(MoneyScale).Float64()
	return f
}

// MarshalJSON writes a bare JSON number with exactly two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a number or numeric string and rounds it to cents,
// the same way ParseMoney does.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	m.Value = d.Round(MoneyScale)
	return nil
}
