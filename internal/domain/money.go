package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (cents).
type Money int64

const centsPerUnit = 100

// maxMinorUnits keeps amounts well inside int64 and exactly representable in JSON numbers.
var maxMinorUnits = decimal.NewFromInt(1 << 53)

// ParseMoney converts a decimal string such as "100.00" into Money. More than
// two fractional digits is rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidInput.WithMessage("invalid amount %q", s)
	}
	return moneyFromDecimal(d)
}

func moneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, ErrInvalidInput.WithMessage("amount %s has more than two decimal places", d.String())
	}
	if cents.Abs().GreaterThan(maxMinorUnits) {
		return 0, ErrInvalidInput.WithMessage("amount %s is out of range", d.String())
	}
	return Money(cents.IntPart()), nil
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) IsPositive() bool {
	return m > 0
}

// MarshalJSON renders the amount as a fixed two-decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "12.34" and 12.34.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("amount must be a decimal string or number: %w", err)
		}
		s = n.String()
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func Dollars(units int64) Money {
	return Money(units * centsPerUnit)
}
