package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in minor units (cents). It serializes as a decimal JSON
// number with two fraction digits, e.g. 60.50.
type Money int64

// Dollars converts a decimal amount into Money, rounding half away from zero.
func Dollars(v float64) Money {
	return Money(math.Round(v * 100))
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*m = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return errors.New("money: invalid amount " + raw)
	}
	*m = Dollars(f)
	return nil
}
