package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input like "12.50" into an expense amount.
// Parsing goes through decimal arithmetic so "0.1" style input never picks
// up binary noise before rounding; the model itself stays float64 with a
// two-decimal money tolerance.
func ParseAmount(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", d)
	}
	f, _ := d.Round(2).Float64()
	return f, nil
}
