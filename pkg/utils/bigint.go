package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseBigInt parses a base-10 (or 0x-prefixed hex) integer string
func ParseBigInt(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if len(s) == 2 {
			return big.NewInt(0), true
		}
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

// BigString renders v in base 10, empty for nil
func BigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// BigOrZero never returns nil
func BigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// MinBig returns the smaller of a and b
func MinBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// MaxBig returns the larger of a and b
func MaxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// ClampBig bounds v to [lo, hi]
func ClampBig(v, lo, hi *big.Int) *big.Int {
	return MinBig(MaxBig(v, lo), hi)
}

// FlexBigInt decodes integers that APIs send either as JSON strings or as numbers
type FlexBigInt struct {
	*big.Int
}

// UnmarshalJSON accepts "123", 123, "0x7b" and null
func (b *FlexBigInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		b.Int = nil
		return nil
	}
	v, ok := ParseBigInt(raw)
	if !ok {
		return fmt.Errorf("invalid integer %q", raw)
	}
	b.Int = v
	return nil
}

// Big returns the wrapped value, nil when absent
func (b FlexBigInt) Big() *big.Int {
	return b.Int
}
