// =============================
// File: internal/chain/units.go
// =============================
package chain

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// All monetary quantities carry an implied 18-decimal scale; basis-point
// fields are integers out of 10000.
const (
	Decimals = 18
	BpsDenom = 10_000
)

// Wad is one whole unit (10^18).
func Wad() *uint256.Int {
	return new(uint256.Int).Set(wad)
}

var wad = uint256.MustFromDecimal("1000000000000000000")

// ParseUnits converts a decimal string like "0.00004" or "1000" into its
// 18-decimal fixed-point representation.
func ParseUnits(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", s, Decimals)
	}
	frac += strings.Repeat("0", Decimals-len(frac))

	w, err := uint256.FromDecimal(whole)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f, err := uint256.FromDecimal(strings.TrimLeft(frac, "0") + "0")
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f.Div(f, uint256.NewInt(10))

	out := new(uint256.Int).Mul(w, wad)
	return out.Add(out, f), nil
}

// MustParseUnits is ParseUnits for constants known to be valid.
func MustParseUnits(s string) *uint256.Int {
	v, err := ParseUnits(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders a fixed-point value back to a decimal string with
// trailing zeros trimmed.
func FormatUnits(v *uint256.Int) string {
	q := new(uint256.Int)
	r := new(uint256.Int)
	q.DivMod(v, wad, r)
	if r.IsZero() {
		return q.Dec()
	}
	frac := fmt.Sprintf("%018s", r.Dec())
	return q.Dec() + "." + strings.TrimRight(frac, "0")
}

// BpsShare returns amount * bps / 10000, floored.
func BpsShare(amount *uint256.Int, bps uint64) *uint256.Int {
	out := new(uint256.Int).Mul(amount, uint256.NewInt(bps))
	return out.Div(out, uint256.NewInt(BpsDenom))
}

// TokensForNative converts a native amount into tokens at price (native
// per token, 18-dec fixed point): native * 1e18 / price, floored.
func TokensForNative(native, price *uint256.Int) *uint256.Int {
	out := new(uint256.Int).Mul(native, wad)
	return out.Div(out, price)
}
