// Package incubator holds conversions for incubator status registers, which the
// device reports as hexadecimal strings.
package incubator

import (
	"errors"
	"fmt"
	"math/big"
	"pipetter/internal/logging"
	"strconv"
	"strings"
)

const (
	statusBits   = 8  // width of a hex status register
	overviewBits = 15 // width of a base-12 overview register
	locationLen  = 3
)

var (
	// ErrInvalidLocation is returned for malformed storage location numbers.
	ErrInvalidLocation = errors.New("invalid storage location number")
	// ErrInvalidCode is returned for register values that do not parse in their base.
	ErrInvalidCode = errors.New("invalid register code")
)

// HexToBinary converts a hexadecimal status code to its binary representation,
// zero-padded to 8 digits. Longer values are not truncated and there is no upper
// bound on width. A leading "+", a "0x" prefix and single underscores between
// digits are accepted; negative values are not.
//
//	HexToBinary("01") == "00000001"
//	HexToBinary("0x_ff") == "11111111"
func HexToBinary(hex string) (string, error) {
	return convert(hex, 16, statusBits)
}

// HexToBaseTwelve reads code as a base-12 number and returns its binary
// representation, zero-padded to 15 digits. Input rules match HexToBinary
// except that no prefix is accepted.
func HexToBaseTwelve(code string) (string, error) {
	return convert(code, 12, overviewBits)
}

func convert(s string, base, width int) (string, error) {
	digits, ok := digitsOf(s, base)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a base-%d number", ErrInvalidCode, s, base)
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a base-%d number", ErrInvalidCode, s, base)
	}
	bits := v.Text(2)
	if len(bits) < width {
		bits = strings.Repeat("0", width-len(bits)) + bits
	}
	logging.IncubatorDebug("converted %s (base %d) to %s", strings.TrimSpace(s), base, bits)
	return bits, nil
}

// digitsOf strips surrounding space, a "+" sign, a base-16 "0x" prefix and digit
// separators, leaving the bare digits. Separators must sit between digits, except
// that one may directly follow the prefix.
func digitsOf(s string, base int) (string, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	prefixed := false
	if base == 16 && len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s, prefixed = s[2:], true
	}
	if prefixed && strings.HasPrefix(s, "_") {
		s = s[1:]
	}
	if s == "" || strings.HasPrefix(s, "_") || strings.HasSuffix(s, "_") || strings.Contains(s, "__") {
		return "", false
	}
	digits := strings.ReplaceAll(s, "_", "")
	if strings.ContainsAny(digits, "+-") {
		return "", false
	}
	return digits, true
}

// ValidateStorageLocationNumber checks that n is an integer written with exactly
// three characters, e.g. "007".
func ValidateStorageLocationNumber(n string) error {
	if _, err := strconv.Atoi(n); err != nil {
		return fmt.Errorf("%w: must be an integer, got %q", ErrInvalidLocation, n)
	}
	if len(n) != locationLen {
		return fmt.Errorf("%w: must be a three-digit number, got %q", ErrInvalidLocation, n)
	}
	return nil
}
