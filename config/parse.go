package config

import (
	"fmt"
	"strconv"
	"strings"

	akitasim "github.com/sarchlab/akita/v4/sim"
)

// ParseSize converts a byte-count value into an int64. The value is a
// decimal integer with an optional K, M, or G suffix, interpreted in
// base 2 (K = 1024) or base 10 (K = 1000) depending on base2. Case of
// the suffix does not matter.
func ParseSize(s string, base2 bool) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size value")
	}

	multiplier := int64(1)
	digits := s

	switch s[len(s)-1] {
	case 'K', 'k':
		multiplier = 1000
		if base2 {
			multiplier = 1024
		}
		digits = s[:len(s)-1]
	case 'M', 'm':
		multiplier = 1000 * 1000
		if base2 {
			multiplier = 1024 * 1024
		}
		digits = s[:len(s)-1]
	case 'G', 'g':
		multiplier = 1000 * 1000 * 1000
		if base2 {
			multiplier = 1024 * 1024 * 1024
		}
		digits = s[:len(s)-1]
	}

	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q", s)
	}

	return value * multiplier, nil
}

// ParseInt converts a plain decimal value into an int. No suffixes.
func ParseInt(s string) (int, error) {
	value, err := strconv.Atoi(s)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid integer value %q", s)
	}
	return value, nil
}

// ParseDuration converts a duration value into seconds. The value is a
// decimal integer with an optional m (milli), u (micro), n (nano), or p
// (pico) suffix.
func ParseDuration(s string) (akitasim.VTimeInSec, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration value")
	}

	multiplier := 1.0
	digits := s

	switch s[len(s)-1] {
	case 'm':
		multiplier = 1e-3
		digits = s[:len(s)-1]
	case 'u':
		multiplier = 1e-6
		digits = s[:len(s)-1]
	case 'n':
		multiplier = 1e-9
		digits = s[:len(s)-1]
	case 'p':
		multiplier = 1e-12
		digits = s[:len(s)-1]
	}

	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", s)
	}

	return akitasim.VTimeInSec(float64(value) * multiplier), nil
}

// ParseBool converts a boolean value. Accepted spellings, case
// insensitive: yes/no, true/false, 1/0.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "yes", "true":
		return true, nil
	case "0", "no", "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", s)
	}
}

// ParseAddress converts a 0x-prefixed hexadecimal address.
func ParseAddress(s string) (uint64, error) {
	if len(s) < 3 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return 0, fmt.Errorf("invalid address value %q", s)
	}

	value, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address value %q", s)
	}

	return value, nil
}

// isPowerOf2 reports whether n is a positive power of two.
func isPowerOf2(n int64) bool {
	return n > 0 && n&(n-1) == 0
}
