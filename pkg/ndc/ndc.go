// Package ndc implements National Drug Code normalization and formatting,
// the shared primitive used by the fill, verification, and inventory
// modules whenever two NDCs need to be compared.
package ndc

import (
	"fmt"
	"strings"
)

// Normalize strips all non-digit characters and left-pads with zeros to
// the canonical 11-digit form. It accepts 10- or 11-digit input (with or
// without dashes) and returns an error for anything else.
func Normalize(raw string) (string, error) {
	digits := onlyDigits(raw)
	switch len(digits) {
	case 11:
		return digits, nil
	case 10:
		// 10-digit NDCs are ambiguous across 4-4-2/5-3-2/5-4-1 layouts; when
		// the caller supplies dash positions we use those, otherwise we pad
		// the labeler segment (the most common real-world case: 4-digit
		// labeler codes printed without a leading zero).
		return padTenDigit(raw, digits)
	default:
		return "", fmt.Errorf("ndc: %q is not a 10- or 11-digit NDC", raw)
	}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// padTenDigit expands a 10-digit NDC to 11 digits using the dash layout
// present in raw, defaulting to 5-4-2 (pad the labeler segment) when raw
// carries no dashes to infer a layout from.
func padTenDigit(raw, digits string) (string, error) {
	segs := strings.Split(raw, "-")
	if len(segs) == 3 {
		lens := [3]int{len(onlyDigits(segs[0])), len(onlyDigits(segs[1])), len(onlyDigits(segs[2]))}
		switch lens {
		case [3]int{4, 4, 2}:
			return "0" + digits, nil
		case [3]int{5, 3, 2}:
			return digits[:5] + "0" + digits[5:], nil
		case [3]int{5, 4, 1}:
			return digits[:9] + "0" + digits[9:], nil
		}
	}
	// No usable dash layout: default to padding the labeler segment.
	return "0" + digits, nil
}

// Format renders an 11-digit canonical NDC in 5-4-2 dashed form.
func Format(canonical string) (string, error) {
	if len(canonical) != 11 {
		return "", fmt.Errorf("ndc: %q is not an 11-digit canonical NDC", canonical)
	}
	for _, r := range canonical {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("ndc: %q contains non-digit characters", canonical)
		}
	}
	return canonical[:5] + "-" + canonical[5:9] + "-" + canonical[9:], nil
}

// Equal reports whether two NDC strings (in any supported format) refer to
// the same canonical 11-digit product+package code.
func Equal(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	if errA != nil || errB != nil {
		return false
	}
	return na == nb
}

// SamePackageFamily reports whether two canonical 11-digit NDCs share the
// same labeler+product segments (first 9 digits) but differ in package
// size — the "package_variant" equivalence level from spec.md §4.5.
func SamePackageFamily(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	if errA != nil || errB != nil {
		return false
	}
	return na[:9] == nb[:9] && na != nb
}
