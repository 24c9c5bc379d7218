package dur

import "strings"

// normalizeName lowercases and strips non-alphanumeric characters, the
// comparison key spec.md §4.2 rule 1 specifies for interaction/allergy
// matching.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// matches reports whether a and b match as a substring in either direction
// after normalization, per spec.md §4.2 rule 1.
func matches(a, b string) bool {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}
