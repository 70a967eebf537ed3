// Package symbol normalizes US equity tickers at the system boundary.
package symbol

import "strings"

// Normalize upper-cases and trims a ticker. Class-share dots ("BRK.B") are
// preserved; Alpaca accepts them as-is.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeAll normalizes a batch, dropping empties and duplicates while
// keeping first-seen order.
func NormalizeAll(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := Normalize(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Valid reports whether a normalized ticker looks like a US equity symbol:
// 1-5 letters with an optional class suffix.
func Valid(s string) bool {
	s = Normalize(s)
	if s == "" {
		return false
	}
	base, suffix, hasDot := strings.Cut(s, ".")
	if hasDot && (len(suffix) == 0 || len(suffix) > 2) {
		return false
	}
	if len(base) == 0 || len(base) > 5 {
		return false
	}
	for _, r := range base + suffix {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
