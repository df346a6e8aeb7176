// Package dedupe removes repeated values from slices, keeping first-seen order.
package dedupe

import "strings"

// Values returns values without repeats. The input is not modified.
func Values[T comparable](values []T) []T {
	if len(values) == 0 {
		return values
	}
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Fold trims and lowercases each element, drops empties and repeats.
//
//	Fold([]string{" HTTPS://a.org ", "https://a.org", ""}) // ["https://a.org"]
func Fold(values []string) []string {
	folded := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			folded = append(folded, v)
		}
	}
	return Values(folded)
}
