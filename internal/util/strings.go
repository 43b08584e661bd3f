// Package util holds small helpers shared by the command line and config.
package util

import "strings"

// SplitCSV splits a comma-separated list, trimming blanks and dropping empty
// items and case-insensitive repeats. It returns nil when nothing is left.
func SplitCSV(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		key := strings.ToLower(part)
		if part == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, part)
	}
	return out
}
