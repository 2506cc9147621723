package common

import "strings"

// SplitList splits a comma-separated list, trimming whitespace and dropping
// empty items. It returns nil when nothing remains.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
