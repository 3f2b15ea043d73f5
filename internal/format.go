package internal

import (
	"fmt"
	"strings"
)

// ScanAnnotation returns a parenthetical annotation like " (2 invalid, 1 unreadable)"
// for non-zero counts, or an empty string if both are zero.
func ScanAnnotation(invalid, unreadable int) string {
	var parts []string
	if invalid > 0 {
		parts = append(parts, fmt.Sprintf("%d invalid", invalid))
	}
	if unreadable > 0 {
		parts = append(parts, fmt.Sprintf("%d unreadable", unreadable))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
