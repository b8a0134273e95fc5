// Package id provides unique identifier generation for jobs.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<first uuid group>-<last uuid group>
// Example: job-1b4e28ba-9a3c5d7e1f20
func Generate() string {
	parts := strings.Split(uuid.NewString(), "-")
	return "job-" + parts[0] + "-" + parts[len(parts)-1]
}

// Valid reports whether s has the shape produced by Generate.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, "job-")
	if !ok {
		return false
	}
	head, tail, ok := strings.Cut(rest, "-")
	return ok && len(head) == 8 && len(tail) == 12 && isHex(head) && isHex(tail)
}

func isHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
