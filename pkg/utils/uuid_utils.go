package utils

import (
	"strings"

	"github.com/google/uuid"
)

// RandomSuffix returns n lowercase hex characters taken from a random v4 UUID (n <= 32)
func RandomSuffix(n int) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	if n <= 0 || n > len(raw) {
		return raw
	}
	return raw[:n]
}
