package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewRunID generates a unique scenario run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// ShortID returns the first segment of a run ID for directory names
func ShortID(id string) string {
	id = strings.TrimPrefix(id, "run_")
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
