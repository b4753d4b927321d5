package utils

import (
	"time"
)

// GenerateID returns a timestamp-based request identifier.
func GenerateID() int64 {
	return time.Now().UnixNano()
}
