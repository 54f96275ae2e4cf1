// Package util provides utility functions for the IntakePipe application.
package util

import (
	"math/rand/v2"
	"time"

	"github.com/oklog/ulid/v2"
)

// GenerateRecordID returns a time-ordered record ID such as "PAT-01J9...".
func GenerateRecordID(prefix string) string {
	return prefix + ulid.Make().String()
}

// RandomDuration returns a uniformly distributed duration in [lo, hi].
// It returns lo when hi <= lo.
func RandomDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
