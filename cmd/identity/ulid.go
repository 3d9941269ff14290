package identity

import (
	"time"

	"github.com/Emjay-16/aqi-project/cmd/identity/ids"
)

// NewULID returns a new ULID (26-char string) used for verification record ids.
func NewULID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
