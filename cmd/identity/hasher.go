package identity

import (
	"github.com/Emjay-16/aqi-project/cmd/security/password"
)

// Hasher is the credential hashing boundary used by the Service.
// password.Config satisfies it.
type Hasher interface {
	// Hash returns a salted digest; two calls with the same input differ.
	Hash(plain string) (string, error)
	// Verify reports whether plain matches digest. Malformed digests yield false.
	Verify(plain, digest string) bool
}

// DefaultHasher returns the bcrypt hasher with default cost and policy.
func DefaultHasher() Hasher { return password.DefaultConfig() }

// dummyPassword feeds the timing-equalizing verify on unknown logins.
const dummyPassword = "aqi-dummy-password-for-timing"

// classifyHashError maps hasher failures onto identity kinds:
// policy violations are client input, anything else is unexpected.
func classifyHashError(op string, err error) error {
	if password.IsPolicy(err) {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}
	return UnexpectedError{Op: op, Err: err}
}
