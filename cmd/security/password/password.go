package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash validates password against the policy and returns a bcrypt digest.
// Two calls with the same input return different digests (random salt per call).
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	cost := c.Cost
	if cost < minCost || cost > maxCost {
		cost = bcrypt.DefaultCost
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// Verify reports whether password matches the stored digest.
// Malformed or unsupported digests yield false; Verify never returns an error.
func (c Config) Verify(password, digest string) bool {
	if digest == "" {
		return false
	}

	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return false
	}
	// Refuse digests that would cost far more CPU than this deployment hashes with.
	if cost > c.verifyCostCeiling() {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// CheckDigest reports ErrInvalidHash when digest is not a usable bcrypt digest.
func (c Config) CheckDigest(digest string) error {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil || cost > c.verifyCostCeiling() {
		return ErrInvalidHash
	}
	return nil
}

func (c Config) verifyCostCeiling() int {
	ceiling := c.Cost + 4
	if ceiling < bcrypt.DefaultCost+4 {
		ceiling = bcrypt.DefaultCost + 4
	}
	if ceiling > maxCost+4 {
		ceiling = maxCost + 4
	}
	return ceiling
}
