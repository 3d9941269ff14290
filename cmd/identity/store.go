package identity

import (
	"context"
	"time"
)

// User is the identity record. PasswordHash is a bcrypt digest, never plaintext.
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	Verified     bool
	CreatedAt    time.Time
}

// CreateUserInput describes a new user row. PasswordHash must already be hashed.
type CreateUserInput struct {
	FirstName    string
	LastName     string
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	Now          time.Time
}

// VerificationToken is the server-side record of an email verification token.
// IMPORTANT: TokenHash is a digest; the plain token is returned once by Issue and never stored.
// TokenHash and ExpiresAt are nil once the record is invalidated.
type VerificationToken struct {
	ID        string
	UserID    int64
	TokenHash *string
	ExpiresAt *time.Time
	Verified  bool

	CreatedAt     time.Time
	InvalidatedAt *time.Time
}

// Directory is the user persistence boundary.
type Directory interface {
	// FindByUsernameOrEmail returns the first user (lowest id) whose username or
	// email equals s exactly. Absent -> NotFoundError.
	FindByUsernameOrEmail(ctx context.Context, s string) (User, error)
	ExistsUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	// Create persists a new user; unique violations -> ConflictError.
	Create(ctx context.Context, in CreateUserInput) (User, error)
	// SetVerified marks the user verified. Idempotent; unknown user -> NotFoundError.
	SetVerified(ctx context.Context, userID int64) error
}

// TokenStore is the verification token persistence boundary.
type TokenStore interface {
	// Issue creates a token for userID expiring at now+ttl (ttl<=0 -> DefaultVerificationTTL).
	// Returns the plain token exactly once.
	Issue(ctx context.Context, userID int64, ttl time.Duration, now time.Time) (string, VerificationToken, error)
	// FindByToken returns the live record for a plain token. Invalidated or unknown -> NotFoundError.
	FindByToken(ctx context.Context, plain string) (VerificationToken, error)
	// Invalidate clears token hash and expiry so the record can never match again,
	// and persists rec.Verified.
	Invalidate(ctx context.Context, rec VerificationToken, now time.Time) error
}

// Repository groups the persistence operations available inside a unit of work.
type Repository interface {
	Directory
	TokenStore
}

// Store is a Repository that can run a unit of work atomically.
// If fn returns an error, every write made through the Repository passed to fn is rolled back.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(Repository) error) error
}
