// Package identity implements the user identity and email verification lifecycle.
//
// It contains the user directory and verification token store (Postgres and
// in-memory), the password hasher boundary, and the Service that runs
// register, login and verify-email on top of them.
//
// State machine per user: Unregistered -> PendingVerification -> Verified.
// Storage is the system of record; the Service holds no mutable state of its own.
package identity
