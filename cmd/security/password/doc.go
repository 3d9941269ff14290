// Package password provides password hashing and verification for the AQI backend.
//
// It wraps bcrypt from golang.org/x/crypto and adds:
// - a configurable cost (via environment variables)
// - password policy validation (length bounds, optional weak-pattern rejection)
// - a Verify that treats stored digests as untrusted input and never fails loudly
//
// Security notes:
// - bcrypt only consumes the first 72 bytes of input; longer passwords are rejected
//   instead of being silently truncated.
// - Verification refuses digests whose cost is far above the configured cost.
package password
