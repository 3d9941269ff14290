// Package token provides hashing primitives for email verification tokens.
//
// Raw tokens are handed to the user once (inside the verification link) and
// never stored. Storage keeps a 64-char hex digest that lookups compare against.
//
// Modes:
// - Default: SHA-256(token) when no HMAC key is configured.
// - Keyed: HMAC-SHA256(token, key) when AQI_TOKEN_HMAC_KEY is set.
//
// Environment:
// - AQI_TOKEN_HMAC_KEY: when set, enables HMAC mode.
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback).
package token
