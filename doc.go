// Package authcore provides an authentication and adaptive-security engine:
// JWT access tokens with a revocable refresh ledger, argon2id credential
// storage, multi-factor login (TOTP, backup codes, phone OTP, biometric
// templates), OAuth identity linking, session and device tracking, and a
// threat layer that detects injection payloads, blocks hostile IPs, and
// correlates distributed attacks against a single account.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [Store] persistence contract, and value types (LoginResult, TokenPair,
// ThreatVerdict, etc.). Callers supply the Store implementation and a Redis
// client; the engine owns no schema and opens no connections of its own.
// Internal coordination (rate-limit windows, the cleanup lease, token and
// fingerprint generation) lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Store plaintext secrets: passwords are argon2id hashes, reset and
//     verification tokens are stored as SHA-256 digests, backup codes as
//     hashes, biometric templates as hashes.
//   - Confirm account existence through its error surface. Login failures,
//     password-reset requests, and token redemption are enumeration-safe.
//   - Fail closed on its own infrastructure. Redis or trail-store outages
//     degrade the adaptive layer (lockout, IP blocks, rate limits) to
//     fail-open with a logged warning rather than locking every caller out.
//
// # Hot path
//
// VerifyAccessToken is pure signature verification with no store round-trip.
// RefreshAccessToken consults the revocation ledger first and is allowed one
// store read per call.
package authcore
