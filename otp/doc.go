// Package otp issues and verifies short numeric one-time codes bound to a
// user and a purpose.
//
// Generation replaces every unused code of the same purpose, so at most one
// code per (user, purpose) is live. Verification spends an attempt with a
// single conditional update before it compares anything; a crash or a
// concurrent caller can never earn an extra guess. A matching code is consumed
// with a conditional used=false→true update in the same transaction that
// flips the user's email or phone verification flag, so each code succeeds
// exactly once.
//
// Codes are stored as SHA-256 digests and compared in constant time.
//
// # What this package must NOT do
//
//   - Log codes or put them in errors.
//   - Fail generation because delivery failed.
package otp
