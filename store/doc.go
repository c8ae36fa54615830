// Package store is the relational record store behind authcore: users, roles,
// permissions and their join records, sessions, refresh tokens and OTPs.
//
// It is built on gorm. Production deployments open it against Postgres with
// [Open]; tests hand [New] any *gorm.DB (an in-memory SQLite database works).
//
// # Atomicity
//
// Methods whose names describe a state transition (IncrementOTPAttempts,
// ConsumeOTP, RotateRefreshToken, ReplaceOTP) are implemented as conditional
// updates or single transactions. Callers rely on the returned bool or error
// to learn whether they won the transition; they never read-then-write.
//
// # Architecture boundaries
//
// The store knows record shapes and referential rules only. TTLs, attempt
// budgets and rotation policy belong to the otp, session and refresh packages.
//
// # What this package must NOT do
//
//   - Import authcore or any of its component packages.
//   - Hash, generate or log secrets. Token and code columns hold digests
//     computed by the caller.
//   - Return gorm errors for not-found or unique-key failures; those surface
//     as ErrNotFound and ErrConflict.
package store
