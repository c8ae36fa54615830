// Package rate provides Redis-backed fixed-window counters for authcore's
// abuse-sensitive operations.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - al: failed logins per identifier
//   - ali: failed logins per IP
//   - ao: OTP issuance per user and purpose
//
// # What this package must NOT do
//
//   - Decide how a limit is reported to callers (the Engine owns that).
//   - Be imported outside the authcore module.
package rate
