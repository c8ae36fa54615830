// Package refresh issues, validates, rotates and revokes long-lived opaque
// refresh tokens.
//
// # Token format
//
// A token is 32 random bytes encoded as unpadded base64url. Tokens are never
// stored in plaintext; the store retains only the SHA-256 hex digest, and the
// raw string is returned exactly once by [Manager.Create] or [Manager.Rotate].
//
// # Rotation
//
// A refresh that lands in the last quarter of a token's lifetime replaces it.
// Revoking the old row and inserting the new one commit together, and the
// revoke only applies to a row that is still live, so concurrent refreshes of
// one token produce exactly one successor.
//
// # What this package must NOT do
//
//   - Import authcore, jwt or session.
//   - Trust a stored flag for expiry. Expiry is compared against the wall clock.
package refresh
