// Package password hashes and verifies account passwords with Argon2id.
//
// # Output format
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Parameters travel with every hash, so [Argon2.NeedsRehash] can tell the caller
// when a stored hash was produced with weaker settings than the current ones.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum length)
// is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
