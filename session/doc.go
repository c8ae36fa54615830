// Package session manages server-side login sessions for platforms whose
// policy uses them.
//
// A session lives as long as the platform's refresh-token lifetime. It is
// valid while its valid flag is set and the wall clock is before its expiry;
// every authenticated request that carries the session id bumps its
// last-active time.
//
// # Architecture boundaries
//
// This package owns the session lifecycle only. It does NOT sign access
// tokens or decide whether a platform uses sessions; the Engine consults the
// platform policy before calling [Manager.Create].
//
// # What this package must NOT do
//
//   - Import authcore or jwt (no upward imports).
//   - Store the raw session token. Only its digest is persisted.
package session
