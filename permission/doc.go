// Package permission resolves role-based authorization decisions.
//
// A user holds a permission (resource, action) when any of the user's roles
// grants that exact action, or grants the "manage" wildcard, on the same
// resource. Decisions are cached per (user, resource, action) through an
// injected [Cache] with a five-minute TTL by default.
//
// # Cache coherence
//
// [RedisCache] is shared by every instance. Entry keys embed a global
// generation and a per-user generation; invalidation is an INCR on one of
// those counters, so an entry written before a mutation is never read after
// it, on any instance. Entries expire through native Redis TTLs.
//
// Role↔permission changes invalidate every user holding the role;
// user↔role changes invalidate only that user.
//
// # What this package must NOT do
//
//   - Import authcore, jwt or session.
//   - Fail an authorization check because the cache is unavailable. Cache
//     errors are logged and the store is consulted directly.
package permission
