// Package authcore provides account authentication for multi-tenant backends:
// password login with contact verification, platform-scoped access and
// refresh tokens, server-side sessions, one-time codes, password reset and
// role-based permissions.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config]
// and value types such as [LoginResult] and [AuthResult]. Each concern lives
// in its own package (platform, password, jwt, otp, session, refresh,
// permission, store, notify) and the Engine composes them into flows. Rate
// limiting and audit dispatch live under internal/.
//
// # Errors
//
// Every error returned by an Engine method wraps one of [ErrUnauthorized],
// [ErrBadRequest], [ErrForbidden] or [ErrNotFound]. Unexpected datastore and
// dispatch failures are logged and reported as the bare kind.
//
// # Optional infrastructure
//
// Redis backs the permission cache and the login and code-issuance
// throttles; without it caching is off and throttling is skipped. Kafka
// receives audit events when brokers are configured; otherwise they are
// logged.
package authcore
