// Package middleware adapts authcore access checks to net/http.
//
// # Guards
//
//   - [Guard] verifies the bearer access token through Engine.ValidateAccess
//     and stores the [authcore.AuthResult] in the request context.
//   - [RequirePermission] runs after Guard and rejects requests whose user
//     lacks a (resource, action) permission.
//
// Guard also records the client IP, user agent and X-Device-ID header with
// authcore.WithClientIP and friends, so flows called by the handler see them.
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or make authorization decisions itself.
package middleware
