// Package internal contains helpers that are private to authcore: secure random
// generation and secret hashing shared by the OTP, session and refresh managers.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink)
//   - rate: Redis-backed fixed-window counters
//   - storetest: SQLite-backed stores for package tests
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Perform I/O other than reading crypto/rand.
package internal
