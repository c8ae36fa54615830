// Package platform resolves the token and session lifetimes that apply to a client
// platform (web, mobile, desktop).
//
// # Architecture boundaries
//
// The set of platforms is a closed enum. Callers convert untrusted names with [Parse]
// at the edge; everything past that point works with [Platform] values only. Policies
// are validated once by [NewResolver] so a misconfigured lifetime is a startup error.
//
// # What this package must NOT do
//
//   - Perform I/O or read the environment directly.
//   - Import authcore or any store package.
package platform
