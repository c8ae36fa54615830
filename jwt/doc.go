// Package jwt issues and verifies signed access tokens.
//
// Tokens are verifiable offline: the signature, expiry, issuer and audience are all
// checked by [Manager.ParseAccess] without touching a store. The lifetime is chosen per
// call because it depends on the client platform.
package jwt
