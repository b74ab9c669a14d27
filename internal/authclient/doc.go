// Package authclient implements the wire contract against the identity
// provider's login and refresh endpoints.
//
// Both endpoints speak JSON and return the same response envelope:
//
//	{"accessToken": "...", "refreshToken": "...", "tokenType": "Bearer", "expiresAt": "2025-06-01T12:00:00Z"}
//
// The client classifies failures for the session layer: rejected credentials
// are terminal, network and server-side errors are transient, and a 2xx
// response missing accessToken or expiresAt is a malformed response, treated
// as terminal because partial credentials cannot be trusted.
package authclient
