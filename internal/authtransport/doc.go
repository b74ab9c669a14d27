// Package authtransport decorates outgoing HTTP calls with the session's
// bearer credentials.
//
// Transport implements http.RoundTripper and layers three behaviors over a
// base transport:
//
//   - attach: set the Authorization header from the session's current token
//   - proactive refresh: when the token is inside its refresh threshold,
//     refresh before the call, degrading gracefully on transient failure
//   - reactive refresh: when the call is rejected as unauthorized, refresh
//     exactly once and retry the original call exactly once
//
// When the session holds no token and no refresh token, the request proceeds
// unauthenticated on purpose: the downstream authorization error is the
// caller's to handle, not something to mask here.
package authtransport
