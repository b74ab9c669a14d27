// Package token defines the stored token value type and the clock
// abstraction used for expiry decisions.
//
// A StoredToken is an immutable snapshot of the credentials obtained from a
// login or refresh call. It is replaced wholesale on every refresh and never
// mutated in place, so readers holding a pointer always see a consistent
// value. Expiry is always an absolute timestamp supplied by the issuing
// server, never a relative duration computed on the client.
package token
