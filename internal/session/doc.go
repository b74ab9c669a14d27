// Package session owns the lifecycle of one authenticated session: the
// in-memory token cache and the single-flight refresh coordinator.
//
// A Session is constructed per logical session and passed explicitly to every
// collaborator that attaches credentials; there is no process-wide singleton,
// so multi-tenant server processes can run many sessions side by side.
//
// # Refresh coordination
//
// Any number of concurrent callers may ask for a refresh; exactly one network
// call is issued and all callers receive its outcome. A caller whose context
// is cancelled abandons only its own wait; the shared refresh keeps running
// so the remaining waiters still get a result.
//
// # State
//
// The session moves Unauthenticated → Authenticated on login, back to
// Unauthenticated on logout or on a terminal refresh failure (refresh token
// rejected, malformed response). A transient refresh failure leaves the
// stored state untouched so a later caller may try again. Once cleared, a
// session is never resurrected without a fresh login.
package session
