package token

import "time"

// Clock supplies the current time for expiry decisions.
// Injected so tests can use a fixed instant instead of time.Now.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Compile-time check that ClockFunc implements Clock
var _ Clock = (ClockFunc)(nil)

// Now returns the function's notion of the current time.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock is the wall-clock default used outside of tests.
var SystemClock Clock = ClockFunc(time.Now)
