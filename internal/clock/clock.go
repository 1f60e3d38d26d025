package clock

import "time"

// Clock supplies the current time so services can be tested at fixed instants.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a clock pinned to a settable instant, for tests.
type Fixed struct {
	T time.Time
}

// Now returns the pinned instant.
func (f *Fixed) Now() time.Time { return f.T }

// Advance moves the pinned instant forward.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
