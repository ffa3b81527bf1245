// Package host defines the idle-scheduling abstraction the Scheduler
// drives background work through (§6, §9 "idle scheduling abstraction"):
// one primitive to run a callback when idle with a deadline, one to run a
// callback after a zero-delay yield, and a wall clock.
package host

// Deadline is the opaque budget handed to an idle callback.
type Deadline interface {
	// TimeRemaining returns the estimated milliseconds left in the
	// current idle window. It may return 0 or negative once exhausted.
	TimeRemaining() float64
}

// Host is the scheduling collaborator. Implementations must deliver
// callbacks serially on a single logical thread — the engine assumes no
// two callbacks (idle or zero-delay) ever run concurrently with each
// other or with a synchronous engine call.
type Host interface {
	// RequestIdleCallback asks to be called back once the host judges
	// itself idle, with a Deadline describing the granted budget.
	RequestIdleCallback(cb func(Deadline))

	// ScheduleZeroDelay posts cb to run after yielding once to the host's
	// task queue — used for cooperative yielding inside a background
	// slice, not for requesting a fresh idle window.
	ScheduleZeroDelay(cb func())

	// Now returns the current wall clock in milliseconds.
	Now() float64
}
