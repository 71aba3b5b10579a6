// Package clock implements the free-running millisecond counter that every
// other subsystem times against. On real hardware a single timer interrupt
// increments the counter every millisecond; the mainline only ever reads it.
// That split is modeled here with an atomic counter: Tick is the "interrupt"
// side, Now and Since are the "mainline" side, and neither needs a mutex.
package clock

import "sync/atomic"

// Clock is a monotonic millisecond counter. The zero value is ready to use
// and starts at 0.
type Clock struct {
	ms uint32
}

// New returns a Clock starting at zero.
func New() *Clock {
	return &Clock{}
}

// Tick advances the counter by one millisecond. Call this from the periodic
// timer interrupt handler (or, in a host simulation, a single goroutine
// driven by time.Ticker); it is the only mutator and must never be called
// concurrently with itself.
func (c *Clock) Tick() {
	atomic.AddUint32(&c.ms, 1)
}

// Now returns the current millisecond count. Safe to call from any number of
// readers concurrently with Tick.
func (c *Clock) Now() uint32 {
	return atomic.LoadUint32(&c.ms)
}

// Since returns the elapsed time in milliseconds from earlier to Now, using
// unsigned wrap-around arithmetic. This is correct for spans up to 2^31 ms
// (about 24.8 days) even across a counter wrap, which is the only range the
// rest of the system ever measures.
func Since(c *Clock, earlier uint32) uint32 {
	return c.Now() - earlier
}

// Elapsed reports whether at least d milliseconds have passed since mark,
// given the current time now. Both now and mark are raw millisecond
// snapshots so this also works for comparisons made without a *Clock (e.g.
// in tests).
func Elapsed(now, mark, d uint32) bool {
	return now-mark >= d
}
