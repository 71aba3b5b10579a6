// Package rtc is the real-time-clock capability the application layers
// consume through their own narrow RTC interfaces (internal/comms,
// internal/nodeapp, internal/mainapp, internal/errlog): wall time mapped
// onto the epoch internal/caltime uses, plus the node's wake-alarm
// bookkeeping. On real hardware this is a battery-backed chip (e.g. a
// DS3231) read over I2C/SPI through internal/board; that chip driver is an
// external collaborator the same way the OLED and DHT22 drivers are (spec
// §1), so this package only models the contract, backed here by the host's
// wall clock so cmd/node and cmd/gateway run end to end off-target.
package rtc

import (
	"sync"
	"time"

	"github.com/sillycat/sensornet/internal/caltime"
)

// epoch is the network's calendar zero (spec §3).
var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// System is a host-backed real-time clock.
type System struct {
	mu      sync.Mutex
	alarm   *time.Timer
	onAlarm func()
}

// New returns a System clock. onAlarm, which may be nil, is invoked once
// when a programmed alarm fires.
func New(onAlarm func()) *System {
	return &System{onAlarm: onAlarm}
}

// Now reports the current wall time as a caltime.Time. ok is false only
// when the host clock reads before the epoch, mirroring a real RTC
// reporting a lost backup battery to the caller.
func (s *System) Now() (caltime.Time, bool) {
	now := time.Now().UTC()
	if now.Before(epoch) {
		return caltime.Time{}, false
	}
	elapsed := now.Sub(epoch)
	return caltime.FromTimestamp(uint32(elapsed / time.Second)), true
}

// SetAlarm programs a one-shot wake alarm at the given time, matching spec
// §4.J's "program the RTC alarm" step. The node's own event loop already
// knows the sleep duration and suspends itself for exactly that long
// (internal/loop.Loop.Sleep); the alarm kept here is the RTC-side
// bookkeeping the real hardware would also carry; onAlarm exists so a
// caller can log the alarm firing for parity with a real wake interrupt.
func (s *System) SetAlarm(at caltime.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()

	target := epoch.Add(time.Duration(caltime.ToTimestamp(at)) * time.Second)
	d := time.Until(target)
	if d < 0 {
		d = 0
	}
	s.alarm = time.AfterFunc(d, func() {
		if s.onAlarm != nil {
			s.onAlarm()
		}
	})
	return nil
}

// ClearAlarm cancels any pending alarm, matching the node's post-wake
// "clear the alarm" step.
func (s *System) ClearAlarm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	return nil
}

func (s *System) clearLocked() {
	if s.alarm != nil {
		s.alarm.Stop()
		s.alarm = nil
	}
}

// ErrlogClock adapts System to internal/errlog's Clock interface, which
// wants a raw epoch-seconds timestamp rather than a broken-down time.
type ErrlogClock struct {
	RTC *System
}

// Now satisfies errlog.Clock.
func (c ErrlogClock) Now() (uint32, bool) {
	t, ok := c.RTC.Now()
	if !ok {
		return 0, false
	}
	return caltime.ToTimestamp(t), true
}
