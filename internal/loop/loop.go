// Package loop is the cooperative, non-preemptive event loop described
// in spec §4.I: a fixed, device-class-specific order of subsystem
// Service calls per iteration, plus the sleep/wake transition that is
// the only place the mainline is allowed to suspend.
package loop

import (
	"time"

	"github.com/google/uuid"

	"github.com/sillycat/sensornet/internal/clock"
	"github.com/sillycat/sensornet/internal/event"
	"github.com/sillycat/sensornet/internal/failstop"
)

// Field is a structured key/value pair attached to a log line. It
// exists so this package can hand structured data to a logger without
// importing zap directly, the same decoupling internal/radio and
// internal/comms use for their own Logger interfaces.
type Field struct {
	Key   string
	Value string
}

// Logger receives the loop's diagnostic messages.
type Logger interface {
	Info(msg string, fields ...Field)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...Field) {}

// Subsystem is one cooperatively-scheduled component, serviced once per
// loop iteration in registration order. Service must return promptly
// and never block, per spec §4.I.
type Subsystem struct {
	Name    string
	Service func()
}

// Sleeper performs the MCU's deep-sleep transition once every
// subsystem has quiesced in response to a Sleep event.
type Sleeper interface {
	SleepEnter(d time.Duration)
}

// Loop is the fixed-order subsystem scheduler plus the sleep/wake
// orchestration.
type Loop struct {
	subsystems []Subsystem
	bus        *event.Bus
	clk        *clock.Clock
	sleeper    Sleeper
	log        Logger
}

// New constructs an empty Loop. Subsystems are added with Register in
// the order the device class wants them serviced.
func New(bus *event.Bus, clk *clock.Clock, sleeper Sleeper, log Logger) *Loop {
	failstop.Assert(bus != nil, "loop: nil event bus")
	failstop.Assert(clk != nil, "loop: nil clock")
	if log == nil {
		log = nopLogger{}
	}
	return &Loop{bus: bus, clk: clk, sleeper: sleeper, log: log}
}

// Register appends a subsystem to the fixed service order.
func (l *Loop) Register(s Subsystem) {
	failstop.Assert(s.Service != nil, "loop: nil subsystem service func")
	l.subsystems = append(l.subsystems, s)
}

// RunOnce services every registered subsystem once, in registration
// order, matching spec §5's "subsystem update calls execute in a fixed
// order per iteration".
func (l *Loop) RunOnce() {
	for _, s := range l.subsystems {
		s.Service()
	}
}

// Sleep triggers a SLEEP event (letting every listener quiesce
// in-flight work synchronously before this call returns), parks the
// MCU for d via the Sleeper, then triggers WAKEUP. A uuid correlation
// id ties the "entering sleep" and "resumed" log lines together across
// the suspension, since the millisecond clock itself may not advance
// while asleep.
func (l *Loop) Sleep(d time.Duration) {
	cycle := uuid.New().String()

	l.log.Info("loop: entering sleep", Field{Key: "cycle", Value: cycle})
	l.bus.Trigger(event.Event{Timestamp: l.clk.Now(), ID: event.Sleep})

	if l.sleeper != nil {
		l.sleeper.SleepEnter(d)
	}

	l.bus.Trigger(event.Event{Timestamp: l.clk.Now(), ID: event.Wakeup})
	l.log.Info("loop: resumed", Field{Key: "cycle", Value: cycle})
}
