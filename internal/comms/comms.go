// Package comms is the application-layer communications module, ported
// from Com.c: typed packet dispatch on top of the radio link layer, an
// RTC-backed timestamp on every send, and a small set of counters.
package comms

import (
	"github.com/sillycat/sensornet/internal/caltime"
	"github.com/sillycat/sensornet/internal/errlog"
	"github.com/sillycat/sensornet/internal/failstop"
	"github.com/sillycat/sensornet/internal/radio"
)

// Kind is the closed application-layer packet type enumeration from
// spec §6.
type Kind uint8

const (
	KindACK Kind = iota
	KindData
	KindReading
	KindTime
	kindCount
)

// Handler processes one received frame and reports success/failure.
// Handlers are not retried on failure — the core does not re-transmit.
type Handler func(frame radio.Frame) bool

// RTC supplies the current broken-down time for outgoing packets. A
// failing read still lets Send proceed with a zeroed timestamp, matching
// Com_Send's documented RTC_FAIL handling.
type RTC interface {
	Now() (caltime.Time, bool)
}

// Logger receives comms' diagnostic messages.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

type nopLogger struct{}

func (nopLogger) Debug(string)   {}
func (nopLogger) Info(string)    {}
func (nopLogger) Warning(string) {}
func (nopLogger) Error(string)   {}

// Statistics mirrors Com.c's module_t.statistics.
type Statistics struct {
	Sent     uint32
	Received uint32
	Lost     uint32
	Invalid  uint32
}

// Link is the subset of *radio.Link that comms depends on, so tests can
// substitute a fake.
type Link interface {
	Send(target uint8, content radio.Content) bool
	Receive() (radio.Frame, bool)
}

// Module is the application-layer communications state: the handler
// table and the statistics counters.
type Module struct {
	link     Link
	rtc      RTC
	log      Logger
	errlog   *errlog.Log
	handlers [kindCount]Handler
	stats    Statistics
}

// New constructs a Module bound to the given link layer. errs may be nil
// when the caller does not want RTC failures logged to the fault
// journal (tests typically pass nil).
func New(link Link, rtc RTC, log Logger, errs *errlog.Log) *Module {
	failstop.Assert(link != nil, "comms: nil link")
	failstop.Assert(rtc != nil, "comms: nil RTC")
	if log == nil {
		log = nopLogger{}
	}
	return &Module{link: link, rtc: rtc, log: log, errlog: errs}
}

// SetHandler installs handler for packet kind. Passing a nil handler
// clears any previously installed one.
func (m *Module) SetHandler(kind Kind, handler Handler) {
	failstop.Assert(kind < kindCount, "comms: packet kind out of range")
	m.handlers[kind] = handler
}

// Send timestamps data as packet kind and hands it to the link layer.
// On an RTC read failure the timestamp is zeroed and RTC_FAIL is logged,
// matching Com_Send.
func (m *Module) Send(target uint8, kind Kind, data []byte) bool {
	failstop.Assert(target != 0, "comms: target must be nonzero")
	failstop.Assert(kind < kindCount, "comms: packet kind out of range")
	failstop.Assert(len(data) <= radio.MaxPayloadSize, "comms: payload oversize")

	timestamp, ok := m.rtc.Now()
	if !ok {
		if m.errlog != nil {
			m.errlog.Log(errlog.CodeRTCFailure, 0) // RTC_FAIL
		}
		m.log.Error("comms: failed to get timestamp")
		timestamp = caltime.Time{}
	}

	content := radio.Content{Timestamp: timestamp, Type: uint8(kind), Size: uint8(len(data))}
	copy(content.Data[:], data)

	if m.link.Send(target, content) {
		m.log.Debug("comms: packet sent")
		m.stats.Sent++
		return true
	}

	m.log.Error("comms: failed to send packet")
	m.stats.Lost++
	return false
}

// Update dispatches one received frame, if available, to its installed
// handler.
func (m *Module) Update() {
	frame, ok := m.link.Receive()
	if !ok {
		return
	}
	m.handlePacket(frame)
}

func (m *Module) handlePacket(frame radio.Frame) bool {
	kind := Kind(frame.Content.Type)
	switch {
	case kind >= kindCount:
		m.log.Warning("comms: invalid packet type")
		m.stats.Invalid++
		return false

	case m.handlers[kind] == nil:
		m.log.Info("comms: no packet handler set")
		m.stats.Received++
		return false

	default:
		status := m.handlers[kind](frame)
		m.stats.Received++
		return status
	}
}

// Statistics returns a copy of the current counters.
func (m *Module) Statistics() Statistics {
	return m.stats
}
