// Package radio is the link layer wrapping an RFM69-class FSK
// transceiver, ported from Transceiver.c: two nested cooperative state
// machines (outer Listening/Sending, inner listening Init/Waiting and
// inner sending Init/Writing/Transmitting) driven by repeated calls to
// Service, plus the packet framing and CRC-free wire format described in
// spec §6. The physical chip is abstracted behind the Device interface so
// this package has no SPI/GPIO dependency of its own; internal/board
// supplies the periph.io/go-rpio-backed implementation.
package radio

import (
	"github.com/sillycat/sensornet/internal/caltime"
	"github.com/sillycat/sensornet/internal/clock"
	"github.com/sillycat/sensornet/internal/event"
	"github.com/sillycat/sensornet/internal/failstop"
	"github.com/sillycat/sensornet/internal/fifo"
)

// MaxPayloadSize bounds a packet's application payload, matching
// CONTENT_DATA_SIZE.
const MaxPayloadSize = 20

// TxCapacity and RxCapacity are the outbound/inbound frame queue sizes,
// matching TX_PACKET_FIFO_SIZE / RX_PACKET_FIFO_SIZE.
const (
	TxCapacity = 3
	RxCapacity = 4
)

// wireHeaderSize and contentHeaderSize give the total_size formula from
// spec §6: total_size = wireHeaderSize(3) + contentHeaderSize(8) + size.
// This intentionally departs from Transceiver.c's sizeof(packet_header_type)
// (4 bytes, because that struct also carries the receive-only RSSI field)
// — the spec is explicit that RSSI is local metadata, never transmitted,
// so the wire header is 3 bytes (total_size, target, source).
const (
	wireHeaderSize    = 3
	contentHeaderSize = 8
)

// ModeReadyTimeoutMS and RSSIReadTimeoutMS are the link-layer timeouts
// from spec §5.
const (
	ModeReadyTimeoutMS = 10
	RSSIReadTimeoutMS  = 500
)

// Mode is the transceiver's operating mode.
type Mode uint8

const (
	ModeSleep Mode = iota
	ModeStandby
	ModeReceiver
	ModeTransmitter
)

// PAMode selects the power-amplifier configuration appropriate to a
// device class: Main runs the high-power PA, Node the normal one.
type PAMode uint8

const (
	PANormal PAMode = iota
	PAHighPower
)

// DeviceConfig carries the register values programmed once at Init,
// sourced from the configuration record (internal/config).
type DeviceConfig struct {
	NetworkID        [6]byte
	OwnAddress       uint8
	BroadcastAddress uint8
	AESKey           [16]byte
	PAMode           PAMode
}

// Device is the board-level capability the link layer consumes. It
// models the RFM69 register surface used by Transceiver_Init and the two
// state machines, not a general SPI driver — see internal/board for a
// concrete implementation.
type Device interface {
	// Configure performs the one-time register programming described in
	// spec §4.G (modulation, bit rate, carrier, sync word, address
	// filtering, AES key, LNA, RSSI threshold, PA mode, ...).
	Configure(cfg DeviceConfig) error
	SetMode(m Mode)
	IsModeReady() bool
	IsPayloadReady() bool
	IsRxTimeoutFlagSet() bool
	RestartRx()
	IsPacketSent() bool
	// ReadFromFIFO reads len(buf) bytes from the device's internal FIFO.
	ReadFromFIFO(buf []byte)
	// WriteToFIFO appends data to the device's internal FIFO.
	WriteToFIFO(data []byte)
	ClearFIFO()
	// RSSI returns the signal strength of the most recently received
	// packet, in dBm.
	RSSI() int8
	// FIFOSize is the device's physical FIFO capacity in bytes (66 on an
	// RFM69), used for the oversize-frame check.
	FIFOSize() int
}

// Logger receives the link layer's diagnostic messages, matching the
// INFO/WARNING/ERROR calls in Transceiver.c. Nil is a valid Logger: all
// methods become no-ops.
type Logger interface {
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

type nopLogger struct{}

func (nopLogger) Info(string)    {}
func (nopLogger) Warning(string) {}
func (nopLogger) Error(string)   {}

// Content is the application-layer payload of a frame: a timestamp, a
// closed packet-kind byte (interpreted by internal/comms), a declared
// size, and up to MaxPayloadSize bytes of data.
type Content struct {
	Timestamp caltime.Time
	Type      uint8
	Size      uint8
	Data      [MaxPayloadSize]byte
}

func (c Content) marshal() []byte {
	b := make([]byte, contentHeaderSize+int(c.Size))
	b[0] = c.Timestamp.Year
	b[1] = c.Timestamp.Month
	b[2] = c.Timestamp.Date
	b[3] = c.Timestamp.Hour
	b[4] = c.Timestamp.Minute
	b[5] = c.Timestamp.Second
	b[6] = c.Type
	b[7] = c.Size
	copy(b[contentHeaderSize:], c.Data[:c.Size])
	return b
}

func unmarshalContent(b []byte) Content {
	var c Content
	c.Timestamp = caltime.Time{
		Year: b[0], Month: b[1], Date: b[2],
		Hour: b[3], Minute: b[4], Second: b[5],
	}
	c.Type = b[6]
	c.Size = b[7]
	copy(c.Data[:c.Size], b[contentHeaderSize:contentHeaderSize+int(c.Size)])
	return c
}

// Header is the frame's wire header plus the locally-attached RSSI.
type Header struct {
	TotalSize uint8
	Target    uint8
	Source    uint8
	RSSI      int8
}

// Frame is one link-layer packet: a header plus its content.
type Frame struct {
	Header  Header
	Content Content
}

type outerState uint8

const (
	outerListening outerState = iota
	outerSending
)

type listeningState uint8

const (
	listeningInit listeningState = iota
	listeningWaiting
)

type sendingState uint8

const (
	sendingInit sendingState = iota
	sendingWriting
	sendingTransmitting
)

// Link is the radio link layer: the two ring buffers plus the nested
// state machines driven by Service.
type Link struct {
	dev        Device
	clk        *clock.Clock
	log        Logger
	ownAddress uint8

	tx *fifo.FIFO[Frame]
	rx *fifo.FIFO[Frame]

	outer   outerState
	listen  listeningState
	sending sendingState
}

// Init programs the device registers and constructs the link layer's
// queues. ownAddress must be nonzero.
func Init(dev Device, clk *clock.Clock, cfg DeviceConfig, log Logger) (*Link, error) {
	failstop.Assert(dev != nil, "radio: nil device")
	failstop.Assert(clk != nil, "radio: nil clock")
	failstop.Assert(cfg.OwnAddress != 0, "radio: own address must be nonzero")

	if log == nil {
		log = nopLogger{}
	}

	if err := dev.Configure(cfg); err != nil {
		return nil, err
	}

	l := &Link{
		dev:        dev,
		clk:        clk,
		log:        log,
		ownAddress: cfg.OwnAddress,
		tx:         fifo.New[Frame](TxCapacity),
		rx:         fifo.New[Frame](RxCapacity),
		outer:      outerListening,
		listen:     listeningInit,
	}

	dev.SetMode(ModeStandby)
	l.waitForModeReady(ModeReadyTimeoutMS)
	log.Info("radio initiated")

	return l, nil
}

// waitForModeReady busy-waits (bounded by the millisecond clock) for the
// device to report mode-ready, matching the spec's 10ms mode-ready
// timeout. deadline is in milliseconds.
func (l *Link) waitForModeReady(deadlineMS uint32) bool {
	start := l.clk.Now()
	for {
		if l.dev.IsModeReady() {
			return true
		}
		if clock.Since(l.clk, start) >= deadlineMS {
			l.log.Warning("radio: mode-ready timeout")
			return false
		}
	}
}

// Service advances whichever state machine is currently active. Call
// once per event-loop iteration.
func (l *Link) Service() {
	switch l.outer {
	case outerListening:
		l.outer = l.listeningStep()
	case outerSending:
		l.outer = l.sendingStep()
	default:
		failstop.Assert(false, "radio: invalid outer state")
	}
}

func (l *Link) listeningStep() outerState {
	switch l.listen {
	case listeningInit:
		l.dev.SetMode(ModeReceiver)
		l.waitForModeReady(ModeReadyTimeoutMS)
		l.listen = listeningWaiting
		return outerListening

	case listeningWaiting:
		switch {
		case l.dev.IsPayloadReady():
			l.dev.SetMode(ModeStandby)
			l.waitForModeReady(ModeReadyTimeoutMS)
			if !l.handlePayload() {
				l.log.Warning("radio: failed to handle packet")
			}
			l.listen = listeningInit
			return outerListening

		case l.dev.IsRxTimeoutFlagSet():
			l.log.Warning("radio: rx timeout")
			l.dev.RestartRx()
			return outerListening

		case !l.tx.IsEmpty():
			l.listen = listeningInit
			return outerSending

		default:
			return outerListening
		}

	default:
		failstop.Assert(false, "radio: invalid listening state")
		return outerListening
	}
}

func (l *Link) sendingStep() outerState {
	switch l.sending {
	case sendingInit:
		l.dev.SetMode(ModeStandby)
		l.sending = sendingWriting
		return outerSending

	case sendingWriting:
		if !l.dev.IsModeReady() {
			return outerSending
		}
		frame, ok := l.tx.Pop()
		if !ok {
			l.log.Warning("radio: no packets available, aborting TX sequence")
			l.sending = sendingInit
			return outerListening
		}
		l.dev.WriteToFIFO([]byte{frame.Header.TotalSize, frame.Header.Target, frame.Header.Source})
		l.dev.WriteToFIFO(frame.Content.marshal())
		l.dev.SetMode(ModeTransmitter)
		l.sending = sendingTransmitting
		return outerSending

	case sendingTransmitting:
		if l.dev.IsPacketSent() {
			l.sending = sendingInit
			return outerListening
		}
		return outerSending

	default:
		failstop.Assert(false, "radio: invalid sending state")
		return outerSending
	}
}

// handlePayload reads one frame out of the device FIFO, attaches RSSI,
// and pushes it to the inbound queue. It returns false (without pushing)
// on an oversize frame, matching HandlePayload's RFM_FIFO_SIZE check.
func (l *Link) handlePayload() bool {
	var lenByte [1]byte
	l.dev.ReadFromFIFO(lenByte[:])
	totalSize := lenByte[0]

	if int(totalSize) > l.dev.FIFOSize()-1 {
		l.log.Error("radio: size of packet is larger than the device FIFO")
		l.dev.ClearFIFO()
		return false
	}

	rest := make([]byte, totalSize-1)
	l.dev.ReadFromFIFO(rest)

	frame := Frame{
		Header: Header{
			TotalSize: totalSize,
			Target:    rest[0],
			Source:    rest[1],
			RSSI:      l.dev.RSSI(),
		},
		Content: unmarshalContent(rest[2:]),
	}

	return l.rx.Push(frame)
}

// Receive pops one frame from the inbound queue. It returns false when
// empty.
func (l *Link) Receive() (Frame, bool) {
	return l.rx.Pop()
}

// Send validates target and content.Size, builds a frame stamping
// source = own address and RSSI = 0, and pushes it to the outbound
// queue. It returns false when the outbound queue is full.
func (l *Link) Send(target uint8, content Content) bool {
	failstop.Assert(target != 0, "radio: target must be nonzero")
	failstop.Assert(content.Size <= MaxPayloadSize, "radio: content oversize")

	frame := Frame{
		Header: Header{
			TotalSize: wireHeaderSize + contentHeaderSize + content.Size,
			Target:    target,
			Source:    l.ownAddress,
			RSSI:      0,
		},
		Content: content,
	}
	return l.tx.Push(frame)
}

// isActive reports whether the link layer has in-flight work: a frame
// mid-transmission, a payload waiting to be drained from the device, or
// a frame queued for transmission.
func (l *Link) isActive() bool {
	return l.outer == outerSending || l.dev.IsPayloadReady() || !l.tx.IsEmpty()
}

// HandleEvent drains in-flight work and puts the device to sleep on
// event.Sleep, or brings it back to standby on event.Wakeup. All other
// event kinds are ignored.
func (l *Link) HandleEvent(e event.Event) {
	switch e.ID {
	case event.Sleep:
		l.log.Info("radio: entering sleep")
		for l.isActive() {
			l.Service()
		}
		l.dev.SetMode(ModeSleep)
		l.waitForModeReady(ModeReadyTimeoutMS)

	case event.Wakeup:
		l.log.Info("radio: exiting sleep")
		l.dev.SetMode(ModeStandby)
		l.waitForModeReady(ModeReadyTimeoutMS)
	}
}
