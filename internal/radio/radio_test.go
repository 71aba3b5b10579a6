package radio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sillycat/sensornet/internal/caltime"
	"github.com/sillycat/sensornet/internal/clock"
	"github.com/sillycat/sensornet/internal/event"
)

// fakeDevice is an in-memory RFM69 stand-in: mode transitions are
// instantaneous, the "FIFO" is a byte slice, and payload/packet-sent
// flags are driven explicitly by the test.
type fakeDevice struct {
	mode Mode

	fifo       []byte
	payloadBuf []byte

	payloadReady   bool
	rxTimeout      bool
	packetSent     bool
	rssi           int8
	fifoSize       int
	configureCalls int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{fifoSize: 66}
}

func (d *fakeDevice) Configure(cfg DeviceConfig) error { d.configureCalls++; return nil }
func (d *fakeDevice) SetMode(m Mode)                   { d.mode = m }
func (d *fakeDevice) IsModeReady() bool                { return true }
func (d *fakeDevice) IsPayloadReady() bool             { return d.payloadReady }
func (d *fakeDevice) IsRxTimeoutFlagSet() bool         { return d.rxTimeout }
func (d *fakeDevice) RestartRx()                       { d.rxTimeout = false }
func (d *fakeDevice) IsPacketSent() bool               { return d.packetSent }
func (d *fakeDevice) ClearFIFO()                       { d.fifo = nil }
func (d *fakeDevice) RSSI() int8                       { return d.rssi }
func (d *fakeDevice) FIFOSize() int                    { return d.fifoSize }

func (d *fakeDevice) ReadFromFIFO(buf []byte) {
	n := copy(buf, d.payloadBuf)
	d.payloadBuf = d.payloadBuf[n:]
}

func (d *fakeDevice) WriteToFIFO(data []byte) {
	d.fifo = append(d.fifo, data...)
}

func newLink(t *testing.T, dev Device) *Link {
	t.Helper()
	clk := clock.New()
	l, err := Init(dev, clk, DeviceConfig{OwnAddress: 0xA0, BroadcastAddress: 0xFF}, nil)
	require.NoError(t, err)
	return l
}

func TestSendRejectsZeroTargetAndOversizeContent(t *testing.T) {
	l := newLink(t, newFakeDevice())
	assert.Panics(t, func() { l.Send(0, Content{}) })
	assert.Panics(t, func() { l.Send(1, Content{Size: MaxPayloadSize + 1}) })
}

func TestSendQueueBackpressure(t *testing.T) {
	l := newLink(t, newFakeDevice())
	for i := 0; i < TxCapacity; i++ {
		assert.True(t, l.Send(0xAA, Content{Size: 2}))
	}
	assert.False(t, l.Send(0xAA, Content{Size: 2}), "the fourth send on a 3-capacity queue must fail")
}

func TestSendingStateMachineWritesFrameAndReturnsToListening(t *testing.T) {
	dev := newFakeDevice()
	l := newLink(t, dev)

	require.True(t, l.Send(0xAA, Content{Type: 2, Size: 2, Data: [MaxPayloadSize]byte{0x01, 0x02}}))

	l.listen = listeningWaiting
	l.outer = outerSending
	l.sending = sendingInit

	l.Service() // init -> writing
	l.Service() // writing -> transmitting (writes header+content, sets mode transmitter)
	assert.Equal(t, ModeTransmitter, dev.mode)
	assert.Equal(t, outerSending, l.outer)

	dev.packetSent = true
	l.Service() // transmitting -> listening
	assert.Equal(t, outerListening, l.outer)
}

func TestListeningDeliversReceivedFrameWithRSSI(t *testing.T) {
	dev := newFakeDevice()
	l := newLink(t, dev)
	l.listen = listeningWaiting

	content := Content{Type: 2, Size: 2, Data: [MaxPayloadSize]byte{0x01, 0x02}}
	frame := Frame{Header: Header{TotalSize: wireHeaderSize + contentHeaderSize + 2, Target: 0xA0, Source: 0xAA}, Content: content}
	raw := append([]byte{frame.Header.TotalSize, frame.Header.Target, frame.Header.Source}, content.marshal()...)
	dev.payloadBuf = raw
	dev.payloadReady = true
	dev.rssi = -42

	l.Service()

	got, ok := l.Receive()
	require.True(t, ok)
	assert.Equal(t, uint8(0xAA), got.Header.Source)
	assert.Equal(t, int8(-42), got.Header.RSSI)
	assert.Equal(t, uint8(2), got.Content.Size)
}

func TestOversizeFrameIsDroppedNotDelivered(t *testing.T) {
	dev := newFakeDevice()
	l := newLink(t, dev)
	l.listen = listeningWaiting

	dev.payloadBuf = []byte{byte(dev.fifoSize)} // totalSize == fifoSize > fifoSize-1
	dev.payloadReady = true

	l.Service()

	_, ok := l.Receive()
	assert.False(t, ok)
}

func TestSleepDrainsOutboundBeforeSleeping(t *testing.T) {
	dev := newFakeDevice()
	dev.packetSent = true // the fake reports "sent" immediately, so the drain loop terminates
	l := newLink(t, dev)
	require.True(t, l.Send(0xAA, Content{Size: 1}))

	l.HandleEvent(event.Event{ID: event.Sleep})
	assert.True(t, l.tx.IsEmpty())
	assert.Equal(t, ModeSleep, dev.mode)
}

func TestContentMarshalRoundTrips(t *testing.T) {
	c := Content{
		Timestamp: caltime.Time{Year: 24, Month: 1, Date: 2, Hour: 3, Minute: 4, Second: 5},
		Type:      2,
		Size:      3,
		Data:      [MaxPayloadSize]byte{0xAA, 0xBB, 0xCC},
	}
	got := unmarshalContent(c.marshal())
	assert.Equal(t, c.Timestamp, got.Timestamp)
	assert.Equal(t, c.Type, got.Type)
	assert.Equal(t, c.Size, got.Size)
	assert.Equal(t, c.Data, got.Data)
}
