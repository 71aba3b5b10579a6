package mainapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sillycat/sensornet/internal/caltime"
	"github.com/sillycat/sensornet/internal/clock"
	"github.com/sillycat/sensornet/internal/comms"
	"github.com/sillycat/sensornet/internal/radio"
)

type fakeLink struct {
	sendOK  bool
	sent    []radio.Content
	targets []uint8
}

func (f *fakeLink) Send(target uint8, content radio.Content) bool {
	f.sent = append(f.sent, content)
	f.targets = append(f.targets, target)
	return f.sendOK
}
func (f *fakeLink) Receive() (radio.Frame, bool) { return radio.Frame{}, false }

type fakeRTC struct {
	t  caltime.Time
	ok bool
}

func (f *fakeRTC) Now() (caltime.Time, bool) { return f.t, f.ok }

type fakeStack struct {
	free int
}

func (f *fakeStack) FreeBytes() int { return f.free }

func newTestApp(link *fakeLink, rtc *fakeRTC, stack *fakeStack) *App {
	clk := clock.New()
	m := comms.New(link, rtc, nil, nil)
	return New(m, nil, nil, stack, rtc, clk, nil, nil)
}

func TestReadingFromUnregisteredNodeIsRejected(t *testing.T) {
	link := &fakeLink{sendOK: true}
	rtc := &fakeRTC{ok: true}
	app := newTestApp(link, rtc, nil)

	frame := radio.Frame{Header: radio.Header{Source: 0xA0}}
	ok := app.handleReading(frame)
	assert.False(t, ok)
	assert.Empty(t, link.sent)
}

func TestReadingFromRegisteredNodeUpdatesRecordAndRepliesWithTime(t *testing.T) {
	link := &fakeLink{sendOK: true}
	rtc := &fakeRTC{t: caltime.Time{Year: 24, Month: 6, Date: 15, Hour: 10, Minute: 0, Second: 0}, ok: true}
	app := newTestApp(link, rtc, nil)
	app.RegisterNode(0xA0)

	content := radio.Content{Size: 4}
	content.Data[0], content.Data[1] = 0xFA, 0x00 // 250 = 25.0C x10
	content.Data[2], content.Data[3] = 0xE0, 0x01 // 480 = 48.0% x10
	frame := radio.Frame{Header: radio.Header{Source: 0xA0, RSSI: -42}, Content: content}

	ok := app.handleReading(frame)
	require.True(t, ok)

	rec, found := app.Node(0xA0)
	require.True(t, found)
	assert.Equal(t, int16(250), rec.Temperature.Value)
	assert.Equal(t, int16(480), rec.Humidity.Value)
	assert.Equal(t, int8(-42), rec.LastRSSI)
	assert.True(t, rec.Connected)

	require.Len(t, link.sent, 1)
	assert.Equal(t, uint8(0xA0), link.targets[0])
	assert.Equal(t, uint8(comms.KindTime), link.sent[0].Type)
}

func TestCheckStackWatermarkLogsOnceBelowThreshold(t *testing.T) {
	link := &fakeLink{sendOK: true}
	rtc := &fakeRTC{ok: true}
	stack := &fakeStack{free: 50}
	app := newTestApp(link, rtc, stack)

	app.checkStackWatermark()
	assert.True(t, app.lowStackLogged)

	stack.free = 10
	app.lowStackLogged = false
	app.checkStackWatermark()
	assert.True(t, app.lowStackLogged)
}

func TestCheckStackWatermarkDoesNotLogAboveThreshold(t *testing.T) {
	link := &fakeLink{sendOK: true}
	rtc := &fakeRTC{ok: true}
	stack := &fakeStack{free: 500}
	app := newTestApp(link, rtc, stack)

	app.checkStackWatermark()
	assert.False(t, app.lowStackLogged)
}
