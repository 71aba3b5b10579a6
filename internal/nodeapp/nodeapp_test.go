package nodeapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sillycat/sensornet/internal/caltime"
	"github.com/sillycat/sensornet/internal/clock"
	"github.com/sillycat/sensornet/internal/comms"
	"github.com/sillycat/sensornet/internal/event"
	"github.com/sillycat/sensornet/internal/radio"
	"github.com/sillycat/sensornet/internal/sensor"
)

type fakeLink struct {
	sendOK bool
	sent   []radio.Content
}

func (f *fakeLink) Send(target uint8, content radio.Content) bool {
	if f.sendOK {
		f.sent = append(f.sent, content)
	}
	return f.sendOK
}
func (f *fakeLink) Receive() (radio.Frame, bool) { return radio.Frame{}, false }

type fakeRTC struct {
	t        caltime.Time
	ok       bool
	alarm    caltime.Time
	alarmSet bool
}

func (f *fakeRTC) Now() (caltime.Time, bool) { return f.t, f.ok }
func (f *fakeRTC) SetAlarm(at caltime.Time) error {
	f.alarm = at
	f.alarmSet = true
	return nil
}
func (f *fakeRTC) ClearAlarm() error { f.alarmSet = false; return nil }

type fakeSensor struct {
	reading sensor.Reading
	ready   bool
}

func (s *fakeSensor) Service() {}
func (s *fakeSensor) Read() (sensor.Reading, bool) {
	if s.ready {
		s.ready = false
		return s.reading, true
	}
	return sensor.Reading{}, false
}

type fakeBattery struct {
	mv      uint16
	charger bool
}

func (b *fakeBattery) VoltageMV() uint16     { return b.mv }
func (b *fakeBattery) ChargerConnected() bool { return b.charger }

func newTestApp(t *testing.T, link *fakeLink, batt *fakeBattery) (*App, *event.Bus) {
	bus := event.New()
	clk := clock.New()
	rtc := &fakeRTC{t: caltime.Time{Year: 24, Month: 1, Date: 2, Hour: 3, Minute: 4, Second: 5}, ok: true}
	m := comms.New(link, rtc, nil, nil)
	s := &fakeSensor{}
	app := New(s, batt, m, nil, bus, rtc, clk, nil, 60)
	return app, bus
}

func TestSendReadingArmsSleepOnSuccessfulSend(t *testing.T) {
	link := &fakeLink{sendOK: true}
	app, _ := newTestApp(t, link, &fakeBattery{mv: 3000})
	app.Wake()

	assert.False(t, app.IsTimeForSleep())
	app.sendReading(sensor.Reading{TemperatureX10: 250, HumidityX10: 480})

	require.Len(t, link.sent, 1)
	assert.True(t, app.sleepNow)
	assert.True(t, app.IsTimeForSleep())
}

func TestSendReadingDoesNotArmSleepOnFailedSend(t *testing.T) {
	link := &fakeLink{sendOK: false}
	app, _ := newTestApp(t, link, &fakeBattery{mv: 3000})
	app.Wake()

	app.sendReading(sensor.Reading{TemperatureX10: 250, HumidityX10: 480})
	assert.False(t, app.sleepNow)
}

func TestIsTimeForSleepFalseWhenChargerConnected(t *testing.T) {
	link := &fakeLink{sendOK: true}
	batt := &fakeBattery{mv: 3000, charger: true}
	app, _ := newTestApp(t, link, batt)
	app.Wake()
	app.sleepNow = true

	assert.False(t, app.IsTimeForSleep())
}

func TestPowerStateCrossesLowAndCriticalThresholds(t *testing.T) {
	link := &fakeLink{sendOK: true}
	batt := &fakeBattery{mv: 3000}
	app, _ := newTestApp(t, link, batt)

	app.updatePower()
	assert.Equal(t, PowerNormal, app.Power())

	batt.mv = 2000
	app.updatePower()
	assert.Equal(t, PowerLow, app.Power())

	batt.mv = 1800
	app.updatePower()
	assert.Equal(t, PowerCritical, app.Power())
}

func TestChargerEdgeDrivesChargingThenConnectedThenNormal(t *testing.T) {
	link := &fakeLink{sendOK: true}
	batt := &fakeBattery{mv: 1800}
	app, _ := newTestApp(t, link, batt)
	app.updatePower()
	require.Equal(t, PowerCritical, app.Power())

	batt.charger = true
	app.updatePower()
	assert.Equal(t, PowerCharging, app.Power())

	app.updatePower()
	assert.Equal(t, PowerConnected, app.Power())

	app.updatePower()
	assert.Equal(t, PowerNormal, app.Power())
}

func TestPrepareSleepProgramsAlarmAtReportInterval(t *testing.T) {
	link := &fakeLink{sendOK: true}
	app, _ := newTestApp(t, link, &fakeBattery{mv: 3000})

	require.NoError(t, app.PrepareSleep())

	// newTestApp's RTC reads 2024-01-02 03:04:05 and the interval is 60 s.
	rtc := app.rtc.(*fakeRTC)
	assert.True(t, rtc.alarmSet)
	assert.Equal(t, caltime.Time{Year: 24, Month: 1, Date: 2, Hour: 3, Minute: 5, Second: 5}, rtc.alarm)
}
