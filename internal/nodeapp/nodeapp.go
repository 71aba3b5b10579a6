// Package nodeapp is the battery-powered leaf device's application
// layer, built on internal/comms and internal/sensor per spec §4.J: on
// each wake, drive the sensor to a reading, hand it to comms as a
// READING packet, then decide when to go back to sleep and for how
// long.
package nodeapp

import (
	"github.com/sillycat/sensornet/internal/caltime"
	"github.com/sillycat/sensornet/internal/clock"
	"github.com/sillycat/sensornet/internal/comms"
	"github.com/sillycat/sensornet/internal/event"
	"github.com/sillycat/sensornet/internal/failstop"
	"github.com/sillycat/sensornet/internal/sensor"
)

// GatewayAddress is the design-value main-device address every node
// reports readings to.
const GatewayAddress = 0xAA

// MaxAwakeMS bounds how long a node stays awake absent an explicit
// send-completed notification (design value, spec §4.J).
const MaxAwakeMS = 3000

// Battery thresholds in millivolts (spec §4.J).
const (
	LowThresholdMV      = 2200
	CriticalThresholdMV = 1900
)

// PowerState is the node's battery state machine: NORMAL <-> LOW <->
// CRITICAL plus CHARGING -> CONNECTED -> NORMAL when a charger is
// attached and removed.
type PowerState uint8

const (
	PowerNormal PowerState = iota
	PowerLow
	PowerCritical
	PowerCharging
	PowerConnected
)

// Power-transition event kinds, published on the shared bus so other
// listeners (status LED, debug log) can react without this package
// knowing about them.
const (
	EventPowerLow      event.Kind = event.FirstApplicationKind + iota
	EventPowerCritical
	EventPowerNormal
	EventChargerConnected
	EventChargerRemoved
	// sentCompleted stands in for the source variants' differently-named
	// "reading accepted for transmission" notification (spec §9, Open
	// Questions: EVENT_RHT_SENT / EVENT_RHT_AVAILABLE / a send callback).
	// The contract fixed here: the node is notified exactly once when
	// comms has queued the reading, and that notification arms sleep.
	sentCompleted
)

// RTC supplies wall time for outgoing readings and programs the wake
// alarm for the node's next report.
type RTC interface {
	Now() (caltime.Time, bool)
	SetAlarm(at caltime.Time) error
	ClearAlarm() error
}

// LED is the node's single status indicator, serviced once per
// iteration alongside the sensor and comms.
type LED interface {
	Service()
}

// Logger receives the application layer's diagnostic messages.
type Logger interface {
	Info(msg string)
	Warning(msg string)
}

type nopLogger struct{}

func (nopLogger) Info(string)    {}
func (nopLogger) Warning(string) {}

// App is the node application.
type App struct {
	sensor  sensor.TemperatureHumidity
	battery sensor.Battery
	comms   *comms.Module
	led     LED
	bus     *event.Bus
	rtc     RTC
	clk     *clock.Clock
	log     Logger

	reportIntervalSeconds uint32

	power          PowerState
	chargerWasHere bool
	sleepNow       bool
	awakeSinceMS   uint32
}

// New constructs a node application and installs the internal
// send-completed listener that arms the sleep condition.
func New(s sensor.TemperatureHumidity, battery sensor.Battery, link *comms.Module, led LED, bus *event.Bus, rtc RTC, clk *clock.Clock, log Logger, reportIntervalSeconds uint32) *App {
	failstop.Assert(s != nil, "nodeapp: nil sensor")
	failstop.Assert(link != nil, "nodeapp: nil comms module")
	failstop.Assert(bus != nil, "nodeapp: nil event bus")
	failstop.Assert(rtc != nil, "nodeapp: nil RTC")
	failstop.Assert(clk != nil, "nodeapp: nil clock")
	failstop.Assert(reportIntervalSeconds > 0, "nodeapp: report interval must be > 0")
	if log == nil {
		log = nopLogger{}
	}

	a := &App{
		sensor:                s,
		battery:               battery,
		comms:                 link,
		led:                   led,
		bus:                   bus,
		rtc:                   rtc,
		clk:                   clk,
		log:                   log,
		reportIntervalSeconds: reportIntervalSeconds,
	}
	bus.AddListener(sentCompleted, func(event.Event) { a.sleepNow = true })
	return a
}

// Wake is called once per wake cycle, before the first Service call: it
// clears the sleep-now flag, resets the awake timer, and triggers WAKEUP.
// It does not start a measurement: the sensor is not a bus listener, and
// its measurement sequence advances only through its own Service calls.
func (a *App) Wake() {
	a.sleepNow = false
	a.awakeSinceMS = a.clk.Now()
	a.bus.Trigger(event.Event{Timestamp: a.awakeSinceMS, ID: event.Wakeup})
}

// Service drives one loop iteration in the fixed order spec §4.J names:
// sensor, transceiver (serviced by the caller's internal/loop
// registration of radio.Link.Service directly), comms, LED, power.
func (a *App) Service() {
	a.sensor.Service()

	if reading, ok := a.sensor.Read(); ok {
		a.sendReading(reading)
	}

	a.comms.Update()

	if a.led != nil {
		a.led.Service()
	}

	a.updatePower()
}

func (a *App) sendReading(r sensor.Reading) {
	payload := make([]byte, 4)
	payload[0] = byte(r.TemperatureX10)
	payload[1] = byte(r.TemperatureX10 >> 8)
	payload[2] = byte(r.HumidityX10)
	payload[3] = byte(r.HumidityX10 >> 8)
	if a.battery != nil {
		mv := a.battery.VoltageMV()
		payload = append(payload, byte(mv), byte(mv>>8))
	}

	if a.comms.Send(GatewayAddress, comms.KindReading, payload) {
		a.bus.Trigger(event.Event{Timestamp: a.clk.Now(), ID: sentCompleted})
	}
}

// IsTimeForSleep reports spec §4.J's sleep-now condition: the
// send-completed flag is set, or the node has been awake longer than
// MaxAwakeMS — in either case only once no charger is connected.
func (a *App) IsTimeForSleep() bool {
	if a.battery != nil && a.battery.ChargerConnected() {
		return false
	}
	if a.sleepNow {
		return true
	}
	return clock.Elapsed(a.clk.Now(), a.awakeSinceMS, MaxAwakeMS)
}

// PrepareSleep computes the next wake time as now+reportInterval and
// programs the RTC alarm, matching spec §4.J step 6. The caller
// performs the actual SLEEP event trigger and MCU suspension via
// internal/loop, then calls ClearAlarm on the next wake.
func (a *App) PrepareSleep() error {
	now, ok := a.rtc.Now()
	if !ok {
		a.log.Warning("nodeapp: failed to read RTC before sleep")
		return nil
	}
	next := caltime.AddSeconds(now, a.reportIntervalSeconds)
	return a.rtc.SetAlarm(next)
}

// updatePower drives the battery state machine: NORMAL/LOW/CRITICAL on
// voltage thresholds, CHARGING/CONNECTED/NORMAL on a charger-presence
// edge. Crossing a threshold publishes the corresponding event so other
// listeners (status LED) can react.
func (a *App) updatePower() {
	chargerHere := a.battery != nil && a.battery.ChargerConnected()

	if chargerHere && !a.chargerWasHere {
		a.setPower(PowerCharging)
		a.bus.Trigger(event.Event{Timestamp: a.clk.Now(), ID: EventChargerConnected})
		a.chargerWasHere = true
		return
	} else if !chargerHere && a.chargerWasHere {
		a.bus.Trigger(event.Event{Timestamp: a.clk.Now(), ID: EventChargerRemoved})
	}
	a.chargerWasHere = chargerHere

	if chargerHere {
		if a.power == PowerCharging {
			a.setPower(PowerConnected)
		} else if a.power == PowerConnected {
			a.setPower(PowerNormal)
		}
		return
	}

	if a.battery == nil {
		return
	}

	mv := a.battery.VoltageMV()
	switch {
	case mv < CriticalThresholdMV:
		a.setPower(PowerCritical)
	case mv < LowThresholdMV:
		a.setPower(PowerLow)
	default:
		a.setPower(PowerNormal)
	}
}

func (a *App) setPower(next PowerState) {
	if next == a.power {
		return
	}
	a.power = next
	switch next {
	case PowerLow:
		a.bus.Trigger(event.Event{Timestamp: a.clk.Now(), ID: EventPowerLow})
	case PowerCritical:
		a.bus.Trigger(event.Event{Timestamp: a.clk.Now(), ID: EventPowerCritical})
	case PowerNormal:
		a.bus.Trigger(event.Event{Timestamp: a.clk.Now(), ID: EventPowerNormal})
	}
}

// Power returns the current power state.
func (a *App) Power() PowerState {
	return a.power
}
