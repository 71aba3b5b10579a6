package sensor

import "github.com/sillycat/sensornet/internal/clock"

// simStage is the simulated measurement sequence, rendering spec §9's
// "request DHT measurement, wait 2ms, capture pulses, decode, publish"
// coroutine as an explicit state machine against the millisecond clock —
// the same pattern internal/radio uses for its own state machines — in
// place of the real, out-of-scope DHT22 bit-banged protocol (spec §1).
type simStage uint8

const (
	simIdle simStage = iota
	simPoweringUp
	simRequesting
	simCapturing
)

// Timings mirror the spec §5 values for sensor powerup and measurement
// request/capture.
const (
	simPowerupMS = 1000
	simRequestMS = 2
	simCaptureMS = 6
)

// Simulated is a millisecond-clock-driven stand-in for a real
// temperature/humidity sensor, for running cmd/node end to end on a
// workstation with no DHT22 attached. It reports a slowly drifting value
// around base rather than a real measurement.
type Simulated struct {
	clk        *clock.Clock
	stage      simStage
	stageSince uint32
	base       Reading
	drift      int16
	pending    Reading
	ready      bool
}

// NewSimulated returns a Simulated sensor that drifts around base.
func NewSimulated(clk *clock.Clock, base Reading) *Simulated {
	return &Simulated{clk: clk, stage: simPoweringUp, stageSince: clk.Now(), base: base}
}

// Service advances the measurement state machine by one step. Never
// blocks, matching TemperatureHumidity's contract.
func (s *Simulated) Service() {
	switch s.stage {
	case simIdle:
		return

	case simPoweringUp:
		if clock.Elapsed(s.clk.Now(), s.stageSince, simPowerupMS) {
			s.stage = simRequesting
			s.stageSince = s.clk.Now()
		}

	case simRequesting:
		if clock.Elapsed(s.clk.Now(), s.stageSince, simRequestMS) {
			s.stage = simCapturing
			s.stageSince = s.clk.Now()
		}

	case simCapturing:
		if clock.Elapsed(s.clk.Now(), s.stageSince, simCaptureMS) {
			s.drift = (s.drift + 3) % 20
			s.pending = Reading{
				TemperatureX10: s.base.TemperatureX10 + s.drift - 10,
				HumidityX10:    s.base.HumidityX10 + s.drift/2 - 5,
			}
			s.ready = true
			s.stage = simIdle
		}
	}
}

// Read returns the most recently completed reading and re-arms the state
// machine for the next measurement.
func (s *Simulated) Read() (Reading, bool) {
	if !s.ready {
		return Reading{}, false
	}
	s.ready = false
	r := s.pending
	s.stage = simPoweringUp
	s.stageSince = s.clk.Now()
	return r, true
}

// SimulatedBattery is a stand-in Battery for host builds: a fixed voltage
// with a settable charger-presence flag, standing in for the real
// ADC/voltage-divider reading (out of scope, spec §1).
type SimulatedBattery struct {
	mv       uint16
	charging bool
}

// NewSimulatedBattery returns a SimulatedBattery reporting a constant mv.
func NewSimulatedBattery(mv uint16) *SimulatedBattery {
	return &SimulatedBattery{mv: mv}
}

func (b *SimulatedBattery) VoltageMV() uint16      { return b.mv }
func (b *SimulatedBattery) ChargerConnected() bool { return b.charging }

// SetCharging toggles the simulated charger-presence edge.
func (b *SimulatedBattery) SetCharging(connected bool) { b.charging = connected }

// SetVoltageMV updates the simulated battery voltage, for driving the
// power state machine's threshold crossings in tests or demos.
func (b *SimulatedBattery) SetVoltageMV(mv uint16) { b.mv = mv }
