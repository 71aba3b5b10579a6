package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sillycat/sensornet/internal/clock"
)

func TestSimulatedProducesAReadingAfterFullSequence(t *testing.T) {
	clk := clock.New()
	s := NewSimulated(clk, Reading{TemperatureX10: 225, HumidityX10: 480})

	_, ok := s.Read()
	require.False(t, ok)

	total := simPowerupMS + simRequestMS + simCaptureMS
	for i := 0; i < total+5; i++ {
		clk.Tick()
		s.Service()
	}

	r, ok := s.Read()
	require.True(t, ok)
	assert.InDelta(t, 225, r.TemperatureX10, 20)
	assert.InDelta(t, 480, r.HumidityX10, 20)

	_, ok = s.Read()
	assert.False(t, ok, "Read should not report the same reading twice")
}

func TestSimulatedBatteryReportsSetValues(t *testing.T) {
	b := NewSimulatedBattery(3000)
	assert.Equal(t, uint16(3000), b.VoltageMV())
	assert.False(t, b.ChargerConnected())

	b.SetCharging(true)
	b.SetVoltageMV(2100)
	assert.True(t, b.ChargerConnected())
	assert.Equal(t, uint16(2100), b.VoltageMV())
}
