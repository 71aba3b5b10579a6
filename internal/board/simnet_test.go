package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sillycat/sensornet/internal/radio"
)

func TestSimulatedDeviceFIFOBuffering(t *testing.T) {
	d, err := NewSimulatedDevice(0)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Configure(radio.DeviceConfig{OwnAddress: 0xA0, BroadcastAddress: 0xFF}))

	d.WriteToFIFO([]byte{10, 0xAA, 0xA0})
	d.WriteToFIFO([]byte{1, 2, 3})

	buf := make([]byte, 3)
	d.ReadFromFIFO(buf)
	assert.Equal(t, []byte{10, 0xAA, 0xA0}, buf)

	rest := make([]byte, 3)
	d.ReadFromFIFO(rest)
	assert.Equal(t, []byte{1, 2, 3}, rest)
}

func TestSimulatedDeviceClearFIFO(t *testing.T) {
	d, err := NewSimulatedDevice(0)
	require.NoError(t, err)
	defer d.Close()

	d.WriteToFIFO([]byte{1, 2, 3})
	d.ClearFIFO()

	buf := make([]byte, 3)
	d.ReadFromFIFO(buf)
	assert.Equal(t, []byte{0, 0, 0}, buf)
}

func TestSimulatedDeviceReportsFIFOSizeAndRSSI(t *testing.T) {
	d, err := NewSimulatedDevice(0)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 66, d.FIFOSize())
	assert.Equal(t, int8(-42), d.RSSI())
	assert.True(t, d.IsModeReady())
	assert.False(t, d.IsPacketSent())
	assert.False(t, d.IsPayloadReady())
}
