//go:build !linux
// +build !linux

package main

import (
	"fmt"

	"github.com/sillycat/sensornet/internal/board"
	"github.com/sillycat/sensornet/internal/boardprofile"
	"github.com/sillycat/sensornet/internal/radio"
)

// openRadioDevice stands in for the real RFM69 with the UDP-broadcast
// host-side development harness, the same non-Linux fallback shape as
// the teacher's hal_init_other.go choosing its MockHAL.
func openRadioDevice(prof *boardprofile.Profile) (radio.Device, func() error, error) {
	dev, err := board.NewSimulatedDevice(prof.Radio.SimulatedPort)
	if err != nil {
		return nil, nil, fmt.Errorf("node: open simulated radio: %w", err)
	}
	return dev, dev.Close, nil
}
