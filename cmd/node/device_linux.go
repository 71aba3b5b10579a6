//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/sillycat/sensornet/internal/board"
	"github.com/sillycat/sensornet/internal/boardprofile"
	"github.com/sillycat/sensornet/internal/radio"
)

// openRadioDevice wires the real RFM69 over SPI/GPIO, the same pin and
// bus selection the teacher's hal_init_linux.go makes for its own
// Raspberry Pi HAL.
func openRadioDevice(prof *boardprofile.Profile) (radio.Device, func() error, error) {
	brd, err := board.Open(prof.Radio.SPIBus, board.PinConfig{
		RadioChipSelect: prof.Radio.ChipSelectPin,
		RadioReset:      prof.Radio.ResetPin,
		RadioInterrupt:  prof.Radio.InterruptPin,
		StatusLED:       prof.Radio.StatusLEDPin,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("node: open board: %w", err)
	}
	return board.NewRFM69(brd), brd.Close, nil
}
