// Package board is the thin hardware capability set the systems core is
// written against, per spec §9: spi_transfer, radio_{select,release,
// pull_reset,release_reset}, gpio_set/clear and sleep_enter. The
// millisecond-clock start is not part of it: the binaries drive
// internal/clock from a ticker. It is adapted from the teacher's
// RaspberryPiHAL (internal/hal/rpi.go in EdgxCloud-EdgeFlow), trading
// that file's generic multi-bus I2C/PWM/SPI HAL for the small, fixed set
// of capabilities this firmware's core actually consumes: one SPI bus for
// the RFM69, a handful of GPIO pins (chip-select, reset, wake interrupt,
// status LED), and the sleep/wake transition.
package board

import (
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PinConfig names the GPIO lines the core drives directly, independent
// of the SPI bus periph.io already owns for the transceiver.
type PinConfig struct {
	RadioChipSelect int
	RadioReset      int
	RadioInterrupt  int // wake-from-sleep level interrupt source
	StatusLED       int
}

// Board owns the SPI connection to the RFM69 and the handful of GPIO
// lines the core needs directly.
type Board struct {
	mu sync.Mutex

	pins    PinConfig
	cs      rpio.Pin
	reset   rpio.Pin
	irq     rpio.Pin
	led     rpio.Pin
	spiConn spi.Conn
	spiPort spi.PortCloser
}

// Open initializes periph.io and go-rpio and wires up the pins named in
// cfg, along with an SPI connection on the given bus path (e.g.
// "SPI0.0").
func Open(spiBusName string, cfg PinConfig) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("board: periph init: %w", err)
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("board: gpio open: %w", err)
	}

	port, err := spireg.Open(spiBusName)
	if err != nil {
		return nil, fmt.Errorf("board: open spi %s: %w", spiBusName, err)
	}
	conn, err := port.Connect(physic.MegaHertz*4, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("board: connect spi: %w", err)
	}

	b := &Board{
		pins:    cfg,
		cs:      rpio.Pin(cfg.RadioChipSelect),
		reset:   rpio.Pin(cfg.RadioReset),
		irq:     rpio.Pin(cfg.RadioInterrupt),
		led:     rpio.Pin(cfg.StatusLED),
		spiConn: conn,
		spiPort: port,
	}
	b.cs.Output()
	b.cs.High()
	b.reset.Output()
	b.reset.Low()
	b.irq.Input()
	b.led.Output()

	return b, nil
}

// Close releases the SPI port and GPIO handles.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.spiPort != nil {
		b.spiPort.Close()
	}
	return rpio.Close()
}

// SPITransfer writes out and returns the bytes clocked back in,
// matching the "spi_transfer" capability from spec §9. The call spins
// until the peripheral's done flag is set, which on periph.io's
// synchronous Tx is implicit in the call returning.
func (b *Board) SPITransfer(out []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	in := make([]byte, len(out))
	if err := b.spiConn.Tx(out, in); err != nil {
		return nil, fmt.Errorf("board: spi transfer: %w", err)
	}
	return in, nil
}

// RadioSelect/RadioRelease drive the transceiver's chip-select line.
func (b *Board) RadioSelect()  { b.cs.Low() }
func (b *Board) RadioRelease() { b.cs.High() }

// RadioPullReset/RadioReleaseReset drive the transceiver's reset line.
func (b *Board) RadioPullReset()    { b.reset.High() }
func (b *Board) RadioReleaseReset() { b.reset.Low() }

// GPIOSet/GPIOClear drive an arbitrary board pin by number, used by the
// node's status LED and any other discrete output the application layer
// owns directly.
func (b *Board) GPIOSet(pin int)   { rpio.Pin(pin).High() }
func (b *Board) GPIOClear(pin int) { rpio.Pin(pin).Low() }

// RadioInterruptAsserted reports the current level of the wake/DIO
// interrupt line, used by the sleep/wake transition to confirm the
// device actually woke the MCU rather than a spurious reset.
func (b *Board) RadioInterruptAsserted() bool {
	return b.irq.Read() == rpio.High
}

// SleepEnter is a placeholder for the MCU's deep-sleep instruction. On a
// host build there is no MCU sleep mode to enter; this parks the calling
// goroutine for the given duration to model the suspension described in
// spec §5 ("the mainline never blocks except ... the MCU sleep
// instruction inside the node's sleep handler").
func (b *Board) SleepEnter(d time.Duration) {
	time.Sleep(d)
}
