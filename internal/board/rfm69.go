package board

import (
	"fmt"

	"github.com/sillycat/sensornet/internal/radio"
)

// RFM69 register addresses used by Configure/SetMode/the status reads.
// Names and offsets match the chip's public datasheet, the same map the
// original firmware's libRFM69 wraps.
const (
	regFifo         = 0x00
	regOpMode       = 0x01
	regDataModul    = 0x02
	regBitrateMSB   = 0x03
	regBitrateLSB   = 0x04
	regFdevMSB      = 0x05
	regFdevLSB      = 0x06
	regFrfMSB       = 0x07
	regFrfMID       = 0x08
	regFrfLSB       = 0x09
	regPALevel      = 0x11
	regOCP          = 0x13
	regLNA          = 0x18
	regRSSIConfig   = 0x23
	regRSSIValue    = 0x24
	regIRQFlags1    = 0x27
	regIRQFlags2    = 0x28
	regRSSIThresh   = 0x29
	regRxTimeout1   = 0x2A
	regPreambleMSB  = 0x2C
	regPreambleLSB  = 0x2D
	regSyncConfig   = 0x2E
	regSyncValue1   = 0x2F
	regPacketConfig1 = 0x37
	regPayloadLength = 0x38
	regNodeAdrs     = 0x39
	regBroadcastAdrs = 0x3A
	regFifoThresh   = 0x3C
	regPacketConfig2 = 0x3D
	regAESKey1      = 0x3E
	regTestPA1      = 0x5A
	regTestPA2      = 0x5C

	fifoSize = 66

	writeBit = 0x80

	irq1ModeReady    = 1 << 7
	irq2FifoNotEmpty = 1 << 6
	irq2PayloadReady = 1 << 2
	irq2PacketSent   = 1 << 3
	irq1Timeout      = 1 << 2

	opModeSleep    = 0x00
	opModeStandby  = 0x04
	opModeReceiver = 0x10
	opModeTransmit = 0x0C
)

// RFM69 drives an RFM69-class transceiver over a Board's SPI connection,
// implementing radio.Device. It is the register-programming
// counterpart of Transceiver_Init/the three flag-reading helpers in
// Transceiver.c.
type RFM69 struct {
	board *Board
}

// NewRFM69 returns an RFM69 device bound to board's SPI connection.
func NewRFM69(board *Board) *RFM69 {
	return &RFM69{board: board}
}

func (d *RFM69) readReg(addr byte) (byte, error) {
	d.board.RadioSelect()
	defer d.board.RadioRelease()
	out, err := d.board.SPITransfer([]byte{addr &^ writeBit, 0x00})
	if err != nil {
		return 0, err
	}
	return out[1], nil
}

func (d *RFM69) writeReg(addr, value byte) error {
	d.board.RadioSelect()
	defer d.board.RadioRelease()
	_, err := d.board.SPITransfer([]byte{addr | writeBit, value})
	return err
}

func (d *RFM69) writeRegs(addr byte, values ...byte) error {
	d.board.RadioSelect()
	defer d.board.RadioRelease()
	out := append([]byte{addr | writeBit}, values...)
	_, err := d.board.SPITransfer(out)
	return err
}

// Configure performs the one-time register programming described in
// spec §4.G: FSK/packet mode/variable length/CRC, 4800bps, 868MHz
// carrier, 5kHz deviation, 8-byte preamble, 6-byte sync word from the
// network id, address filtering, AES key (encryption left disabled),
// automatic LNA gain, RSSI threshold/timeout, and PA mode per device
// class.
func (d *RFM69) Configure(cfg radio.DeviceConfig) error {
	const (
		fxosc    = 32000000
		bitRate  = 4800
		carrier  = 868000000
		fdev     = 5000

		// Frf and Fdev are in units of Fstep = fxosc / 2^19 (the datasheet's
		// synthesizer resolution); scaling before dividing keeps Fstep's
		// fractional part.
		bitrateReg = fxosc / bitRate
		fdevReg    = fdev * 524288 / fxosc
		frfReg     = carrier * 524288 / fxosc
	)

	writes := []struct {
		addr, value byte
	}{
		{regDataModul, 0x00},                        // FSK, packet mode, no shaping
		{regBitrateMSB, byte(bitrateReg >> 8)},
		{regBitrateLSB, byte(bitrateReg & 0xFF)},
		{regFdevMSB, byte(fdevReg >> 8)},
		{regFdevLSB, byte(fdevReg & 0xFF)},
		{regFrfMSB, byte(frfReg >> 16)},
		{regFrfMID, byte((frfReg >> 8) & 0xFF)},
		{regFrfLSB, byte(frfReg & 0xFF)},
		{regPreambleMSB, 0x00},
		{regPreambleLSB, 0x08},
		{regSyncConfig, 0x80 | (6 - 1)<<3}, // sync on, 6-byte sync word
		{regPacketConfig1, 0x94},           // variable length, CRC on, CRC autoclear, address filter node+broadcast
		{regPayloadLength, 0x00},           // unlimited/variable
		{regNodeAdrs, cfg.OwnAddress},
		{regBroadcastAdrs, cfg.BroadcastAddress},
		{regFifoThresh, 0x8F},
		{regPacketConfig2, 0x12}, // auto RX restart on
		{regLNA, 0x08},           // auto gain, 50 ohm input
		{regRSSIThresh, byte(2 * 85)},
		{regRxTimeout1, 0x00}, // Rx timeout disabled
		{regOCP, 0x0F},        // OCP disabled in both PA modes (required for high-power mode on main)
	}

	for _, w := range writes {
		if err := d.writeReg(w.addr, w.value); err != nil {
			return fmt.Errorf("board: rfm69 configure reg %#02x: %w", w.addr, err)
		}
	}

	if err := d.writeRegs(regSyncValue1, cfg.NetworkID[:]...); err != nil {
		return fmt.Errorf("board: rfm69 set sync word: %w", err)
	}
	if err := d.writeRegs(regAESKey1, cfg.AESKey[:]...); err != nil {
		return fmt.Errorf("board: rfm69 set aes key: %w", err)
	}

	if cfg.PAMode == radio.PAHighPower {
		if err := d.writeReg(regPALevel, 0x60|31); err != nil {
			return err
		}
		if err := d.writeReg(regTestPA1, 0x5D); err != nil {
			return err
		}
		if err := d.writeReg(regTestPA2, 0x7C); err != nil {
			return err
		}
	} else {
		if err := d.writeReg(regPALevel, 0x80|28); err != nil {
			return err
		}
	}

	return nil
}

func (d *RFM69) SetMode(m radio.Mode) {
	var opMode byte
	switch m {
	case radio.ModeSleep:
		opMode = opModeSleep
	case radio.ModeStandby:
		opMode = opModeStandby
	case radio.ModeReceiver:
		opMode = opModeReceiver
	case radio.ModeTransmitter:
		opMode = opModeTransmit
	}
	_ = d.writeReg(regOpMode, opMode)
}

func (d *RFM69) IsModeReady() bool {
	v, err := d.readReg(regIRQFlags1)
	return err == nil && v&irq1ModeReady != 0
}

func (d *RFM69) IsPayloadReady() bool {
	v, err := d.readReg(regIRQFlags2)
	return err == nil && v&irq2PayloadReady != 0
}

func (d *RFM69) IsRxTimeoutFlagSet() bool {
	v, err := d.readReg(regIRQFlags1)
	return err == nil && v&irq1Timeout != 0
}

func (d *RFM69) RestartRx() {
	// Set the RestartRx bit (bit 2) of RegPacketConfig2 on top of the
	// value Configure wrote, matching libRFM69_RestartRx.
	_ = d.writeReg(regPacketConfig2, 0x16)
}

func (d *RFM69) IsPacketSent() bool {
	v, err := d.readReg(regIRQFlags2)
	return err == nil && v&irq2PacketSent != 0
}

func (d *RFM69) ReadFromFIFO(buf []byte) {
	d.board.RadioSelect()
	defer d.board.RadioRelease()
	out := make([]byte, len(buf)+1)
	out[0] = regFifo &^ writeBit
	in, err := d.board.SPITransfer(out)
	if err != nil {
		return
	}
	copy(buf, in[1:])
}

func (d *RFM69) WriteToFIFO(data []byte) {
	_ = d.writeRegs(regFifo, data...)
}

func (d *RFM69) ClearFIFO() {
	// Switches the chip to standby, the first half of the
	// standby-then-receiver toggle that clears an RFM69's FIFO; the
	// link layer's next listening Init step sets receiver mode again.
	d.SetMode(radio.ModeStandby)
}

func (d *RFM69) RSSI() int8 {
	v, err := d.readReg(regRSSIValue)
	if err != nil {
		return 0
	}
	return int8(-int16(v) / 2)
}

func (d *RFM69) FIFOSize() int {
	return fifoSize
}
