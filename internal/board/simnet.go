package board

import (
	"net"
	"sync"
	"time"

	"github.com/sillycat/sensornet/internal/radio"
)

// SimulatedDevice stands in for a real RFM69 on a workstation with no
// SPI/GPIO hardware attached: frames are exchanged over a UDP broadcast
// socket on the loopback interface instead of 868 MHz FSK, so cmd/node and
// cmd/gateway can be run and exercised end to end on a development
// machine — the host-side harness this project has historically carried
// alongside its hardware target. It implements radio.Device; internal/radio
// is unaware it isn't talking to a real chip.
type SimulatedDevice struct {
	mu   sync.Mutex
	conn *net.UDPConn
	dst  *net.UDPAddr

	ownAddress       uint8
	broadcastAddress uint8

	mode     radio.Mode
	fifo     []byte
	rx       chan []byte
	txFired  bool
	rssi     int8
	fifoSize int
}

// NewSimulatedDevice opens a UDP socket on port, broadcasting to the same
// port on 127.255.255.255 so any number of simulated devices on one host
// hear each other, the same way every node and the gateway share one RF
// channel in the real medium.
func NewSimulatedDevice(port int) (*SimulatedDevice, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, err
	}

	d := &SimulatedDevice{
		conn:     conn,
		dst:      &net.UDPAddr{IP: net.IPv4(127, 255, 255, 255), Port: port},
		rx:       make(chan []byte, RxCapacityHint),
		fifoSize: 66,
		rssi:     -42,
	}
	go d.listen()
	return d, nil
}

// RxCapacityHint mirrors radio.RxCapacity so the simulated medium never
// backs up further than the real inbound frame queue would.
const RxCapacityHint = 4

func (d *SimulatedDevice) listen() {
	buf := make([]byte, 256)
	for {
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < 2 {
			continue
		}
		// The wire frame is [total_size, target, source, ...]; a real
		// RFM69's hardware address filter drops anything not addressed to
		// this device or the broadcast address before it ever reaches the
		// mainline (spec §4.G), which also spares a node from "hearing"
		// its own broadcast loop back to itself.
		target := buf[1]
		d.mu.Lock()
		own, bcast := d.ownAddress, d.broadcastAddress
		d.mu.Unlock()
		if target != own && target != bcast {
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		select {
		case d.rx <- frame:
		default:
			// Inbound queue is full; drop the frame, matching a real
			// receiver that has nowhere to put an unsolicited payload.
		}
	}
}

// Close stops listening and releases the UDP socket.
func (d *SimulatedDevice) Close() error {
	return d.conn.Close()
}

// Configure latches the address-filtering fields a real RFM69 would
// program into its sync/address registers; the simulated medium has no
// other registers to set.
func (d *SimulatedDevice) Configure(cfg radio.DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ownAddress = cfg.OwnAddress
	d.broadcastAddress = cfg.BroadcastAddress
	return nil
}

func (d *SimulatedDevice) SetMode(m radio.Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = m
	if m == radio.ModeTransmitter {
		d.sendLocked()
	}
}

func (d *SimulatedDevice) sendLocked() {
	frame := append([]byte(nil), d.fifo...)
	d.fifo = nil
	d.txFired = false
	go func() {
		_, _ = d.conn.WriteToUDP(frame, d.dst)
		time.Sleep(2 * time.Millisecond) // approximate on-air time
		d.mu.Lock()
		d.txFired = true
		d.mu.Unlock()
	}()
}

func (d *SimulatedDevice) IsModeReady() bool { return true }

func (d *SimulatedDevice) IsPayloadReady() bool {
	select {
	case frame := <-d.rx:
		d.mu.Lock()
		d.fifo = frame
		d.mu.Unlock()
		return true
	default:
		return false
	}
}

func (d *SimulatedDevice) IsRxTimeoutFlagSet() bool { return false }
func (d *SimulatedDevice) RestartRx()               {}

func (d *SimulatedDevice) IsPacketSent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txFired
}

func (d *SimulatedDevice) ReadFromFIFO(buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(buf, d.fifo)
	d.fifo = d.fifo[n:]
}

func (d *SimulatedDevice) WriteToFIFO(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fifo = append(d.fifo, data...)
}

func (d *SimulatedDevice) ClearFIFO() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fifo = nil
}

func (d *SimulatedDevice) RSSI() int8    { return d.rssi }
func (d *SimulatedDevice) FIFOSize() int { return d.fifoSize }
