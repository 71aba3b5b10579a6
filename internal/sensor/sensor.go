// Package sensor defines the capability interfaces the application
// layers consume for measurement and power state, and the extremum
// tracking record the main application persists per channel. The
// concrete DHT22 bit-banged protocol, ADC-to-temperature conversion and
// battery-divider wiring are external collaborators: this package
// specifies only the contract the core is written against, per spec §9
// ("register-level hardware access is abstracted behind a thin
// capability set") applied to sensing the same way it is applied to the
// radio board.
package sensor

import (
	"encoding/binary"
	"fmt"

	"github.com/sillycat/sensornet/internal/crc16"
	"github.com/sillycat/sensornet/internal/nvm"
)

// Reading is one completed temperature/humidity measurement, scaled by
// ten (spec §6: "temperature x10 followed by humidity x10").
type Reading struct {
	TemperatureX10 int16
	HumidityX10    int16
}

// TemperatureHumidity drives a DHT22-class sensor's request/capture
// state machine. Service must be called every event-loop iteration and
// must never block; spec §9 requires the powerup/request/capture
// sequence to be an explicit state machine against the millisecond
// clock, not a blocking sleep.
type TemperatureHumidity interface {
	// Service advances the measurement state machine by one step.
	Service()
	// Read returns the most recently completed reading. ok is false
	// until a reading has completed since the last call.
	Read() (Reading, bool)
}

// Battery reports the node's power status, feeding the power state
// machine in internal/nodeapp.
type Battery interface {
	VoltageMV() uint16
	ChargerConnected() bool
}

// Record is one channel's latest value plus its running extrema,
// mirroring the spec §3 "Sensor record": value is replaced on every
// update, Max widens upward and Min widens downward, never the reverse.
type Record struct {
	ID    uint16
	Value int16
	Max   int16
	Min   int16
	Valid bool
}

// NewRecord returns a Record with Max/Min initialized to the opposite
// extremes, so the first Update always widens both.
func NewRecord(id uint16) Record {
	return Record{ID: id, Max: -32768, Min: 32767}
}

// Update replaces Value and widens Max/Min to include it.
func (r *Record) Update(value int16) {
	r.Value = value
	r.Valid = true
	if value > r.Max {
		r.Max = value
	}
	if value < r.Min {
		r.Min = value
	}
}

// extremumRecordSize is max(2) + min(2) + crc(2), per spec §6's
// persistent-state layout for per-sensor extrema.
const extremumRecordSize = 6

// ExtremaRegionSize is the number of NVM bytes one ExtremaStore
// occupies, for callers sizing a backing nvm.Region.
const ExtremaRegionSize = extremumRecordSize

// ExtremaStore persists one channel's Max/Min pair behind a CRC, so a
// main device recovers its running extrema across a reset. One Store
// owns exactly one NVM region.
type ExtremaStore struct {
	region nvm.Region
}

// OpenExtremaStore binds a Store to region, which must be exactly
// extremumRecordSize bytes.
func OpenExtremaStore(region nvm.Region) (*ExtremaStore, error) {
	if region.Size() != extremumRecordSize {
		return nil, fmt.Errorf("sensor: extrema region size %d, want %d", region.Size(), extremumRecordSize)
	}
	return &ExtremaStore{region: region}, nil
}

// Load reads the persisted Max/Min into rec when the CRC is valid,
// matching spec §4.K's "on boot, load and adopt if the CRC is valid".
// It leaves rec untouched and returns false on a CRC mismatch.
func (s *ExtremaStore) Load(rec *Record) (bool, error) {
	buf := make([]byte, extremumRecordSize)
	if err := s.region.ReadAt(0, buf); err != nil {
		return false, err
	}
	want := binary.BigEndian.Uint16(buf[4:6])
	got := crc16.Checksum(buf[0:4])
	if want != got {
		return false, nil
	}
	rec.Max = int16(binary.BigEndian.Uint16(buf[0:2]))
	rec.Min = int16(binary.BigEndian.Uint16(buf[2:4]))
	return true, nil
}

// Save persists rec's Max/Min with a fresh CRC.
func (s *ExtremaStore) Save(rec Record) error {
	buf := make([]byte, extremumRecordSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(rec.Max))
	binary.BigEndian.PutUint16(buf[2:4], uint16(rec.Min))
	binary.BigEndian.PutUint16(buf[4:6], crc16.Checksum(buf[0:4]))
	return s.region.WriteAt(0, buf)
}
