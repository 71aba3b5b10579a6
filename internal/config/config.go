// Package config is the persisted device configuration record, ported
// from Config.c: a CRC-16/IBM guarded struct kept in non-volatile storage
// and loaded once at boot. Field order matches the original layout
// exactly (version, network_id, report_interval, aes_key, node_id) with
// one addition — see the Role field doc comment — so the CRC offset
// computation (everything up to the trailing crc field) stays a simple
// slice of the record.
package config

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/sillycat/sensornet/internal/crc16"
	"github.com/sillycat/sensornet/internal/failstop"
	"github.com/sillycat/sensornet/internal/nvm"
)

// NetworkIDSize is the width of the radio sync word derived from the
// config record (spec §7, "6-byte sync word").
const NetworkIDSize = 6

// AESKeySize is the width of the reserved (currently unused — on-wire
// encryption stays disabled per spec §5 Non-goals) key field, kept for
// layout compatibility with a future provisioning flow.
const AESKeySize = 17

// recordSize: version(2) + network_id(6) + report_interval(4) +
// aes_key(17) + node_id(1) + role(1) + crc(2) = 33 bytes.
const recordSize = 2 + NetworkIDSize + 4 + AESKeySize + 1 + 1 + 2

// RegionSize is the number of NVM bytes the record occupies.
const RegionSize = recordSize

// Role distinguishes the two device classes at the application layer.
// The original firmware builds a separate binary per class and has no
// such field; this port keeps a single config schema and one extra byte
// to tell them apart at runtime, which the original's Open Question
// ("should the node/main distinction live in the wire protocol or the
// config record?") resolves in favor of here — see DESIGN.md.
type Role uint8

const (
	RoleNode Role = iota
	RoleMain
)

// Record is the in-memory, byte-order-independent form of the config.
type Record struct {
	Version        uint16
	NetworkID      [NetworkIDSize]byte
	ReportInterval uint32
	AESKey         [AESKeySize]byte
	NodeID         uint8
	Role           Role
}

// Default mirrors CONFIG_DEFAULT_* from Config.c: a factory-fresh record
// used the first time a device boots with an unprogrammed (or corrupt)
// NVM region.
func Default() Record {
	r := Record{
		Version:        1,
		NetworkID:      [NetworkIDSize]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		ReportInterval: 60,
		NodeID:         128,
		Role:           RoleNode,
	}
	copy(r.AESKey[:], "1DUMMYKEYFOOBAR1")
	return r
}

func (r Record) marshalWithoutCRC() []byte {
	b := make([]byte, recordSize-2)
	binary.BigEndian.PutUint16(b[0:2], r.Version)
	copy(b[2:2+NetworkIDSize], r.NetworkID[:])
	off := 2 + NetworkIDSize
	binary.BigEndian.PutUint32(b[off:off+4], r.ReportInterval)
	off += 4
	copy(b[off:off+AESKeySize], r.AESKey[:])
	off += AESKeySize
	b[off] = r.NodeID
	off++
	b[off] = byte(r.Role)
	return b
}

func unmarshal(b []byte) Record {
	var r Record
	r.Version = binary.BigEndian.Uint16(b[0:2])
	copy(r.NetworkID[:], b[2:2+NetworkIDSize])
	off := 2 + NetworkIDSize
	r.ReportInterval = binary.BigEndian.Uint32(b[off : off+4])
	off += 4
	copy(r.AESKey[:], b[off:off+AESKeySize])
	off += AESKeySize
	r.NodeID = b[off]
	off++
	r.Role = Role(b[off])
	return r
}

// Store owns the NVM-backed config record, mirroring the module-level
// state in Config.c.
type Store struct {
	region nvm.Region
	record Record
}

// Open reads the record in region and checks its CRC and field invariants
// (see valid). On a failure (an unprogrammed or corrupted EEPROM) it falls
// back to Default, persists that default to region, and reports ok=false
// so the caller can log CORRUPT_CONFIG, matching IsConfigValid / the
// boot-time recovery path.
func Open(region nvm.Region) (*Store, bool, error) {
	if region.Size() != RegionSize {
		return nil, false, fmt.Errorf("config: region size %d, want %d", region.Size(), RegionSize)
	}
	buf := make([]byte, RegionSize)
	if err := region.ReadAt(0, buf); err != nil {
		return nil, false, err
	}

	s := &Store{region: region}
	rec := unmarshal(buf[:recordSize-2])
	if !verifyCRC(buf) || !rec.valid() {
		s.record = Default()
		if err := s.Save(); err != nil {
			return nil, false, err
		}
		return s, false, nil
	}

	s.record = rec
	return s, true, nil
}

func verifyCRC(buf []byte) bool {
	want := binary.BigEndian.Uint16(buf[recordSize-2:])
	got := crc16.Checksum(buf[:recordSize-2])
	return want == got
}

// valid enforces the invariants spec §4.F requires before a loaded record
// is accepted: a nonzero own address, a positive report interval, and a
// role within the closed enum. The CRC is checked separately by the
// caller — this only covers the field-level preconditions.
func (r Record) valid() bool {
	return r.NodeID != 0 && r.ReportInterval > 0 && (r.Role == RoleNode || r.Role == RoleMain)
}

// Save recomputes the CRC and persists the record, mirroring
// Config_Save / UpdateCRC.
func (s *Store) Save() error {
	body := s.record.marshalWithoutCRC()
	crc := crc16.Checksum(body)
	buf := make([]byte, RegionSize)
	copy(buf, body)
	binary.BigEndian.PutUint16(buf[recordSize-2:], crc)
	return s.region.WriteAt(0, buf)
}

// Record returns a copy of the currently loaded record.
func (s *Store) Record() Record {
	return s.record
}

// SetReportInterval updates the report interval in memory only; call
// Save to persist. Mirrors Config_SetReportInterval's precondition.
func (s *Store) SetReportInterval(seconds uint32) {
	failstop.Assert(seconds > 0, "config: report interval must be > 0")
	s.record.ReportInterval = seconds
}

// SetNodeID updates the node id in memory only; call Save to persist.
func (s *Store) SetNodeID(id uint8) {
	s.record.NodeID = id
}

// pbkdf2Iterations and pbkdf2KeyLen parameterize DeriveAESKey. The
// iteration count is a provisioning-time-only cost (run once per
// device, off the MCU, on whatever machine flashes it), so it is set
// well above the interactive-use guidance for PBKDF2-HMAC-SHA256.
const (
	pbkdf2Iterations = 210000
	pbkdf2KeyLen     = 16
)

// DeriveAESKey derives a 16-byte AES key from an operator-supplied
// passphrase and a per-deployment salt (conventionally the network id),
// for provisioning a fresh device without ever typing a raw hex key.
// The wire format still treats this key as reserved (spec §5
// Non-goals: on-air encryption stays disabled), so this only feeds
// SetAESKey ahead of a future provisioning flow.
func DeriveAESKey(passphrase string, salt []byte) [16]byte {
	derived := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	var key [16]byte
	copy(key[:], derived)
	return key
}

// SetAESKey updates the reserved AES key field in memory only; call
// Save to persist.
func (s *Store) SetAESKey(key [16]byte) {
	copy(s.record.AESKey[:16], key[:])
}
