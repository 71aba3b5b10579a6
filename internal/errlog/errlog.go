// Package errlog is the persistent fault journal, ported from
// ErrorHandler.c: a fixed 80-entry ring of (id, timestamp, code, info)
// records kept in non-volatile storage so that a post-mortem dump survives
// a reset. It is also the fail-stop handler of last resort — AssertFail is
// wired into internal/failstop at startup, matching
// ErrorHandler_AssertFail's call into PointOfNoReturn in the original
// firmware.
//
// Unlike the 8-bit original (which keeps current_id as a uint8 to save a
// register), this port keeps the spec's strictly-increasing uint32 id so a
// host-side log viewer can tell ring-buffer generations apart without
// ambiguity; see DESIGN.md's internal/errlog section for the rationale.
package errlog

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sillycat/sensornet/internal/nvm"
)

// Capacity is the number of fault records the ring holds, matching
// ERROR_LOG_SIZE in the original firmware.
const Capacity = 80

// recordSize is the on-disk width of one record: id(4) + timestamp(4) +
// code(1) + info(1).
const recordSize = 10

// RegionSize is the number of NVM bytes the log occupies.
const RegionSize = Capacity * recordSize

// Code enumerates the fault categories a record can carry, with the
// exact values spec §6 assigns so a log dump is meaningful without
// cross-referencing this package's source.
type Code uint8

const (
	CodePowerOn       Code = 1
	CodeAssertFail    Code = 2
	CodeLowStack      Code = 3
	CodeRTCFailure    Code = 4
	CodeCorruptConfig Code = 5
)

// Record is one fault-log entry.
type Record struct {
	ID        uint32
	Timestamp uint32
	Code      Code
	Info      uint8
}

func (r Record) marshal() [recordSize]byte {
	var b [recordSize]byte
	binary.BigEndian.PutUint32(b[0:4], r.ID)
	binary.BigEndian.PutUint32(b[4:8], r.Timestamp)
	b[8] = byte(r.Code)
	b[9] = r.Info
	return b
}

func unmarshalRecord(b []byte) Record {
	return Record{
		ID:        binary.BigEndian.Uint32(b[0:4]),
		Timestamp: binary.BigEndian.Uint32(b[4:8]),
		Code:      Code(b[8]),
		Info:      b[9],
	}
}

// Clock supplies the timestamp stamped into each record. A failing RTC
// still yields a zero timestamp rather than blocking the log — matching
// the original's comment that "it makes no sense to make an error log
// entry about a failed error log entry".
type Clock interface {
	Now() (timestamp uint32, ok bool)
}

// PanicFunc is the point-of-no-return action: on real hardware, disable
// the watchdog and spin forever; on a host build, this is typically
// os.Exit or a test hook capturing the call.
type PanicFunc func(diagnostic string)

// Log is the fault journal. The zero value is not ready to use; construct
// with Open.
type Log struct {
	region       nvm.Region
	clock        Clock
	panicFunc    PanicFunc
	debug        bool
	debugWriter  io.Writer
	currentIndex int
	currentID    uint32
}

// Open scans region (which must be exactly RegionSize bytes) for the
// oldest slot to overwrite next, mirroring ErrorHandler_Init's
// physical-order scan for the first id that does not strictly increase
// over its predecessor.
func Open(region nvm.Region, clock Clock, panicFunc PanicFunc) (*Log, error) {
	if region.Size() != RegionSize {
		return nil, fmt.Errorf("errlog: region size %d, want %d", region.Size(), RegionSize)
	}
	if panicFunc == nil {
		panicFunc = func(string) { select {} }
	}

	l := &Log{region: region, clock: clock, panicFunc: panicFunc}

	var buf [recordSize]byte
	prevID := uint32(0)
	wrapIndex := -1
	for i := 0; i < Capacity; i++ {
		if err := region.ReadAt(i*recordSize, buf[:]); err != nil {
			return nil, err
		}
		rec := unmarshalRecord(buf[:])
		if rec.ID <= prevID {
			wrapIndex = i
			break
		}
		prevID = rec.ID
	}

	if wrapIndex >= 0 {
		l.currentIndex = wrapIndex
	} else {
		l.currentIndex = 0
	}
	l.currentID = prevID + 1

	return l, nil
}

// SetDebug enables Dump; real firmware compiles it out entirely in
// release builds (DEBUG_ENABLE), this is the runtime equivalent.
func (l *Log) SetDebug(enabled bool, w io.Writer) {
	l.debug = enabled
	l.debugWriter = w
}

// Log appends a fault record and advances the ring, wrapping at Capacity.
func (l *Log) Log(code Code, info uint8) {
	ts, _ := l.clock.Now()
	rec := Record{ID: l.currentID, Timestamp: ts, Code: code, Info: info}
	b := rec.marshal()
	if err := l.region.WriteAt(l.currentIndex*recordSize, b[:]); err != nil {
		// Nothing further to do: the log is the fallback, not the
		// other way around.
		return
	}
	l.currentIndex = (l.currentIndex + 1) % Capacity
	l.currentID++
}

// AssertFail is the failstop.Handler installed at startup: it appends an
// assertion-failure record, optionally prints a diagnostic when in debug
// mode, then hands off to the point-of-no-return action. It never
// returns, matching ErrorHandler_AssertFail / PointOfNoReturn.
func (l *Log) AssertFail(file string, line int, expr string) {
	diagnostic := fmt.Sprintf("%s:%d (%s)", file, line, expr)
	l.Log(CodeAssertFail, 0)
	if l.debug && l.debugWriter != nil {
		fmt.Fprintln(l.debugWriter, diagnostic)
	}
	l.panicFunc(diagnostic)
}

// Dump writes every live record (ID != 0) to w in ring (oldest-first)
// order. Debug builds only — matches ErrorHandler_DumpLog.
func (l *Log) Dump(w io.Writer) error {
	if !l.debug {
		return nil
	}
	var buf [recordSize]byte
	for i := 0; i < Capacity; i++ {
		idx := (l.currentIndex + i) % Capacity
		if err := l.region.ReadAt(idx*recordSize, buf[:]); err != nil {
			return err
		}
		rec := unmarshalRecord(buf[:])
		if rec.ID == 0 {
			continue
		}
		fmt.Fprintf(w, "#%d ts=%d code=%d info=%d\n", rec.ID, rec.Timestamp, rec.Code, rec.Info)
	}
	return nil
}
