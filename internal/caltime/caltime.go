// Package caltime implements calendar arithmetic over the network's epoch,
// 2000-01-01 00:00:00 UTC. Every function is a pure, total function over
// the representable range; invalid broken-down times (month 13, and so on)
// are a precondition violation and panic via failstop.Assert rather than
// returning an error, matching the firmware's sc_assert contract.
//
// The conversion algorithm is ported from the original firmware's Time.c:
// because the epoch sits at the conjunction of the 4-year and 100-year leap
// cycles, the inverse of ConvertToTimestamp can be computed without a
// lookup table by walking the 100-year, then 4-year, then 1-year cycles in
// turn.
package caltime

import (
	"fmt"

	"github.com/sillycat/sensornet/internal/failstop"
)

// Time is a broken-down calendar time. Year is an offset from 2000 (0-99),
// Month is 1-12, Date is 1-31, and Hour/Minute/Second are the usual 0-23 /
// 0-59 ranges. The all-zero value is the distinguished "invalid" sentinel
// used in packet payloads (see radio.Content).
type Time struct {
	Year   uint8
	Month  uint8
	Date   uint8
	Hour   uint8
	Minute uint8
	Second uint8
}

// IsZero reports whether t is the all-zero invalid sentinel.
func (t Time) IsZero() bool {
	return t == Time{}
}

const (
	daysInWeek          = 7
	daysInMarchOctober  = 31
	oneHourSeconds      = 3600
	oneDaySeconds       = 86400
	march               = 3
	july                = 7
	october             = 10
	february            = 2
)

var daysInMonths = [12]uint8{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func assertValid(t Time) {
	failstop.Assert(t.Month >= 1 && t.Month <= 12, "caltime: month out of range")
	failstop.Assert(t.Date >= 1 && t.Date <= 31, "caltime: date out of range")
	failstop.Assert(t.Hour <= 23, "caltime: hour out of range")
	failstop.Assert(t.Minute <= 59, "caltime: minute out of range")
	failstop.Assert(t.Second <= 59, "caltime: second out of range")
}

// IsLeapYear applies the Gregorian rule (divisible by 4, except centuries
// not divisible by 400) to 2000+t.Year.
func IsLeapYear(t Time) bool {
	year := uint32(t.Year) + 2000
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns the length of t's month, adjusted for leap years in
// February.
func DaysInMonth(t Time) uint8 {
	assertValid(t)
	if t.Month == february && IsLeapYear(t) {
		return daysInMonths[t.Month-1] + 1
	}
	return daysInMonths[t.Month-1]
}

// DayOfWeek returns the day of week for t, 0 = Sunday, using the same
// Zeller-congruence-style coefficient table as the original firmware.
func DayOfWeek(t Time) uint8 {
	assertValid(t)

	coeff := [12]uint16{0, 3, 2, 5, 0, 3, 5, 1, 4, 6, 2, 4}
	year := uint16(t.Year) + 2000
	if t.Month < march {
		year--
	}
	adjustment := year/4 - year/100 + year/400
	return uint8((year + adjustment + coeff[t.Month-1] + uint16(t.Date)) % 7)
}

// ToTimestamp returns the number of seconds elapsed from the epoch to t.
func ToTimestamp(t Time) uint32 {
	assertValid(t)

	year := uint32(t.Year)
	var leaps uint32
	if year != 0 {
		m := year - 1
		leaps = m/4 - m/100 + 1
	}
	days := 365*year + leaps

	d := uint32(t.Date) - 1
	month := uint32(t.Month) - 1

	if month < 2 {
		if month != 0 {
			d += 31
		}
	} else {
		n := uint32(59)
		if IsLeapYear(t) {
			n++
		}
		d += n

		n = month - uint32(march-1)
		if n > uint32(july-march) {
			d += 153
		}
		n %= 5

		d += (n / 2) * 61
		if n&1 != 0 {
			d += 31
		}
	}

	days += d
	seconds := days * oneDaySeconds
	seconds += uint32(t.Hour) * oneHourSeconds
	seconds += uint32(t.Minute) * 60
	seconds += uint32(t.Second)
	return seconds
}

// FromTimestamp is the inverse of ToTimestamp.
func FromTimestamp(timestamp uint32) Time {
	var t Time

	days := timestamp / oneDaySeconds

	t.Second = uint8(timestamp % 60)
	timestamp /= 60
	t.Minute = uint8(timestamp % 60)
	timestamp /= 60
	t.Hour = uint8(timestamp % 24)

	// Map into a 100-year cycle, then a 4-year cycle.
	years := 100 * (days / 36525)
	rem := days % 36525

	years += 4 * (rem / 1461)
	days = rem % 1461
	if years > 100 {
		days++
	}

	leapYear := uint32(1)
	if years == 100 {
		leapYear = 0
	}

	n := 364 + leapYear
	if days > n {
		days -= leapYear
		leapYear = 0
		years += days / 365
		days %= 365
	}
	t.Year = uint8(years)

	n = 59 + leapYear
	if days < n {
		t.Month = uint8(days / 31)
		t.Date = uint8(days % 31)
	} else {
		days -= n
		t.Month = uint8(2 + (days/153)*5)
		rem := (days % 153) / 61
		t.Month += uint8(rem * 2)
		rem = (days % 153) % 61 / 31
		t.Month += uint8(rem)
		t.Date = uint8((days % 153) % 61 % 31)
	}

	t.Month++
	t.Date++

	return t
}

// AddSeconds advances t by seconds, round-tripping through the timestamp
// representation.
func AddSeconds(t Time, seconds uint32) Time {
	return FromTimestamp(ToTimestamp(t) + seconds)
}

// AddMinutes advances t by minutes.
func AddMinutes(t Time, minutes uint32) Time {
	return AddSeconds(t, minutes*60)
}

// AddHours advances t by hours.
func AddHours(t Time, hours uint32) Time {
	return AddSeconds(t, hours*3600)
}

// AddDays advances t by days.
func AddDays(t Time, days uint32) Time {
	return AddSeconds(t, days*oneDaySeconds)
}

// IsDSTActive applies the Central European last-Sunday-of-March to
// last-Sunday-of-October convention. The clock change happens in the small
// hours of the last Sunday, and hour granularity is intentionally not
// modeled, so the last Sunday itself still reads as DST: it is the first
// day of March's last week that counts as active, and the last day of
// October's that does, with the day after the last Sunday of October the
// first to read false.
func IsDSTActive(t Time) bool {
	assertValid(t)

	if t.Month > march && t.Month < october {
		return true
	}
	if t.Month < march || t.Month > october {
		return false
	}

	lastDay := Time{Year: t.Year, Month: t.Month, Date: daysInMarchOctober}
	lastSunday := daysInMarchOctober - int(DayOfWeek(lastDay))

	if t.Month == march {
		return int(t.Date) >= lastSunday
	}
	return int(t.Date) <= lastSunday
}

// FormatTimestamp writes "20YY-MM-DD HH:MM:SS" into a buffer of the given
// size, truncating to fit and always NUL-terminating — mirroring the
// firmware's snprintf-based Time_FormatTimestamp on a fixed buffer. size is
// a courtesy to callers porting the exact firmware signature; Go's string
// type has no embedded NUL, so the returned string is truncated to size-1
// runes with a conceptual NUL at the end.
func FormatTimestamp(t Time, size int) string {
	failstop.Assert(size > 0, "caltime: zero-size format buffer")

	full := fmt.Sprintf("20%02d-%02d-%02d %02d:%02d:%02d",
		t.Year, t.Month, t.Date, t.Hour, t.Minute, t.Second)

	max := size - 1
	if max < 0 {
		max = 0
	}
	if len(full) > max {
		return full[:max]
	}
	return full
}
