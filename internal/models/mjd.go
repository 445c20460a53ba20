package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const secondsPerDay = 86400.0

// MJD is a Modified Julian Date split into integer day and day fraction so
// sub-microsecond epochs survive float64 arithmetic.
type MJD struct {
	Day  int64
	Frac float64
}

// NewMJD normalises day and fraction so that 0 <= Frac < 1.
func NewMJD(day int64, frac float64) MJD {
	whole := math.Floor(frac)
	day += int64(whole)
	frac -= whole
	if frac >= 1 {
		day++
		frac = 0
	}
	return MJD{Day: day, Frac: frac}
}

// AddSeconds returns m shifted by s seconds.
func (m MJD) AddSeconds(s float64) MJD {
	return NewMJD(m.Day, m.Frac+s/secondsPerDay)
}

// Sub returns m - o in seconds.
func (m MJD) Sub(o MJD) float64 {
	return (float64(m.Day-o.Day) + (m.Frac - o.Frac)) * secondsPerDay
}

// Before reports whether m is earlier than o.
func (m MJD) Before(o MJD) bool {
	if m.Day != o.Day {
		return m.Day < o.Day
	}
	return m.Frac < o.Frac
}

// Midpoint returns (a+b)/2.
func Midpoint(a, b MJD) MJD {
	day := a.Day + b.Day
	frac := a.Frac + b.Frac
	if day%2 != 0 {
		day--
		frac++
	}
	return NewMJD(day/2, frac/2)
}

// String renders the epoch with 13 fractional digits, the precision tempo2 reads.
func (m MJD) String() string {
	frac := strconv.FormatFloat(m.Frac, 'f', 13, 64)
	day := m.Day
	if strings.HasPrefix(frac, "1") {
		day++
		frac = "0.0000000000000"
	}
	return fmt.Sprintf("%d%s", day, strings.TrimPrefix(frac, "0"))
}

// MarshalText implements encoding.TextMarshaler.
func (m MJD) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MJD) UnmarshalText(text []byte) error {
	parsed, err := ParseMJD(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMJD parses "DDDDD.FFFF" keeping the fraction separate from the day.
func ParseMJD(value string) (MJD, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return MJD{}, fmt.Errorf("empty MJD value")
	}
	dayPart, fracPart, _ := strings.Cut(value, ".")
	day, err := strconv.ParseInt(dayPart, 10, 64)
	if err != nil {
		return MJD{}, fmt.Errorf("parse MJD day %q: %w", value, err)
	}
	frac := 0.0
	if fracPart != "" {
		frac, err = strconv.ParseFloat("0."+fracPart, 64)
		if err != nil {
			return MJD{}, fmt.Errorf("parse MJD fraction %q: %w", value, err)
		}
	}
	if strings.HasPrefix(dayPart, "-") {
		frac = -frac
	}
	return NewMJD(day, frac), nil
}

// EpochRange tracks the earliest and latest epoch seen.
type EpochRange struct {
	Start MJD
	End   MJD
	set   bool
}

// Include widens the range to contain epoch.
func (r *EpochRange) Include(epoch MJD) {
	if !r.set {
		r.Start, r.End, r.set = epoch, epoch, true
		return
	}
	if epoch.Before(r.Start) {
		r.Start = epoch
	}
	if r.End.Before(epoch) {
		r.End = epoch
	}
}

// Merge widens r to contain other.
func (r *EpochRange) Merge(other EpochRange) {
	if !other.set {
		return
	}
	r.Include(other.Start)
	r.Include(other.End)
}

// Empty reports whether no epoch has been included.
func (r EpochRange) Empty() bool {
	return !r.set
}

// Midpoint returns the centre of the range, or the zero MJD when empty.
func (r EpochRange) Midpoint() MJD {
	if !r.set {
		return MJD{}
	}
	return Midpoint(r.Start, r.End)
}
