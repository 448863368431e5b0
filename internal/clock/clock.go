// Package clock resolves the clinic's civil calendar day. The clinic
// operates on Philippine time (UTC+8, no DST); "today" must come from
// this package, never from the machine's local zone.
package clock

import (
	"fmt"
	"time"
)

var clinicZone = time.FixedZone("PHT", 8*60*60)

// CivilDate is a calendar day in the clinic's zone.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// Clock yields the current civil day. The zero value uses the wall clock;
// tests may substitute Now.
type Clock struct {
	Now func() time.Time
}

func (c Clock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Today returns the current calendar date in the clinic's zone,
// independent of the caller's local timezone.
func (c Clock) Today() CivilDate {
	return DateOf(c.now())
}

// DateOf converts an instant to the civil day it falls on in the clinic's zone.
func DateOf(t time.Time) CivilDate {
	local := t.In(clinicZone)
	return CivilDate{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

// DayBounds returns the half-open interval [start, end) covering the civil
// day, as UTC instants suitable for range queries.
func DayBounds(d CivilDate) (time.Time, time.Time) {
	start := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, clinicZone)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight of the civil day in the clinic's zone.
func (d CivilDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, clinicZone)
}

func (d CivilDate) Equal(other CivilDate) bool {
	return d == other
}

func (d CivilDate) IsZero() bool {
	return d == CivilDate{}
}

// Weekday reports the day of week of the civil date.
func (d CivilDate) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// ParseCivilDate parses a YYYY-MM-DD string into a CivilDate.
func ParseCivilDate(value string) (CivilDate, error) {
	t, err := time.ParseInLocation("2006-01-02", value, clinicZone)
	if err != nil {
		return CivilDate{}, err
	}
	return DateOf(t), nil
}
