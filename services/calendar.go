package services

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Weekday bitmask convention: bit 0 = Monday .. bit 6 = Sunday, matching the
// 1..7 weekday numbers used by clients.

// EncodeWeekdays turns weekday numbers (1=Mon .. 7=Sun) into a bitmask.
// Out-of-range values are ignored.
func EncodeWeekdays(weekdays []int) int {
	mask := 0
	for _, d := range weekdays {
		if d >= 1 && d <= 7 {
			mask |= 1 << (d - 1)
		}
	}
	return mask
}

// DecodeWeekdays is the inverse of EncodeWeekdays.
func DecodeWeekdays(mask int) []int {
	var days []int
	for d := 1; d <= 7; d++ {
		if mask&(1<<(d-1)) != 0 {
			days = append(days, d)
		}
	}
	return days
}

// weekdayBit returns the mask bit for t's weekday.
func weekdayBit(t time.Time) int {
	wd := int(t.Weekday()) // Sunday = 0
	if wd == 0 {
		wd = 7
	}
	return 1 << (wd - 1)
}

const (
	isoDate   = "2006-01-02"
	clockHHMM = "15:04"
)

// localDate formats t's calendar day in loc as YYYY-MM-DD.
func localDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(isoDate)
}

func parseISODate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(isoDate, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// deadlineInstant resolves a calendar day plus an HH:MM local deadline into an
// absolute instant in loc.
func deadlineInstant(dateISO, hhmm string, loc *time.Location) (time.Time, error) {
	day, err := parseISODate(dateISO, loc)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := time.Parse(clockHHMM, hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q: %w", hhmm, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// scheduledDates enumerates every calendar date in [startISO, endISO] whose
// weekday bit is set in mask.
func scheduledDates(mask int, startISO, endISO string, loc *time.Location) ([]string, error) {
	start, err := parseISODate(startISO, loc)
	if err != nil {
		return nil, err
	}
	end, err := parseISODate(endISO, loc)
	if err != nil {
		return nil, err
	}
	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if mask&weekdayBit(d) != 0 {
			dates = append(dates, d.Format(isoDate))
		}
	}
	return dates, nil
}

// lockForUpdate adds a row lock on postgres. The sqlite test database has no
// row-level locks; transactional re-reads cover it there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// LoadLocalZone resolves the engine's calendar timezone (LOCAL_TZ env),
// falling back to Asia/Seoul like the source system.
func LoadLocalZone(name string) *time.Location {
	if name == "" {
		name = "Asia/Seoul"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
