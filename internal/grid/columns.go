package grid

import (
	"time"

	"github.com/i474232898/tripcast/internal/weather"
)

// MaxColumns caps the number of day columns derived from one forecast.
const MaxColumns = 7

const dateKeyLen = len("2006-01-02")

// DayColumn is one calendar day of the grid.
type DayColumn struct {
	DateKey string `json:"dateKey"`
	Label   string `json:"label"`
}

// DaySlots holds the day and night period of one date.
type DaySlots struct {
	Day   *weather.ForecastPeriod `json:"day"`
	Night *weather.ForecastPeriod `json:"night"`
}

// DateKey returns the calendar-date prefix of an ISO-8601 timestamp.
func DateKey(startTime string) string {
	if len(startTime) < dateKeyLen {
		return ""
	}
	return startTime[:dateKeyLen]
}

// Columns derives day columns in first-seen order of the periods' date keys,
// not calendar order. Collection stops after MaxColumns distinct keys.
func Columns(periods []weather.ForecastPeriod) []DayColumn {
	seen := make(map[string]struct{}, MaxColumns)
	cols := make([]DayColumn, 0, MaxColumns)
	for _, p := range periods {
		dk := DateKey(p.StartTime)
		if dk == "" {
			continue
		}
		if _, ok := seen[dk]; ok {
			continue
		}
		seen[dk] = struct{}{}
		cols = append(cols, DayColumn{DateKey: dk, Label: WeekdayLabel(dk)})
		if len(cols) == MaxColumns {
			break
		}
	}
	return cols
}

// ReferenceColumns derives the grid columns from the first entry. Every other
// row is read against this ordering.
func ReferenceColumns(entries []weather.Entry) []DayColumn {
	if len(entries) == 0 {
		return nil
	}
	return Columns(entries[0].Forecast)
}

// WeekdayLabel returns the short weekday name of a date key. The date is
// parsed at noon UTC so no timezone offset can push it across midnight.
func WeekdayLabel(dateKey string) string {
	t, err := time.Parse(time.RFC3339, dateKey+"T12:00:00Z")
	if err != nil {
		return dateKey
	}
	return t.Weekday().String()[:3]
}

// ByDate maps each date key to its day and night period. When upstream
// repeats a (date, half) pair the last one wins.
func ByDate(periods []weather.ForecastPeriod) map[string]DaySlots {
	out := make(map[string]DaySlots)
	for i := range periods {
		p := &periods[i]
		dk := DateKey(p.StartTime)
		if dk == "" {
			continue
		}
		slots := out[dk]
		if p.IsDaytime {
			slots.Day = p
		} else {
			slots.Night = p
		}
		out[dk] = slots
	}
	return out
}

// Aligned reports whether a row's own date ordering starts with the
// reference columns. Misaligned rows still render against the reference
// columns; the flag lets callers surface the mismatch.
func Aligned(periods []weather.ForecastPeriod, reference []DayColumn) bool {
	own := Columns(periods)
	if len(own) < len(reference) {
		return false
	}
	for i, col := range reference {
		if own[i].DateKey != col.DateKey {
			return false
		}
	}
	return true
}
