package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// AddMonths shifts d by n calendar months, clamping the day to the last day
// of the target month (2024-03-31 minus one month is 2024-02-29).
func AddMonths(d civil.Date, n int) civil.Date {
	total := int(d.Month) - 1 + n
	year := d.Year + floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)
	day := d.Day
	if last := daysIn(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// AddYears shifts d by n calendar years with the same clamping as AddMonths.
func AddYears(d civil.Date, n int) civil.Date {
	return AddMonths(d, 12*n)
}

// MinMaxDates returns the earliest and latest of dates. ok is false when
// dates is empty.
func MinMaxDates(dates []civil.Date) (lo, hi civil.Date, ok bool) {
	for i, d := range dates {
		if i == 0 {
			lo, hi = d, d
			continue
		}
		if d.Before(lo) {
			lo = d
		}
		if d.After(hi) {
			hi = d
		}
	}
	return lo, hi, len(dates) > 0
}

// Today returns the current calendar date in the local time zone.
func Today() civil.Date {
	return civil.DateOf(time.Now())
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
