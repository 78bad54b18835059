package script

import (
	"fmt"
	"time"
)

var swedishWeekdays = [...]string{"söndag", "måndag", "tisdag", "onsdag", "torsdag", "fredag", "lördag"}

var swedishMonths = [...]string{
	"januari", "februari", "mars", "april", "maj", "juni",
	"juli", "augusti", "september", "oktober", "november", "december",
}

// Weekday returns the lower-case Swedish weekday name for t.
func Weekday(t time.Time) string {
	return swedishWeekdays[t.Weekday()]
}

// LongDate formats t as "14 oktober 2026".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), swedishMonths[t.Month()-1], t.Year())
}
