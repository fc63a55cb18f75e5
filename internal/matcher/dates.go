package matcher

import (
	"regexp"
	"strings"
	"time"

	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/internal/timewindow"
)

var datedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	"Mon Jan 2 2006",
	"2 Jan 2006",
	"1/2/2006",
}

var yearlessLayouts = []string{
	"Jan 2",
	"January 2",
	"Mon, Jan 2",
	"Monday, January 2",
	"Mon Jan 2",
	"Monday January 2",
	"2 Jan",
	"1/2",
}

var timeLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15:04",
}

var (
	ordinalSuffixRe = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)
	dateSeparators  = []string{" · ", " | ", " at ", " @ ", " - "}
)

// yearRolloverMonths is how far in the past a yearless date may fall before
// it is read as next year's date instead.
const yearRolloverMonths = 6

// ParseEventDate parses the loosely formatted date of a listing. Dates
// without a year are placed in now's year, or the next year when that
// would put them more than six months in the past.
func ParseEventDate(raw string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return timewindow.StartOfDay(t.In(now.Location())), true
	}
	for _, sep := range dateSeparators {
		if i := strings.Index(s, sep); i > 0 {
			s = s[:i]
		}
	}
	s = ordinalSuffixRe.ReplaceAllString(strings.TrimSpace(s), "$1")

	for _, layout := range datedLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return timewindow.StartOfDay(t), true
		}
	}
	for _, layout := range yearlessLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			d := time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
			if d.Before(timewindow.StartOfDay(now).AddDate(0, -yearRolloverMonths, 0)) {
				d = d.AddDate(1, 0, 0)
			}
			return d, true
		}
	}
	return time.Time{}, false
}

// ParseEventTime parses a clock time such as "11:00 PM" or "20:00".
func ParseEventTime(raw string) (hour, minute int, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, ".", "")
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), true
		}
	}
	return 0, 0, false
}

// EventStart resolves the start instant of an event. hasTime is false when
// only the day could be resolved.
func EventStart(e model.Event, now time.Time) (start time.Time, hasTime bool, ok bool) {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Date)); err == nil {
		return t.In(now.Location()), true, true
	}
	day, ok := ParseEventDate(e.Date, now)
	if !ok {
		return time.Time{}, false, false
	}
	timeText := e.Time
	if timeText == "" {
		for _, sep := range dateSeparators {
			if i := strings.Index(e.Date, sep); i > 0 {
				timeText = e.Date[i+len(sep):]
				break
			}
		}
	}
	if h, m, ok := ParseEventTime(timeText); ok {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, now.Location()), true, true
	}
	return day, false, true
}
