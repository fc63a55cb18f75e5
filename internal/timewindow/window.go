// Package timewindow derives a concrete date range from temporal phrases
// such as "this weekend" or "next two weeks".
//
// Parsing is pure: the caller passes the clock, ranges are inclusive whole
// days and weeks start on Monday.
package timewindow

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Window is an inclusive date range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Rule  string    `json:"rule"`
}

// Contains reports whether t falls on a day inside the window.
func (w *Window) Contains(t time.Time) bool {
	d := StartOfDay(t)
	return !d.Before(StartOfDay(w.Start)) && !d.After(StartOfDay(w.End))
}

var (
	nextNDaysRe = regexp.MustCompile(`\bnext (\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen) days?\b`)
	twoWeeksRe  = regexp.MustCompile(`\b(two|2) weeks?\b`)
	thisWeekRe  = regexp.MustCompile(`\bthis week\b`)
	nextWeekRe  = regexp.MustCompile(`\bnext week\b`)
	thisMonthRe = regexp.MustCompile(`\bthis month\b`)
	weekendRe   = regexp.MustCompile(`\bweekends?\b`)
	todayRe     = regexp.MustCompile(`\b(today|tonight)\b`)
	tomorrowRe  = regexp.MustCompile(`\btomorrow\b`)
	weekRe      = regexp.MustCompile(`\bweek\b`)
)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
	"eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
}

// Parse returns the window implied by notes and symbolic day preferences,
// or nil when nothing constrains the search. The first matching rule wins.
func Parse(notes string, preferredDays []string, now time.Time) *Window {
	text := strings.ToLower(notes)
	today := StartOfDay(now)
	monday := StartOfWeek(now)

	if m := nextNDaysRe.FindStringSubmatch(text); m != nil {
		n, ok := wordNumbers[m[1]]
		if !ok {
			n, _ = strconv.Atoi(m[1])
		}
		return span(today, today.AddDate(0, 0, n), "next_n_days")
	}

	if twoWeeksRe.MatchString(text) {
		return span(today, monday.AddDate(0, 0, 13), "two_weeks")
	}

	thisWeek := thisWeekRe.MatchString(text)
	nextWeek := nextWeekRe.MatchString(text)
	switch {
	case thisWeek && nextWeek:
		return span(monday, monday.AddDate(0, 0, 13), "this_and_next_week")
	case nextWeek:
		return span(monday.AddDate(0, 0, 7), monday.AddDate(0, 0, 13), "next_week")
	case thisWeek:
		return span(monday, monday.AddDate(0, 0, 6), "this_week")
	}

	if thisMonthRe.MatchString(text) {
		lastDay := time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, today.Location())
		return span(today, lastDay, "this_month")
	}

	if wantsWeekend(text, preferredDays) {
		return span(monday.AddDate(0, 0, 5), monday.AddDate(0, 0, 6), "weekend")
	}

	if todayRe.MatchString(text) {
		return span(today, today, "today")
	}

	if tomorrowRe.MatchString(text) {
		tomorrow := today.AddDate(0, 0, 1)
		return span(tomorrow, tomorrow, "tomorrow")
	}

	if weekRe.MatchString(text) {
		return span(today, today.AddDate(0, 0, 7), "week")
	}

	return nil
}

func wantsWeekend(text string, preferredDays []string) bool {
	for _, d := range preferredDays {
		if strings.EqualFold(strings.TrimSpace(d), "weekend") || strings.EqualFold(strings.TrimSpace(d), "weekends") {
			return true
		}
	}
	return weekendRe.MatchString(text)
}

func span(startDay, endDay time.Time, rule string) *Window {
	return &Window{Start: StartOfDay(startDay), End: EndOfDay(endDay), Rule: rule}
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfWeek returns midnight of the Monday of t's week.
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return StartOfDay(t).AddDate(0, 0, -offset)
}
