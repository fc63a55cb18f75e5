// Package matcher scores discovered events against a user's booking intent.
package matcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/internal/timewindow"
)

// MaxResults caps the ranked list.
const MaxResults = 15

// FallbackScore is the flat score given to events shown when nothing matched.
const FallbackScore = 10

const (
	pointsWindow       = 15
	pointsBudget       = 20
	pointsFree         = 10
	pointsDayMatch     = 25
	pointsDayMismatch  = 5
	pointsNoDayPref    = 10
	pointsGenre        = 20
	pointsCalendarFree = 30
	penaltyCalendar    = -20
	proximityDays      = 14
	proximityCeiling   = 15
	pointsValid        = 10
)

var freeOnlyRe = regexp.MustCompile(`\b(free (events?|shows?|concerts?|gigs?|tickets?|entry|admission|stuff)|for free|only free|no cost|free of charge)\b`)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// Result is the score of a single event.
type Result struct {
	model.EventMatch
	Excluded bool
}

// Score evaluates one event. Hard rules exclude the event outright; every
// other rule only moves its score.
func Score(ev model.Event, in model.UserIntent, freeSlots []model.TimeSlot, window *timewindow.Window, now time.Time) Result {
	res := Result{EventMatch: model.EventMatch{Event: ev, Reasons: []string{}}}
	exclude := func(reason string) Result {
		res.Excluded = true
		res.Score = 0
		res.Reasons = []string{reason}
		return res
	}

	today := timewindow.StartOfDay(now)
	date, dated := ParseEventDate(ev.Date, now)

	if dated && date.Before(today) {
		return exclude("event date has passed")
	}
	if window != nil {
		if !dated {
			return exclude("event date unknown for a time-limited search")
		}
		if !window.Contains(date) {
			return exclude("outside requested dates")
		}
	}
	if in.Budget != nil && ev.Price > *in.Budget {
		return exclude(fmt.Sprintf("$%.2f is over the $%.2f budget", ev.Price, *in.Budget))
	}
	if freeOnlyRe.MatchString(strings.ToLower(in.Notes)) && !ev.IsFree {
		return exclude("only free events requested")
	}

	score := 0
	add := func(points int, reason string) {
		score += points
		res.Reasons = append(res.Reasons, reason)
	}

	if window != nil {
		add(pointsWindow, "within requested dates")
	}

	add(pointsBudget, "within budget")
	if ev.IsFree {
		add(pointsFree, "free event")
	}

	prefs := normalizeDays(in.PreferredDays)
	switch {
	case len(prefs) == 0:
		add(pointsNoDayPref, "any day works")
	case dated && dayMatches(date.Weekday(), prefs):
		add(pointsDayMatch, "on a preferred day ("+date.Weekday().String()+")")
	default:
		add(pointsDayMismatch, "not on a preferred day")
	}

	if g, ok := genreMatch(ev, in.Genres); ok {
		add(pointsGenre, "matches genre "+g)
	}

	if in.CheckCalendar && len(freeSlots) > 0 {
		if slot, ok := slotOn(date, dated, freeSlots); ok {
			res.CalendarMatch = true
			res.MatchingSlot = &slot
			add(pointsCalendarFree, "everyone is free that day")
		} else {
			add(penaltyCalendar, "calendar conflict likely")
		}
	}

	if dated {
		daysAway := calendarDays(today, date)
		if daysAway <= proximityDays {
			if bonus := proximityCeiling - daysAway; bonus > 0 {
				add(bonus, fmt.Sprintf("coming up in %d days", daysAway))
			}
		}
	}

	if score > 0 {
		add(pointsValid, "valid upcoming event")
	}

	res.Score = score
	return res
}

// Rank scores every event, drops hard exclusions and returns the best
// matches in descending score order.
func Rank(events []model.Event, in model.UserIntent, freeSlots []model.TimeSlot, window *timewindow.Window, now time.Time) []model.EventMatch {
	matches := make([]model.EventMatch, 0, len(events))
	for _, ev := range events {
		r := Score(ev, in, freeSlots, window, now)
		if r.Excluded {
			continue
		}
		matches = append(matches, r.EventMatch)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > MaxResults {
		matches = matches[:MaxResults]
	}
	return matches
}

// Flat presents events unranked, used when nothing survives Rank.
func Flat(events []model.Event) []model.EventMatch {
	matches := make([]model.EventMatch, 0, len(events))
	for _, ev := range events {
		matches = append(matches, model.EventMatch{
			Event:   ev,
			Score:   FallbackScore,
			Reasons: []string{"no exact match, showing what is available"},
		})
	}
	if len(matches) > MaxResults {
		matches = matches[:MaxResults]
	}
	return matches
}

func normalizeDays(days []string) []string {
	var out []string
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func dayMatches(wd time.Weekday, prefs []string) bool {
	weekend := wd == time.Saturday || wd == time.Sunday
	for _, p := range prefs {
		switch p {
		case "weekend", "weekends":
			if weekend {
				return true
			}
		case "weekday", "weekdays":
			if !weekend {
				return true
			}
		default:
			if named, ok := weekdayNames[strings.TrimSuffix(p, "s")]; ok && named == wd {
				return true
			}
			if named, ok := weekdayNames[p]; ok && named == wd {
				return true
			}
		}
	}
	return false
}

func genreMatch(ev model.Event, genres []string) (string, bool) {
	target := strings.ToLower(ev.Genre)
	if target == "" {
		target = strings.ToLower(ev.Name)
	}
	if target == "" {
		return "", false
	}
	for _, g := range genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if strings.Contains(target, g) || strings.Contains(g, target) {
			return g, true
		}
	}
	return "", false
}

func slotOn(date time.Time, dated bool, slots []model.TimeSlot) (model.TimeSlot, bool) {
	if !dated {
		return model.TimeSlot{}, false
	}
	y, m, d := date.Date()
	for _, s := range slots {
		sy, sm, sd := s.Start.In(date.Location()).Date()
		if sy == y && sm == m && sd == d {
			return s, true
		}
	}
	return model.TimeSlot{}, false
}

// calendarDays counts the calendar days from a to b, ignoring DST shifts
// in their location.
func calendarDays(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
