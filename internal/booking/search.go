package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/tixagent/internal/matcher"
	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/internal/session"
	"github.com/capitalize-ai/tixagent/internal/timewindow"
	"github.com/capitalize-ai/tixagent/pkg/metrics"
)

// presentLimit is how many matches are spelled out in response text. The
// full ranked list is returned in MatchedEvents.
const presentLimit = 5

// freeSlotHorizon is the availability lookahead when no window is given.
const freeSlotHorizon = 14 * 24 * time.Hour

func (o *Orchestrator) search(ctx context.Context, sess *session.Session, req *model.TurnRequest, book bool, resp *model.TurnResponse) {
	now := o.now()

	in := o.deps.Extractor.Extract(ctx, req.Message)
	sess.Intent = &in
	sess.AddEmails(in.Emails()...)
	resp.Log(fmt.Sprintf("parsed intent: %d attendee(s)", len(in.Attendees)))

	events := o.discover(ctx, now, resp)
	if len(events) == 0 {
		sess.AbandonPending()
		sess.State = session.StateIdle
		resp.ResponseText = "I couldn't find any events right now. Try again in a little while."
		return
	}

	window := timewindow.Parse(in.Notes, in.PreferredDays, now)
	if window != nil {
		resp.Log(fmt.Sprintf("time window %s: %s to %s", window.Rule, window.Start.Format("Jan 2"), window.End.Format("Jan 2")))
	}
	slots := o.freeSlots(ctx, sess, req, in, window, now, resp)

	matches := matcher.Rank(events, in, slots, window, now)
	if len(matches) == 0 {
		matches = matcher.Flat(events)
		resp.Log("no event met every constraint, showing all events")
	}
	sess.Matches = matches
	resp.Log(fmt.Sprintf("ranked %d event(s)", len(matches)))

	if book {
		if idx, ok := matcher.ResolveByName(req.Message, matchEvents(matches), false); ok {
			resp.Log("resolved event by name: " + matches[idx].Event.Name)
			o.startBooking(ctx, sess, req, matches[idx].Event, resp)
			return
		}
	}
	o.present(sess, matches, "Here's what I found:", resp)
}

// discover calls the discovery collaborator, degrading to the static list.
func (o *Orchestrator) discover(ctx context.Context, now time.Time, resp *model.TurnResponse) []model.Event {
	if o.deps.Discoverer != nil {
		var events []model.Event
		err := o.call(ctx, "discovery", func(ctx context.Context) error {
			var err error
			events, err = o.deps.Discoverer.Discover(ctx)
			return err
		})
		if err == nil {
			resp.Log(fmt.Sprintf("discovered %d event(s)", len(events)))
			return events
		}
		o.degrade("discovery", err, resp)
	}
	if o.deps.Fallback == nil {
		return nil
	}
	events := o.deps.Fallback(now)
	resp.Log(fmt.Sprintf("using %d built-in event(s)", len(events)))
	return events
}

// freeSlots turns an availability report into whole free days for the
// matcher. It only runs when the intent asked for a calendar check and a
// calendar with known attendees is connected.
func (o *Orchestrator) freeSlots(ctx context.Context, sess *session.Session, req *model.TurnRequest, in model.UserIntent, window *timewindow.Window, now time.Time, resp *model.TurnResponse) []model.TimeSlot {
	if !in.CheckCalendar || req.CalendarToken == "" || o.deps.Availability == nil || len(sess.AttendeeEmails) == 0 {
		return nil
	}

	start, end := timewindow.StartOfDay(now), timewindow.EndOfDay(now.Add(freeSlotHorizon))
	if window != nil {
		start, end = window.Start, window.End
	}

	var report *model.ConflictReport
	err := o.call(ctx, "calendar_check", func(ctx context.Context) error {
		var err error
		report, err = o.deps.Availability.CheckAvailability(ctx, req.CalendarToken, sess.AttendeeEmails, start, end)
		return err
	})
	if err != nil {
		o.degrade("calendar_check", err, resp)
		resp.Warn("I couldn't read calendars, so results aren't ranked by availability.")
		return nil
	}

	slots := FreeDays(report, start, end)
	resp.Log(fmt.Sprintf("calendar: %d free day(s) for everyone", len(slots)))
	return slots
}

// FreeDays returns the days in [start, end] on which no attendee has a
// busy interval.
func FreeDays(report *model.ConflictReport, start, end time.Time) []model.TimeSlot {
	var slots []model.TimeSlot
	for day := timewindow.StartOfDay(start); !day.After(end); day = day.AddDate(0, 0, 1) {
		dayEnd := timewindow.EndOfDay(day)
		free := true
		for _, a := range report.Attendees {
			for _, b := range a.Busy {
				if b.Start.Before(dayEnd) && b.End.After(day) {
					free = false
					break
				}
			}
			if !free {
				break
			}
		}
		if free {
			slots = append(slots, model.TimeSlot{Start: day, End: dayEnd})
		}
	}
	return slots
}

func (o *Orchestrator) present(sess *session.Session, matches []model.EventMatch, heading string, resp *model.TurnResponse) {
	sess.AbandonPending()
	sess.State = session.StateAwaitingConfirmation
	resp.MatchedEvents = matches

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	for i, m := range matches {
		if i == presentLimit {
			fmt.Fprintf(&b, "...and %d more.\n", len(matches)-presentLimit)
			break
		}
		fmt.Fprintf(&b, "#%d %s\n", i+1, describeEvent(m.Event))
	}
	b.WriteString("Reply with a number (like \"book #1\") or the event name to book it.")
	resp.ResponseText = b.String()
}

func (o *Orchestrator) presentAlternatives(sess *session.Session, excludeID string, resp *model.TurnResponse) {
	var rest []model.EventMatch
	for _, m := range sess.Matches {
		if m.Event.ID != excludeID {
			rest = append(rest, m)
		}
	}
	if len(rest) == 0 {
		sess.Matches = nil
		sess.State = session.StateIdle
		resp.ResponseText = "That was the only option I had. Tell me what else you'd like to see and I'll search again."
		return
	}
	sess.Matches = rest
	o.present(sess, rest, "No problem. Here are the other options:", resp)
}

func (o *Orchestrator) confirm(ctx context.Context, sess *session.Session, req *model.TurnRequest, resp *model.TurnResponse) {
	if len(sess.Matches) == 0 {
		resp.ResponseText = "I don't have any events lined up yet. Tell me what you're looking for and I'll search."
		return
	}

	events := matchEvents(sess.Matches)
	idx, ok := matcher.ResolveOrdinal(req.Message, len(events))
	if !ok {
		idx, ok = matcher.ResolveByName(req.Message, events, true)
	}
	if !ok {
		metrics.GateHalts.WithLabelValues("ambiguous_selection").Inc()
		sess.State = session.StateAwaitingConfirmation
		resp.ResponseText = fmt.Sprintf("I'm not sure which event you mean. Reply with a number from 1 to %d.", len(events))
		return
	}

	resp.Log(fmt.Sprintf("selected #%d %s", idx+1, events[idx].Name))
	o.startBooking(ctx, sess, req, events[idx], resp)
}

// startBooking snapshots the chosen event and runs it through the gates.
func (o *Orchestrator) startBooking(ctx context.Context, sess *session.Session, req *model.TurnRequest, ev model.Event, resp *model.TurnResponse) {
	now := o.now()
	sess.AbandonPending()
	sess.CalendarChecked = false
	sess.PaymentConfirmed = false
	sess.BookingExecuted = false

	pending := &model.PendingBooking{
		Event:         ev,
		Attendees:     o.attendees(sess),
		WalletAddress: req.WalletAddress,
		Calendar: model.CalendarContext{
			Token:  req.CalendarToken,
			Emails: append([]string(nil), sess.AttendeeEmails...),
		},
		CreatedAt: now,
		ExpiresAt: now.Add(o.cfg.PendingTTL),
	}
	sess.Pending = pending

	if !o.calendarGate(ctx, sess, pending, resp) {
		return
	}
	o.paymentGate(ctx, sess, pending, resp)
}

// attendees combines the extracted attendee list with emails gathered
// across turns. Known emails fill attendees that have none, in order.
func (o *Orchestrator) attendees(sess *session.Session) []model.Attendee {
	var out []model.Attendee
	if sess.Intent != nil {
		out = append(out, sess.Intent.Attendees...)
	}
	if len(out) == 0 {
		out = []model.Attendee{{Name: "User"}}
	}
	return fillEmails(out, sess.AttendeeEmails)
}

func fillEmails(attendees []model.Attendee, emails []string) []model.Attendee {
	used := make(map[string]struct{}, len(attendees))
	for _, a := range attendees {
		if a.Email != "" {
			used[a.Email] = struct{}{}
		}
	}
	out := make([]model.Attendee, len(attendees))
	copy(out, attendees)
	next := 0
	for i := range out {
		if out[i].Email != "" {
			continue
		}
		for next < len(emails) {
			e := emails[next]
			next++
			if _, taken := used[e]; !taken {
				out[i].Email = e
				used[e] = struct{}{}
				break
			}
		}
	}
	return out
}

func matchEvents(matches []model.EventMatch) []model.Event {
	out := make([]model.Event, len(matches))
	for i, m := range matches {
		out[i] = m.Event
	}
	return out
}

func describeEvent(ev model.Event) string {
	when := ev.Date
	if ev.Time != "" {
		when += " " + ev.Time
	}
	price := "Free"
	if !ev.IsFree {
		price = fmt.Sprintf("$%.2f", ev.Price)
	}
	out := ev.Name
	if ev.Venue != "" {
		out += " at " + ev.Venue
	}
	return fmt.Sprintf("%s, %s, %s", out, when, price)
}
