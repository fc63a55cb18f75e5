package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/capitalize-ai/tixagent/internal/intent"
	"github.com/capitalize-ai/tixagent/internal/llm"
	"github.com/capitalize-ai/tixagent/internal/matcher"
	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/internal/session"
	"github.com/capitalize-ai/tixagent/internal/timewindow"
	"github.com/capitalize-ai/tixagent/pkg/metrics"
)

const (
	historyLimit   = 10
	genreListLimit = 3
)

const chatSystemPrompt = `You are a friendly assistant for a concert and event ticket booking service.
Answer briefly (at most three sentences). You can search events, check group calendars, book tickets
paid from a connected wallet and email ticket details. Never claim a booking was made.`

const helpText = "I can search for events (\"jazz this weekend under $40\"), book tickets (\"book #2\"), " +
	"check whether your group is free, and email your tickets after booking."

func (o *Orchestrator) sendEmail(ctx context.Context, sess *session.Session, req *model.TurnRequest, resp *model.TurnResponse) {
	result := sess.LastResult
	if result == nil || !result.Success {
		resp.ResponseText = "There's no completed booking to email yet. Book an event first and I'll send the tickets."
		return
	}

	to := intent.ExtractEmails(req.Message)
	if len(to) == 0 {
		sess.State = session.StateAwaitingEmail
		resp.ResponseText = "Which email address should I send the tickets to?"
		return
	}
	if o.deps.Mailer == nil {
		sess.State = session.StateAwaitingEmail
		resp.ResponseText = "Email delivery isn't available right now. Your tickets are still valid; " +
			"the verification links above work without email."
		return
	}

	err := o.call(ctx, "email", func(ctx context.Context) error {
		return o.deps.Mailer.SendBooking(ctx, to, result)
	})
	if err != nil {
		metrics.CollaboratorFallbacks.WithLabelValues("email").Inc()
		sess.State = session.StateAwaitingEmail
		resp.Log("email failed: " + err.Error())
		resp.ResponseText = fmt.Sprintf("I couldn't send the email: %v. Send me the address again to retry.", err)
		return
	}

	sess.LastResult = nil
	sess.State = session.StateIdle
	resp.Log("emailed tickets to " + strings.Join(to, ", "))
	resp.ResponseText = fmt.Sprintf("Done! I sent the ticket details for %s to %s.", result.Event.Name, strings.Join(to, ", "))
}

// checkCalendar reports per-attendee availability for the event in play,
// or for the time window the message names.
func (o *Orchestrator) checkCalendar(ctx context.Context, sess *session.Session, req *model.TurnRequest, resp *model.TurnResponse) {
	sess.AddEmails(intent.ExtractEmails(req.Message)...)

	if req.CalendarToken == "" || o.deps.Availability == nil {
		resp.ResponseText = "Connect your calendar first and I'll check who's free."
		return
	}
	if len(sess.AttendeeEmails) == 0 {
		resp.ResponseText = "Whose calendars should I check? Send me their email addresses."
		return
	}

	now := o.now()
	var (
		label      string
		start, end time.Time
	)
	target := o.targetEvent(sess)
	if target != nil {
		s, hasTime, ok := matcher.EventStart(*target, now)
		if ok {
			label = target.Name
			start, end = s, s.Add(eventBlock)
			if !hasTime {
				start, end = timewindow.StartOfDay(s), timewindow.EndOfDay(s)
			}
		}
	}
	if label == "" {
		w := timewindow.Parse(req.Message, nil, now)
		if w == nil {
			w = &timewindow.Window{Start: timewindow.StartOfDay(now), End: timewindow.EndOfDay(now.AddDate(0, 0, 7))}
		}
		label = fmt.Sprintf("%s to %s", w.Start.Format("Mon Jan 2"), w.End.Format("Mon Jan 2"))
		start, end = w.Start, w.End
	}

	var report *model.ConflictReport
	err := o.call(ctx, "calendar_check", func(ctx context.Context) error {
		var err error
		report, err = o.deps.Availability.CheckAvailability(ctx, req.CalendarToken, sess.AttendeeEmails, start, end)
		return err
	})
	if err != nil {
		o.degrade("calendar_check", err, resp)
		resp.ResponseText = "I couldn't reach the calendar service just now. Try reconnecting your calendar."
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Availability for %s:\n", label)
	for _, a := range report.Attendees {
		switch {
		case a.Error != "":
			fmt.Fprintf(&b, "- %s: couldn't read calendar (%s)\n", a.Email, a.Error)
		case a.Free:
			fmt.Fprintf(&b, "- %s: free\n", a.Email)
		default:
			fmt.Fprintf(&b, "- %s: busy (%d conflict(s))\n", a.Email, len(a.Busy))
		}
	}
	if report.AllFree {
		b.WriteString("Everyone is free.")
	} else {
		b.WriteString("Not everyone is free.")
	}
	resp.ResponseText = b.String()
}

func (o *Orchestrator) targetEvent(sess *session.Session) *model.Event {
	if sess.Pending != nil {
		return &sess.Pending.Event
	}
	if len(sess.Matches) > 0 {
		return &sess.Matches[0].Event
	}
	return nil
}

// discoverMusic lists upcoming events grouped by genre. It has no booking
// side effects.
func (o *Orchestrator) discoverMusic(ctx context.Context, resp *model.TurnResponse) {
	now := o.now()
	events := o.discover(ctx, now, resp)
	today := timewindow.StartOfDay(now)

	groups := map[string][]model.Event{}
	for _, ev := range events {
		if d, ok := matcher.ParseEventDate(ev.Date, now); ok && d.Before(today) {
			continue
		}
		genre := strings.ToLower(strings.TrimSpace(ev.Genre))
		if genre == "" {
			genre = "other"
		}
		groups[genre] = append(groups[genre], ev)
	}
	if len(groups) == 0 {
		resp.ResponseText = "I don't see any upcoming shows right now. Check back soon!"
		return
	}

	genres := make([]string, 0, len(groups))
	for g := range groups {
		genres = append(genres, g)
	}
	sort.Strings(genres)

	var b strings.Builder
	b.WriteString("Here's what's coming up by genre:\n")
	for _, g := range genres {
		var names []string
		for i, ev := range groups[g] {
			if i == genreListLimit {
				break
			}
			names = append(names, ev.Name)
		}
		fmt.Fprintf(&b, "- %s: %s\n", capitalize(g), strings.Join(names, ", "))
	}
	b.WriteString("Want me to book any of these?")
	resp.ResponseText = b.String()
}

// answer replies to general questions with the chat model when one is
// configured.
func (o *Orchestrator) answer(ctx context.Context, req *model.TurnRequest, resp *model.TurnResponse) {
	if o.deps.Chat == nil {
		resp.ResponseText = helpText
		return
	}

	history := req.ConversationHistory
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	msgs := make([]llm.ChatMessage, 0, len(history)+1)
	for _, h := range history {
		if h.Role == model.RoleSystem || h.Content == "" {
			continue
		}
		// Providers require the conversation to open with a user message.
		if len(msgs) == 0 && h.Role != model.RoleUser {
			continue
		}
		msgs = append(msgs, llm.ChatMessage{Role: string(h.Role), Content: h.Content})
	}
	msgs = append(msgs, llm.ChatMessage{Role: string(model.RoleUser), Content: req.Message})

	start := time.Now()
	out, err := o.deps.Chat.Complete(ctx, &llm.CompletionRequest{
		Model:       o.cfg.ChatModel,
		System:      chatSystemPrompt,
		Messages:    msgs,
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil {
		metrics.RecordLLM(o.deps.Chat.Name(), "chat", "error", time.Since(start).Seconds(), 0, 0)
		o.degrade("chat", err, resp)
		resp.ResponseText = helpText
		return
	}
	metrics.RecordLLM(o.deps.Chat.Name(), "chat", "success", time.Since(start).Seconds(), out.TokensIn, out.TokensOut)
	resp.ResponseText = strings.TrimSpace(out.Content)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
