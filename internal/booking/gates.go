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

// eventBlock is the assumed length of an event for availability checks
// and calendar entries.
const eventBlock = 2 * time.Hour

// calendarGate reports whether the booking may advance to payment.
func (o *Orchestrator) calendarGate(ctx context.Context, sess *session.Session, pending *model.PendingBooking, resp *model.TurnResponse) bool {
	cal := &pending.Calendar
	if cal.Token == "" || o.deps.Availability == nil {
		if len(sess.AttendeeEmails) > 0 {
			cal.Note = "no calendar connected"
			resp.Warn("No calendar is connected, so I couldn't check attendees for conflicts.")
		}
		return true
	}
	if sess.CalendarChecked {
		return true
	}

	if len(sess.AttendeeEmails) == 0 {
		metrics.GateHalts.WithLabelValues("attendee_emails").Inc()
		sess.NeedsEmails = true
		sess.State = session.StateIdle
		resp.Log("calendar gate: waiting for attendee emails")
		resp.ResponseText = fmt.Sprintf("Before I book %s I'd like to check everyone's calendar. "+
			"What are the attendees' email addresses?", pending.Event.Name)
		return false
	}
	cal.Emails = append([]string(nil), sess.AttendeeEmails...)

	now := o.now()
	start, hasTime, ok := matcher.EventStart(pending.Event, now)
	if !ok {
		cal.Note = "calendar check skipped: event date could not be read"
		resp.Log(cal.Note)
		resp.Warn("I couldn't read this event's date, so calendar availability wasn't verified.")
		return true
	}
	end := start.Add(eventBlock)
	if !hasTime {
		start, end = timewindow.StartOfDay(start), timewindow.EndOfDay(start)
	}

	var report *model.ConflictReport
	err := o.call(ctx, "calendar_check", func(ctx context.Context) error {
		var err error
		report, err = o.deps.Availability.CheckAvailability(ctx, cal.Token, cal.Emails, start, end)
		return err
	})
	if err != nil {
		o.degrade("calendar_check", err, resp)
		cal.Note = "calendar check failed, booking unverified"
		resp.Warn("I couldn't reach the calendar service, so availability is unverified.")
		return true
	}

	if !report.AllFree {
		metrics.GateHalts.WithLabelValues("calendar_conflict").Inc()
		sess.State = session.StateAwaitingBookAnyway
		sess.Pending = pending
		busy := report.BusyEmails()
		resp.Log("calendar conflict: " + strings.Join(busy, ", "))
		resp.ResponseText = fmt.Sprintf("Heads up: %s %s busy during %s (%s). Would you like to:\n"+
			"1. Book anyway\n2. Pick a different event",
			strings.Join(busy, ", "), isAre(len(busy)), pending.Event.Name, formatWhen(start, hasTime))
		return false
	}

	sess.CalendarChecked = true
	cal.Checked = true
	for _, a := range report.Attendees {
		if a.Error != "" {
			resp.Warn(fmt.Sprintf("Couldn't read %s's calendar (%s); treated as free.", a.Email, a.Error))
		}
	}
	resp.Log("calendar gate: everyone is free")
	return true
}

// paymentGate requests the wallet action, or mints directly for a free
// event booked without a wallet.
func (o *Orchestrator) paymentGate(ctx context.Context, sess *session.Session, pending *model.PendingBooking, resp *model.TurnResponse) {
	ev := pending.Event
	lead := ""
	if pending.Calendar.Checked {
		lead = "Everyone's calendar is clear. "
	}

	if pending.WalletAddress == "" {
		if !ev.IsFree {
			metrics.GateHalts.WithLabelValues("wallet").Inc()
			o.holdSelection(sess)
			resp.Log("payment gate: paid event without wallet")
			resp.ResponseText = fmt.Sprintf("%s costs $%.2f per ticket. Please connect your wallet so you can pay, "+
				"then ask me to book it again.", ev.Name, ev.Price)
			return
		}
		if o.cfg.CustodyWallet == "" {
			metrics.GateHalts.WithLabelValues("wallet").Inc()
			o.holdSelection(sess)
			resp.ResponseText = fmt.Sprintf("%s is free, but I need a wallet to hold the tickets. "+
				"Please connect your wallet and ask me to book it again.", ev.Name)
			return
		}
		resp.Log("payment gate: free event, minting to custody wallet")
		sess.PaymentConfirmed = true
		o.complete(ctx, sess, pending, o.cfg.CustodyWallet, "", lead, resp)
		return
	}

	if ev.IsFree {
		msg := ConfirmationMessage(pending, o.now())
		pending.ConfirmationMessage = msg
		o.suspend(sess, pending, &model.WalletAction{
			Type:        model.WalletSignMessage,
			Message:     msg,
			Description: fmt.Sprintf("Sign to confirm %d free ticket(s) for %s", len(pending.Attendees), ev.Name),
		}, resp)
		resp.ResponseText = lead + fmt.Sprintf("%s is free. Please sign the confirmation message in your wallet to book it.", ev.Name)
		return
	}

	if ev.Price <= 0 {
		metrics.GateHalts.WithLabelValues("unknown_price").Inc()
		o.holdSelection(sess)
		resp.ResponseText = fmt.Sprintf("I couldn't confirm the ticket price for %s, so I can't take payment. "+
			"Please pick a different event.", ev.Name)
		return
	}
	if o.cfg.VenueWallet == "" {
		metrics.GateHalts.WithLabelValues("venue_wallet").Inc()
		o.holdSelection(sess)
		resp.ResponseText = "Paid bookings aren't available right now because no venue wallet is configured."
		return
	}

	qty := len(pending.Attendees)
	amount := DevnetAmount(ev.Price).Mul(decimalInt(qty))
	pending.AmountSOL = amount.String()
	o.suspend(sess, pending, &model.WalletAction{
		Type:        model.WalletTransfer,
		AmountSOL:   pending.AmountSOL,
		Lamports:    Lamports(amount),
		Recipient:   o.cfg.VenueWallet,
		Description: fmt.Sprintf("%d ticket(s) for %s at $%.2f each", qty, ev.Name, ev.Price),
	}, resp)
	resp.ResponseText = lead + fmt.Sprintf("%d ticket(s) for %s come to %s SOL on devnet. "+
		"Please approve the transfer in your wallet.", qty, ev.Name, pending.AmountSOL)
}

func (o *Orchestrator) suspend(sess *session.Session, pending *model.PendingBooking, action *model.WalletAction, resp *model.TurnResponse) {
	sess.State = session.StateAwaitingWalletAction
	sess.Pending = pending
	snapshot := *pending
	resp.RequiredWalletAction = action
	resp.PendingBooking = &snapshot
	resp.Log("payment gate: requested wallet " + string(action.Type))
}

// holdSelection keeps the presented list active so the user can retry.
func (o *Orchestrator) holdSelection(sess *session.Session) {
	sess.Pending = nil
	if len(sess.Matches) > 0 {
		sess.State = session.StateAwaitingConfirmation
	} else {
		sess.State = session.StateIdle
	}
}

// resumeWithEmails continues a booking halted for attendee emails.
func (o *Orchestrator) resumeWithEmails(ctx context.Context, sess *session.Session, req *model.TurnRequest, emails []string, resp *model.TurnResponse) {
	sess.AddEmails(emails...)
	sess.NeedsEmails = false
	resp.Log(fmt.Sprintf("received %d attendee email(s)", len(emails)))

	pending := sess.Pending
	pending.Attendees = fillEmails(pending.Attendees, sess.AttendeeEmails)
	pending.Calendar.Emails = append([]string(nil), sess.AttendeeEmails...)
	if req.WalletAddress != "" {
		pending.WalletAddress = req.WalletAddress
	}
	if req.CalendarToken != "" {
		pending.Calendar.Token = req.CalendarToken
	}

	if !o.calendarGate(ctx, sess, pending, resp) {
		return
	}
	o.paymentGate(ctx, sess, pending, resp)
}

// bookAnyway overrides a surfaced conflict and goes straight to payment.
func (o *Orchestrator) bookAnyway(ctx context.Context, sess *session.Session, req *model.TurnRequest, resp *model.TurnResponse) {
	if sess.State != session.StateAwaitingBookAnyway || sess.Pending == nil {
		resp.ResponseText = "There's no calendar conflict waiting on you. Tell me which event you'd like to book."
		return
	}
	pending := sess.Pending
	if req.WalletAddress != "" {
		pending.WalletAddress = req.WalletAddress
	}
	sess.CalendarChecked = true
	pending.Calendar.Note = "booked despite calendar conflict"
	resp.Log("conflict overridden by user")
	o.paymentGate(ctx, sess, pending, resp)
}

// ConfirmationMessage is the text a wallet signs to book a free event.
func ConfirmationMessage(p *model.PendingBooking, now time.Time) string {
	names := make([]string, len(p.Attendees))
	for i, a := range p.Attendees {
		names[i] = a.Name
	}
	when := p.Event.Date
	if p.Event.Time != "" {
		when += " " + p.Event.Time
	}
	return fmt.Sprintf("Confirm free ticket booking\nEvent: %s\nVenue: %s\nDate: %s\nAttendees: %s\nWallet: %s\nTimestamp: %s",
		p.Event.Name, p.Event.Venue, when, strings.Join(names, ", "), p.WalletAddress, now.UTC().Format(time.RFC3339))
}

func formatWhen(t time.Time, hasTime bool) string {
	if hasTime {
		return t.Format("Mon Jan 2 3:04 PM")
	}
	return t.Format("Mon Jan 2")
}

func isAre(n int) string {
	if n == 1 {
		return "is"
	}
	return "are"
}
