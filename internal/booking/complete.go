package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/tixagent/internal/matcher"
	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/internal/session"
	"github.com/capitalize-ai/tixagent/pkg/metrics"
)

var errNoTickets = errors.New("mint returned no tickets")

// Resume completes a booking after the client's wallet action resolved.
// The echoed PendingBooking is authoritative; the session's own copy is
// used only when the client sent none.
func (o *Orchestrator) Resume(ctx context.Context, sess *session.Session, req *model.ResumeRequest) (*model.TurnResponse, error) {
	resp := &model.TurnResponse{ActionLog: []string{}}

	var pending *model.PendingBooking
	switch {
	case req.PendingBooking != nil:
		if sess.Pending != nil && !sameEvent(sess.Pending.Event, req.PendingBooking.Event) {
			return nil, ErrSnapshotMismatch
		}
		p := *req.PendingBooking
		pending = &p
		resp.Log("resuming from client snapshot")
	case sess.State == session.StateAwaitingWalletAction && sess.Pending != nil:
		pending = sess.Pending
		resp.Log("resuming from stored session")
	default:
		return nil, ErrNoPendingBooking
	}

	if req.Proof.Rejected {
		reason := req.Proof.Reason
		if reason == "" {
			reason = "the wallet request was rejected"
		}
		o.fail(sess, pending, fmt.Errorf("wallet action rejected: %s", reason),
			fmt.Sprintf("The booking for %s was not completed: %s. No tickets were issued; ask me again whenever you're ready.",
				pending.Event.Name, reason), resp)
		return o.finish(sess, resp), nil
	}
	if pending.Expired(o.now()) {
		o.fail(sess, pending, ErrPendingExpired,
			fmt.Sprintf("The booking request for %s expired before the wallet step finished. Please start the booking again.",
				pending.Event.Name), resp)
		return o.finish(sess, resp), nil
	}
	if err := CheckProof(pending, req.Proof); err != nil {
		return nil, err
	}
	proof := proofKey(pending, req.Proof)
	if sess.ProofUsed(proof) {
		return nil, ErrProofReused
	}

	owner := req.WalletAddress
	if owner == "" {
		owner = pending.WalletAddress
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: wallet address", ErrMissingProof)
	}
	if req.CalendarToken != "" {
		pending.Calendar.Token = req.CalendarToken
	}

	sess.Pending = pending
	sess.CalendarChecked = pending.Calendar.Checked
	sess.PaymentConfirmed = true
	sess.UseProof(proof)
	resp.Log("wallet proof accepted")

	o.complete(ctx, sess, pending, owner, req.Proof.TxSignature, "", resp)
	return o.finish(sess, resp), nil
}

// CheckProof verifies the proof kind matches the event: a paid event needs
// a transfer signature, a free one a message signature.
func CheckProof(p *model.PendingBooking, proof model.WalletProof) error {
	if p.Event.IsFree {
		if proof.Signature == "" {
			return fmt.Errorf("%w: message signature required for free event", ErrMissingProof)
		}
		return nil
	}
	if proof.TxSignature == "" {
		return fmt.Errorf("%w: transfer signature required for paid event", ErrMissingProof)
	}
	return nil
}

// proofKey is the signature that identifies a wallet proof.
func proofKey(p *model.PendingBooking, proof model.WalletProof) string {
	if p.Event.IsFree {
		return proof.Signature
	}
	return proof.TxSignature
}

// sameEvent reports whether an echoed event is the one the session is
// waiting on, compared on the fields that decide the payment.
func sameEvent(stored, echoed model.Event) bool {
	return stored.ID == echoed.ID && stored.IsFree == echoed.IsFree && stored.Price == echoed.Price
}

// complete mints, creates the calendar entry and offers email.
func (o *Orchestrator) complete(ctx context.Context, sess *session.Session, pending *model.PendingBooking, owner, paymentTx, lead string, resp *model.TurnResponse) {
	ev := pending.Event
	if o.deps.Minter == nil {
		o.fail(sess, pending, errors.New("minting service is not configured"), "", resp)
		return
	}

	metas := TicketMetadata(pending, paymentTx)
	var tickets []model.TicketRecord
	err := o.call(ctx, "mint", func(ctx context.Context) error {
		var err error
		tickets, err = o.deps.Minter.Mint(ctx, owner, metas)
		return err
	})
	if err == nil && len(tickets) == 0 {
		err = errNoTickets
	}
	if err != nil {
		o.fail(sess, pending, err, "", resp)
		return
	}

	result := &model.BookingResult{
		Success:     true,
		Event:       ev,
		Tickets:     tickets,
		TotalPaid:   totalPaid(ev, len(tickets)),
		PaymentTxID: paymentTx,
	}
	sess.BookingExecuted = true
	sess.LastResult = result
	sess.Pending = nil
	sess.Matches = nil
	sess.State = session.StateAwaitingEmail

	metrics.BookingsTotal.WithLabelValues("confirmed").Inc()
	o.log.Info("booking confirmed",
		zap.String("session_id", sess.ID),
		zap.String("event_id", ev.ID),
		zap.Int("tickets", len(tickets)),
	)
	resp.Log(fmt.Sprintf("minted %d ticket(s)", len(tickets)))
	resp.Tickets = tickets
	resp.BookingResult = result

	o.addToCalendar(ctx, pending, tickets, resp)

	var b strings.Builder
	b.WriteString(lead)
	fmt.Fprintf(&b, "Booking confirmed! %d ticket(s) for %s.\n", len(tickets), describeEvent(ev))
	for _, t := range tickets {
		fmt.Fprintf(&b, "- %s: %s\n", t.AttendeeName, t.VerificationURL)
	}
	b.WriteString("Would you like the ticket details by email? Reply with an address, or say \"no thanks\".")
	resp.ResponseText = b.String()
}

// fail ends the attempt. No pending state survives it.
func (o *Orchestrator) fail(sess *session.Session, pending *model.PendingBooking, err error, text string, resp *model.TurnResponse) {
	metrics.BookingsTotal.WithLabelValues("failed").Inc()
	o.log.Error("booking failed",
		zap.String("session_id", sess.ID),
		zap.String("event_id", pending.Event.ID),
		zap.Error(err),
	)
	sess.Pending = nil
	sess.PaymentConfirmed = false
	sess.BookingExecuted = false
	sess.State = session.StateIdle

	resp.Log("booking failed: " + err.Error())
	resp.BookingResult = &model.BookingResult{Event: pending.Event, Error: err.Error()}
	if text == "" {
		text = fmt.Sprintf("Booking failed: %v. No tickets were issued; please start the booking again.", err)
	}
	resp.ResponseText = text
}

func (o *Orchestrator) addToCalendar(ctx context.Context, pending *model.PendingBooking, tickets []model.TicketRecord, resp *model.TurnResponse) {
	if pending.Calendar.Token == "" || o.deps.CalendarWriter == nil {
		return
	}
	start, hasTime, ok := matcher.EventStart(pending.Event, o.now())
	if !ok {
		resp.Log("calendar event skipped: event date could not be read")
		return
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Tickets booked for %s.\n", pending.Event.Name)
	for _, t := range tickets {
		fmt.Fprintf(&desc, "%s: %s (%s)\n", t.AttendeeName, t.AssetID, t.VerificationURL)
	}
	entry := model.CalendarEvent{
		Summary:     pending.Event.Name,
		Location:    pending.Event.Venue,
		Description: desc.String(),
		Start:       start,
		End:         start.Add(eventBlock),
		AllDay:      !hasTime,
		Attendees:   attendeeEmails(pending),
	}

	var ref *model.CalendarEventRef
	err := o.call(ctx, "calendar_write", func(ctx context.Context) error {
		var err error
		ref, err = o.deps.CalendarWriter.CreateEvent(ctx, pending.Calendar.Token, entry)
		return err
	})
	if err != nil {
		o.degrade("calendar_write", err, resp)
		resp.Warn("Your tickets are booked, but I couldn't add the event to your calendar.")
		return
	}
	resp.Log("calendar event created: " + ref.Link)
}

// TicketMetadata builds one mint entry per attendee.
func TicketMetadata(p *model.PendingBooking, paymentTx string) []model.TicketMetadata {
	var lamports uint64
	if !p.Event.IsFree {
		lamports = Lamports(DevnetAmount(p.Event.Price))
	}
	date := p.Event.Date
	if p.Event.Time != "" {
		date += " " + p.Event.Time
	}
	out := make([]model.TicketMetadata, len(p.Attendees))
	for i, a := range p.Attendees {
		out[i] = model.TicketMetadata{
			AttendeeName: a.Name,
			EventID:      p.Event.ID,
			EventName:    p.Event.Name,
			EventDate:    date,
			Venue:        p.Event.Venue,
			PricePaid:    p.Event.Price,
			Lamports:     lamports,
			PaymentTx:    paymentTx,
		}
	}
	return out
}

func attendeeEmails(p *model.PendingBooking) []string {
	out := append([]string(nil), p.Calendar.Emails...)
	for _, a := range p.Attendees {
		out = model.UnionEmails(out, a.Email)
	}
	return out
}

func totalPaid(ev model.Event, n int) float64 {
	if ev.IsFree {
		return 0
	}
	total, _ := decimalFloat(ev.Price).Mul(decimalInt(n)).Round(2).Float64()
	return total
}
