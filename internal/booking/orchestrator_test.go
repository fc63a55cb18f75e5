package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tixagent/internal/llm"
	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/internal/session"
	"github.com/capitalize-ai/tixagent/pkg/logger"
)

const (
	scenarioA   = "Book 2 tickets for Aman and Akash, under $50, weekends, jazz"
	userWallet  = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	venueWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	calToken    = "ya29.test-token"
)

func testEvents() []model.Event {
	return []model.Event{
		{ID: "bluenote", Name: "Blue Note Jazz Night", Venue: "Blue Note", Date: "Mar 7", Time: "8:00 PM", Price: 25, Genre: "jazz"},
		{ID: "arena", Name: "Arena Rock Fest", Venue: "The Arena", Date: "Mar 5", Time: "7:00 PM", Price: 80, Genre: "rock"},
		{ID: "picnic", Name: "Sunday Folk Picnic", Venue: "City Park", Date: "Mar 8", Time: "1:00 PM", IsFree: true, Genre: "folk"},
		{ID: "parkjazz", Name: "Free Jazz in the Park", Venue: "Riverside", Date: "Mar 20", Time: "5:00 PM", IsFree: true, Genre: "jazz"},
		{ID: "indie", Name: "Indie Night", Venue: "The Basement", Date: "Mar 6", Time: "9:00 PM", Price: 38.89, Genre: "indie"},
		{ID: "old", Name: "Last Month Jazz", Venue: "Blue Note", Date: "Feb 1", Time: "8:00 PM", Price: 10, Genre: "jazz"},
	}
}

type fakeDiscoverer struct {
	events []model.Event
	err    error
	calls  int
}

func (f *fakeDiscoverer) Discover(context.Context) ([]model.Event, error) {
	f.calls++
	return f.events, f.err
}

type fakeAvailability struct {
	busy       map[string]bool
	err        error
	calls      int
	emails     []string
	start, end time.Time
}

func (f *fakeAvailability) CheckAvailability(_ context.Context, _ string, emails []string, start, end time.Time) (*model.ConflictReport, error) {
	f.calls++
	f.emails = append([]string(nil), emails...)
	f.start, f.end = start, end
	if f.err != nil {
		return nil, f.err
	}
	report := &model.ConflictReport{AllFree: true}
	for _, e := range emails {
		a := model.AttendeeAvailability{Email: e, Free: !f.busy[e]}
		if f.busy[e] {
			a.Busy = []model.BusyInterval{{Start: start, End: end}}
			report.AllFree = false
		}
		report.Attendees = append(report.Attendees, a)
	}
	return report, nil
}

type fakeCalendarWriter struct {
	err   error
	calls int
	token string
	last  model.CalendarEvent
}

func (f *fakeCalendarWriter) CreateEvent(_ context.Context, token string, ev model.CalendarEvent) (*model.CalendarEventRef, error) {
	f.calls++
	f.token = token
	f.last = ev
	if f.err != nil {
		return nil, f.err
	}
	return &model.CalendarEventRef{ID: "cal-1", Link: "https://calendar.example/cal-1"}, nil
}

type fakeMinter struct {
	err     error
	calls   int
	owner   string
	tickets []model.TicketMetadata
}

func (f *fakeMinter) Mint(_ context.Context, owner string, tickets []model.TicketMetadata) ([]model.TicketRecord, error) {
	f.calls++
	f.owner = owner
	f.tickets = tickets
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.TicketRecord, len(tickets))
	for i, t := range tickets {
		out[i] = model.TicketRecord{
			AttendeeName:    t.AttendeeName,
			AssetID:         fmt.Sprintf("asset-%d", i+1),
			MintTransaction: fmt.Sprintf("tx-%d", i+1),
			EventName:       t.EventName,
			EventDate:       t.EventDate,
			Venue:           t.Venue,
			PricePaid:       t.PricePaid,
			Status:          model.TicketActive,
			VerificationURL: fmt.Sprintf("https://explorer.solana.com/address/asset-%d?cluster=devnet", i+1),
		}
	}
	return out, nil
}

type fakeMailer struct {
	err   error
	calls int
	to    []string
}

func (f *fakeMailer) SendBooking(_ context.Context, to []string, _ *model.BookingResult) error {
	f.calls++
	f.to = to
	return f.err
}

type harness struct {
	orch     *Orchestrator
	now      time.Time
	disc     *fakeDiscoverer
	avail    *fakeAvailability
	calendar *fakeCalendarWriter
	minter   *fakeMinter
	mailer   *fakeMailer
	sess     *session.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		now:      time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
		disc:     &fakeDiscoverer{events: testEvents()},
		avail:    &fakeAvailability{busy: map[string]bool{}},
		calendar: &fakeCalendarWriter{},
		minter:   &fakeMinter{},
		mailer:   &fakeMailer{},
	}
	h.orch = New(Config{VenueWallet: venueWallet, CustodyWallet: "CustodyWa11et"}, Dependencies{
		Discoverer:     h.disc,
		Fallback:       func(time.Time) []model.Event { return testEvents()[:2] },
		Availability:   h.avail,
		CalendarWriter: h.calendar,
		Minter:         h.minter,
		Mailer:         h.mailer,
		Now:            func() time.Time { return h.now },
	}, logger.NewNop())
	h.sess = session.New("s-1", "", "", h.now)
	return h
}

func (h *harness) turn(t *testing.T, req model.TurnRequest) *model.TurnResponse {
	t.Helper()
	resp, err := h.orch.HandleTurn(context.Background(), h.sess, &req)
	require.NoError(t, err)
	return resp
}

func TestScenarioA_PresentsBestMatchWithoutCalendarGate(t *testing.T) {
	h := newHarness(t)

	resp := h.turn(t, model.TurnRequest{Message: scenarioA})

	assert.Equal(t, model.ActionBookTicket, resp.Action)
	require.NotEmpty(t, resp.MatchedEvents)
	assert.Equal(t, "bluenote", resp.MatchedEvents[0].Event.ID)
	assert.Equal(t, 102, resp.MatchedEvents[0].Score)
	for _, m := range resp.MatchedEvents {
		assert.NotEqual(t, "arena", m.Event.ID, "over budget")
		assert.NotEqual(t, "old", m.Event.ID, "in the past")
	}
	assert.Equal(t, string(session.StateAwaitingConfirmation), resp.State)
	assert.Contains(t, resp.ResponseText, "#1 Blue Note Jazz Night")
	assert.Zero(t, h.avail.calls)
	assert.Nil(t, resp.RequiredWalletAction)
	assert.Equal(t, []model.Attendee{{Name: "Aman"}, {Name: "Akash"}}, h.sess.Intent.Attendees)
}

func TestScenarioB_CalendarGateWaitsForEmails(t *testing.T) {
	h := newHarness(t)

	h.turn(t, model.TurnRequest{Message: scenarioA, CalendarToken: calToken, WalletAddress: userWallet})
	resp := h.turn(t, model.TurnRequest{Message: "book #1", CalendarToken: calToken, WalletAddress: userWallet})

	assert.Equal(t, model.ActionConfirmBooking, resp.Action)
	assert.True(t, resp.NeedsEmails)
	assert.Contains(t, resp.ResponseText, "email addresses")
	assert.Nil(t, resp.RequiredWalletAction)
	assert.Zero(t, h.avail.calls)

	resp = h.turn(t, model.TurnRequest{Message: "aman@x.com, akash@y.com", CalendarToken: calToken, WalletAddress: userWallet})

	assert.False(t, resp.NeedsEmails)
	require.Equal(t, 1, h.avail.calls)
	assert.Equal(t, []string{"aman@x.com", "akash@y.com"}, h.avail.emails)
	assert.Equal(t, time.Date(2026, 3, 7, 20, 0, 0, 0, time.UTC), h.avail.start)
	assert.Equal(t, time.Date(2026, 3, 7, 22, 0, 0, 0, time.UTC), h.avail.end)

	require.NotNil(t, resp.RequiredWalletAction)
	assert.Equal(t, model.WalletTransfer, resp.RequiredWalletAction.Type)
	assert.Equal(t, "0.005", resp.RequiredWalletAction.AmountSOL)
	assert.Equal(t, venueWallet, resp.RequiredWalletAction.Recipient)
	assert.Contains(t, resp.ResponseText, "Everyone's calendar is clear")
	require.NotNil(t, resp.PendingBooking)
	assert.True(t, resp.PendingBooking.Calendar.Checked)
	assert.Equal(t, []model.Attendee{{Name: "Aman", Email: "aman@x.com"}, {Name: "Akash", Email: "akash@y.com"}}, resp.PendingBooking.Attendees)
	assert.Equal(t, string(session.StateAwaitingWalletAction), resp.State)
	assert.Zero(t, h.minter.calls)
}

func conflictedHarness(t *testing.T) (*harness, *model.TurnResponse) {
	t.Helper()
	h := newHarness(t)
	h.avail.busy["akash@y.com"] = true

	h.turn(t, model.TurnRequest{Message: scenarioA, CalendarToken: calToken, WalletAddress: userWallet,
		AttendeeEmails: []string{"aman@x.com", "akash@y.com"}})
	resp := h.turn(t, model.TurnRequest{Message: "book #1", CalendarToken: calToken, WalletAddress: userWallet})
	return h, resp
}

func TestScenarioC_ConflictRequiresBookAnyway(t *testing.T) {
	h, resp := conflictedHarness(t)

	assert.Equal(t, string(session.StateAwaitingBookAnyway), resp.State)
	assert.Contains(t, resp.ResponseText, "akash@y.com is busy")
	assert.Contains(t, resp.ResponseText, "1. Book anyway")
	assert.Contains(t, resp.ResponseText, "2. Pick a different event")
	assert.Nil(t, resp.RequiredWalletAction)
	assert.Zero(t, h.minter.calls)

	resp = h.turn(t, model.TurnRequest{Message: "hmm, let me think", CalendarToken: calToken, WalletAddress: userWallet})
	assert.Zero(t, h.minter.calls)

	resp = h.turn(t, model.TurnRequest{Message: "book anyway", CalendarToken: calToken, WalletAddress: userWallet})
	assert.Equal(t, model.ActionBookAnyway, resp.Action)
	assert.Equal(t, 1, h.avail.calls, "no second calendar check")
	require.NotNil(t, resp.RequiredWalletAction)
	assert.Equal(t, model.WalletTransfer, resp.RequiredWalletAction.Type)
	assert.Zero(t, h.minter.calls)
}

func TestConflictDeclineOffersAlternatives(t *testing.T) {
	h, _ := conflictedHarness(t)

	resp := h.turn(t, model.TurnRequest{Message: "pick a different event", CalendarToken: calToken})

	assert.Equal(t, model.ActionSearchEvents, resp.Action)
	assert.Equal(t, string(session.StateAwaitingConfirmation), resp.State)
	require.NotEmpty(t, resp.MatchedEvents)
	for _, m := range resp.MatchedEvents {
		assert.NotEqual(t, "bluenote", m.Event.ID)
	}
	assert.Nil(t, h.sess.Pending)
	assert.Zero(t, h.minter.calls)
}

func TestScenarioD_FreeEventSignsThenMints(t *testing.T) {
	h := newHarness(t)

	resp := h.turn(t, model.TurnRequest{Message: "Book Free Jazz in the Park", WalletAddress: userWallet})

	require.NotNil(t, resp.RequiredWalletAction)
	assert.Equal(t, model.WalletSignMessage, resp.RequiredWalletAction.Type)
	assert.Empty(t, resp.RequiredWalletAction.AmountSOL)
	assert.Contains(t, resp.RequiredWalletAction.Message, "Free Jazz in the Park")
	assert.Contains(t, resp.RequiredWalletAction.Message, userWallet)
	require.NotNil(t, resp.PendingBooking)
	assert.Zero(t, h.minter.calls)

	out, err := h.orch.Resume(context.Background(), h.sess, &model.ResumeRequest{
		PendingBooking: resp.PendingBooking,
		Proof:          model.WalletProof{Signature: "5sig"},
		WalletAddress:  userWallet,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, h.minter.calls)
	assert.Equal(t, userWallet, h.minter.owner)
	require.Len(t, out.Tickets, 1)
	assert.Equal(t, string(session.StateAwaitingEmail), out.State)
	require.NotNil(t, out.BookingResult)
	assert.True(t, out.BookingResult.Success)
	assert.Zero(t, out.BookingResult.TotalPaid)
	assert.Contains(t, out.ResponseText, "Booking confirmed")
}

func TestScenarioE_DevnetAmount(t *testing.T) {
	h := newHarness(t)

	resp := h.turn(t, model.TurnRequest{Message: "Book Indie Night", WalletAddress: userWallet})

	require.NotNil(t, resp.RequiredWalletAction)
	assert.Equal(t, model.WalletTransfer, resp.RequiredWalletAction.Type)
	assert.Equal(t, "0.003889", resp.RequiredWalletAction.AmountSOL)
	assert.Equal(t, uint64(3_889_000), resp.RequiredWalletAction.Lamports)
	assert.Equal(t, "0.003889", resp.PendingBooking.AmountSOL)
}

func TestScenarioF_DeclinedEmailClearsResult(t *testing.T) {
	h := newHarness(t)
	resp := h.turn(t, model.TurnRequest{Message: "Book Free Jazz in the Park", WalletAddress: userWallet})
	_, err := h.orch.Resume(context.Background(), h.sess, &model.ResumeRequest{
		PendingBooking: resp.PendingBooking,
		Proof:          model.WalletProof{Signature: "5sig"},
	})
	require.NoError(t, err)
	require.Equal(t, session.StateAwaitingEmail, h.sess.State)

	resp = h.turn(t, model.TurnRequest{Message: "no thanks"})
	assert.Equal(t, string(session.StateIdle), resp.State)
	assert.Nil(t, resp.BookingResult)
	assert.Nil(t, h.sess.LastResult)

	resp = h.turn(t, model.TurnRequest{Message: "my email is x@y.com"})
	assert.NotEqual(t, model.ActionProvideEmail, resp.Action)
	assert.Zero(t, h.mailer.calls)
}

func TestPaidEventWithoutWalletNeverMints(t *testing.T) {
	h := newHarness(t)

	resp := h.turn(t, model.TurnRequest{Message: "Book Indie Night"})

	assert.Zero(t, h.minter.calls)
	assert.Nil(t, resp.RequiredWalletAction)
	assert.Contains(t, resp.ResponseText, "connect your wallet")
	assert.Nil(t, h.sess.Pending)
	assert.Equal(t, string(session.StateAwaitingConfirmation), resp.State)
}

func TestFreeEventWithoutWalletMintsToCustody(t *testing.T) {
	h := newHarness(t)

	resp := h.turn(t, model.TurnRequest{Message: "Book Free Jazz in the Park"})

	assert.Equal(t, 1, h.minter.calls)
	assert.Equal(t, "CustodyWa11et", h.minter.owner)
	assert.Len(t, resp.Tickets, 1)
	assert.Equal(t, string(session.StateAwaitingEmail), resp.State)
}

func TestPendingBookingRoundTrip(t *testing.T) {
	h, _ := conflictedHarness(t)
	resp := h.turn(t, model.TurnRequest{Message: "book anyway", CalendarToken: calToken, WalletAddress: userWallet})
	require.NotNil(t, resp.PendingBooking)

	data, err := json.Marshal(resp.PendingBooking)
	require.NoError(t, err)
	var echoed model.PendingBooking
	require.NoError(t, json.Unmarshal(data, &echoed))

	fresh := session.New("s-1", "", "", h.now)
	out, err := h.orch.Resume(context.Background(), fresh, &model.ResumeRequest{
		PendingBooking: &echoed,
		Proof:          model.WalletProof{TxSignature: "4tx"},
	})
	require.NoError(t, err)

	require.Equal(t, 1, h.minter.calls)
	assert.Equal(t, userWallet, h.minter.owner)
	require.Len(t, h.minter.tickets, 2)
	assert.Equal(t, "Aman", h.minter.tickets[0].AttendeeName)
	assert.Equal(t, "Akash", h.minter.tickets[1].AttendeeName)
	assert.Equal(t, "bluenote", h.minter.tickets[0].EventID)
	assert.Equal(t, "4tx", h.minter.tickets[0].PaymentTx)

	require.Equal(t, 1, h.calendar.calls)
	assert.Equal(t, calToken, h.calendar.token)
	assert.Equal(t, []string{"aman@x.com", "akash@y.com"}, h.calendar.last.Attendees)
	assert.Equal(t, time.Date(2026, 3, 7, 20, 0, 0, 0, time.UTC), h.calendar.last.Start)
	assert.Equal(t, 2*time.Hour, h.calendar.last.End.Sub(h.calendar.last.Start))
	assert.Contains(t, h.calendar.last.Description, "asset-1")

	assert.Equal(t, 50.0, out.BookingResult.TotalPaid)
	assert.Equal(t, "4tx", out.BookingResult.PaymentTxID)
	assert.Equal(t, session.StateAwaitingEmail, fresh.State)
}

func TestResumeValidatesProof(t *testing.T) {
	h := newHarness(t)
	resp := h.turn(t, model.TurnRequest{Message: "Book Indie Night", WalletAddress: userWallet})
	pending := resp.PendingBooking
	ctx := context.Background()

	_, err := h.orch.Resume(ctx, h.sess, &model.ResumeRequest{PendingBooking: pending, Proof: model.WalletProof{Signature: "5sig"}})
	assert.ErrorIs(t, err, ErrMissingProof)
	assert.Zero(t, h.minter.calls)

	_, err = h.orch.Resume(ctx, session.New("", "", "", h.now), &model.ResumeRequest{Proof: model.WalletProof{TxSignature: "4tx"}})
	assert.ErrorIs(t, err, ErrNoPendingBooking)

	h.now = h.now.Add(DefaultPendingTTL + time.Minute)
	out, err := h.orch.Resume(ctx, h.sess, &model.ResumeRequest{PendingBooking: pending, Proof: model.WalletProof{TxSignature: "4tx"}})
	require.NoError(t, err)
	assert.Zero(t, h.minter.calls)
	assert.Equal(t, ErrPendingExpired.Error(), out.BookingResult.Error)
	assert.Contains(t, out.ResponseText, "expired")
	assert.Equal(t, string(session.StateIdle), out.State)
}

func TestResumeRejectedIsTerminal(t *testing.T) {
	h := newHarness(t)
	resp := h.turn(t, model.TurnRequest{Message: "Book Indie Night", WalletAddress: userWallet})

	out, err := h.orch.Resume(context.Background(), h.sess, &model.ResumeRequest{
		PendingBooking: resp.PendingBooking,
		Proof:          model.WalletProof{Rejected: true, Reason: "User rejected the request"},
	})
	require.NoError(t, err)
	assert.Zero(t, h.minter.calls)
	assert.Contains(t, out.ResponseText, "User rejected the request")
	assert.False(t, out.BookingResult.Success)
	assert.Nil(t, h.sess.Pending)
}

func TestResumeFromStoredSession(t *testing.T) {
	h := newHarness(t)
	h.turn(t, model.TurnRequest{Message: "Book Indie Night", WalletAddress: userWallet})

	out, err := h.orch.Resume(context.Background(), h.sess, &model.ResumeRequest{Proof: model.WalletProof{TxSignature: "4tx"}})
	require.NoError(t, err)
	assert.Equal(t, 1, h.minter.calls)
	assert.Len(t, out.Tickets, 1)
}

func TestMintFailureReportedVerbatim(t *testing.T) {
	h := newHarness(t)
	h.minter.err = errors.New("mint service: insufficient escrow balance")
	resp := h.turn(t, model.TurnRequest{Message: "Book Indie Night", WalletAddress: userWallet})

	out, err := h.orch.Resume(context.Background(), h.sess, &model.ResumeRequest{
		PendingBooking: resp.PendingBooking,
		Proof:          model.WalletProof{TxSignature: "4tx"},
	})
	require.NoError(t, err)
	assert.Contains(t, out.ResponseText, "insufficient escrow balance")
	assert.NotContains(t, out.ResponseText, "Booking confirmed")
	assert.Empty(t, out.Tickets)
	assert.False(t, out.BookingResult.Success)
	assert.Equal(t, string(session.StateIdle), out.State)
	assert.Nil(t, h.sess.LastResult)
}

func TestCalendarWriteFailureIsNonFatal(t *testing.T) {
	h, _ := conflictedHarness(t)
	h.calendar.err = errors.New("403 forbidden")
	resp := h.turn(t, model.TurnRequest{Message: "book anyway", CalendarToken: calToken, WalletAddress: userWallet})

	out, err := h.orch.Resume(context.Background(), h.sess, &model.ResumeRequest{
		PendingBooking: resp.PendingBooking,
		Proof:          model.WalletProof{TxSignature: "4tx"},
	})
	require.NoError(t, err)
	assert.Len(t, out.Tickets, 2)
	assert.True(t, out.BookingResult.Success)
	require.NotEmpty(t, out.Warnings)
	assert.Contains(t, out.Warnings[0], "couldn't add the event to your calendar")
}

func TestCalendarCheckFailureProceedsUnverified(t *testing.T) {
	h := newHarness(t)
	h.avail.err = errors.New("token expired")

	h.turn(t, model.TurnRequest{Message: scenarioA, CalendarToken: calToken, WalletAddress: userWallet,
		AttendeeEmails: []string{"aman@x.com"}})
	resp := h.turn(t, model.TurnRequest{Message: "book #1", CalendarToken: calToken, WalletAddress: userWallet})

	require.NotNil(t, resp.RequiredWalletAction)
	assert.False(t, resp.PendingBooking.Calendar.Checked)
	assert.Contains(t, resp.PendingBooking.Calendar.Note, "unverified")
	assert.NotEmpty(t, resp.Warnings)
}

func TestUndatedEventSkipsCalendarCheck(t *testing.T) {
	h := newHarness(t)
	h.disc.events = []model.Event{{ID: "tba", Name: "Mystery Gig", Venue: "Somewhere", Date: "TBA", Price: 10}}

	resp := h.turn(t, model.TurnRequest{Message: "Book Mystery Gig", CalendarToken: calToken, WalletAddress: userWallet,
		AttendeeEmails: []string{"aman@x.com"}})

	assert.Zero(t, h.avail.calls)
	require.NotNil(t, resp.RequiredWalletAction)
	assert.Contains(t, resp.PendingBooking.Calendar.Note, "date could not be read")
}

func TestNoCalendarWithEmailsWarns(t *testing.T) {
	h := newHarness(t)

	resp := h.turn(t, model.TurnRequest{Message: "Book Indie Night", WalletAddress: userWallet, AttendeeEmails: []string{"aman@x.com"}})

	require.NotNil(t, resp.RequiredWalletAction)
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[0], "No calendar is connected")
}

func TestDiscoveryFailureUsesFallback(t *testing.T) {
	h := newHarness(t)
	h.disc.err = errors.New("feed timeout")

	resp := h.turn(t, model.TurnRequest{Message: "show me events"})

	assert.Equal(t, model.ActionSearchEvents, resp.Action)
	require.NotEmpty(t, resp.MatchedEvents)
	assert.Equal(t, string(session.StateAwaitingConfirmation), resp.State)
}

func TestNoMatchesFallsBackToAllEvents(t *testing.T) {
	h := newHarness(t)
	all := testEvents()
	h.disc.events = []model.Event{all[0], all[1], all[4]}

	resp := h.turn(t, model.TurnRequest{Message: "find opera under $5"})

	require.NotEmpty(t, resp.MatchedEvents)
	for _, m := range resp.MatchedEvents {
		assert.Equal(t, 10, m.Score)
	}
}

func TestAmbiguousSelectionAsksAgain(t *testing.T) {
	h := newHarness(t)
	h.turn(t, model.TurnRequest{Message: scenarioA})

	resp := h.turn(t, model.TurnRequest{Message: "book #9"})

	assert.Contains(t, resp.ResponseText, "not sure which event")
	assert.Equal(t, string(session.StateAwaitingConfirmation), resp.State)
	assert.Zero(t, h.minter.calls)
}

func TestEmailSentFromClientEcho(t *testing.T) {
	h := newHarness(t)
	result := &model.BookingResult{Success: true, Event: testEvents()[0], Tickets: []model.TicketRecord{{AttendeeName: "Aman"}}}

	resp := h.turn(t, model.TurnRequest{Message: "aman@x.com", LastBookingResult: result})

	assert.Equal(t, model.ActionProvideEmail, resp.Action)
	assert.Equal(t, 1, h.mailer.calls)
	assert.Equal(t, []string{"aman@x.com"}, h.mailer.to)
	assert.Equal(t, string(session.StateIdle), resp.State)
	assert.Nil(t, h.sess.LastResult)
}

func TestEmailFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.mailer.err = errors.New("smtp: connection refused")
	h.sess.LastResult = &model.BookingResult{Success: true, Event: testEvents()[0]}
	h.sess.State = session.StateAwaitingEmail

	resp := h.turn(t, model.TurnRequest{Message: "aman@x.com"})

	assert.Contains(t, resp.ResponseText, "connection refused")
	assert.Equal(t, string(session.StateAwaitingEmail), resp.State)
	assert.NotNil(t, h.sess.LastResult)
}

func TestNewBookingPreservesEmailOffer(t *testing.T) {
	h := newHarness(t)
	h.sess.LastResult = &model.BookingResult{Success: true, Event: testEvents()[2]}
	h.sess.State = session.StateAwaitingEmail

	resp := h.turn(t, model.TurnRequest{Message: scenarioA})
	assert.Equal(t, model.ActionBookTicket, resp.Action)
	assert.NotNil(t, h.sess.LastResult)

	resp = h.turn(t, model.TurnRequest{Message: "please send the tickets to aman@x.com"})
	assert.Equal(t, model.ActionProvideEmail, resp.Action)
	assert.Equal(t, 1, h.mailer.calls)
}

func TestCancelReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.turn(t, model.TurnRequest{Message: scenarioA})

	resp := h.turn(t, model.TurnRequest{Message: "never mind"})

	assert.Equal(t, model.ActionCancel, resp.Action)
	assert.Equal(t, string(session.StateIdle), resp.State)
	assert.Empty(t, h.sess.Matches)
}

func TestCheckCalendarReport(t *testing.T) {
	h := newHarness(t)
	h.avail.busy["akash@y.com"] = true

	resp := h.turn(t, model.TurnRequest{Message: "is akash@y.com available this weekend?", CalendarToken: calToken})

	assert.Equal(t, model.ActionCheckCalendar, resp.Action)
	assert.Contains(t, resp.ResponseText, "akash@y.com: busy")
	assert.Equal(t, time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), h.avail.start)
}

func TestDiscoverMusicGroupsByGenre(t *testing.T) {
	h := newHarness(t)

	resp := h.turn(t, model.TurnRequest{Message: "recommend some artists"})

	assert.Equal(t, model.ActionDiscoverMusic, resp.Action)
	assert.Contains(t, resp.ResponseText, "- Jazz: Blue Note Jazz Night, Free Jazz in the Park")
	assert.NotContains(t, resp.ResponseText, "Last Month Jazz")
	assert.Equal(t, string(session.StateIdle), resp.State)
}

func TestFreeDays(t *testing.T) {
	start := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC).Add(24*time.Hour - time.Nanosecond)
	report := &model.ConflictReport{Attendees: []model.AttendeeAvailability{
		{Email: "a@x.com", Free: true},
		{Email: "b@x.com", Busy: []model.BusyInterval{{
			Start: time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 8, 20, 0, 0, 0, time.UTC),
		}}},
	}}

	slots := FreeDays(report, start, end)

	require.Len(t, slots, 2)
	assert.Equal(t, 7, slots[0].Start.Day())
	assert.Equal(t, 9, slots[1].Start.Day())
}

func TestDevnetAmount(t *testing.T) {
	assert.Equal(t, "0.003889", DevnetAmount(38.89).String())
	assert.Equal(t, uint64(3_889_000), Lamports(DevnetAmount(38.89)))
	assert.Equal(t, "0.0025", DevnetAmount(25).String())
	assert.Zero(t, Lamports(DevnetAmount(0)))
}

type fakeChat struct {
	err  error
	last *llm.CompletionRequest
}

func (f *fakeChat) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: "  Payment runs through your connected wallet on devnet.  "}, nil
}

func (f *fakeChat) Name() string     { return "fake" }
func (f *fakeChat) Models() []string { return []string{"fake-1"} }

func TestGeneralQuestionUsesChat(t *testing.T) {
	h := newHarness(t)
	chat := &fakeChat{}
	h.orch.deps.Chat = chat

	resp := h.turn(t, model.TurnRequest{
		Message: "how does payment work?",
		ConversationHistory: []model.HistoryMessage{
			{Role: model.RoleAssistant, Content: "Hi!"},
			{Role: model.RoleUser, Content: "hello"},
			{Role: model.RoleAssistant, Content: "How can I help?"},
		},
	})

	assert.Equal(t, model.ActionGeneralQuestion, resp.Action)
	assert.Equal(t, "Payment runs through your connected wallet on devnet.", resp.ResponseText)
	require.NotNil(t, chat.last)
	require.Len(t, chat.last.Messages, 3)
	assert.Equal(t, "user", chat.last.Messages[0].Role)
	assert.Equal(t, "how does payment work?", chat.last.Messages[2].Content)
}

func TestGeneralQuestionFallsBackToHelp(t *testing.T) {
	h := newHarness(t)
	resp := h.turn(t, model.TurnRequest{Message: "how does payment work?"})
	assert.Equal(t, helpText, resp.ResponseText)

	h.orch.deps.Chat = &fakeChat{err: errors.New("provider down")}
	resp = h.turn(t, model.TurnRequest{Message: "how does payment work?"})
	assert.Equal(t, helpText, resp.ResponseText)
	assert.Contains(t, resp.ActionLog, "chat unavailable: provider down")
}

func TestResumeRejectsReplayedProof(t *testing.T) {
	h := newHarness(t)
	resp := h.turn(t, model.TurnRequest{Message: "Book Indie Night", WalletAddress: userWallet})
	snapshot := *resp.PendingBooking
	ctx := context.Background()

	first := snapshot
	out, err := h.orch.Resume(ctx, h.sess, &model.ResumeRequest{PendingBooking: &first, Proof: model.WalletProof{TxSignature: "tx-abc"}})
	require.NoError(t, err)
	require.Len(t, out.Tickets, 1)

	again := snapshot
	_, err = h.orch.Resume(ctx, h.sess, &model.ResumeRequest{PendingBooking: &again, Proof: model.WalletProof{TxSignature: "tx-abc"}})
	assert.ErrorIs(t, err, ErrProofReused)
	assert.Equal(t, 1, h.minter.calls)
	assert.Equal(t, session.StateAwaitingEmail, h.sess.State)

	h.sess.ClearEmail()
	again = snapshot
	_, err = h.orch.Resume(ctx, h.sess, &model.ResumeRequest{PendingBooking: &again, Proof: model.WalletProof{TxSignature: "tx-abc"}})
	assert.ErrorIs(t, err, ErrProofReused, "spent proofs outlive the cached result")
	assert.Equal(t, 1, h.minter.calls)
}

func TestResumeRejectsSnapshotForOtherEvent(t *testing.T) {
	h := newHarness(t)
	resp := h.turn(t, model.TurnRequest{Message: "Book Indie Night", WalletAddress: userWallet})

	tampered := *resp.PendingBooking
	tampered.Event.Price = 0.01
	_, err := h.orch.Resume(context.Background(), h.sess, &model.ResumeRequest{PendingBooking: &tampered, Proof: model.WalletProof{TxSignature: "tx-abc"}})
	assert.ErrorIs(t, err, ErrSnapshotMismatch)

	tampered = *resp.PendingBooking
	tampered.Event.ID = "arena"
	_, err = h.orch.Resume(context.Background(), h.sess, &model.ResumeRequest{PendingBooking: &tampered, Proof: model.WalletProof{TxSignature: "tx-abc"}})
	assert.ErrorIs(t, err, ErrSnapshotMismatch)
	assert.Zero(t, h.minter.calls)
}

func TestNewSearchAbandonsBookingWaitingOnEmails(t *testing.T) {
	h := newHarness(t)
	h.turn(t, model.TurnRequest{Message: scenarioA, CalendarToken: calToken, WalletAddress: userWallet})
	resp := h.turn(t, model.TurnRequest{Message: "book #1", CalendarToken: calToken, WalletAddress: userWallet})
	require.True(t, resp.NeedsEmails)

	resp = h.turn(t, model.TurnRequest{Message: "actually show me folk events", CalendarToken: calToken, WalletAddress: userWallet})
	assert.Equal(t, model.ActionSearchEvents, resp.Action)
	assert.False(t, resp.NeedsEmails)
	assert.Nil(t, h.sess.Pending)

	resp = h.turn(t, model.TurnRequest{Message: "what's on at riverside? my friend is bob@x.com", CalendarToken: calToken, WalletAddress: userWallet})
	assert.NotEqual(t, model.ActionProvideEmail, resp.Action)
	assert.Nil(t, resp.RequiredWalletAction)
	assert.Zero(t, h.avail.calls)
	assert.Zero(t, h.minter.calls)
}

func TestDiscoverMusicCapitalizesMultibyteGenre(t *testing.T) {
	h := newHarness(t)
	h.disc.events = []model.Event{{ID: "e1", Name: "Nuit Électro", Date: "Mar 7", Price: 15, Genre: "électro"}}

	resp := h.turn(t, model.TurnRequest{Message: "recommend some artists"})
	assert.Contains(t, resp.ResponseText, "- Électro: Nuit Électro")
	assert.Equal(t, "", capitalize(""))
}
