// Package booking implements the conversational booking pipeline: intent
// dispatch, ranked presentation, the calendar and payment gates, minting
// and the post-booking email offer.
//
// The orchestrator never returns an error for conversational conditions.
// Blocked gates, degraded collaborators and failed mints become response
// text; errors are reserved for invalid resume payloads.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tixagent/internal/intent"
	"github.com/capitalize-ai/tixagent/internal/llm"
	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/internal/session"
	"github.com/capitalize-ai/tixagent/pkg/logger"
	"github.com/capitalize-ai/tixagent/pkg/metrics"
	"github.com/capitalize-ai/tixagent/pkg/tracing"
)

var (
	// ErrNoPendingBooking is returned by Resume when neither the request
	// nor the session carries a pending booking.
	ErrNoPendingBooking = errors.New("no pending booking to resume")

	// ErrMissingProof is returned by Resume when the wallet proof does not
	// fit the pending booking.
	ErrMissingProof = errors.New("wallet proof missing for pending booking")

	// ErrPendingExpired marks a pending booking echoed after its expiry.
	ErrPendingExpired = errors.New("pending booking expired")

	// ErrProofReused is returned by Resume when the wallet proof already
	// completed a booking.
	ErrProofReused = errors.New("wallet proof already used")

	// ErrSnapshotMismatch is returned by Resume when the echoed snapshot
	// names a different event than the one the session is waiting on.
	ErrSnapshotMismatch = errors.New("pending booking does not match session")
)

// DefaultPendingTTL bounds how long a wallet action may stay outstanding.
const DefaultPendingTTL = 15 * time.Minute

var tracer = tracing.Tracer("github.com/capitalize-ai/tixagent/internal/booking")

// Config holds orchestrator settings.
type Config struct {
	// VenueWallet receives devnet transfers for paid events.
	VenueWallet string
	// CustodyWallet owns tickets minted server-side for free events booked
	// without a connected wallet.
	CustodyWallet string
	PendingTTL    time.Duration
	ChatModel     string
}

// Dependencies are the collaborators the pipeline drives. Any of the
// calendar, minter, mailer and chat collaborators may be nil.
type Dependencies struct {
	Classifier     *intent.Classifier
	Extractor      *intent.Extractor
	Discoverer     Discoverer
	Fallback       func(now time.Time) []model.Event
	Availability   AvailabilityChecker
	CalendarWriter CalendarWriter
	Minter         Minter
	Mailer         Mailer
	Chat           llm.Client
	Now            func() time.Time
}

// Orchestrator runs booking conversations.
type Orchestrator struct {
	cfg  Config
	deps Dependencies
	now  func() time.Time
	log  *logger.Logger
}

// New creates an orchestrator.
func New(cfg Config, deps Dependencies, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Global()
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if deps.Classifier == nil {
		deps.Classifier = intent.NewClassifier(nil, log)
	}
	if deps.Extractor == nil {
		deps.Extractor = intent.NewExtractor(nil, "", log)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		now:  now,
		log:  log,
	}
}

// HandleTurn processes one user message against sess, mutating it in place.
func (o *Orchestrator) HandleTurn(ctx context.Context, sess *session.Session, req *model.TurnRequest) (*model.TurnResponse, error) {
	resp := &model.TurnResponse{ActionLog: []string{}}
	log := o.log.With(zap.String("session_id", sess.ID))

	o.restoreEcho(sess, req, resp)
	sess.AddEmails(req.AttendeeEmails...)

	if sess.NeedsEmails && sess.Pending != nil {
		if emails := intent.ExtractEmails(req.Message); len(emails) > 0 {
			resp.Action = model.ActionProvideEmail
			o.resumeWithEmails(ctx, sess, req, emails, resp)
			return o.finish(sess, resp), nil
		}
	}

	conflicted := ""
	if sess.State == session.StateAwaitingBookAnyway && sess.Pending != nil {
		conflicted = sess.Pending.Event.ID
	}

	d := o.deps.Classifier.Classify(ctx, req.Message, sess.Flags())
	resp.Action = d.Tag
	metrics.TurnsTotal.WithLabelValues(string(d.Tag)).Inc()
	if d.Rule != "" {
		resp.Log("classified " + string(d.Tag) + " by rule " + d.Rule)
	} else {
		resp.Log("classified " + string(d.Tag))
	}
	log.Debug("turn classified", zap.String("action", string(d.Tag)), zap.String("rule", d.Rule))

	if d.ClearEmail {
		sess.ClearEmail()
		resp.Log("email offer dismissed")
	}
	if d.ClearConflict {
		sess.ClearConflict()
		resp.Log("calendar conflict dismissed")
	}

	switch d.Tag {
	case model.ActionGreeting:
		resp.ResponseText = greetingText
	case model.ActionBookTicket:
		sess.ResetProgress()
		o.search(ctx, sess, req, true, resp)
	case model.ActionSearchEvents:
		if d.ClearConflict && len(sess.Matches) > 0 {
			o.presentAlternatives(sess, conflicted, resp)
		} else {
			o.search(ctx, sess, req, false, resp)
		}
	case model.ActionConfirmBooking:
		o.confirm(ctx, sess, req, resp)
	case model.ActionBookAnyway:
		o.bookAnyway(ctx, sess, req, resp)
	case model.ActionProvideEmail:
		o.sendEmail(ctx, sess, req, resp)
	case model.ActionCheckCalendar:
		o.checkCalendar(ctx, sess, req, resp)
	case model.ActionDiscoverMusic:
		o.discoverMusic(ctx, resp)
	case model.ActionCancel:
		sess.ResetProgress()
		resp.Log("booking cancelled")
		resp.ResponseText = "Okay, I've cancelled that. Tell me what kind of event you're looking for whenever you're ready."
	default:
		if d.ClearEmail {
			resp.ResponseText = "No problem, I won't email the tickets. Anything else I can help with?"
		} else {
			o.answer(ctx, req, resp)
		}
	}

	return o.finish(sess, resp), nil
}

// restoreEcho treats a client-echoed booking result as authoritative.
func (o *Orchestrator) restoreEcho(sess *session.Session, req *model.TurnRequest, resp *model.TurnResponse) {
	echo := req.LastBookingResult
	if echo == nil || !echo.Success {
		return
	}
	sess.LastResult = echo
	if sess.State == session.StateIdle {
		sess.State = session.StateAwaitingEmail
	}
	resp.Log("restored booking result from client")
}

func (o *Orchestrator) finish(sess *session.Session, resp *model.TurnResponse) *model.TurnResponse {
	sess.UpdatedAt = o.now()
	resp.State = string(sess.State)
	resp.NeedsEmails = sess.NeedsEmails
	if resp.BookingResult == nil && sess.LastResult != nil {
		resp.BookingResult = sess.LastResult
	}
	return resp
}

// call runs one collaborator request inside a span and records its outcome.
func (o *Orchestrator) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "collaborator."+name)
	defer span.End()
	span.SetAttributes(attribute.String("collaborator", name))

	start := time.Now()
	err := fn(ctx)
	metrics.RecordCollaborator(name, err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *Orchestrator) degrade(name string, err error, resp *model.TurnResponse) {
	metrics.CollaboratorFallbacks.WithLabelValues(name).Inc()
	o.log.Warn("collaborator failed, continuing degraded",
		zap.String("collaborator", name),
		zap.Error(err),
	)
	resp.Log(fmt.Sprintf("%s unavailable: %v", name, err))
}

const greetingText = "Hi! I can find concerts and events, check your group's calendars and book tickets. " +
	"Try something like \"Book 2 tickets for Aman and Akash, under $50, this weekend, jazz\"."
