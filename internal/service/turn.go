// Package service runs booking turns against persisted sessions.
package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tixagent/internal/booking"
	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/internal/session"
	"github.com/capitalize-ai/tixagent/pkg/logger"
	"github.com/capitalize-ai/tixagent/pkg/metrics"
	"github.com/capitalize-ai/tixagent/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/capitalize-ai/tixagent/internal/service")

// Journal records booking events. Publishing is best-effort.
type Journal interface {
	PublishEvent(ctx context.Context, event *model.JournalEvent) (uint64, error)
}

// ErrJournalUnavailable is returned by History when no readable journal is configured.
var ErrJournalUnavailable = errors.New("booking journal unavailable")

type historyReader interface {
	History(ctx context.Context, sessionID string, limit int) ([]model.JournalEvent, error)
}

// Orchestrator is the booking pipeline a TurnService drives.
type Orchestrator interface {
	HandleTurn(ctx context.Context, sess *session.Session, req *model.TurnRequest) (*model.TurnResponse, error)
	Resume(ctx context.Context, sess *session.Session, req *model.ResumeRequest) (*model.TurnResponse, error)
}

const lockStripes = 64

// TurnService loads a session, runs one orchestrator step on it, persists
// the result and journals the outcome. Turns on the same session are
// serialized.
type TurnService struct {
	store   session.Store
	orch    Orchestrator
	journal Journal
	logger  *logger.Logger
	now     func() time.Time

	locks [lockStripes]sync.Mutex
}

// NewTurnService creates a turn service. journal may be nil.
func NewTurnService(store session.Store, orch Orchestrator, journal Journal, log *logger.Logger) *TurnService {
	return &TurnService{
		store:   store,
		orch:    orch,
		journal: journal,
		logger:  log,
		now:     time.Now,
	}
}

func (s *TurnService) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &s.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// Create starts a new idle session.
func (s *TurnService) Create(ctx context.Context, tenantID, userID string) (*session.Session, error) {
	sess := session.New("", tenantID, userID, s.now())
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("tenant_id", tenantID),
	)
	return sess, nil
}

// Get returns a stored session owned by the caller.
func (s *TurnService) Get(ctx context.Context, tenantID, userID, id string) (*session.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(sess, tenantID, userID) {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

// owns reports whether the caller may act on sess. Another owner's session
// is indistinguishable from a missing one.
func owns(sess *session.Session, tenantID, userID string) bool {
	return sess.TenantID == tenantID && sess.UserID == userID
}

// Reset abandons any booking in progress and returns the session to idle.
func (s *TurnService) Reset(ctx context.Context, tenantID, userID, id string) (*session.Session, error) {
	defer s.lock(id)()

	sess, err := s.Get(ctx, tenantID, userID, id)
	if err != nil {
		return nil, err
	}
	sess.Reset()
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.publish(ctx, &model.JournalEvent{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Type:      model.JournalTurn,
		Action:    model.ActionCancel,
		State:     string(sess.State),
	})
	return sess, nil
}

// History returns the journaled events of a live session owned by the caller.
func (s *TurnService) History(ctx context.Context, tenantID, userID, id string, limit int) ([]model.JournalEvent, error) {
	reader, ok := s.journal.(historyReader)
	if !ok {
		return nil, ErrJournalUnavailable
	}
	if _, err := s.Get(ctx, tenantID, userID, id); err != nil {
		return nil, err
	}
	return reader.History(ctx, id, limit)
}

// Turn processes one user message.
func (s *TurnService) Turn(ctx context.Context, tenantID, userID, id string, req *model.TurnRequest) (*model.TurnResponse, error) {
	return s.run(ctx, "turn.handle", tenantID, userID, id, func(ctx context.Context, sess *session.Session) (*model.TurnResponse, error) {
		return s.orch.HandleTurn(ctx, sess, req)
	})
}

// Resume completes a booking after the client's wallet action.
func (s *TurnService) Resume(ctx context.Context, tenantID, userID, id string, req *model.ResumeRequest) (*model.TurnResponse, error) {
	return s.run(ctx, "turn.resume", tenantID, userID, id, func(ctx context.Context, sess *session.Session) (*model.TurnResponse, error) {
		return s.orch.Resume(ctx, sess, req)
	})
}

func (s *TurnService) run(
	ctx context.Context,
	spanName, tenantID, userID, id string,
	step func(ctx context.Context, sess *session.Session) (*model.TurnResponse, error),
) (*model.TurnResponse, error) {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("session_id", id))

	defer s.lock(id)()

	sess, err := s.load(ctx, tenantID, userID, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp, err := step(ctx, sess)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("action", string(resp.Action)),
		attribute.String("state", resp.State),
	)

	if err := s.store.Save(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.journalTurn(ctx, sess, resp)
	return resp, nil
}

// load fetches the session, starting a fresh one when the store has lost it.
func (s *TurnService) load(ctx context.Context, tenantID, userID, id string) (*session.Session, error) {
	sess, err := s.store.Get(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		s.logger.Debug("session not found, starting fresh", zap.String("session_id", id))
		return session.New(id, tenantID, userID, s.now()), nil
	case err != nil:
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !owns(sess, tenantID, userID) {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (s *TurnService) journalTurn(ctx context.Context, sess *session.Session, resp *model.TurnResponse) {
	base := model.JournalEvent{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Action:    resp.Action,
		State:     resp.State,
	}

	turn := base
	turn.Type = model.JournalTurn
	s.publish(ctx, &turn)

	if resp.RequiredWalletAction != nil {
		ev := base
		ev.Type = model.JournalWalletActionRequested
		ev.Metadata = map[string]any{"wallet_action": string(resp.RequiredWalletAction.Type)}
		if resp.PendingBooking != nil {
			ev.EventID = resp.PendingBooking.Event.ID
		}
		s.publish(ctx, &ev)
	}

	if r := resp.BookingResult; r != nil && len(resp.Tickets) > 0 && r.Success {
		ev := base
		ev.Type = model.JournalBookingConfirmed
		ev.EventID = r.Event.ID
		ev.Metadata = map[string]any{"tickets": len(resp.Tickets), "total_paid": r.TotalPaid}
		s.publish(ctx, &ev)
	}

	if r := resp.BookingResult; r != nil && !r.Success {
		ev := base
		ev.Type = model.JournalBookingFailed
		ev.EventID = r.Event.ID
		ev.Reason = r.Error
		s.publish(ctx, &ev)
	}
}

func (s *TurnService) publish(ctx context.Context, ev *model.JournalEvent) {
	if s.journal == nil {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
	if _, err := s.journal.PublishEvent(ctx, ev); err != nil {
		metrics.JournalPublishFailures.Inc()
		s.logger.Warn("failed to publish journal event",
			zap.String("session_id", ev.SessionID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

var _ Orchestrator = (*booking.Orchestrator)(nil)
