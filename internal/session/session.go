// Package session holds the per-conversation state of the booking
// orchestrator and the stores that persist it between turns.
package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/tixagent/internal/intent"
	"github.com/capitalize-ai/tixagent/internal/model"
)

// State is the single active awaiting-state of a conversation.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAwaitingBookAnyway   State = "awaiting_book_anyway"
	StateAwaitingWalletAction State = "awaiting_wallet_action"
	StateAwaitingEmail        State = "awaiting_email"
)

// Session is the serializable state of one conversation. Nothing in it
// relies on process lifetime; a client echo of Pending or LastResult
// overrides whatever was stored.
type Session struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`

	State       State `json:"state"`
	NeedsEmails bool  `json:"needs_emails"`

	Matches        []model.EventMatch    `json:"matches,omitempty"`
	Intent         *model.UserIntent     `json:"intent,omitempty"`
	AttendeeEmails []string              `json:"attendee_emails,omitempty"`
	Pending        *model.PendingBooking `json:"pending,omitempty"`
	LastResult     *model.BookingResult  `json:"last_result,omitempty"`

	// Progress of the current booking attempt.
	CalendarChecked  bool `json:"calendar_checked"`
	PaymentConfirmed bool `json:"payment_confirmed"`
	BookingExecuted  bool `json:"booking_executed"`

	// UsedProofs are wallet signatures already spent on a mint, newest last.
	UsedProofs []string `json:"used_proofs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an idle session. An empty id is replaced with a fresh one.
func New(id, tenantID, userID string, now time.Time) *Session {
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	return &Session{
		ID:        id,
		TenantID:  tenantID,
		UserID:    userID,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Flags projects the awaiting-state onto the classifier's view.
func (s *Session) Flags() intent.Flags {
	return intent.Flags{
		AwaitingConfirmation: s.State == StateAwaitingConfirmation,
		AwaitingEmail:        s.State == StateAwaitingEmail,
		AwaitingConflict:     s.State == StateAwaitingBookAnyway,
	}
}

// AddEmails unions emails into the running attendee set.
func (s *Session) AddEmails(emails ...string) {
	s.AttendeeEmails = model.UnionEmails(s.AttendeeEmails, emails...)
}

// maxUsedProofs bounds UsedProofs.
const maxUsedProofs = 16

// ProofUsed reports whether a wallet signature already completed a booking
// in this session.
func (s *Session) ProofUsed(proof string) bool {
	if proof == "" {
		return false
	}
	if s.LastResult != nil && s.LastResult.PaymentTxID == proof {
		return true
	}
	return slices.Contains(s.UsedProofs, proof)
}

// UseProof records a wallet signature as spent.
func (s *Session) UseProof(proof string) {
	if proof == "" || slices.Contains(s.UsedProofs, proof) {
		return
	}
	s.UsedProofs = append(s.UsedProofs, proof)
	if n := len(s.UsedProofs); n > maxUsedProofs {
		s.UsedProofs = append([]string(nil), s.UsedProofs[n-maxUsedProofs:]...)
	}
}

// AbandonPending drops a booking attempt that is waiting on input, so a
// later message cannot resume it.
func (s *Session) AbandonPending() {
	s.Pending = nil
	s.NeedsEmails = false
}

// ResetProgress starts a new booking attempt. A pending email offer
// survives: LastResult is kept so a later provide_email can still send it.
func (s *Session) ResetProgress() {
	s.CalendarChecked = false
	s.PaymentConfirmed = false
	s.BookingExecuted = false
	s.NeedsEmails = false
	s.Pending = nil
	s.Matches = nil
	s.Intent = nil
	s.State = StateIdle
}

// ClearEmail drops the awaiting-email state and the cached result.
func (s *Session) ClearEmail() {
	s.LastResult = nil
	if s.State == StateAwaitingEmail {
		s.State = StateIdle
	}
}

// ClearConflict drops a surfaced calendar conflict.
func (s *Session) ClearConflict() {
	s.Pending = nil
	if s.State == StateAwaitingBookAnyway {
		s.State = StateIdle
	}
}

// Reset returns the session to idle, keeping identity and known emails.
func (s *Session) Reset() {
	s.ResetProgress()
	s.LastResult = nil
}

// Clone returns a deep copy.
func (s *Session) Clone() (*Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &out, nil
}
