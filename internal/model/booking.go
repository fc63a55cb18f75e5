package model

import (
	"errors"
	"time"
)

// ErrTicketNotActive is returned when a status transition requires an Active ticket.
var ErrTicketNotActive = errors.New("ticket is not in active status")

// BusyInterval is a period an attendee is unavailable.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AttendeeAvailability is one attendee's row of a ConflictReport.
type AttendeeAvailability struct {
	Email string         `json:"email"`
	Busy  []BusyInterval `json:"busy"`
	Free  bool           `json:"free"`
	Error string         `json:"error,omitempty"`
}

// ConflictReport aggregates availability across attendees.
type ConflictReport struct {
	Attendees []AttendeeAvailability `json:"attendees"`
	AllFree   bool                   `json:"all_free"`
}

// BusyEmails returns the attendees that block the gate.
func (r *ConflictReport) BusyEmails() []string {
	var out []string
	for _, a := range r.Attendees {
		if !a.Free {
			out = append(out, a.Email)
		}
	}
	return out
}

// CalendarContext is the calendar state carried across the wallet round trip.
type CalendarContext struct {
	Token   string   `json:"token,omitempty"`
	Emails  []string `json:"emails,omitempty"`
	Checked bool     `json:"checked"`
	Note    string   `json:"note,omitempty"`
}

// PendingBooking is the snapshot echoed by the client while a wallet action is outstanding.
type PendingBooking struct {
	Event               Event           `json:"event"`
	Attendees           []Attendee      `json:"attendees"`
	WalletAddress       string          `json:"wallet_address,omitempty"`
	Calendar            CalendarContext `json:"calendar"`
	AmountSOL           string          `json:"amount_sol,omitempty"`
	ConfirmationMessage string          `json:"confirmation_message,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	ExpiresAt           time.Time       `json:"expires_at"`
}

// Expired reports whether the snapshot is past its expiry.
func (p *PendingBooking) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// TicketStatus is the lifecycle status of a minted ticket.
type TicketStatus string

const (
	TicketActive    TicketStatus = "Active"
	TicketRedeemed  TicketStatus = "Redeemed"
	TicketCancelled TicketStatus = "Cancelled"
)

// TicketRecord is one minted ticket.
type TicketRecord struct {
	AttendeeName    string       `json:"attendee_name"`
	AssetID         string       `json:"asset_id"`
	MintTransaction string       `json:"mint_transaction"`
	EventName       string       `json:"event_name"`
	EventDate       string       `json:"event_date"`
	Venue           string       `json:"venue"`
	PricePaid       float64      `json:"price_paid"`
	Status          TicketStatus `json:"status"`
	VerificationURL string       `json:"verification_url"`
}

// Redeem marks an active ticket as used at the venue.
func (t *TicketRecord) Redeem() error {
	if t.Status != TicketActive {
		return ErrTicketNotActive
	}
	t.Status = TicketRedeemed
	return nil
}

// Cancel voids an active ticket.
func (t *TicketRecord) Cancel() error {
	if t.Status != TicketActive {
		return ErrTicketNotActive
	}
	t.Status = TicketCancelled
	return nil
}

// BookingResult is the outcome of a mint attempt.
type BookingResult struct {
	Success     bool           `json:"success"`
	Event       Event          `json:"event"`
	Tickets     []TicketRecord `json:"tickets"`
	TotalPaid   float64        `json:"total_paid"`
	PaymentTxID string         `json:"payment_tx_id,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// WalletActionType is the kind of client-side wallet step requested.
type WalletActionType string

const (
	WalletSignMessage WalletActionType = "sign_message"
	WalletTransfer    WalletActionType = "transfer"
)

// WalletAction asks the client to perform a human-gated wallet step.
type WalletAction struct {
	Type        WalletActionType `json:"type"`
	Message     string           `json:"message,omitempty"`
	AmountSOL   string           `json:"amount_sol,omitempty"`
	Lamports    uint64           `json:"lamports,omitempty"`
	Recipient   string           `json:"recipient,omitempty"`
	Description string           `json:"description"`
}

// WalletProof is what the client returns once the wallet step resolves.
type WalletProof struct {
	Signature   string `json:"signature,omitempty"`
	TxSignature string `json:"tx_signature,omitempty"`
	Rejected    bool   `json:"rejected,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// TicketMetadata is what the mint collaborator needs for one ticket.
type TicketMetadata struct {
	AttendeeName string  `json:"attendee_name"`
	EventID      string  `json:"event_id"`
	EventName    string  `json:"event_name"`
	EventDate    string  `json:"event_date"`
	Venue        string  `json:"venue"`
	PricePaid    float64 `json:"price_paid"`
	Lamports     uint64  `json:"lamports"`
	PaymentTx    string  `json:"payment_tx,omitempty"`
}

// CalendarEvent is a block to create on the organizer's calendar.
type CalendarEvent struct {
	Summary     string    `json:"summary"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Attendees   []string  `json:"attendees"`
}

// CalendarEventRef identifies a created calendar event.
type CalendarEventRef struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}
