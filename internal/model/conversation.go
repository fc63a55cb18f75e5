package model

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// HistoryMessage is one prior message of the conversation as the client saw it.
type HistoryMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	Message             string           `json:"message"`
	ConversationHistory []HistoryMessage `json:"conversation_history,omitempty"`
	WalletAddress       string           `json:"wallet_address,omitempty"`
	LastBookingResult   *BookingResult   `json:"last_booking_result,omitempty"`
	CalendarToken       string           `json:"calendar_token,omitempty"`
	AttendeeEmails      []string         `json:"attendee_emails,omitempty"`
}

// ResumeRequest completes a booking after the client's wallet action resolved.
type ResumeRequest struct {
	PendingBooking *PendingBooking `json:"pending_booking"`
	Proof          WalletProof     `json:"proof"`
	WalletAddress  string          `json:"wallet_address,omitempty"`
	CalendarToken  string          `json:"calendar_token,omitempty"`
}

// TurnResponse is the outbound result of a turn or resume.
type TurnResponse struct {
	ResponseText         string          `json:"response_text"`
	ActionLog            []string        `json:"action_log"`
	Action               ActionTag       `json:"action,omitempty"`
	State                string          `json:"state"`
	Tickets              []TicketRecord  `json:"tickets,omitempty"`
	MatchedEvents        []EventMatch    `json:"matched_events,omitempty"`
	RequiredWalletAction *WalletAction   `json:"required_wallet_action,omitempty"`
	PendingBooking       *PendingBooking `json:"pending_booking,omitempty"`
	BookingResult        *BookingResult  `json:"booking_result,omitempty"`
	NeedsEmails          bool            `json:"needs_emails,omitempty"`
	Warnings             []string        `json:"warnings,omitempty"`
}

// Log appends a step to the action log.
func (r *TurnResponse) Log(step string) {
	r.ActionLog = append(r.ActionLog, step)
}

// Warn records a secondary, non-fatal problem.
func (r *TurnResponse) Warn(w string) {
	r.Warnings = append(r.Warnings, w)
}
