package middleware

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"unicode/utf8"

	"github.com/capitalize-ai/tixagent/internal/model"
)

const (
	maxMessageLength = 4000
	maxEmails        = 20
	maxHistory       = 50
)

var (
	sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)
	clientIDRe  = regexp.MustCompile(`^[A-Za-z0-9_.-]{8,128}$`)
	// Solana addresses are base58 public keys of 32 bytes.
	walletRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// ValidateSessionID validates a session ID. Clients may mint their own ids,
// so any url-safe token is accepted, not only UUIDs.
func ValidateSessionID(id string) error {
	if !sessionIDRe.MatchString(id) {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateClientID validates an anonymous client identifier.
func ValidateClientID(id string) error {
	if id == "" {
		return errors.New("missing X-Client-ID header")
	}
	if !clientIDRe.MatchString(id) {
		return errors.New("invalid client ID format")
	}
	return nil
}

// ValidateMessageContent validates a user message.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("message cannot be empty")
	}
	if len(content) > maxMessageLength {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateWalletAddress accepts an empty address or a base58 public key.
func ValidateWalletAddress(addr string) error {
	if addr == "" || walletRe.MatchString(addr) {
		return nil
	}
	return errors.New("invalid wallet address")
}

// ValidateEmails checks each address parses as a bare mailbox.
func ValidateEmails(emails []string) error {
	if len(emails) > maxEmails {
		return errors.New("too many attendee emails")
	}
	for _, e := range emails {
		a, err := mail.ParseAddress(e)
		if err != nil || a.Address != e {
			return fmt.Errorf("invalid email address %q", e)
		}
	}
	return nil
}

// ValidateTurnRequest validates an inbound turn.
func ValidateTurnRequest(req *model.TurnRequest) error {
	if err := ValidateMessageContent(req.Message); err != nil {
		return err
	}
	if err := ValidateWalletAddress(req.WalletAddress); err != nil {
		return err
	}
	if len(req.ConversationHistory) > maxHistory {
		return errors.New("conversation history too long")
	}
	return ValidateEmails(req.AttendeeEmails)
}

// ValidateResumeRequest validates a wallet-action completion. Whether the
// proof fits the pending booking is decided by the orchestrator.
func ValidateResumeRequest(req *model.ResumeRequest) error {
	if err := ValidateWalletAddress(req.WalletAddress); err != nil {
		return err
	}
	if p := req.PendingBooking; p != nil {
		if p.Event.ID == "" && p.Event.Name == "" {
			return errors.New("pending booking has no event")
		}
		if len(p.Attendees) == 0 {
			return errors.New("pending booking has no attendees")
		}
		if err := ValidateWalletAddress(p.WalletAddress); err != nil {
			return err
		}
	}
	return nil
}
