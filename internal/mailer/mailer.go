// Package mailer delivers booking confirmations over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/domodwyer/mailyak/v3"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/pkg/logger"
)

// ErrNoRecipients is returned when SendBooking has nobody to send to.
var ErrNoRecipients = errors.New("no email recipients")

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Mailer sends ticket details by email.
type Mailer struct {
	cfg    Config
	logger *logger.Logger
}

// New creates a mailer.
func New(cfg Config, log *logger.Logger) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.FromName == "" {
		cfg.FromName = "Tix Agent"
	}
	return &Mailer{cfg: cfg, logger: log}
}

func (m *Mailer) compose(to []string, result *model.BookingResult) *mailyak.MailYak {
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	mail := mailyak.New(fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port), auth)
	mail.To(to...)
	mail.From(m.cfg.From)
	mail.FromName(m.cfg.FromName)
	mail.Subject(Subject(result))
	mail.Plain().Set(Body(result))
	return mail
}

// SendBooking emails the ticket details of a successful booking.
func (m *Mailer) SendBooking(ctx context.Context, to []string, result *model.BookingResult) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.compose(to, result).Send(); err != nil {
		return fmt.Errorf("failed to send booking email: %w", err)
	}
	m.logger.Info("booking email sent",
		zap.Strings("to", to),
		zap.String("event", result.Event.Name),
	)
	return nil
}

// Subject is the email subject line for a booking.
func Subject(result *model.BookingResult) string {
	return "Your tickets for " + result.Event.Name
}

// Body renders the plain-text email for a booking.
func Body(result *model.BookingResult) string {
	ev := result.Event
	var b strings.Builder
	fmt.Fprintf(&b, "Your booking for %s is confirmed.\n\n", ev.Name)
	fmt.Fprintf(&b, "Venue: %s\n", ev.Venue)
	when := ev.Date
	if ev.Time != "" {
		when += " at " + ev.Time
	}
	fmt.Fprintf(&b, "Date: %s\n", when)
	if ev.IsFree {
		b.WriteString("Price: Free\n")
	} else {
		fmt.Fprintf(&b, "Total paid: $%.2f\n", result.TotalPaid)
	}
	if result.PaymentTxID != "" {
		fmt.Fprintf(&b, "Payment transaction: %s\n", result.PaymentTxID)
	}

	b.WriteString("\nTickets:\n")
	for _, t := range result.Tickets {
		fmt.Fprintf(&b, "- %s\n  Asset: %s\n  Verify: %s\n", t.AttendeeName, t.AssetID, t.VerificationURL)
	}
	b.WriteString("\nShow the verification link at the door. Enjoy the show!\n")
	return b.String()
}
