package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/pkg/logger"
)

func result() *model.BookingResult {
	return &model.BookingResult{
		Success: true,
		Event:   model.Event{ID: "bluenote", Name: "Blue Note Jazz", Venue: "Blue Note", Date: "Mar 7", Time: "8:00 PM", Price: 25},
		Tickets: []model.TicketRecord{
			{AttendeeName: "Aman", AssetID: "AssetA", VerificationURL: "https://explorer.solana.com/address/AssetA?cluster=devnet"},
			{AttendeeName: "Akash", AssetID: "AssetB", VerificationURL: "https://explorer.solana.com/address/AssetB?cluster=devnet"},
		},
		TotalPaid:   50,
		PaymentTxID: "tx123",
	}
}

func TestBody(t *testing.T) {
	body := Body(result())
	assert.Contains(t, body, "Blue Note Jazz is confirmed")
	assert.Contains(t, body, "Date: Mar 7 at 8:00 PM")
	assert.Contains(t, body, "Total paid: $50.00")
	assert.Contains(t, body, "Payment transaction: tx123")
	assert.Contains(t, body, "- Aman\n  Asset: AssetA")
	assert.Contains(t, body, "AssetB?cluster=devnet")
}

func TestBodyFreeEvent(t *testing.T) {
	r := result()
	r.Event.IsFree = true
	r.PaymentTxID = ""
	body := Body(r)
	assert.Contains(t, body, "Price: Free")
	assert.NotContains(t, body, "Payment transaction")
}

func TestCompose(t *testing.T) {
	m := New(Config{Host: "smtp.example.com", From: "tickets@example.com"}, logger.NewNop())
	buf, err := m.compose([]string{"aman@x.com"}, result()).MimeBuf()
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "Subject: Your tickets for Blue Note Jazz")
	assert.Contains(t, raw, "aman@x.com")
	assert.Contains(t, raw, "tickets@example.com")
}

func TestSendBookingValidation(t *testing.T) {
	m := New(Config{Host: "smtp.example.com"}, logger.NewNop())
	assert.ErrorIs(t, m.SendBooking(context.Background(), nil, result()), ErrNoRecipients)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.SendBooking(ctx, []string{"a@x.com"}, result()), context.Canceled)
}
