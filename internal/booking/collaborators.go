package booking

import (
	"context"
	"time"

	"github.com/capitalize-ai/tixagent/internal/model"
)

// Discoverer lists currently on-sale events.
type Discoverer interface {
	Discover(ctx context.Context) ([]model.Event, error)
}

// AvailabilityChecker reports attendee availability over [start, end].
// Attendees whose calendar cannot be read are reported free with Error set.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, token string, emails []string, start, end time.Time) (*model.ConflictReport, error)
}

// CalendarWriter creates calendar events on the organizer's calendar.
type CalendarWriter interface {
	CreateEvent(ctx context.Context, token string, ev model.CalendarEvent) (*model.CalendarEventRef, error)
}

// Minter mints one ticket per metadata entry to owner.
type Minter interface {
	Mint(ctx context.Context, owner string, tickets []model.TicketMetadata) ([]model.TicketRecord, error)
}

// Mailer delivers booking confirmations.
type Mailer interface {
	SendBooking(ctx context.Context, to []string, result *model.BookingResult) error
}
