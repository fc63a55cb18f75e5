// Package model defines data structures for the booking orchestrator.
package model

import (
	"time"
)

// Event is a discovered listing. Date and Time are kept as the source
// rendered them ("Feb 28", "11:00 PM") and parsed on demand.
type Event struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Venue  string  `json:"venue"`
	Date   string  `json:"date"`
	Time   string  `json:"time,omitempty"`
	Price  float64 `json:"price"`
	IsFree bool    `json:"is_free"`
	Genre  string  `json:"genre,omitempty"`
	URL    string  `json:"url,omitempty"`
}

// TimeSlot is a known-free interval on an attendee calendar.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EventMatch is an Event scored against a UserIntent.
type EventMatch struct {
	Event         Event     `json:"event"`
	Score         int       `json:"score"`
	Reasons       []string  `json:"reasons"`
	CalendarMatch bool      `json:"calendar_match"`
	MatchingSlot  *TimeSlot `json:"matching_slot,omitempty"`
}

// JournalEventType is the type of a booking journal entry.
type JournalEventType string

const (
	JournalTurn                  JournalEventType = "turn"
	JournalWalletActionRequested JournalEventType = "wallet_action_requested"
	JournalBookingConfirmed      JournalEventType = "booking_confirmed"
	JournalBookingFailed         JournalEventType = "booking_failed"
)

// JournalEvent is an entry in the booking journal.
type JournalEvent struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	UserID    string           `json:"user_id,omitempty"`
	Type      JournalEventType `json:"type"`
	Action    ActionTag        `json:"action,omitempty"`
	State     string           `json:"state,omitempty"`
	EventID   string           `json:"event_id,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Sequence  uint64           `json:"sequence,omitempty"`
}
