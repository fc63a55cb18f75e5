package model

// ActionTag is the closed set of actions a user message can be classified as.
type ActionTag string

const (
	ActionGreeting        ActionTag = "greeting"
	ActionSearchEvents    ActionTag = "search_events"
	ActionBookTicket      ActionTag = "book_ticket"
	ActionConfirmBooking  ActionTag = "confirm_booking"
	ActionProvideEmail    ActionTag = "provide_email"
	ActionCheckCalendar   ActionTag = "check_calendar"
	ActionDiscoverMusic   ActionTag = "discover_music"
	ActionCancel          ActionTag = "cancel"
	ActionBookAnyway      ActionTag = "book_anyway"
	ActionGeneralQuestion ActionTag = "general_question"
)

// ActionTags lists every valid tag in a stable order.
var ActionTags = []ActionTag{
	ActionGreeting,
	ActionSearchEvents,
	ActionBookTicket,
	ActionConfirmBooking,
	ActionProvideEmail,
	ActionCheckCalendar,
	ActionDiscoverMusic,
	ActionCancel,
	ActionBookAnyway,
	ActionGeneralQuestion,
}

// ParseActionTag maps raw text onto the closed tag set.
func ParseActionTag(s string) (ActionTag, bool) {
	for _, t := range ActionTags {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Attendee is a person a ticket is booked for.
type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// UserIntent is the structured extraction of one booking message.
type UserIntent struct {
	Attendees     []Attendee `json:"attendees"`
	Budget        *float64   `json:"budget"`
	PreferredDays []string   `json:"preferred_days"`
	Genres        []string   `json:"genres"`
	CheckCalendar bool       `json:"check_calendar"`
	Notes         string     `json:"notes,omitempty"`
}

// DefaultIntent is used whenever extraction fails.
func DefaultIntent(notes string) UserIntent {
	return UserIntent{
		Attendees:     []Attendee{{Name: "User"}},
		PreferredDays: []string{},
		Genres:        []string{},
		Notes:         notes,
	}
}

// Emails returns the non-empty attendee emails.
func (i UserIntent) Emails() []string {
	var out []string
	for _, a := range i.Attendees {
		if a.Email != "" {
			out = append(out, a.Email)
		}
	}
	return out
}

// UnionEmails appends emails not already present, matching by exact string.
func UnionEmails(existing []string, more ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[e] = struct{}{}
	}
	for _, e := range more {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		existing = append(existing, e)
	}
	return existing
}
