// Package calendar checks attendee availability and creates event entries
// through the Google Calendar API using the organizer's OAuth token.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/pkg/logger"
)

// ErrNoToken is returned when a call is made without an access token.
var ErrNoToken = errors.New("calendar access token is required")

const primaryCalendar = "primary"

// Client talks to Google Calendar on behalf of the token holder.
type Client struct {
	// opts are appended to every service; tests point them at a fake server.
	opts   []option.ClientOption
	logger *logger.Logger
}

// NewClient creates a calendar client.
func NewClient(log *logger.Logger, opts ...option.ClientOption) *Client {
	return &Client{opts: opts, logger: log}
}

func (c *Client) service(ctx context.Context, token string) (*gcal.Service, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// CheckAvailability queries free/busy for every email over [start, end].
// An attendee whose calendar cannot be read is reported free with the
// error attached.
func (c *Client) CheckAvailability(ctx context.Context, token string, emails []string, start, end time.Time) (*model.ConflictReport, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	items := make([]*gcal.FreeBusyRequestItem, len(emails))
	for i, e := range emails {
		items[i] = &gcal.FreeBusyRequestItem{Id: e}
	}
	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: start.Format(time.RFC3339),
		TimeMax: end.Format(time.RFC3339),
		Items:   items,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	report := &model.ConflictReport{AllFree: true}
	for _, email := range emails {
		row := model.AttendeeAvailability{Email: email, Free: true}
		cal, ok := resp.Calendars[email]
		switch {
		case !ok:
			row.Error = "calendar not returned"
		case len(cal.Errors) > 0:
			reasons := make([]string, len(cal.Errors))
			for i, e := range cal.Errors {
				reasons[i] = e.Reason
			}
			row.Error = strings.Join(reasons, ", ")
		default:
			for _, p := range cal.Busy {
				bs, err1 := time.Parse(time.RFC3339, p.Start)
				be, err2 := time.Parse(time.RFC3339, p.End)
				if err1 != nil || err2 != nil {
					continue
				}
				row.Busy = append(row.Busy, model.BusyInterval{Start: bs, End: be})
			}
			row.Free = len(row.Busy) == 0
		}
		if row.Error != "" {
			c.logger.Warn("attendee calendar unreadable, treating as free",
				zap.String("email", email),
				zap.String("reason", row.Error),
			)
		}
		if !row.Free {
			report.AllFree = false
		}
		report.Attendees = append(report.Attendees, row)
	}
	return report, nil
}

// CreateEvent inserts an entry on the organizer's primary calendar and
// invites the attendees.
func (c *Client) CreateEvent(ctx context.Context, token string, ev model.CalendarEvent) (*model.CalendarEventRef, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	entry := &gcal.Event{
		Summary:     ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
	}
	if ev.AllDay {
		entry.Start = &gcal.EventDateTime{Date: ev.Start.Format("2006-01-02")}
		entry.End = &gcal.EventDateTime{Date: ev.Start.AddDate(0, 0, 1).Format("2006-01-02")}
	} else {
		entry.Start = &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)}
		entry.End = &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339)}
	}
	for _, a := range ev.Attendees {
		entry.Attendees = append(entry.Attendees, &gcal.EventAttendee{Email: a})
	}

	created, err := svc.Events.Insert(primaryCalendar, entry).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar event: %w", err)
	}
	return &model.CalendarEventRef{ID: created.Id, Link: created.HtmlLink}, nil
}
