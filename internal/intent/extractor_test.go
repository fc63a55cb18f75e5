package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/pkg/logger"
)

const scenarioMessage = "Book 2 tickets for Aman and Akash, under $50, weekends, jazz"

func TestExtractParsesFencedJSON(t *testing.T) {
	fake := &fakeLLM{content: "```json\n" + `{"attendees":[{"name":"Aman","email":""},{"name":"Akash","email":"akash@y.com"}],"budget":50,"preferredDays":["weekend"],"genres":["jazz"],"checkCalendar":false,"notes":"weekends"}` + "\n```"}
	e := NewExtractor(fake, "", logger.NewNop())

	in := e.Extract(context.Background(), scenarioMessage)
	require.Len(t, in.Attendees, 2)
	assert.Equal(t, "Akash", in.Attendees[1].Name)
	assert.Equal(t, []string{"akash@y.com"}, in.Emails())
	require.NotNil(t, in.Budget)
	assert.Equal(t, 50.0, *in.Budget)
	assert.Equal(t, []string{"weekend"}, in.PreferredDays)
	assert.Equal(t, []string{"jazz"}, in.Genres)
	assert.Contains(t, in.Notes, scenarioMessage)
	assert.Zero(t, fake.last.Temperature)
}

func TestExtractFallsBackOnGarbage(t *testing.T) {
	fake := &fakeLLM{content: "Sure! Aman and Akash want jazz."}
	e := NewExtractor(fake, "", logger.NewNop())

	in := e.Extract(context.Background(), scenarioMessage)
	assert.Equal(t, []model.Attendee{{Name: "User"}}, in.Attendees)
	assert.Nil(t, in.Budget)
	assert.Empty(t, in.PreferredDays)
	assert.Empty(t, in.Genres)
	assert.False(t, in.CheckCalendar)
}

func TestExtractFallsBackOnError(t *testing.T) {
	e := NewExtractor(&fakeLLM{err: errors.New("timeout")}, "", logger.NewNop())
	in := e.Extract(context.Background(), "anything")
	assert.Equal(t, []model.Attendee{{Name: "User"}}, in.Attendees)
}

func TestParseIntentDefaultsAttendees(t *testing.T) {
	in, err := ParseIntent(`{"attendees":[],"budget":0,"preferredDays":[""],"genres":["rock"],"checkCalendar":true}`)
	require.NoError(t, err)
	assert.Equal(t, []model.Attendee{{Name: "User"}}, in.Attendees)
	assert.Nil(t, in.Budget, "zero budget means no ceiling")
	assert.Empty(t, in.PreferredDays)
	assert.True(t, in.CheckCalendar)

	_, err = ParseIntent(`{"attendees": "oops"}`)
	assert.ErrorIs(t, err, ErrMalformedIntent)
}

func TestHeuristic(t *testing.T) {
	in := Heuristic(scenarioMessage)
	assert.Equal(t, []model.Attendee{{Name: "Aman"}, {Name: "Akash"}}, in.Attendees)
	require.NotNil(t, in.Budget)
	assert.Equal(t, 50.0, *in.Budget)
	assert.Equal(t, []string{"weekend"}, in.PreferredDays)
	assert.Equal(t, []string{"jazz"}, in.Genres)
	assert.False(t, in.CheckCalendar)

	in = Heuristic("check our calendars and find rock shows for Priya & Sam priya@a.io sam@b.io")
	assert.True(t, in.CheckCalendar)
	assert.Equal(t, []string{"priya@a.io", "sam@b.io"}, in.Emails())
}

func TestParseIntentToleratesComments(t *testing.T) {
	raw := `Here you go:
{
  // people going
  "attendees": [{"name": "Aman", "email": "aman@x.com"},],
  "budget": 40,
  "preferredDays": ["saturday"],
  "genres": [],
  "checkCalendar": true,
}`
	in, err := ParseIntent(raw)
	require.NoError(t, err)
	assert.Equal(t, []model.Attendee{{Name: "Aman", Email: "aman@x.com"}}, in.Attendees)
	require.NotNil(t, in.Budget)
	assert.Equal(t, 40.0, *in.Budget)
	assert.Equal(t, []string{"saturday"}, in.PreferredDays)
	assert.True(t, in.CheckCalendar)
}
