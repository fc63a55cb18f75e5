package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tixagent/internal/llm"
	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/pkg/logger"
)

type fakeLLM struct {
	content string
	err     error
	calls   int
	last    *llm.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content, Model: "fake"}, nil
}

func (f *fakeLLM) Name() string     { return "fake" }
func (f *fakeLLM) Models() []string { return []string{"fake"} }

func TestShortCircuitRules(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		flags    Flags
		wantTag  model.ActionTag
		wantRule string
		clearE   bool
		clearC   bool
	}{
		{"send with email", "please send the tickets to aman@x.com", Flags{}, model.ActionProvideEmail, "explicit_send_email", false, false},
		{"send but calendar query", "send me aman@x.com calendar availability", Flags{}, "", "", false, false},
		{"awaited email", "aman@x.com", Flags{AwaitingEmail: true}, model.ActionProvideEmail, "awaited_email", false, false},
		{"declined email", "no thanks", Flags{AwaitingEmail: true}, model.ActionGeneralQuestion, "declined_email", true, false},
		{"skip email", "skip", Flags{AwaitingEmail: true}, model.ActionGeneralQuestion, "declined_email", true, false},
		{"book anyway", "book anyway", Flags{AwaitingConflict: true}, model.ActionBookAnyway, "conflict_resolution", false, false},
		{"yes to conflict", "yes", Flags{AwaitingConflict: true}, model.ActionBookAnyway, "conflict_resolution", false, false},
		{"no but book anyway", "no, book anyway", Flags{AwaitingConflict: true}, model.ActionBookAnyway, "conflict_resolution", false, false},
		{"pick different", "pick a different event", Flags{AwaitingConflict: true}, model.ActionSearchEvents, "conflict_resolution", false, true},
		{"music", "recommend some artists like Coltrane", Flags{}, model.ActionDiscoverMusic, "music_discovery", false, false},
		{"music with booking", "book tickets for a jazz band", Flags{}, "", "", false, false},
		{"bare email without flag", "my email is aman@x.com", Flags{}, "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := ShortCircuit(tt.msg, tt.flags)
			if tt.wantTag == "" {
				assert.False(t, ok, "got %+v", d)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantTag, d.Tag)
			assert.Equal(t, tt.wantRule, d.Rule)
			assert.Equal(t, tt.clearE, d.ClearEmail)
			assert.Equal(t, tt.clearC, d.ClearConflict)
		})
	}
}

func TestShortCircuitIsIdempotent(t *testing.T) {
	msgs := []string{"book anyway", "aman@x.com", "no", "send it to a@b.co", "play me some songs"}
	flagSets := []Flags{{}, {AwaitingEmail: true}, {AwaitingConflict: true}, {AwaitingConfirmation: true}}
	for _, m := range msgs {
		for _, f := range flagSets {
			d1, ok1 := ShortCircuit(m, f)
			d2, ok2 := ShortCircuit(m, f)
			assert.Equal(t, ok1, ok2)
			assert.Equal(t, d1, d2)
		}
	}
}

func TestClassifierSkipsDelegateOnShortCircuit(t *testing.T) {
	fake := &fakeLLM{content: "greeting"}
	c := NewClassifier(NewLLMDelegate(fake, ""), logger.NewNop())

	d := c.Classify(context.Background(), "aman@x.com", Flags{AwaitingEmail: true})
	assert.Equal(t, model.ActionProvideEmail, d.Tag)
	assert.Zero(t, fake.calls)
}

func TestClassifierDelegates(t *testing.T) {
	fake := &fakeLLM{content: " Book_Ticket.\n"}
	c := NewClassifier(NewLLMDelegate(fake, "m"), logger.NewNop())

	d := c.Classify(context.Background(), "Book 2 tickets for Aman and Akash, under $50, weekends, jazz", Flags{AwaitingConfirmation: true})
	assert.Equal(t, model.ActionBookTicket, d.Tag)
	assert.True(t, d.Delegated())
	require.Equal(t, 1, fake.calls)
	assert.Zero(t, fake.last.Temperature)
	assert.Contains(t, fake.last.Messages[0].Content, "awaiting booking confirmation: true")
}

func TestClassifierUnknownLabel(t *testing.T) {
	fake := &fakeLLM{content: "purchase_stuff"}
	c := NewClassifier(NewLLMDelegate(fake, ""), logger.NewNop())

	d := c.Classify(context.Background(), "what is this?", Flags{})
	assert.Equal(t, model.ActionGeneralQuestion, d.Tag)
}

func TestClassifierDelegateErrorFallsBackToKeywords(t *testing.T) {
	fake := &fakeLLM{err: errors.New("overloaded")}
	c := NewClassifier(NewLLMDelegate(fake, ""), logger.NewNop())

	d := c.Classify(context.Background(), "book tickets for the jazz show", Flags{})
	assert.Equal(t, model.ActionBookTicket, d.Tag)
}

func TestKeywordDelegate(t *testing.T) {
	k := NewKeywordDelegate()
	ctx := context.Background()

	tests := []struct {
		msg   string
		flags Flags
		want  model.ActionTag
	}{
		{"hello there", Flags{}, model.ActionGreeting},
		{"Book 2 tickets for Aman and Akash", Flags{}, model.ActionBookTicket},
		{"book #2", Flags{AwaitingConfirmation: true}, model.ActionConfirmBooking},
		{"the second one", Flags{AwaitingConfirmation: true}, model.ActionConfirmBooking},
		{"book Blue Note Jazz Night", Flags{AwaitingConfirmation: true}, model.ActionConfirmBooking},
		{"what concerts are on this weekend", Flags{}, model.ActionSearchEvents},
		{"is akash available saturday", Flags{}, model.ActionCheckCalendar},
		{"never mind", Flags{AwaitingConfirmation: true}, model.ActionCancel},
		{"what is the meaning of life", Flags{}, model.ActionGeneralQuestion},
	}
	for _, tt := range tests {
		got, err := k.Classify(ctx, tt.msg, tt.flags)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.msg)
	}
}

func TestParseLabel(t *testing.T) {
	assert.Equal(t, model.ActionSearchEvents, ParseLabel("search_events"))
	assert.Equal(t, model.ActionCancel, ParseLabel("`cancel`"))
	assert.Equal(t, model.ActionConfirmBooking, ParseLabel("confirm_booking because the user said #2"))
	assert.Equal(t, model.ActionGeneralQuestion, ParseLabel(""))
	assert.Equal(t, model.ActionGeneralQuestion, ParseLabel("I think they want to book"))
}

func TestExtractEmails(t *testing.T) {
	got := ExtractEmails("aman@x.com, akash@y.com and aman@x.com.")
	assert.Equal(t, []string{"aman@x.com", "akash@y.com"}, got)
	assert.Empty(t, ExtractEmails("no addresses here"))
}
