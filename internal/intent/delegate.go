package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/capitalize-ai/tixagent/internal/llm"
	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/pkg/metrics"
)

const classifySystemPrompt = `You route messages for a concert and event ticket booking assistant.
Reply with exactly one label and nothing else. Labels:
greeting - hello or small talk
search_events - find, list or filter events
book_ticket - a new request to book tickets (may include people, budget, days, genres)
confirm_booking - choosing one of the events already shown (by number or name)
provide_email - giving an email address to receive ticket details
check_calendar - asking whether people are free or checking calendars
discover_music - music, artist or genre recommendations without booking
cancel - stop or abandon the current booking
book_anyway - proceed despite a calendar conflict
general_question - anything else`

// LLMDelegate classifies with a language model at temperature zero.
type LLMDelegate struct {
	client llm.Client
	model  string
}

// NewLLMDelegate creates an LLM-backed delegate.
func NewLLMDelegate(client llm.Client, model string) *LLMDelegate {
	return &LLMDelegate{client: client, model: model}
}

// Classify asks the model for a label. Output outside the label set maps to
// general_question.
func (d *LLMDelegate) Classify(ctx context.Context, message string, flags Flags) (model.ActionTag, error) {
	start := time.Now()
	resp, err := d.client.Complete(ctx, &llm.CompletionRequest{
		Model:       d.model,
		System:      classifySystemPrompt,
		Messages:    []llm.ChatMessage{{Role: "user", Content: classifyPrompt(message, flags)}},
		MaxTokens:   16,
		Temperature: 0,
	})
	if err != nil {
		metrics.RecordLLM(d.client.Name(), "classify", "error", time.Since(start).Seconds(), 0, 0)
		return "", fmt.Errorf("classify: %w", err)
	}
	metrics.RecordLLM(d.client.Name(), "classify", "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	return ParseLabel(resp.Content), nil
}

func classifyPrompt(message string, flags Flags) string {
	var b strings.Builder
	b.WriteString("Conversation state:\n")
	fmt.Fprintf(&b, "- awaiting booking confirmation: %t\n", flags.AwaitingConfirmation)
	fmt.Fprintf(&b, "- awaiting email address: %t\n", flags.AwaitingEmail)
	fmt.Fprintf(&b, "- awaiting calendar conflict decision: %t\n", flags.AwaitingConflict)
	b.WriteString("\nMessage:\n")
	b.WriteString(message)
	return b.String()
}

// ParseLabel normalizes raw model output onto the tag set.
func ParseLabel(raw string) model.ActionTag {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, "`\"'.:;!* \n\t")
	if i := strings.IndexAny(s, " \n"); i > 0 {
		s = s[:i]
	}
	if tag, ok := model.ParseActionTag(s); ok {
		return tag
	}
	return model.ActionGeneralQuestion
}

var (
	greetingRe      = regexp.MustCompile(`^\s*(hi|hello|hey|yo|hiya|good (morning|afternoon|evening))\b`)
	cancelRe        = regexp.MustCompile(`\b(cancel|stop|never ?mind|start over|forget it|abort)\b`)
	bookRe          = regexp.MustCompile(`\b(book|reserve|buy|purchase|get (us |me )?tickets?|tickets? for)\b`)
	confirmRe       = regexp.MustCompile(`(#\s*\d+|\b(option|number) \d+\b|^\s*\d+\s*$|\b(first|second|third|fourth|fifth|that one|this one|yes|yeah|sure|sounds good)\b)`)
	checkCalendarRe = regexp.MustCompile(`\b(calendar|availability|available|are we free|is .* free|busy)\b`)
	searchRe        = regexp.MustCompile(`\b(find|search|show|list|what'?s on|events?|concerts?|gigs?|shows?|happening|anything)\b`)
)

// KeywordDelegate is a deterministic keyword router used when no language
// model is configured or the model call fails.
type KeywordDelegate struct{}

// NewKeywordDelegate creates a keyword delegate.
func NewKeywordDelegate() *KeywordDelegate {
	return &KeywordDelegate{}
}

// Classify routes on keyword cues.
func (d *KeywordDelegate) Classify(_ context.Context, message string, flags Flags) (model.ActionTag, error) {
	text := strings.ToLower(strings.TrimSpace(message))
	switch {
	case text == "":
		return model.ActionGeneralQuestion, nil
	case cancelRe.MatchString(text):
		return model.ActionCancel, nil
	case flags.AwaitingConfirmation && confirmRe.MatchString(text):
		return model.ActionConfirmBooking, nil
	case bookRe.MatchString(text):
		if flags.AwaitingConfirmation && !searchRe.MatchString(text) {
			return model.ActionConfirmBooking, nil
		}
		return model.ActionBookTicket, nil
	case checkCalendarRe.MatchString(text):
		return model.ActionCheckCalendar, nil
	case searchRe.MatchString(text):
		return model.ActionSearchEvents, nil
	case greetingRe.MatchString(text):
		return model.ActionGreeting, nil
	default:
		return model.ActionGeneralQuestion, nil
	}
}
