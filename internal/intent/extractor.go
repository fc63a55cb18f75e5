package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tixagent/internal/llm"
	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/pkg/logger"
	"github.com/capitalize-ai/tixagent/pkg/metrics"
)

const extractSystemPrompt = `Extract booking details from the user's message. Reply with JSON only, no prose, in exactly this shape:
{"attendees":[{"name":"string","email":"string or empty"}],"budget":number or null,"preferredDays":["weekend" or day names],"genres":["string"],"checkCalendar":boolean,"notes":"string"}
budget is the per-ticket ceiling in USD. checkCalendar is true when the user asks to check calendars or availability.
notes keeps any time phrases ("this weekend", "next two weeks") and other constraints verbatim.`

// ErrMalformedIntent is returned when model output is not the expected shape.
var ErrMalformedIntent = errors.New("malformed intent extraction")

type wireIntent struct {
	Attendees []struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"attendees"`
	Budget        *float64 `json:"budget"`
	PreferredDays []string `json:"preferredDays"`
	Genres        []string `json:"genres"`
	CheckCalendar bool     `json:"checkCalendar"`
	Notes         string   `json:"notes"`
}

// Extractor turns a booking message into a UserIntent.
type Extractor struct {
	client llm.Client
	model  string
	logger *logger.Logger
}

// NewExtractor creates an extractor. With a nil client it extracts with
// keyword heuristics.
func NewExtractor(client llm.Client, model string, log *logger.Logger) *Extractor {
	return &Extractor{client: client, model: model, logger: log}
}

// Extract never fails: any error degrades to model.DefaultIntent. The raw
// message is kept in Notes so time phrases reach the window parser.
func (e *Extractor) Extract(ctx context.Context, message string) model.UserIntent {
	if e.client == nil {
		return Heuristic(message)
	}

	start := time.Now()
	resp, err := e.client.Complete(ctx, &llm.CompletionRequest{
		Model:       e.model,
		System:      extractSystemPrompt,
		Messages:    []llm.ChatMessage{{Role: "user", Content: message}},
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		metrics.RecordLLM(e.client.Name(), "extract", "error", time.Since(start).Seconds(), 0, 0)
		metrics.CollaboratorFallbacks.WithLabelValues("extractor").Inc()
		e.logger.Warn("intent extraction failed, using default intent", zap.Error(err))
		return model.DefaultIntent(message)
	}
	metrics.RecordLLM(e.client.Name(), "extract", "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	in, err := ParseIntent(resp.Content)
	if err != nil {
		metrics.CollaboratorFallbacks.WithLabelValues("extractor").Inc()
		e.logger.Warn("intent extraction unparseable, using default intent", zap.Error(err))
		return model.DefaultIntent(message)
	}
	in.Notes = joinNotes(in.Notes, message)
	return in
}

// ParseIntent decodes model output, tolerating code fences, prose around
// the JSON object, comments and trailing commas.
func ParseIntent(raw string) (model.UserIntent, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return model.UserIntent{}, fmt.Errorf("%w: no JSON object", ErrMalformedIntent)
	}

	var w wireIntent
	if err := json.Unmarshal(jsonc.ToJSON([]byte(raw[start:end+1])), &w); err != nil {
		return model.UserIntent{}, fmt.Errorf("%w: %v", ErrMalformedIntent, err)
	}

	in := model.UserIntent{
		Budget:        w.Budget,
		PreferredDays: nonEmpty(w.PreferredDays),
		Genres:        nonEmpty(w.Genres),
		CheckCalendar: w.CheckCalendar,
		Notes:         strings.TrimSpace(w.Notes),
	}
	if in.Budget != nil && *in.Budget <= 0 {
		in.Budget = nil
	}
	for _, a := range w.Attendees {
		name := strings.TrimSpace(a.Name)
		email := strings.TrimSpace(a.Email)
		if name == "" && email == "" {
			continue
		}
		if name == "" {
			name = strings.SplitN(email, "@", 2)[0]
		}
		in.Attendees = append(in.Attendees, model.Attendee{Name: name, Email: email})
	}
	if len(in.Attendees) == 0 {
		in.Attendees = []model.Attendee{{Name: "User"}}
	}
	return in, nil
}

var (
	budgetRe    = regexp.MustCompile(`(?:under|below|less than|max(?:imum)?|up to|budget(?: of| is)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
	dollarRe    = regexp.MustCompile(`\$\s*(\d+(?:\.\d+)?)`)
	namesRe     = regexp.MustCompile(`\bfor ((?:[A-Z][a-z]+)(?:(?:,\s*|\s+and\s+|\s*&\s*)[A-Z][a-z]+)*)`)
	nameSplitRe = regexp.MustCompile(`,\s*|\s+and\s+|\s*&\s*`)
	dayWordRe   = regexp.MustCompile(`\b(weekends?|weekdays?|mondays?|tuesdays?|wednesdays?|thursdays?|fridays?|saturdays?|sundays?)\b`)
	calendarRe  = regexp.MustCompile(`\b(calendar|calendars|availability|when we'?re free|are we free)\b`)
)

var knownGenres = []string{
	"jazz", "rock", "pop", "hip hop", "hip-hop", "rap", "edm", "techno", "house", "electronic", "classical",
	"country", "folk", "indie", "metal", "punk", "blues", "soul", "r&b", "reggae", "latin", "comedy",
	"theater", "theatre", "dance", "k-pop", "opera", "funk", "disco",
}

var genreRes = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(knownGenres))
	for _, g := range knownGenres {
		out[g] = regexp.MustCompile(`\b` + regexp.QuoteMeta(g) + `\b`)
	}
	return out
}()

// Heuristic extracts intent with regular expressions. It is used when no
// language model is configured.
func Heuristic(message string) model.UserIntent {
	in := model.DefaultIntent(message)
	lower := strings.ToLower(message)

	if m := budgetRe.FindStringSubmatch(lower); m != nil {
		in.Budget = parseAmount(m[1])
	} else if m := dollarRe.FindStringSubmatch(lower); m != nil {
		in.Budget = parseAmount(m[1])
	}

	if m := namesRe.FindStringSubmatch(message); m != nil {
		var attendees []model.Attendee
		for _, n := range nameSplitRe.Split(m[1], -1) {
			if n = strings.TrimSpace(n); n != "" {
				attendees = append(attendees, model.Attendee{Name: n})
			}
		}
		if len(attendees) > 0 {
			in.Attendees = attendees
		}
	}

	emails := ExtractEmails(message)
	for i := range in.Attendees {
		if i < len(emails) {
			in.Attendees[i].Email = emails[i]
		}
	}

	seenDay := map[string]struct{}{}
	for _, d := range dayWordRe.FindAllString(lower, -1) {
		d = strings.TrimSuffix(d, "s")
		if _, ok := seenDay[d]; ok {
			continue
		}
		seenDay[d] = struct{}{}
		in.PreferredDays = append(in.PreferredDays, d)
	}

	for _, g := range knownGenres {
		if genreRes[g].MatchString(lower) {
			in.Genres = append(in.Genres, g)
		}
	}

	in.CheckCalendar = calendarRe.MatchString(lower)
	return in
}

func parseAmount(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

func nonEmpty(in []string) []string {
	out := []string{}
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinNotes(notes, message string) string {
	if notes == "" || strings.Contains(message, notes) {
		return message
	}
	return notes + "\n" + message
}
