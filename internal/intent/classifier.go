// Package intent classifies user messages into booking actions and extracts
// structured booking intent.
//
// Classification is a prioritized rule chain: deterministic rules over the
// message and the conversation's awaiting-flags are tried first, and only
// when none matches is the message handed to a Delegate (normally an LLM).
package intent

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/pkg/logger"
	"github.com/capitalize-ai/tixagent/pkg/metrics"
)

// Flags describe what the previous assistant turn asked for.
type Flags struct {
	AwaitingConfirmation bool `json:"awaiting_confirmation"`
	AwaitingEmail        bool `json:"awaiting_email"`
	AwaitingConflict     bool `json:"awaiting_conflict"`
}

// Decision is the outcome of classification. The Clear fields tell the
// caller which session state the matching rule consumed.
type Decision struct {
	Tag           model.ActionTag
	Rule          string
	ClearEmail    bool
	ClearConflict bool
}

// Delegated reports whether the decision came from the delegate.
func (d Decision) Delegated() bool {
	return d.Rule == ""
}

// Delegate classifies messages no deterministic rule claimed.
type Delegate interface {
	Classify(ctx context.Context, message string, flags Flags) (model.ActionTag, error)
}

var (
	sendIntentRe    = regexp.MustCompile(`\b(send|sent|forward|share|email (me|it|them|the|those|these|my|us|a copy|tickets?|confirmation)|mail (me|it|them))\b`)
	calendarQueryRe = regexp.MustCompile(`\b(calendar|calendars|availability|available|busy|schedule|free (on|at|that|this|next)|conflicts?)\b`)
	declineEmailRe  = regexp.MustCompile(`\b(no|nope|nah|skip|later|not now|don'?t|no thanks)\b`)
	strongAffirmRe  = regexp.MustCompile(`\b(book (it )?anyway|proceed|ignore( it| the conflict)?|go ahead anyway|book regardless)\b`)
	conflictNoRe    = regexp.MustCompile(`\b(no|nope|different|another|other|alternatives?|instead|else|pick)\b`)
	weakAffirmRe    = regexp.MustCompile(`\b(yes|yeah|yep|sure|ok|okay|go ahead|do it)\b`)
	musicRe         = regexp.MustCompile(`\b(music|songs?|artists?|playlists?|albums?|listen|listening|spotify|bands?|dj|tracks?|recommend)\b`)
	bookingRe       = regexp.MustCompile(`\b(book|booking|tickets?|reserve|buy|purchase|events?|shows?|concerts?|gigs?)\b`)
)

type rule struct {
	name  string
	match func(text string, raw string, f Flags) (Decision, bool)
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{
		name: "explicit_send_email",
		match: func(text, raw string, f Flags) (Decision, bool) {
			if HasEmail(raw) && sendIntentRe.MatchString(text) && !calendarQueryRe.MatchString(text) {
				return Decision{Tag: model.ActionProvideEmail}, true
			}
			return Decision{}, false
		},
	},
	{
		name: "awaited_email",
		match: func(text, raw string, f Flags) (Decision, bool) {
			if f.AwaitingEmail && HasEmail(raw) && !calendarQueryRe.MatchString(text) {
				return Decision{Tag: model.ActionProvideEmail}, true
			}
			return Decision{}, false
		},
	},
	{
		name: "declined_email",
		match: func(text, raw string, f Flags) (Decision, bool) {
			if f.AwaitingEmail && declineEmailRe.MatchString(text) {
				return Decision{Tag: model.ActionGeneralQuestion, ClearEmail: true}, true
			}
			return Decision{}, false
		},
	},
	{
		name: "conflict_resolution",
		match: func(text, raw string, f Flags) (Decision, bool) {
			if !f.AwaitingConflict {
				return Decision{}, false
			}
			switch {
			case strongAffirmRe.MatchString(text):
				return Decision{Tag: model.ActionBookAnyway}, true
			case conflictNoRe.MatchString(text):
				return Decision{Tag: model.ActionSearchEvents, ClearConflict: true}, true
			case weakAffirmRe.MatchString(text):
				return Decision{Tag: model.ActionBookAnyway}, true
			}
			return Decision{}, false
		},
	},
	{
		name: "music_discovery",
		match: func(text, raw string, f Flags) (Decision, bool) {
			if musicRe.MatchString(text) && !bookingRe.MatchString(text) {
				return Decision{Tag: model.ActionDiscoverMusic}, true
			}
			return Decision{}, false
		},
	},
}

// ShortCircuit applies the deterministic rules only. It is a pure function
// of message and flags.
func ShortCircuit(message string, flags Flags) (Decision, bool) {
	text := strings.ToLower(strings.TrimSpace(message))
	for _, r := range rules {
		if d, ok := r.match(text, message, flags); ok {
			d.Rule = r.name
			return d, true
		}
	}
	return Decision{}, false
}

// Classifier runs the rule chain and falls through to a Delegate.
type Classifier struct {
	delegate Delegate
	fallback Delegate
	logger   *logger.Logger
}

// NewClassifier creates a classifier. A nil delegate uses keyword routing.
func NewClassifier(delegate Delegate, log *logger.Logger) *Classifier {
	fallback := NewKeywordDelegate()
	if delegate == nil {
		delegate = fallback
	}
	return &Classifier{
		delegate: delegate,
		fallback: fallback,
		logger:   log,
	}
}

// Classify returns the action for message given the current flags.
func (c *Classifier) Classify(ctx context.Context, message string, flags Flags) Decision {
	if d, ok := ShortCircuit(message, flags); ok {
		metrics.ClassifierShortCircuits.WithLabelValues(d.Rule).Inc()
		return d
	}

	tag, err := c.delegate.Classify(ctx, message, flags)
	if err != nil {
		c.logger.Warn("intent delegate failed, using keyword routing", zap.Error(err))
		metrics.CollaboratorFallbacks.WithLabelValues("classifier").Inc()
		tag, _ = c.fallback.Classify(ctx, message, flags)
	}
	if _, ok := model.ParseActionTag(string(tag)); !ok {
		tag = model.ActionGeneralQuestion
	}
	return Decision{Tag: tag}
}
