package matcher

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/capitalize-ai/tixagent/internal/model"
)

// MinTokenOverlap is the number of meaningful shared tokens a fuzzy name
// match needs.
const MinTokenOverlap = 1

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "for": {}, "to": {}, "at": {}, "in": {}, "on": {},
	"me": {}, "us": {}, "we": {}, "i": {}, "my": {}, "our": {}, "please": {}, "pls": {}, "want": {}, "would": {},
	"like": {}, "get": {}, "book": {}, "booking": {}, "reserve": {}, "buy": {}, "ticket": {}, "tickets": {},
	"one": {}, "that": {}, "this": {}, "it": {}, "can": {}, "you": {}, "let": {}, "lets": {}, "go": {},
	"with": {}, "yes": {}, "ok": {}, "okay": {}, "sure": {}, "event": {}, "show": {}, "two": {}, "just": {},
}

var (
	hashOrdinalRe  = regexp.MustCompile(`#\s*(\d+)`)
	labelOrdinalRe = regexp.MustCompile(`\b(?:number|no\.?|option|event|choice|pick)\s*(\d+)\b`)
	suffixOrdinal  = regexp.MustCompile(`\b(\d+)(?:st|nd|rd|th)\b`)
	bareOrdinalRe  = regexp.MustCompile(`^\s*(?:book|take|get|choose|pick)?\s*(\d+)\s*[.!]?\s*$`)
)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5, "sixth": 6, "seventh": 7, "eighth": 8,
	"ninth": 9, "tenth": 10, "eleventh": 11, "twelfth": 12, "thirteenth": 13, "fourteenth": 14, "fifteenth": 15,
}

// ResolveOrdinal finds a 1-based reference such as "#2", "option 3" or
// "the second one" and returns the matching 0-based index.
func ResolveOrdinal(message string, count int) (int, bool) {
	text := strings.ToLower(message)
	n := 0
	for _, re := range []*regexp.Regexp{hashOrdinalRe, labelOrdinalRe, suffixOrdinal, bareOrdinalRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			n, _ = strconv.Atoi(m[1])
			break
		}
	}
	if n == 0 {
		for _, tok := range tokenize(text) {
			if v, ok := ordinalWords[tok]; ok {
				n = v
				break
			}
		}
	}
	if n < 1 || n > count {
		return 0, false
	}
	return n - 1, true
}

// ResolveByName finds the event a message names. The full name appearing in
// the message always wins. With fuzzy set, the message appearing in a name
// also counts, and failing that the single event sharing the most meaningful
// tokens wins. Ties are treated as ambiguous.
func ResolveByName(message string, events []model.Event, fuzzy bool) (int, bool) {
	text := strings.ToLower(strings.TrimSpace(message))
	cleaned := strings.Join(meaningful(text), " ")

	found := -1
	for i, ev := range events {
		name := strings.ToLower(strings.TrimSpace(ev.Name))
		if len(name) < 3 {
			continue
		}
		if strings.Contains(text, name) || (fuzzy && len(cleaned) >= 4 && strings.Contains(name, cleaned)) {
			if found >= 0 {
				return 0, false
			}
			found = i
		}
	}
	if found >= 0 {
		return found, true
	}
	if !fuzzy {
		return 0, false
	}

	want := meaningful(text)
	if len(want) == 0 {
		return 0, false
	}
	best, bestScore, tie := -1, 0, false
	for i, ev := range events {
		score := overlap(want, meaningful(strings.ToLower(ev.Name)))
		switch {
		case score > bestScore:
			best, bestScore, tie = i, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if best < 0 || bestScore < MinTokenOverlap || tie {
		return 0, false
	}
	return best, true
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func meaningful(text string) []string {
	var out []string
	for _, tok := range tokenize(text) {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func overlap(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	n := 0
	seen := make(map[string]struct{}, len(a))
	for _, t := range a {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}
