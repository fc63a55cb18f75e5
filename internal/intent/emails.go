package intent

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ExtractEmails returns the distinct email addresses in text, in order of
// appearance.
func ExtractEmails(text string) []string {
	found := emailRe.FindAllString(text, -1)
	out := make([]string, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, e := range found {
		e = strings.TrimRight(e, ".")
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// HasEmail reports whether text contains an email address.
func HasEmail(text string) bool {
	return emailRe.MatchString(text)
}
