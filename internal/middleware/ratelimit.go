package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit creates rate limiting middleware keyed by tenant, or by IP
// before authentication.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			tenantID := GetTenantID(r.Context())
			if tenantID != "" && tenantID != AnonymousTenant {
				return "tenant:" + tenantID, nil
			}
			return clientIPKey(r)
		}),
		httprate.WithLimitHandler(limitExceeded(windowLength)),
	)
}

// UserRateLimit creates per-user rate limiting middleware. Turns call the
// LLM and external collaborators, so they get their own budget.
func UserRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if userID := GetUserID(r.Context()); userID != "" {
				return "user:" + GetTenantID(r.Context()) + ":" + userID, nil
			}
			return clientIPKey(r)
		}),
		httprate.WithLimitHandler(limitExceeded(windowLength)),
	)
}

// clientIPKey keys on the caller's address without its port, so each new
// connection from one host shares a bucket.
func clientIPKey(r *http.Request) (string, error) {
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

func limitExceeded(window time.Duration) http.HandlerFunc {
	retry := int(window.Seconds())
	if retry < 1 {
		retry = 1
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
	}
}
