// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserIDKey is the context key for user ID.
	UserIDKey ContextKey = "user_id"
	// TenantIDKey is the context key for tenant ID.
	TenantIDKey ContextKey = "tenant_id"

	// AnonymousTenant owns sessions opened without a token.
	AnonymousTenant = "anonymous"

	clientIDHeader = "X-Client-ID"
)

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// Auth creates JWT authentication middleware. With allowAnonymous set, a
// request without an Authorization header is admitted under
// AnonymousTenant and identified by its X-Client-ID header.
func Auth(jwtSecret string, allowAnonymous bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if !allowAnonymous {
					writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
					return
				}
				clientID := r.Header.Get(clientIDHeader)
				if err := ValidateClientID(clientID); err != nil {
					writeJSONError(w, http.StatusUnauthorized, err.Error())
					return
				}
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), AnonymousTenant, clientID)))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeJSONError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if claims.TenantID == "" || claims.Subject == "" {
				writeJSONError(w, http.StatusUnauthorized, "token missing tenant or subject")
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), claims.TenantID, claims.Subject)))
		})
	}
}

func withIdentity(ctx context.Context, tenantID, userID string) context.Context {
	ctx = context.WithValue(ctx, TenantIDKey, tenantID)
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// GetTenantID gets tenant ID from context.
func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(TenantIDKey).(string); ok {
		return v
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + strings.ReplaceAll(msg, `"`, `'`) + `"}`))
}
