// Package identity tags chat requests with an anonymous device id and the
// browser tab they came from. Votes are stored under both.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	AnonCookieName        = "needle_anon_id"
	SessionHeaderName     = "X-Needle-Session-ID"
	DefaultSessionIDValue = "default"

	cookieLifetime = 30 * 24 * time.Hour
)

type ctxKey struct{ name string }

var (
	userKey    = ctxKey{"user"}
	sessionKey = ctxKey{"session"}

	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext returns the anonymous device id, or "" outside Middleware.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey).(string)
	return id
}

// SessionIDFromContext returns the tab id, DefaultSessionIDValue when absent.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey).(string); ok {
		return id
	}
	return DefaultSessionIDValue
}

// Middleware resolves both ids for every request. The device cookie is
// reissued on each request so its expiry slides; it is Secure outside
// development.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := deviceID(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     AnonCookieName,
				Value:    userID,
				Path:     "/",
				MaxAge:   int(cookieLifetime / time.Second),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Secure:   !isDev,
			})

			ctx := context.WithValue(r.Context(), userKey, userID)
			ctx = context.WithValue(ctx, sessionKey, tabID(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// deviceID keeps a well-formed cookie value and mints a new id otherwise.
func deviceID(r *http.Request) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		return c.Value, nil
	}
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return "anon_" + strings.ReplaceAll(u.String(), "-", ""), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

// tabID reads the header first, then the session_id query parameter used by
// websocket clients.
func tabID(r *http.Request) string {
	id := r.Header.Get(SessionHeaderName)
	if id == "" {
		id = r.URL.Query().Get("session_id")
	}
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

// IPFromRequest strips the port from the remote address for log fields.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
