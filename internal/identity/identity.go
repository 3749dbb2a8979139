// Package identity provides anonymous per-device requester identity.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	AnonCookieName      = "cg_anon_id"
	RequesterHeaderName = "X-Requester-ID"
	anonCookieMaxAge    = 30 * 24 * time.Hour
)

type contextKey int

const (
	requesterIDKey contextKey = iota
)

var (
	anonIDPattern      = regexp.MustCompile(`^cg_anon_[a-f0-9]{32}$`)
	requesterIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// RequesterFromContext extracts the requester ID from the request context.
func RequesterFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requesterIDKey).(string); ok {
		return v
	}
	return ""
}

// WithRequester returns a copy of ctx carrying id.
func WithRequester(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requesterIDKey, id)
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "cg_anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

// Middleware attaches a requester ID to every request. A well-formed
// X-Requester-ID header wins; otherwise the anonymous cookie is used and
// refreshed, or a new one is issued.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h := strings.TrimSpace(r.Header.Get(RequesterHeaderName)); h != "" && requesterIDPattern.MatchString(h) {
				next.ServeHTTP(w, r.WithContext(WithRequester(r.Context(), h)))
				return
			}

			id, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRequester(r.Context(), id)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
