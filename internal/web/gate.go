package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pawpantry/pawpantry-go/internal/middleware"
)

// SessionCookieName is the cookie holding the session id.
const SessionCookieName = "pawpantry_session"

// Paths reachable without a session. Each entry also covers its sub-paths,
// except "/" which only matches the home page.
var publicPaths = []string{
	"/",
	"/health",
	"/login",
	"/register",
	"/forgot-password",
	"/reset-password",
	"/api/products",
	"/api/v1/products",
}

// Pages that only make sense without a session.
var authOnlyPaths = []string{
	"/login",
	"/register",
	"/forgot-password",
	"/reset-password",
}

func matchPath(path, base string) bool {
	if base == "/" {
		return path == "/"
	}
	return path == base || strings.HasPrefix(path, base+"/")
}

func matchAny(path string, bases []string) bool {
	for _, base := range bases {
		if matchPath(path, base) {
			return true
		}
	}
	return false
}

// IsPublicPath reports whether path can be served without a session.
func IsPublicPath(path string) bool { return matchAny(path, publicPaths) }

// IsAuthOnlyPath reports whether path is a sign-in style page.
func IsAuthOnlyPath(path string) bool { return matchAny(path, authOnlyPaths) }

// Identity is the signed-in user of a request.
type Identity struct {
	SessionID   string
	AccessToken string
	UserID      string
	Email       string
}

type identityKey struct{}

// IdentityFromContext returns the identity the Gate attached to the request.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// Gate resolves the session of every request and enforces the public and
// auth-only path lists.
type Gate struct {
	sessions     SessionStore
	verifier     middleware.TokenVerifier
	cookieSecure bool
}

func NewGate(sessions SessionStore, verifier middleware.TokenVerifier, cookieSecure bool) *Gate {
	return &Gate{sessions: sessions, verifier: verifier, cookieSecure: cookieSecure}
}

// Middleware redirects anonymous requests for protected paths to the login
// page and signed-in requests for auth-only pages to the home page.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, authenticated := g.authenticate(w, r)
		path := r.URL.Path

		if authenticated && IsAuthOnlyPath(path) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		if !authenticated {
			if !IsPublicPath(path) {
				http.Redirect(w, r, loginURL(r), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), ident)))
	})
}

// authenticate resolves the session cookie to a verified identity. Sessions
// whose token no longer verifies are deleted and their cookie cleared.
func (g *Gate) authenticate(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return Identity{}, false
	}

	token, err := g.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			clearSessionCookie(w, g.cookieSecure)
		} else {
			slog.ErrorContext(r.Context(), "session lookup failed", "error", err)
		}
		return Identity{}, false
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		if delErr := g.sessions.Delete(r.Context(), cookie.Value); delErr != nil {
			slog.WarnContext(r.Context(), "failed to delete stale session", "error", delErr)
		}
		clearSessionCookie(w, g.cookieSecure)
		return Identity{}, false
	}

	return Identity{
		SessionID:   cookie.Value,
		AccessToken: token,
		UserID:      claims.UserID(),
		Email:       claims.Email,
	}, true
}

func loginURL(r *http.Request) string {
	return "/login?callbackUrl=" + url.QueryEscape(r.URL.RequestURI())
}

// safeCallback returns target if it is a local path, and "/" otherwise.
func safeCallback(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

func setSessionCookie(w http.ResponseWriter, id string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
