package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pawpantry/pawpantry-go/internal/crypto"
	"github.com/pawpantry/pawpantry-go/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTokens(t *testing.T, now func() time.Time) *crypto.TokenManager {
	t.Helper()
	m, err := crypto.NewTokenManager(testSecret, time.Hour, crypto.WithClock(now))
	require.NoError(t, err)
	return m
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var body model.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func echoUserID(w http.ResponseWriter, r *http.Request) {
	id, _ := UserIDFromContext(r.Context())
	w.Write([]byte(id))
}

func TestJWTAuth(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTokens(t, func() time.Time { return now })
	userID := uuid.NewString()

	valid, _, err := tokens.Issue(userID, "alice@example.com")
	require.NoError(t, err)
	notUUID, _, err := tokens.Issue("42", "alice@example.com")
	require.NoError(t, err)

	expiredIssuer := newTokens(t, func() time.Time { return now.Add(-2 * time.Hour) })
	expired, _, err := expiredIssuer.Issue(userID, "alice@example.com")
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantError: "missing authorization header"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantError: "invalid authorization format"},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantError: "invalid authorization format"},
		{name: "garbage token", header: "Bearer not.a.token", wantStatus: http.StatusUnauthorized, wantError: "invalid token"},
		{name: "expired token", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantError: "token expired"},
		{name: "subject not a uuid", header: "Bearer " + notUUID, wantStatus: http.StatusUnauthorized, wantError: "invalid token"},
	}

	handler := JWTAuth(tokens)(http.HandlerFunc(echoUserID))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, userID, rec.Body.String())
				return
			}
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantError, body.Error)
			assert.Equal(t, "UNAUTHORIZED", body.Code)
		})
	}
}

func TestUserIDFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := UserIDFromContext(req.Context())
	assert.False(t, ok)
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1234"))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1235"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1236"))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1234"), "limits are per IP")
}

func TestClientLimiter_Allow(t *testing.T) {
	cl := newClientLimiter(1, 1)
	now := time.Now()

	assert.True(t, cl.allow("10.0.0.1", now))
	assert.False(t, cl.allow("10.0.0.1", now))
	assert.True(t, cl.allow("10.0.0.1", now.Add(time.Second)), "bucket refills at the configured rate")
	assert.Equal(t, "1", cl.retryAfter())

	slow := newClientLimiter(0.2, 1)
	assert.Equal(t, "5", slow.retryAfter())
}

func TestClientLimiter_SweepsIdleClients(t *testing.T) {
	start := time.Now()
	cl := newClientLimiter(1, 1)
	cl.allow("10.0.0.1", start)
	cl.allow("10.0.0.2", start.Add(clientIdleTTL))

	// First request after the sweep interval drops buckets idle for too long.
	cl.allow("10.0.0.3", start.Add(clientIdleTTL+2*time.Second))

	assert.NotContains(t, cl.clients, "10.0.0.1")
	assert.Contains(t, cl.clients, "10.0.0.2")
	assert.Contains(t, cl.clients, "10.0.0.3")
}

func TestRateLimit_StartsNoGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		RateLimit(1, 1)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}

func TestRecoverer(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("database exploded")
	})

	for _, devMode := range []bool{false, true} {
		rec := httptest.NewRecorder()
		Recoverer(devMode)(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "internal server error", body.Error)
		assert.Equal(t, "INTERNAL_ERROR", body.Code)
		if devMode {
			assert.Contains(t, body.Detail, "database exploded")
		} else {
			assert.Empty(t, body.Detail)
		}
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	handler := chimw.RequestID(Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", nil))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=409")
	assert.Contains(t, out, "path=/api/v1/auth/register")
	assert.Contains(t, out, "request_id=")
}
