package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"clinic-appointments/internal/middleware"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/ports/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthContext_DevHeader(t *testing.T) {
	var got string
	h := middleware.AuthContext(nil, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := middleware.GetClaims(r.Context())
		if ok {
			got = c.UserID
		}
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Debug-User-ID", " u1 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u1", got)

	got = ""
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, "", got)
}

type stubVerifier struct{}

func (stubVerifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if token != "good" {
		return auth.Claims{}, errors.New("bad token")
	}
	return auth.Claims{UserID: "users/1"}, nil
}

func TestAuthContext_Bearer(t *testing.T) {
	var got string
	h := middleware.AuthContext(stubVerifier{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := middleware.GetClaims(r.Context())
		got = c.UserID
	}))

	cases := map[string]string{
		"Bearer good":  "users/1",
		"bearer  good": "users/1",
		"Bearer bad":   "",
		"Basic good":   "",
		"":             "",
	}
	for header, want := range cases {
		got = ""
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", header)
		// con verifier el header de debug se ignora
		req.Header.Set(middleware.DebugUserHeader, "intruder")
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, want, got, header)
	}
}

func TestRecover_Returns500(t *testing.T) {
	h := middleware.Recover(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestLog_PassesThrough(t *testing.T) {
	h := middleware.RequestLog(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRequestLog_IncludesUserResolvedDownstream(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := logger.FromZap(zap.New(core))

	// mismo orden que el router: RequestLog por fuera de AuthContext
	h := middleware.RequestLog(log)(middleware.AuthContext(nil, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest("GET", "/appointments", nil)
	req.Header.Set(middleware.DebugUserHeader, "u1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "u1", entries[0].ContextMap()["user_id"])
	assert.EqualValues(t, http.StatusNoContent, entries[0].ContextMap()["status"])
	_, hasUser := entries[1].ContextMap()["user_id"]
	assert.False(t, hasUser)
}
