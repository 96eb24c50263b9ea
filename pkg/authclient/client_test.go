package authclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/middleware"
)

func newTestClient(t *testing.T, name string, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig(server.URL + "/")
	cfg.HTTP.MaxRetries = 0
	cfg.Breaker.Name = name
	cfg.Breaker.MinRequests = 2

	c, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestValidate_Valid(t *testing.T) {
	exp := time.Date(2025, 4, 1, 9, 15, 0, 0, time.UTC)
	c := newTestClient(t, "authclient-valid", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, validatePath, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"valid":true,"subject":"u-1","email":"ana@example.com","role":"standard","expires_at":"2025-04-01T09:15:00Z"}}`)
	})

	id, err := c.Validate(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.UserID)
	assert.Equal(t, "ana@example.com", id.Email)
	assert.Equal(t, "standard", id.Role)
	assert.True(t, id.ExpiresAt.Equal(exp))
}

func TestValidate_Rejected(t *testing.T) {
	c := newTestClient(t, "authclient-rejected", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"valid":false}}`)
	})

	_, err := c.Validate(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_EmptyTokenSkipsCall(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, "authclient-empty", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	_, err := c.Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, hits.Load())
}

func TestValidate_FailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		breaker string
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"error":{"code":"UNAVAILABLE","message":"down"}}`, breaker: "authclient-5xx"},
		{name: "unexpected status", status: http.StatusTooManyRequests, body: `{"error":{"code":"RATE_LIMITED","message":"slow down"}}`, breaker: "authclient-429"},
		{name: "malformed body", status: http.StatusOK, body: `not json`, breaker: "authclient-malformed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.breaker, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := c.Validate(context.Background(), "tok")
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidate_OpenBreakerStopsCalls(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, "authclient-open", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for range 4 {
		_, err := c.Validate(context.Background(), "tok")
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestTokenValidator_WithAuthMiddleware(t *testing.T) {
	c := newTestClient(t, "authclient-middleware", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			_, _ = io.WriteString(w, `{"data":{"valid":false}}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"valid":true,"subject":"u-9","role":"merchant"}}`)
	})

	protected := middleware.Auth(c.TokenValidator())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u-9", middleware.UserIDFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tc := range []struct {
		token string
		want  int
	}{
		{token: "good", want: http.StatusNoContent},
		{token: "bad", want: http.StatusUnauthorized},
	} {
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", "Bearer "+tc.token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, tc.token)
	}
}
