package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/logger"
)

func TestRequestLogging_CorrelationID(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{name: "missing", inbound: "", keep: false},
		{name: "well formed", inbound: "req-42.a_b", keep: true},
		{name: "too long", inbound: strings.Repeat("a", maxCorrelationIDSize+1), keep: false},
		{name: "log injection", inbound: "abc\ninjected=1", keep: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := RequestLogging(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = logger.CorrelationIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/validate", nil)
			if tc.inbound != "" {
				req.Header.Set(correlationHeader, tc.inbound)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rr.Header().Get(correlationHeader))
			if tc.keep {
				assert.Equal(t, tc.inbound, seen)
			} else {
				assert.NotEqual(t, tc.inbound, seen)
			}
		})
	}
}

func TestRequestLogging_Levels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{path: "/api/v1/auth/login", status: http.StatusUnauthorized, level: "INFO"},
		{path: "/api/v1/auth/login", status: http.StatusInternalServerError, level: "ERROR"},
		{path: "/health/ready", status: http.StatusOK, level: "DEBUG"},
		{path: "/health/ready", status: http.StatusServiceUnavailable, level: "ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.path+" "+http.StatusText(tc.status), func(t *testing.T) {
			var buf bytes.Buffer
			l := logger.NewWithWriter("test-svc", "debug", &buf)
			h := RequestLogging(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))

			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			req.RemoteAddr = "198.51.100.7:5000"
			h.ServeHTTP(httptest.NewRecorder(), req)

			var out map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
			assert.Equal(t, tc.level, out["level"])
			assert.Equal(t, float64(tc.status), out["status"])
			assert.Equal(t, "198.51.100.7", out["client_ip"])
		})
	}
}
