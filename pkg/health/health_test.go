package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func serve(t *testing.T, h http.HandlerFunc) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLivenessHandler_AlwaysUp(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", down)

	code, resp := serve(t, h.LivenessHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Empty(t, resp.Checks)
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name        string
		critical    map[string]Checker
		nonCritical map[string]Checker
		wantCode    int
		wantStatus  Status
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: StatusUp,
		},
		{
			name:        "all up",
			critical:    map[string]Checker{"postgres": up},
			nonCritical: map[string]Checker{"redis": up, "kafka": up},
			wantCode:    http.StatusOK,
			wantStatus:  StatusUp,
		},
		{
			name:        "revocation cache down degrades",
			critical:    map[string]Checker{"postgres": up},
			nonCritical: map[string]Checker{"redis": down, "kafka": up},
			wantCode:    http.StatusOK,
			wantStatus:  StatusDegraded,
		},
		{
			name:        "every optional dependency down",
			critical:    map[string]Checker{"postgres": up},
			nonCritical: map[string]Checker{"redis": down, "kafka": down},
			wantCode:    http.StatusOK,
			wantStatus:  StatusDegraded,
		},
		{
			name:        "database down",
			critical:    map[string]Checker{"postgres": down},
			nonCritical: map[string]Checker{"redis": up},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  StatusDown,
		},
		{
			name:        "database and cache down",
			critical:    map[string]Checker{"postgres": down},
			nonCritical: map[string]Checker{"redis": down},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  StatusDown,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler()
			for name, c := range tc.critical {
				h.RegisterCritical(name, c)
			}
			for name, c := range tc.nonCritical {
				h.RegisterNonCritical(name, c)
			}

			code, resp := serve(t, h.ReadinessHandler())
			assert.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tc.critical)+len(tc.nonCritical))
			for name := range tc.critical {
				assert.True(t, resp.Checks[name].Critical, name)
			}
			for name := range tc.nonCritical {
				assert.False(t, resp.Checks[name].Critical, name)
			}
		})
	}
}

func TestReadinessHandler_ReportsError(t *testing.T) {
	h := NewHandler()
	h.RegisterNonCritical("redis", down)

	_, resp := serve(t, h.ReadinessHandler())
	assert.Equal(t, StatusDown, resp.Checks["redis"].Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"].Error)
}

func TestRegister_IsCriticalAndOverwrites(t *testing.T) {
	h := NewHandler()
	h.RegisterNonCritical("postgres", down)
	h.Register("postgres", up)

	code, resp := serve(t, h.ReadinessHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Checks["postgres"].Critical)
	assert.Equal(t, StatusUp, resp.Checks["postgres"].Status)
}

func TestReadinessHandler_CheckSeesDeadline(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	})

	code, _ := serve(t, h.ReadinessHandler())
	assert.Equal(t, http.StatusOK, code)
}

func TestReadinessHandler_RunsChecksConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	blocking := func(context.Context) error {
		started.Done()
		<-release
		return nil
	}

	h := NewHandler()
	h.RegisterCritical("postgres", blocking)
	h.RegisterNonCritical("redis", blocking)

	go func() {
		started.Wait()
		close(release)
	}()

	code, resp := serve(t, h.ReadinessHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, StatusUp, summarize(nil))
	assert.Equal(t, StatusDegraded, summarize(map[string]CheckResult{
		"redis": {Status: StatusDown},
		"kafka": {Status: StatusUp},
	}))
	assert.Equal(t, StatusDown, summarize(map[string]CheckResult{
		"redis":    {Status: StatusDown},
		"postgres": {Status: StatusDown, Critical: true},
	}))
}
