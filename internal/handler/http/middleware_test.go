package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
)

func TestContentTypeJSON(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		wantCalled  bool
		wantStatus  int
	}{
		{"post without content type", http.MethodPost, "", true, http.StatusOK},
		{"post with json", http.MethodPost, "application/json", true, http.StatusOK},
		{"post with json charset", http.MethodPost, "application/json; charset=utf-8", true, http.StatusOK},
		{"post with form", http.MethodPost, "application/x-www-form-urlencoded", false, http.StatusUnsupportedMediaType},
		{"post with text", http.MethodPost, "text/plain", false, http.StatusUnsupportedMediaType},
		{"get without content type", http.MethodGet, "", true, http.StatusOK},
		{"delete without content type", http.MethodDelete, "", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/test", strings.NewReader(`{"key":"value"}`))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCalled, called)
			if !tt.wantCalled {
				assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
				assert.Contains(t, rr.Body.String(), "UNSUPPORTED_MEDIA_TYPE")
			}
		})
	}
}

func TestTokenValidator(t *testing.T) {
	svc := new(mockAuthService)
	svc.On("VerifyAccessToken", mock.Anything, "good").Return(&domain.Claims{
		UserID: "u-1", Email: "a@example.com", Role: domain.RoleAdmin, JTI: "j-1",
	}, nil)
	svc.On("VerifyAccessToken", mock.Anything, "revoked").Return(nil, errors.New("revoked"))

	validate := tokenValidator(svc)

	claims, err := validate(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.Equal(t, "j-1", claims.JTI)

	claims, err = validate(context.Background(), "revoked")
	assert.Error(t, err)
	assert.Nil(t, claims)
}
