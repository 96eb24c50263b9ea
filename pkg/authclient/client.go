// Package authclient lets other services check bearer tokens against the
// auth service's validate endpoint.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/httpclient"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/middleware"
)

const validatePath = "/api/v1/auth/validate"

// ErrInvalidToken is returned when the auth service rejects a token, or when
// it cannot be reached. Callers must treat both the same way.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the subject of a valid access token.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Config configures a Client.
type Config struct {
	BaseURL string
	HTTP    httpclient.Config
	Breaker httpclient.CircuitBreakerConfig
}

// DefaultConfig returns a config for the auth service at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		HTTP:    httpclient.DefaultConfig(),
		Breaker: httpclient.DefaultCircuitBreakerConfig("auth-validate"),
	}
}

// Client validates access tokens remotely. It fails closed: any transport
// error, 5xx or open breaker yields ErrInvalidToken.
type Client struct {
	endpoint string
	http     *httpclient.CircuitBreakerClient
	logger   *slog.Logger
}

// New builds a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("authclient: base URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + validatePath,
		http:     httpclient.NewCircuitBreakerClient(httpclient.New(cfg.HTTP), cfg.Breaker, logger),
		logger:   logger,
	}, nil
}

type validationResult struct {
	Valid     bool      `json:"valid"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type envelope struct {
	Data *validationResult `json:"data"`
}

// Validate asks the auth service whether token is a live access token.
func (c *Client) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	resp, err := c.http.Get(ctx, c.endpoint, http.Header{"Authorization": {"Bearer " + token}})
	if err != nil {
		c.logger.WarnContext(ctx, "token validation unavailable, rejecting",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, httpclient.ParseResponseError(resp, "auth"))
	}

	var body envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode validation response: %w", ErrInvalidToken, err)
	}
	if body.Data == nil || !body.Data.Valid || body.Data.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID:    body.Data.Subject,
		Email:     body.Data.Email,
		Role:      body.Data.Role,
		ExpiresAt: body.Data.ExpiresAt,
	}, nil
}

// TokenValidator adapts the client for middleware.Auth.
func (c *Client) TokenValidator() middleware.TokenValidator {
	return func(ctx context.Context, token string) (*middleware.Claims, error) {
		id, err := c.Validate(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{UserID: id.UserID, Email: id.Email, Role: id.Role}, nil
	}
}
