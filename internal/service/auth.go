package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/auth"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/event"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/repository"
	apperrors "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/errors"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/logger"
)

// Lockout defaults.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// Uniform messages. Callers must not be able to tell which check failed.
const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidToken       = "invalid or expired token"
)

// TokenLedger records and answers token revocations.
type TokenLedger interface {
	Add(ctx context.Context, entry domain.RevocationEntry) error
	Contains(ctx context.Context, jti string) (bool, error)
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// burner is implemented by hashers that can spend a verify's worth of time
// on an unknown account.
type burner interface {
	Burn(password string)
}

// Config tunes the account state machine and password rules.
type Config struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	PasswordPolicy   auth.PasswordPolicy
}

func (c Config) withDefaults() Config {
	if c.LockoutThreshold <= 0 {
		c.LockoutThreshold = DefaultLockoutThreshold
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = DefaultLockoutDuration
	}
	if c.PasswordPolicy.MinLength == 0 {
		c.PasswordPolicy.MinLength = auth.MinPasswordLength
	}
	return c
}

// AuthService composes the codec, issuer, session store and revocation
// ledger into the authentication use cases.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionStore
	ledger   TokenLedger
	codec    *auth.Codec
	issuer   *auth.Issuer
	hasher   auth.PasswordHasher
	producer *event.Producer
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// Option customises an AuthService.
type Option func(*AuthService)

// WithClock sets the clock used for lockout decisions and revocation TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new auth service. producer may be nil.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionStore,
	ledger TokenLedger,
	codec *auth.Codec,
	issuer *auth.Issuer,
	hasher auth.PasswordHasher,
	producer *event.Producer,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		users:    users,
		sessions: sessions,
		ledger:   ledger,
		codec:    codec,
		issuer:   issuer,
		hasher:   hasher,
		producer: producer,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Inputs / Outputs ---

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Phone     string
	Role      string
}

// LoginInput holds the parameters for a login attempt.
type LoginInput struct {
	Email    string
	Password string
}

// ValidationResult is the answer given to other trust boundaries.
type ValidationResult struct {
	Valid     bool      `json:"valid"`
	Subject   string    `json:"subject,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// CleanupResult reports how many rows a cleanup pass removed.
type CleanupResult struct {
	Sessions    int64 `json:"sessions"`
	Revocations int64 `json:"revocations"`
}

// --- Use cases ---

// Register creates an active account and opens its first session.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, meta domain.SessionMeta) (*domain.User, *domain.TokenPair, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if strings.TrimSpace(input.FirstName) == "" {
		return nil, nil, apperrors.InvalidInput("first name is required")
	}
	if strings.TrimSpace(input.LastName) == "" {
		return nil, nil, apperrors.InvalidInput("last name is required")
	}
	if err := s.cfg.PasswordPolicy.Validate(input.Password); err != nil {
		return nil, nil, apperrors.InvalidInput(err.Error())
	}

	role := input.Role
	switch {
	case role == "":
		role = domain.RoleStandard
	case !domain.IsValidRole(role):
		return nil, nil, apperrors.InvalidInput(fmt.Sprintf("role must be one of %s", strings.Join(domain.ValidRoles(), ", ")))
	case role == domain.RoleAdmin:
		return nil, nil, apperrors.Forbidden("admin accounts cannot be self-registered")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, nil, apperrors.AlreadyExists("user", "email", email)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, s.internal(ctx, "look up email", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, nil, s.internal(ctx, "hash password", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Phone:        strings.TrimSpace(input.Phone),
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, nil, err
		}
		return nil, nil, s.internal(ctx, "create user", err)
	}

	tokens, err := s.startSession(ctx, user, meta)
	if err != nil {
		return nil, nil, err
	}

	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)

	return user, tokens, nil
}

// Login applies the account state machine and opens a session on success.
// Lock and inactive outcomes are reported explicitly; every other failure
// is the same invalid-credentials error.
func (s *AuthService) Login(ctx context.Context, input LoginInput, meta domain.SessionMeta) (*domain.User, *domain.TokenPair, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, nil, apperrors.InvalidInput("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if b, ok := s.hasher.(burner); ok {
				b.Burn(input.Password)
			}
			s.logger.WarnContext(ctx, "login failed", slog.String("reason", "unknown email"))
			return nil, nil, apperrors.Unauthorized(msgInvalidCredentials)
		}
		return nil, nil, s.internal(ctx, "look up user", err)
	}

	if !user.IsActive() {
		s.logger.WarnContext(ctx, "login rejected",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status),
		)
		return nil, nil, apperrors.AccountInactive(user.Status)
	}

	now := s.now().UTC()
	if user.IsLocked(now) {
		s.logger.WarnContext(ctx, "login rejected",
			slog.String("user_id", user.ID),
			slog.String("reason", "locked"),
		)
		return nil, nil, apperrors.Locked(user.LockRemaining(now))
	}

	if !s.hasher.Verify(user.PasswordHash, input.Password) {
		return nil, nil, s.recordFailure(ctx, user, now)
	}

	state := domain.LoginState{LastLoginAt: &now}
	if err := s.users.UpdateLoginState(ctx, user.ID, state); err != nil {
		return nil, nil, s.internal(ctx, "reset login state", err)
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	tokens, err := s.startSession(ctx, user, meta)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))

	return user, tokens, nil
}

// recordFailure counts a failed attempt in the store and sets the lock once
// the threshold is reached. An elapsed lock starts a fresh count. A guess
// that loses the race against a lock set by a parallel attempt is answered
// as locked.
func (s *AuthService) recordFailure(ctx context.Context, user *domain.User, now time.Time) error {
	until := now.Add(s.cfg.LockoutDuration)
	state, err := s.users.RecordLoginFailure(ctx, user.ID, now, s.cfg.LockoutThreshold, until)
	if err != nil && !errors.Is(err, repository.ErrLockedConcurrently) {
		return s.internal(ctx, "record failed login", err)
	}
	user.FailedLoginAttempts = state.FailedLoginAttempts
	user.LockedUntil = state.LockedUntil
	attempts := state.FailedLoginAttempts

	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "login rejected",
			slog.String("user_id", user.ID),
			slog.String("reason", "locked"),
		)
		return apperrors.Locked(user.LockRemaining(now))
	case state.LockedUntil != nil:
		s.logger.WarnContext(ctx, "account locked",
			slog.String("user_id", user.ID),
			slog.Int("failed_attempts", attempts),
			slog.Time("locked_until", *state.LockedUntil),
		)
		if err := s.producer.PublishAccountLocked(ctx, user.ID, attempts, *state.LockedUntil); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish account.locked event",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	default:
		s.logger.WarnContext(ctx, "login failed",
			slog.String("user_id", user.ID),
			slog.String("reason", "bad password"),
			slog.Int("failed_attempts", attempts),
		)
	}

	return apperrors.Unauthorized(msgInvalidCredentials)
}

// Logout revokes the access token and, when given, the refresh token. The
// access token must carry a valid signature for its jti to reach the ledger;
// only its expiry is ignored, and an expired token has nothing left to
// revoke. The refresh jti is taken from the stored session, so only a token
// that matched a live session is recorded.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if claims, err := s.codec.VerifyIgnoringExpiry(accessToken, domain.TokenKindAccess); err == nil {
		if err := s.revoke(ctx, &claims, domain.ReasonLogout); err != nil {
			return err
		}
	}

	if refreshToken != "" {
		rec, err := s.sessions.Revoke(ctx, refreshToken)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
		case err != nil:
			return s.internal(ctx, "revoke refresh session", err)
		default:
			claims := &domain.Claims{
				JTI:       rec.JTI,
				Kind:      domain.TokenKindRefresh,
				UserID:    rec.UserID,
				ExpiresAt: rec.ExpiresAt,
			}
			if err := s.revoke(ctx, claims, domain.ReasonLogout); err != nil {
				return err
			}
		}
	}

	s.logger.InfoContext(ctx, "user logged out", logger.TokenFingerprint(accessToken))
	return nil
}

// Refresh redeems a refresh token exactly once and returns a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta domain.SessionMeta) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidInput("refresh token is required")
	}

	verified, err := s.codec.Verify(refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return nil, apperrors.Unauthorized(msgInvalidToken)
	}
	claims := verified.Claims()

	revoked, err := s.ledger.Contains(ctx, claims.JTI)
	if err != nil {
		return nil, s.internal(ctx, "check refresh revocation", err)
	}
	if revoked {
		s.logger.WarnContext(ctx, "refresh rejected", slog.String("reason", "revoked"), slog.String("user_id", claims.UserID))
		return nil, apperrors.Unauthorized(msgInvalidToken)
	}

	rec, err := s.sessions.FindActive(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "refresh rejected", slog.String("reason", "no active session"), slog.String("user_id", claims.UserID))
			return nil, apperrors.Unauthorized(msgInvalidToken)
		}
		return nil, s.internal(ctx, "find session", err)
	}
	if rec.UserID != claims.UserID {
		s.logger.WarnContext(ctx, "refresh rejected", slog.String("reason", "session owner mismatch"))
		return nil, apperrors.Unauthorized(msgInvalidToken)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized(msgInvalidToken)
		}
		return nil, s.internal(ctx, "look up user", err)
	}
	if !user.IsActive() {
		s.logger.WarnContext(ctx, "refresh rejected", slog.String("reason", "account "+user.Status), slog.String("user_id", user.ID))
		return nil, apperrors.Unauthorized(msgInvalidToken)
	}

	if _, err := s.sessions.Rotate(ctx, refreshToken); err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionAlreadyRevoked):
			s.logger.WarnContext(ctx, "refresh token replay detected",
				slog.String("user_id", user.ID),
				slog.String("session_id", rec.ID),
			)
			return nil, apperrors.Unauthorized(msgInvalidToken)
		case errors.Is(err, repository.ErrSessionNotFound):
			return nil, apperrors.Unauthorized(msgInvalidToken)
		default:
			return nil, s.internal(ctx, "rotate session", err)
		}
	}

	tokens, err := s.startSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))

	return tokens, nil
}

// VerifyAccessToken fully checks an access token: signature, claims, kind
// and revocation. Every rejection is the same unauthorized error.
func (s *AuthService) VerifyAccessToken(ctx context.Context, token string) (*domain.Claims, error) {
	verified, err := s.codec.Verify(token, domain.TokenKindAccess)
	if err != nil {
		return nil, apperrors.Unauthorized(msgInvalidToken)
	}
	res, err := s.ValidateToken(ctx, verified)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, apperrors.Unauthorized(msgInvalidToken)
	}
	claims := verified.Claims()
	return &claims, nil
}

// ValidateToken answers revocation status for a token that Codec.Verify
// already accepted. It does not re-check the signature; the parameter type
// guarantees that check happened.
func (s *AuthService) ValidateToken(ctx context.Context, verified auth.VerifiedToken) (*ValidationResult, error) {
	if verified.IsZero() {
		return &ValidationResult{Valid: false}, nil
	}
	claims := verified.Claims()

	revoked, err := s.ledger.Contains(ctx, claims.JTI)
	if err != nil {
		return nil, s.internal(ctx, "check revocation", err)
	}
	if revoked {
		return &ValidationResult{Valid: false}, nil
	}

	return &ValidationResult{
		Valid:     true,
		Subject:   claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// ValidateAccessToken verifies a raw token and reports its status. Bad
// tokens are an answer, not an error.
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (*ValidationResult, error) {
	verified, err := s.codec.Verify(token, domain.TokenKindAccess)
	if err != nil {
		return &ValidationResult{Valid: false}, nil
	}
	return s.ValidateToken(ctx, verified)
}

// RevokeAllUserTokens revokes every stored refresh session of targetUserID.
// Only the account itself or an admin may do this. Access tokens already
// issued stay valid until their own expiry.
func (s *AuthService) RevokeAllUserTokens(ctx context.Context, actor *domain.Claims, targetUserID string) (int64, error) {
	if actor == nil {
		return 0, apperrors.Unauthorized("authentication required")
	}
	if targetUserID == "" {
		targetUserID = actor.UserID
	}
	if targetUserID != actor.UserID && actor.Role != domain.RoleAdmin {
		return 0, apperrors.Forbidden("only administrators can revoke sessions of other accounts")
	}

	reason := domain.ReasonLogout
	if targetUserID != actor.UserID {
		reason = domain.ReasonAdmin
	}
	return s.revokeAll(ctx, targetUserID, reason)
}

func (s *AuthService) revokeAll(ctx context.Context, userID, reason string) (int64, error) {
	n, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, s.internal(ctx, "revoke user sessions", err)
	}

	if err := s.producer.PublishSessionsRevoked(ctx, userID, n, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish sessions.revoked event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user sessions revoked",
		slog.String("user_id", userID),
		slog.Int64("revoked", n),
		slog.String("reason", reason),
	)
	return n, nil
}

// ListSessions returns the active refresh sessions of userID.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*domain.RefreshRecord, error) {
	sessions, err := s.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, s.internal(ctx, "list sessions", err)
	}
	return sessions, nil
}

// RevokeSession ends one session of userID and blacklists its refresh jti.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	rec, err := s.sessions.RevokeByID(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return s.internal(ctx, "revoke session", err)
	}

	if rec.JTI != "" {
		claims := &domain.Claims{
			UserID:    rec.UserID,
			JTI:       rec.JTI,
			Kind:      domain.TokenKindRefresh,
			ExpiresAt: rec.ExpiresAt,
		}
		if err := s.revoke(ctx, claims, domain.ReasonLogout); err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "session revoked",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)
	return nil
}

// ChangePassword replaces the password after checking the current one and
// ends every session of the account.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return apperrors.InvalidInput("current and new password are required")
	}
	if currentPassword == newPassword {
		return apperrors.InvalidInput("new password must differ from the current password")
	}
	if err := s.cfg.PasswordPolicy.Validate(newPassword); err != nil {
		return apperrors.InvalidInput(err.Error())
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Unauthorized("authentication required")
		}
		return s.internal(ctx, "look up user", err)
	}
	if !s.hasher.Verify(user.PasswordHash, currentPassword) {
		return apperrors.Unauthorized("current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.internal(ctx, "hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return s.internal(ctx, "update password", err)
	}

	if _, err := s.revokeAll(ctx, userID, domain.ReasonPasswordChange); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", userID))
	return nil
}

// CleanupExpiredTokens purges expired sessions and sweeps the durable
// revocation tier.
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (CleanupResult, error) {
	now := s.now().UTC()

	var res CleanupResult
	n, err := s.sessions.PurgeExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("purge sessions: %w", err)
	}
	res.Sessions = n

	n, err = s.ledger.Sweep(ctx, now)
	if err != nil {
		return res, fmt.Errorf("sweep revocations: %w", err)
	}
	res.Revocations = n

	s.logger.InfoContext(ctx, "expired tokens cleaned up",
		slog.Int64("sessions", res.Sessions),
		slog.Int64("revocations", res.Revocations),
	)
	return res, nil
}

// --- helpers ---

// startSession mints a pair and persists its refresh record.
func (s *AuthService) startSession(ctx context.Context, user *domain.User, meta domain.SessionMeta) (*domain.TokenPair, error) {
	pair, err := s.issuer.IssuePair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, s.internal(ctx, "issue tokens", err)
	}

	rec := &domain.RefreshRecord{
		JTI:       pair.RefreshJTI,
		Token:     pair.RefreshToken,
		UserID:    user.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		ExpiresAt: pair.RefreshExpiresAt,
	}
	if err := s.sessions.Save(ctx, rec); err != nil {
		return nil, s.internal(ctx, "save session", err)
	}

	return pair, nil
}

// revoke adds claims' jti to the ledger until the token's own expiry.
func (s *AuthService) revoke(ctx context.Context, claims *domain.Claims, reason string) error {
	if claims.JTI == "" || claims.RemainingTTL(s.now()) <= 0 {
		return nil
	}
	entry := domain.RevocationEntry{
		JTI:       claims.JTI,
		Kind:      claims.Kind,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt,
		Reason:    reason,
	}
	if err := s.ledger.Add(ctx, entry); err != nil {
		return s.internal(ctx, "record revocation", err)
	}
	return nil
}

// internal logs err with detail and returns the generic internal error.
func (s *AuthService) internal(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "auth operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return apperrors.Internal(fmt.Errorf("%s: %w", op, err))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
