package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
	pkgkafka "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/kafka"
)

// Kafka topics for auth domain events.
var (
	TopicUserRegistered  = pkgkafka.Topic("user", "registered")
	TopicAccountLocked   = pkgkafka.Topic("account", "locked")
	TopicSessionsRevoked = pkgkafka.Topic("sessions", "revoked")
)

// AggregateTypeAccount is the aggregate type of every auth event.
const AggregateTypeAccount = "account"

// SourceAuthService identifies events originating from this service.
const SourceAuthService = "auth-service"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// AccountLockedData is the payload for an account.locked event.
type AccountLockedData struct {
	UserID         string    `json:"user_id"`
	FailedAttempts int       `json:"failed_attempts"`
	LockedUntil    time.Time `json:"locked_until"`
}

// SessionsRevokedData is the payload for a sessions.revoked event.
type SessionsRevokedData struct {
	UserID  string `json:"user_id"`
	Revoked int64  `json:"revoked"`
	Reason  string `json:"reason"`
}

// publisher is the subset of *pkgkafka.Producer used here.
type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes auth domain events to Kafka. A nil *Producer is valid
// and publishes nothing.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, user.ID, UserRegisteredData{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	})
}

// PublishAccountLocked publishes an account.locked event.
func (p *Producer) PublishAccountLocked(ctx context.Context, userID string, attempts int, until time.Time) error {
	return p.publish(ctx, TopicAccountLocked, userID, AccountLockedData{
		UserID:         userID,
		FailedAttempts: attempts,
		LockedUntil:    until.UTC(),
	})
}

// PublishSessionsRevoked publishes a sessions.revoked event.
func (p *Producer) PublishSessionsRevoked(ctx context.Context, userID string, revoked int64, reason string) error {
	return p.publish(ctx, TopicSessionsRevoked, userID, SessionsRevokedData{
		UserID:  userID,
		Revoked: revoked,
		Reason:  reason,
	})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	if p == nil || p.kafka == nil {
		return nil
	}

	event, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeAccount, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	event.WithContext(ctx)

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published auth event",
		slog.String("topic", topic),
		slog.String("user_id", aggregateID),
	)

	return nil
}
