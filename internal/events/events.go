package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	TypeUserRegistered         = "auth.user_registered"
	TypeUserVerified           = "auth.user_verified"
	TypeLoginSucceeded         = "auth.login_succeeded"
	TypeLogout                 = "auth.logout"
	TypeRefreshReuseDetected   = "auth.refresh_reuse_detected"
	TypePasswordResetCompleted = "auth.password_reset_completed"

	TypeVerificationCode  = "notify.verification_code"
	TypeOTPCode           = "notify.otp_code"
	TypePasswordResetLink = "notify.password_reset_link"
)

type Envelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	EventVersion  int       `json:"event_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func newEnvelope(eventType, correlationID string, now time.Time) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		Timestamp:     now.UTC(),
		CorrelationID: correlationID,
	}
}

type LifecycleEvent struct {
	Envelope
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	IP     string `json:"ip,omitempty"`
}

type NotificationEvent struct {
	Envelope
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Code   string `json:"code,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Emitter publishes typed auth events. All emits are best effort: a
// broker outage must not fail the request that triggered the event, so
// errors are logged and swallowed. A nil Emitter is a no-op.
type Emitter struct {
	publisher          Publisher
	lifecycleTopic     string
	notificationsTopic string
	logger             *slog.Logger
	now                func() time.Time
}

func NewEmitter(publisher Publisher, lifecycleTopic, notificationsTopic string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		publisher:          publisher,
		lifecycleTopic:     lifecycleTopic,
		notificationsTopic: notificationsTopic,
		logger:             logger,
		now:                time.Now,
	}
}

func (e *Emitter) Lifecycle(ctx context.Context, eventType, userID, email, ip, correlationID string) {
	if e == nil || e.publisher == nil {
		return
	}
	evt := LifecycleEvent{
		Envelope: newEnvelope(eventType, correlationID, e.now()),
		UserID:   userID,
		Email:    email,
		IP:       ip,
	}
	if _, _, err := e.publisher.PublishJSON(ctx, e.lifecycleTopic, userID, evt); err != nil {
		e.logger.Error("emit lifecycle event failed", "event_type", eventType, "error", err)
	}
}

func (e *Emitter) VerificationCode(ctx context.Context, userID, email, code, correlationID string) {
	e.notify(ctx, NotificationEvent{
		Envelope: e.envelope(TypeVerificationCode, correlationID),
		UserID:   userID,
		Email:    email,
		Code:     code,
	}, userID)
}

func (e *Emitter) OTPCode(ctx context.Context, phone, code, correlationID string) {
	e.notify(ctx, NotificationEvent{
		Envelope: e.envelope(TypeOTPCode, correlationID),
		Phone:    phone,
		Code:     code,
	}, phone)
}

func (e *Emitter) PasswordResetLink(ctx context.Context, userID, email, token, correlationID string) {
	e.notify(ctx, NotificationEvent{
		Envelope: e.envelope(TypePasswordResetLink, correlationID),
		UserID:   userID,
		Email:    email,
		Token:    token,
	}, userID)
}

func (e *Emitter) envelope(eventType, correlationID string) Envelope {
	if e == nil {
		return Envelope{}
	}
	return newEnvelope(eventType, correlationID, e.now())
}

func (e *Emitter) notify(ctx context.Context, evt NotificationEvent, key string) {
	if e == nil || e.publisher == nil {
		return
	}
	if _, _, err := e.publisher.PublishJSON(ctx, e.notificationsTopic, key, evt); err != nil {
		e.logger.Error("emit notification event failed", "event_type", evt.EventType, "error", err)
	}
}

func (e *Emitter) Close() error {
	if e == nil || e.publisher == nil {
		return nil
	}
	return e.publisher.Close()
}
