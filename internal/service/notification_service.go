package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/proptrade-auth/internal/config"
	"github.com/spec-kit/proptrade-auth/internal/events"
	"github.com/spec-kit/proptrade-auth/internal/mail"
)

// MailQueue accepts rendered email for asynchronous delivery.
type MailQueue interface {
	Enqueue(msg mail.Message) bool
}

// NotificationService turns account events into outbound email.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	queue      MailQueue
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig, queue MailQueue) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		queue:      queue,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventVerificationRequested, n.handleVerificationRequested)
	n.dispatcher.Subscribe(events.EventAccountVerified, n.handleAccountVerified)
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handlePasswordResetRequested)
	n.dispatcher.Subscribe(events.EventPasswordChanged, n.handlePasswordChanged)
}

func (n *NotificationService) handleVerificationRequested(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.VerificationRequestedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	link := n.link("verify-email", payload.Token)
	n.enqueue(event, mail.Message{
		To:      payload.Email,
		ToName:  payload.FirstName,
		Subject: "Verify Your Email - PropTradePro",
		PlainText: fmt.Sprintf("Hi %s,\n\nTo complete your registration, verify your email address:\n%s\n\nThis link expires at %s.\n",
			payload.FirstName, link, payload.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")),
		HTML: fmt.Sprintf(`<p>Hi %s,</p><p>To complete your registration, verify your email address:</p><p><a href="%s">Verify Email</a></p>`,
			html.EscapeString(payload.FirstName), html.EscapeString(link)),
	})
	return nil
}

func (n *NotificationService) handleAccountVerified(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AccountVerifiedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.enqueue(event, mail.Message{
		To:        payload.Email,
		ToName:    payload.FirstName,
		Subject:   "Welcome to PropTradePro!",
		PlainText: fmt.Sprintf("Hi %s,\n\nYour email address is verified. Welcome aboard.\n", payload.FirstName),
		HTML:      fmt.Sprintf("<p>Hi %s,</p><p>Your email address is verified. Welcome aboard.</p>", html.EscapeString(payload.FirstName)),
	})
	return nil
}

func (n *NotificationService) handlePasswordResetRequested(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PasswordResetRequestedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	link := n.link("reset-password", payload.Token)
	n.enqueue(event, mail.Message{
		To:      payload.Email,
		ToName:  payload.FirstName,
		Subject: "Reset Your Password - PropTradePro",
		PlainText: fmt.Sprintf("Hi %s,\n\nWe received a request to reset your password:\n%s\n\nIf you didn't request a password reset, ignore this email and your password will remain unchanged.\n",
			payload.FirstName, link),
		HTML: fmt.Sprintf(`<p>Hi %s,</p><p>We received a request to reset your password.</p><p><a href="%s">Reset Password</a></p><p>If you didn't request a password reset, ignore this email.</p>`,
			html.EscapeString(payload.FirstName), html.EscapeString(link)),
	})
	return nil
}

func (n *NotificationService) handlePasswordChanged(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PasswordChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	body := "Your PropTradePro password was just changed. If this wasn't you, reset it immediately."
	n.enqueue(event, mail.Message{
		To:        payload.Email,
		ToName:    payload.FirstName,
		Subject:   "Your Password Was Changed - PropTradePro",
		PlainText: fmt.Sprintf("Hi %s,\n\n%s\n", payload.FirstName, body),
		HTML:      fmt.Sprintf("<p>Hi %s,</p><p>%s</p>", html.EscapeString(payload.FirstName), body),
	})
	return nil
}

func (n *NotificationService) enqueue(event events.Event, msg mail.Message) {
	if n.queue == nil || strings.TrimSpace(msg.To) == "" {
		return
	}
	if n.queue.Enqueue(msg) {
		n.logger.Info("notification queued",
			zap.String("event_type", string(event.Type)),
			zap.String("account_id", event.AccountID))
	}
}

func (n *NotificationService) link(path, token string) string {
	return fmt.Sprintf("%s/%s/%s", n.cfg.FrontendURL, path, token)
}
