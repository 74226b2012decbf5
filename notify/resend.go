package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendConfig configures the Resend-backed notifier.
type ResendConfig struct {
	APIKey    string
	FromName  string
	FromEmail string
	// ResetURL is the page that consumes password-reset tokens.
	ResetURL string
}

// Resend delivers notifications through the Resend email API.
type Resend struct {
	client *resend.Client
	config ResendConfig
}

// NewResend validates cfg and returns a Resend notifier.
func NewResend(cfg ResendConfig) (*Resend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("resend API key is required")
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("from email is required")
	}
	return &Resend{client: resend.NewClient(cfg.APIKey), config: cfg}, nil
}

// Send implements [Notifier].
func (r *Resend) Send(ctx context.Context, msg Message) error {
	subject, body := r.render(msg)

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", r.config.FromName, r.config.FromEmail),
		To:      []string{msg.Email},
		Subject: subject,
		Text:    body,
	}
	if _, err := r.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send %s notification: %w", msg.Event, err)
	}
	return nil
}

func (r *Resend) render(msg Message) (subject, body string) {
	switch msg.Event {
	case EventLockoutWarning:
		return "Repeated failed sign-in attempts",
			"We noticed several failed sign-in attempts on your account. If this was not you, consider resetting your password."
	case EventAccountLocked:
		return "Your account has been temporarily locked",
			"Too many failed sign-in attempts. Your account is locked for a short period. " + msg.Detail
	case EventSecurityAlert:
		return "Security alert on your account",
			"We detected unusual activity on your account. " + msg.Detail
	case EventLoginNotice:
		return "New sign-in to your account",
			"A new sign-in to your account was recorded. " + msg.Detail
	case EventPasswordReset:
		return "Reset your password",
			fmt.Sprintf("Use the link below to reset your password. The link expires soon.\n\n%s?token=%s", r.config.ResetURL, msg.Token)
	case EventPasswordChanged:
		return "Your password was changed",
			"Your password was changed and all existing sessions were signed out. If this was not you, contact support immediately."
	default:
		return "Account notification", msg.Detail
	}
}
