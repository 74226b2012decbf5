// Package notify delivers out-of-band security messages to principals:
// lockout warnings, login notices, breach alerts, and password-reset links.
//
// The Engine treats delivery as best-effort: a failed notification never
// fails the authentication operation that triggered it.
package notify

import "context"

// Event identifies the kind of security message being sent.
type Event string

const (
	// EventLockoutWarning fires at the failed-attempt warning threshold.
	EventLockoutWarning Event = "lockout_warning"
	// EventAccountLocked fires when the lockout threshold is reached.
	EventAccountLocked Event = "account_locked"
	// EventSecurityAlert fires on high-risk logins and detected breaches.
	EventSecurityAlert Event = "security_alert"
	// EventLoginNotice fires on logins by high-privilege principals.
	EventLoginNotice Event = "login_notice"
	// EventPasswordReset carries the reset token out of band.
	EventPasswordReset Event = "password_reset"
	// EventPasswordChanged confirms a completed credential change.
	EventPasswordChanged Event = "password_changed"
)

// Message is one notification addressed to a principal's email.
type Message struct {
	Event Event
	Email string
	// Token is set only for EventPasswordReset.
	Token string
	// Detail is free-form context (e.g. login IP, risk reasons).
	Detail string
}

// Notifier sends security messages. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NoOp discards all messages.
type NoOp struct{}

// Send implements [Notifier].
func (NoOp) Send(context.Context, Message) error { return nil }
