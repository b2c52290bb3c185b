// Package notify provides the channel sender interfaces the dispatcher
// invokes, their SMTP and SMS-gateway implementations, and the message
// template store.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured indicates the channel sender has no usable
// configuration for this deployment. Dispatch fails fast on it and does
// not retry.
var ErrNotConfigured = errors.New("channel sender not configured")

// TransientError wraps a failure worth retrying (network error, timeout,
// provider 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient delivery error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// SendResult is the provider's view of one accepted message.
type SendResult struct {
	ProviderID string
	Delivered  bool // true only when the provider confirms delivery, not just acceptance
}

// EmailSender delivers one email. Implementations classify failures as
// ErrNotConfigured, TransientError, or a permanent error.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (*SendResult, error)
}

// SMSSender delivers one text message with the same error classification.
type SMSSender interface {
	SendSMS(ctx context.Context, to, text string) (*SendResult, error)
}
