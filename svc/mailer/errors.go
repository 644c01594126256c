package mailer

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig    = errors.New("mailer: invalid configuration")
	ErrInvalidParams    = errors.New("mailer: invalid send parameters")
	ErrSendFailed       = errors.New("mailer: failed to send email")
	ErrStoreRequired    = errors.New("mailer: ledger store is required")
	ErrSenderRequired   = errors.New("mailer: email sender is required")
	ErrRendererRequired = errors.New("mailer: template renderer is required")
	ErrMissingKey       = errors.New("mailer: idempotency key is required")
	ErrUnknownTemplate  = errors.New("mailer: unknown template")
)

// SendError carries the provider response so callers can tell a
// configuration problem from a transient outage.
type SendError struct {
	StatusCode int   // HTTP status, 0 for network-level failures
	ErrorCode  int64 // provider API error code, 0 when not applicable
	Message    string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("mailer: provider rejected send (status=%d code=%d): %s",
		e.StatusCode, e.ErrorCode, e.Message)
}

func (e *SendError) Unwrap() error { return ErrSendFailed }

// Transient reports whether the failure is worth retrying: rate limits,
// server-side errors, and network failures. Provider-level rejections such
// as an inactive recipient are permanent.
func (e *SendError) Transient() bool {
	if e.StatusCode == 0 && e.ErrorCode == 0 {
		return true // network-level failure
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsTransient classifies any error for retry purposes.
func IsTransient(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return false
}
