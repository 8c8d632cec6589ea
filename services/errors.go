package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionClosed is returned for operations on a session the caller already closed.
	ErrSessionClosed = errors.New("payment session closed")
	// ErrSessionAlreadyOpen is returned when Open is called twice on one reconciler.
	ErrSessionAlreadyOpen = errors.New("payment session already open")
	// ErrCancelInProgress is returned when a second cancel overlaps a pending one.
	ErrCancelInProgress = errors.New("cancellation already in progress")
	// ErrUnknownOrder is returned by providers that cannot map an order code to a payment.
	ErrUnknownOrder = errors.New("unknown order code")
	// ErrRenderResolutionExhausted marks a QR decision that fell back to raw payload display.
	ErrRenderResolutionExhausted = errors.New("qr render strategies exhausted")
)

// InvalidSessionError rejects a session that cannot be started, typically
// because it is already past its expiry when opened.
type InvalidSessionError struct {
	PaymentID string
	ExpiresAt time.Time
	Reason    string
}

func (e *InvalidSessionError) Error() string {
	return fmt.Sprintf("invalid payment session %q: %s", e.PaymentID, e.Reason)
}

// TransientFetchError wraps a failed status fetch. The poller retries on the
// next interval; it is never surfaced to the user.
type TransientFetchError struct {
	PaymentID string
	Err       error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("status fetch for %q failed: %v", e.PaymentID, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// CancelFailedError is returned when the remote cancel call fails. The session
// stays open and its status unchanged.
type CancelFailedError struct {
	OrderCode int64
	Err       error
}

func (e *CancelFailedError) Error() string {
	return fmt.Sprintf("cancel of order %d failed: %v", e.OrderCode, e.Err)
}

func (e *CancelFailedError) Unwrap() error { return e.Err }
