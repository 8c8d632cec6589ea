package services

import (
	"context"
	"strings"
	"time"
)

// Status is the lifecycle state of a payment session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusRefunded  Status = "refunded"
	StatusUnknown   Status = "unknown"
)

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCancelled, StatusExpired, StatusRefunded:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus maps a provider status string onto Status. Matching is
// case-insensitive; unrecognized values map to StatusUnknown.
func ParseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "PROCESSING", "OPEN", "REQUIRES_PAYMENT_METHOD", "REQUIRES_ACTION":
		return StatusPending
	case "PAID", "SUCCEEDED", "SUCCESS", "COMPLETED", "COMPLETE":
		return StatusPaid
	case "FAILED", "DECLINED":
		return StatusFailed
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	case "EXPIRED":
		return StatusExpired
	case "REFUNDED":
		return StatusRefunded
	default:
		return StatusUnknown
	}
}

// PaymentIntent is a previously created payment the session tracks.
type PaymentIntent struct {
	PaymentID   string
	OrderCode   int64
	CheckoutURL string
	QRPayload   string
	ExpiresAt   time.Time
	Amount      int64
	Description string
}

// PaymentSession is the aggregate owned by a Reconciler. Only the reconciler
// mutates Status, SuccessNotified and PollingActive.
type PaymentSession struct {
	PaymentID string
	OrderCode int64
	ExpiresAt time.Time

	Status          Status
	SuccessNotified bool
	PollingActive   bool
}

// SessionSnapshot is a read-only copy of a session handed to listeners.
type SessionSnapshot struct {
	PaymentID        string
	OrderCode        int64
	ExpiresAt        time.Time
	Status           Status
	SuccessNotified  bool
	PollingActive    bool
	RemainingSeconds int
}

func (s *PaymentSession) snapshot(now time.Time) SessionSnapshot {
	return SessionSnapshot{
		PaymentID:        s.PaymentID,
		OrderCode:        s.OrderCode,
		ExpiresAt:        s.ExpiresAt,
		Status:           s.Status,
		SuccessNotified:  s.SuccessNotified,
		PollingActive:    s.PollingActive,
		RemainingSeconds: RemainingSeconds(s.ExpiresAt, now),
	}
}

// RemoteStatus is one status observation from the payment service.
type RemoteStatus struct {
	Status    Status
	IsExpired bool
	Raw       string
}

// StatusFetcher reads the current status of a payment. It must be safe to
// call repeatedly.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, paymentID string) (RemoteStatus, error)
}

// Canceller cancels an order. Cancelling an already cancelled order succeeds.
type Canceller interface {
	Cancel(ctx context.Context, orderCode int64) error
}

// RemoteService is the payment service a session reconciles against.
type RemoteService interface {
	StatusFetcher
	Canceller
}

// SessionListener receives session notifications for the presentation layer.
// Callbacks run outside the reconciler lock but must not block for long.
type SessionListener interface {
	OnStateChange(status Status)
	OnSuccess(snapshot SessionSnapshot)
	OnRemaining(seconds int)
}

// ListenerFuncs adapts optional functions to SessionListener. Nil fields are skipped.
type ListenerFuncs struct {
	StateChange func(Status)
	Success     func(SessionSnapshot)
	Remaining   func(int)
}

func (f ListenerFuncs) OnStateChange(status Status) {
	if f.StateChange != nil {
		f.StateChange(status)
	}
}

func (f ListenerFuncs) OnSuccess(snapshot SessionSnapshot) {
	if f.Success != nil {
		f.Success(snapshot)
	}
}

func (f ListenerFuncs) OnRemaining(seconds int) {
	if f.Remaining != nil {
		f.Remaining(seconds)
	}
}
