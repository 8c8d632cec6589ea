package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"paysession/services"
	"paysession/templates"
	"paysession/utils"
)

// ErrNoActiveSession is returned when an operation needs a session and none is open.
var ErrNoActiveSession = errors.New("no active payment session")

// orderTracker is implemented by providers that must learn which payment
// belongs to an order code before they can cancel it.
type orderTracker interface {
	Track(orderCode int64, paymentID string)
}

// ActiveSession is the open payment session and its QR presentation.
type ActiveSession struct {
	Intent     services.PaymentIntent
	Reconciler *services.Reconciler
	QR         *services.QRPresenter
	OpenedAt   time.Time
}

// View returns the JSON shape of the session.
func (a *ActiveSession) View() templates.SessionView {
	snap := a.Reconciler.Snapshot()
	view := templates.SessionView{
		PaymentID:        a.Intent.PaymentID,
		OrderCode:        a.Intent.OrderCode,
		Status:           snap.Status.String(),
		ExpiresAt:        a.Intent.ExpiresAt,
		RemainingSeconds: snap.RemainingSeconds,
		PollingActive:    snap.PollingActive,
		SuccessNotified:  snap.SuccessNotified,
	}
	if a.QR != nil {
		if d, ok := a.QR.Current(); ok {
			view.QRStrategy = string(d.Strategy)
			view.QRAction = string(d.Action)
		}
	}
	return view
}

// SessionManager holds at most one active payment session. Opening a new
// session closes the previous one.
type SessionManager struct {
	remote   services.RemoteService
	resolver *services.QRResolver
	events   *SSEBroadcaster
	opts     services.ReconcilerOptions

	mutex  sync.RWMutex
	active *ActiveSession
}

// NewSessionManager creates a new session manager
func NewSessionManager(remote services.RemoteService, resolver *services.QRResolver, events *SSEBroadcaster, opts services.ReconcilerOptions) *SessionManager {
	if events == nil {
		events = NewSSEBroadcaster()
	}
	return &SessionManager{
		remote:   remote,
		resolver: resolver,
		events:   events,
		opts:     opts,
	}
}

// Events returns the broadcaster session notifications are pushed to.
func (m *SessionManager) Events() *SSEBroadcaster {
	return m.events
}

// Open starts a session for intent, resolves its QR payload and makes it the
// active session. An invalid intent leaves the current session untouched.
func (m *SessionManager) Open(ctx context.Context, intent services.PaymentIntent) (*ActiveSession, error) {
	listener := &sessionEvents{intent: intent, events: m.events}
	rec := services.NewReconciler(m.remote, listener, m.opts)
	if err := rec.Open(intent); err != nil {
		return nil, err
	}

	if t, ok := m.remote.(orderTracker); ok {
		t.Track(intent.OrderCode, intent.PaymentID)
	}

	a := &ActiveSession{
		Intent:     intent,
		Reconciler: rec,
		OpenedAt:   time.Now(),
	}
	payload := qrPayloadFor(intent)
	if payload != "" && m.resolver != nil {
		a.QR = services.NewQRPresenter(m.resolver, listener.OnQRChange)
	}

	m.mutex.Lock()
	prev := m.active
	m.active = a
	m.mutex.Unlock()

	if prev != nil {
		utils.Info("session", "Replacing active session", "previous_payment_id", prev.Intent.PaymentID, "payment_id", intent.PaymentID)
		m.closeSession(prev, prev.Intent.PaymentID != intent.PaymentID)
	}

	if a.QR != nil {
		a.QR.SetPayload(ctx, payload)
	}
	return a, nil
}

// qrPayloadFor prefers the explicit QR payload and falls back to the checkout URL.
func qrPayloadFor(intent services.PaymentIntent) string {
	if intent.QRPayload != "" {
		return intent.QRPayload
	}
	return intent.CheckoutURL
}

// Current returns the active session.
func (m *SessionManager) Current() (*ActiveSession, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.active, m.active != nil
}

// ForPayment returns the active session if it tracks paymentID.
func (m *SessionManager) ForPayment(paymentID string) (*ActiveSession, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.active == nil || m.active.Intent.PaymentID != paymentID {
		return nil, false
	}
	return m.active, true
}

// Cancel requests cancellation of the active session's order.
func (m *SessionManager) Cancel(ctx context.Context) (*ActiveSession, error) {
	a, ok := m.Current()
	if !ok {
		return nil, ErrNoActiveSession
	}
	return a, a.Reconciler.RequestCancel(ctx)
}

// Close ends the active session: its countdown and poller stop and its
// event streams are closed.
func (m *SessionManager) Close() error {
	m.mutex.Lock()
	a := m.active
	m.active = nil
	m.mutex.Unlock()

	if a == nil {
		return ErrNoActiveSession
	}
	m.closeSession(a, true)
	return nil
}

func (m *SessionManager) closeSession(a *ActiveSession, closeStreams bool) {
	a.Reconciler.Close()
	if closeStreams {
		m.events.ClosePayment(a.Intent.PaymentID)
	}
	utils.Info("session", "Session closed", "payment_id", a.Intent.PaymentID, "status", a.Reconciler.Status())
}

// Shutdown closes any active session.
func (m *SessionManager) Shutdown() {
	if err := m.Close(); err != nil && !errors.Is(err, ErrNoActiveSession) {
		utils.Error("session", "Error closing session on shutdown", "error", err)
	}
}
