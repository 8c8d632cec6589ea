package services

import (
	"sync"
	"time"

	"paysession/utils"
)

// ReconcilerOptions tunes a Reconciler. Zero values take the defaults.
type ReconcilerOptions struct {
	PollInterval  time.Duration // default 5s
	TickInterval  time.Duration // default 1s
	FetchTimeout  time.Duration // default 10s
	CancelTimeout time.Duration // default 15s
	Now           func() time.Time
}

func (o ReconcilerOptions) withDefaults() ReconcilerOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.CancelTimeout <= 0 {
		o.CancelTimeout = 15 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Reconciler is the single authority over a payment session's status. It
// merges countdown expiry, poll results and cancellation into transitions
// and delivers the success notification at most once.
type Reconciler struct {
	remote   RemoteService
	listener SessionListener
	opts     ReconcilerOptions

	// notifyMu orders listener callbacks; it is taken after mu is released.
	notifyMu sync.Mutex

	mu         sync.Mutex
	session    *PaymentSession
	closed     bool
	cancelling bool
	held       *RemoteStatus
	countdown  *Countdown
	poller     *Poller
}

// NewReconciler builds a reconciler for one session. listener may be nil.
func NewReconciler(remote RemoteService, listener SessionListener, opts ReconcilerOptions) *Reconciler {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	return &Reconciler{
		remote:   remote,
		listener: listener,
		opts:     opts.withDefaults(),
	}
}

// notification is a listener callback captured under the lock and
// dispatched after it is released.
type notification func(SessionListener)

func (r *Reconciler) dispatch(notes []notification) {
	if len(notes) == 0 {
		return
	}
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	for _, n := range notes {
		n(r.listener)
	}
}

// Open starts tracking intent: status becomes pending and the countdown and
// poller start. An intent already past its expiry is rejected with
// *InvalidSessionError and nothing is started.
func (r *Reconciler) Open(intent PaymentIntent) error {
	now := r.opts.Now()
	if intent.PaymentID == "" {
		return &InvalidSessionError{PaymentID: intent.PaymentID, ExpiresAt: intent.ExpiresAt, Reason: "missing payment id"}
	}
	if !intent.ExpiresAt.After(now) {
		return &InvalidSessionError{PaymentID: intent.PaymentID, ExpiresAt: intent.ExpiresAt, Reason: "already expired"}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrSessionClosed
	}
	if r.session != nil {
		r.mu.Unlock()
		return ErrSessionAlreadyOpen
	}

	r.session = &PaymentSession{
		PaymentID: intent.PaymentID,
		OrderCode: intent.OrderCode,
		ExpiresAt: intent.ExpiresAt,
		Status:    StatusPending,
	}
	r.countdown = NewCountdown(intent.ExpiresAt, r.opts.TickInterval, r.opts.Now, r.onTick, r.OnTimerExpire)
	r.poller = NewPoller(r.remote, intent.PaymentID, r.opts.PollInterval, r.opts.FetchTimeout, r.OnPollResult)
	r.session.PollingActive = true
	countdown, poller := r.countdown, r.poller
	r.mu.Unlock()

	utils.Info("session", "Payment session opened",
		"payment_id", intent.PaymentID,
		"order_code", intent.OrderCode,
		"expires_at", intent.ExpiresAt,
	)
	transitions.WithLabelValues(string(StatusPending)).Inc()
	r.listener.OnStateChange(StatusPending)

	countdown.Start()
	poller.Start()
	return nil
}

// OnPollResult applies a remote status observation. It is a no-op once the
// session is terminal or closed.
func (r *Reconciler) OnPollResult(result RemoteStatus) {
	r.mu.Lock()
	if r.session == nil || r.closed || r.session.Status.IsTerminal() {
		r.mu.Unlock()
		return
	}
	if r.cancelling {
		// applied only if the cancel call fails
		held := result
		r.held = &held
		r.mu.Unlock()
		return
	}
	notes := r.applyPollLocked(result)
	r.mu.Unlock()

	r.dispatch(notes)
}

// applyPollLocked maps a remote status onto a transition. Must hold r.mu.
func (r *Reconciler) applyPollLocked(result RemoteStatus) []notification {
	next := result.Status
	switch {
	case next == StatusUnknown:
		utils.Warn("session", "Ignoring unrecognized remote status",
			"payment_id", r.session.PaymentID, "raw", result.Raw)
		return nil
	case next == StatusPending:
		if result.IsExpired || Remaining(r.session.ExpiresAt, r.opts.Now()) <= 0 {
			next = StatusExpired
		} else {
			return nil
		}
	}
	return r.transitionLocked(next, "poll")
}

// OnTimerExpire moves a pending session to expired. It is a no-op when a
// terminal state was already recorded.
func (r *Reconciler) OnTimerExpire() {
	r.mu.Lock()
	if r.session == nil || r.closed || r.session.Status.IsTerminal() {
		r.mu.Unlock()
		return
	}
	notes := r.transitionLocked(StatusExpired, "timer")
	r.mu.Unlock()

	r.dispatch(notes)
}

// transitionLocked records a terminal status, stops the countdown and poller
// and returns the notifications to deliver. Must hold r.mu.
func (r *Reconciler) transitionLocked(next Status, source string) []notification {
	s := r.session
	prev := s.Status
	s.Status = next
	r.stopLocked()
	transitions.WithLabelValues(string(next)).Inc()

	utils.Info("session", "Session transitioned",
		"payment_id", s.PaymentID,
		"order_code", s.OrderCode,
		"from", prev,
		"to", next,
		"source", source,
	)

	notes := []notification{func(l SessionListener) { l.OnStateChange(next) }}
	if next == StatusPaid && !s.SuccessNotified {
		s.SuccessNotified = true
		successNotifications.Inc()
		snap := s.snapshot(r.opts.Now())
		notes = append(notes, func(l SessionListener) { l.OnSuccess(snap) })
	}
	return notes
}

// stopLocked releases the countdown and poller. Must hold r.mu.
func (r *Reconciler) stopLocked() {
	if r.poller != nil {
		r.poller.Stop()
	}
	if r.countdown != nil {
		r.countdown.Stop()
	}
	if r.session != nil {
		r.session.PollingActive = false
	}
}

// onTick reports the remaining time while the session is pending. The tick
// is checked and delivered under notifyMu, so it never follows the
// notification for a terminal transition.
func (r *Reconciler) onTick(remaining time.Duration) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	live := r.session != nil && !r.closed && !r.session.Status.IsTerminal()
	r.mu.Unlock()
	if !live {
		return
	}
	r.listener.OnRemaining(ceilSeconds(remaining))
}

// Close stops the countdown and poller unconditionally. Late poll results,
// ticks and cancel completions are discarded afterwards. Safe to call
// multiple times.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.held = nil
	r.stopLocked()

	if r.session != nil {
		utils.Info("session", "Payment session closed",
			"payment_id", r.session.PaymentID,
			"status", r.session.Status,
		)
	}
}

// Status returns the current status, or StatusUnknown before Open.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return StatusUnknown
	}
	return r.session.Status
}

// Snapshot returns a copy of the session state.
func (r *Reconciler) Snapshot() SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return SessionSnapshot{Status: StatusUnknown}
	}
	return r.session.snapshot(r.opts.Now())
}

// RemainingSeconds derives the display countdown from the session expiry.
func (r *Reconciler) RemainingSeconds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return 0
	}
	return RemainingSeconds(r.session.ExpiresAt, r.opts.Now())
}

// Closed reports whether Close has been called.
func (r *Reconciler) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
