package services

import (
	"context"

	"paysession/utils"
)

// RequestCancel cancels the session's order remotely and, on success, forces
// the session to cancelled. Poll results that arrive while the remote call is
// in flight are held back: they are dropped if the cancel succeeds and applied
// if it fails, so a late "paid" can neither revive nor pre-empt a successful
// cancellation.
//
// On failure the status is left unchanged and a *CancelFailedError is
// returned. Cancelling an already terminal session is a no-op.
func (r *Reconciler) RequestCancel(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.session == nil || r.closed:
		r.mu.Unlock()
		return ErrSessionClosed
	case r.session.Status.IsTerminal():
		status := r.session.Status
		r.mu.Unlock()
		utils.Info("cancel", "Cancel ignored, session already terminal", "status", status)
		return nil
	case r.cancelling:
		r.mu.Unlock()
		return ErrCancelInProgress
	}
	r.cancelling = true
	orderCode := r.session.OrderCode
	r.mu.Unlock()

	utils.Info("cancel", "Cancelling order", "order_code", orderCode)

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CancelTimeout)
	err := r.remote.Cancel(callCtx, orderCode)
	cancel()

	r.mu.Lock()
	r.cancelling = false
	held := r.held
	r.held = nil

	if err != nil {
		cancelRequests.WithLabelValues("failed").Inc()
		var notes []notification
		if held != nil && !r.closed && !r.session.Status.IsTerminal() {
			notes = r.applyPollLocked(*held)
		}
		r.mu.Unlock()

		utils.Error("cancel", "Remote cancel failed", "order_code", orderCode, "error", err)
		r.dispatch(notes)
		return &CancelFailedError{OrderCode: orderCode, Err: err}
	}

	cancelRequests.WithLabelValues("ok").Inc()
	switch {
	case r.closed:
		// the session was closed while the call was in flight
		r.mu.Unlock()
		utils.Info("cancel", "Cancel completed after close, result discarded", "order_code", orderCode)
		return nil
	case r.session.Status.IsTerminal():
		// the countdown expired while the call was in flight
		r.mu.Unlock()
		return nil
	}
	notes := r.transitionLocked(StatusCancelled, "cancel")
	r.mu.Unlock()

	r.dispatch(notes)
	return nil
}
