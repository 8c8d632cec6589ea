package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"paysession/services"
	"paysession/templates"
	"paysession/templates/session"
	"paysession/utils"
)

// API is the HTTP shell around the session manager.
type API struct {
	Sessions      *SessionManager
	WebhookSecret string
}

// Routes registers the session endpoints on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", a.OpenSessionHandler)
	mux.HandleFunc("GET /sessions/current", a.CurrentSessionHandler)
	mux.HandleFunc("POST /sessions/cancel", a.CancelSessionHandler)
	mux.HandleFunc("POST /sessions/close", a.CloseSessionHandler)
	mux.HandleFunc("GET /sessions/qr.png", a.QRImageHandler)
	mux.HandleFunc("GET /payment-events", a.PaymentSSEHandler)
	mux.HandleFunc("POST /stripe-webhook", a.StripeWebhookHandler)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Error("http", "Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, templates.ErrorView{Error: err.Error()})
}

func toPaymentIntent(in templates.SessionIntent) services.PaymentIntent {
	return services.PaymentIntent{
		PaymentID:   in.PaymentID,
		OrderCode:   in.OrderCode,
		CheckoutURL: in.CheckoutURL,
		QRPayload:   in.QRCode,
		ExpiresAt:   in.ExpiresAt,
		Amount:      in.Amount,
		Description: in.Description,
	}
}

// OpenSessionHandler opens a payment session from a JSON intent.
func (a *API) OpenSessionHandler(w http.ResponseWriter, r *http.Request) {
	var in templates.SessionIntent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid session intent: %w", err))
		return
	}

	active, err := a.Sessions.Open(r.Context(), toPaymentIntent(in))
	if err != nil {
		var invalid *services.InvalidSessionError
		if errors.As(err, &invalid) {
			utils.Warn("http", "Rejected session intent", "payment_id", invalid.PaymentID, "reason", invalid.Reason)
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		utils.Error("http", "Error opening session", "payment_id", in.PaymentID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, active.View())
}

// CurrentSessionHandler returns the active session.
func (a *API) CurrentSessionHandler(w http.ResponseWriter, r *http.Request) {
	active, ok := a.Sessions.Current()
	if !ok {
		writeError(w, http.StatusNotFound, ErrNoActiveSession)
		return
	}
	writeJSON(w, http.StatusOK, active.View())
}

// CancelSessionHandler cancels the active session's order.
func (a *API) CancelSessionHandler(w http.ResponseWriter, r *http.Request) {
	active, err := a.Sessions.Cancel(r.Context())

	var failed *services.CancelFailedError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, active.View())
	case errors.Is(err, ErrNoActiveSession):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, services.ErrCancelInProgress), errors.Is(err, services.ErrSessionClosed):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &failed):
		w.Header().Set("HX-Trigger", fmt.Sprintf(`{"showToast": {"message": %s, "type": "error"}}`, session.ToJSON("Could not cancel order "+fmt.Sprint(failed.OrderCode))))
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// CloseSessionHandler closes the active session.
func (a *API) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Close(); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("HX-Trigger", "closeModal")
	w.WriteHeader(http.StatusNoContent)
}

// QRImageHandler serves the image of the current QR decision.
func (a *API) QRImageHandler(w http.ResponseWriter, r *http.Request) {
	active, ok := a.Sessions.Current()
	if !ok {
		writeError(w, http.StatusNotFound, ErrNoActiveSession)
		return
	}
	if active.QR == nil {
		writeError(w, http.StatusNotFound, errors.New("session has no qr payload"))
		return
	}
	d, ok := active.QR.Current()
	if !ok || len(d.Image) == 0 {
		writeError(w, http.StatusNotFound, services.ErrRenderResolutionExhausted)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(d.Image))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-QR-Strategy", string(d.Strategy))
	_, _ = w.Write(d.Image)
}

// PaymentSSEHandler streams session events for the payment_id query parameter.
func (a *API) PaymentSSEHandler(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		http.Error(w, "payment_id parameter required", http.StatusBadRequest)
		return
	}

	active, ok := a.Sessions.ForPayment(paymentID)
	if !ok {
		http.Error(w, ErrNoActiveSession.Error(), http.StatusNotFound)
		return
	}

	events := a.Sessions.Events()
	conn := events.AddConnection(paymentID)
	utils.Info("sse", "Connection established", "payment_id", paymentID, "conn_id", conn.ID)

	// current state first so a late subscriber does not wait for the next change
	snap := active.Reconciler.Snapshot()
	conn.enqueue(sseMessage{event: EventStateChange, data: renderString(session.StatusBadge(paymentID, snap.Status.String()))})
	conn.enqueue(sseMessage{event: EventCountdown, data: renderString(session.Countdown(snap.RemainingSeconds))})
	if active.QR != nil {
		if d, ok := active.QR.Current(); ok {
			conn.enqueue(sseMessage{event: EventQR, data: renderString(session.QRPanel(qrView(paymentID, d)))})
		}
	}

	events.Serve(w, r, conn)
}
