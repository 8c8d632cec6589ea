package handlers

import (
	"encoding/base64"
	"net/http"

	"paysession/services"
	"paysession/templates/session"
	"paysession/utils"
)

// sessionEvents forwards reconciler callbacks to the session's SSE subscribers.
type sessionEvents struct {
	intent services.PaymentIntent
	events *SSEBroadcaster
}

func (e *sessionEvents) OnStateChange(status services.Status) {
	e.events.Broadcast(e.intent.PaymentID, EventStateChange, session.StatusBadge(e.intent.PaymentID, status.String()))
}

func (e *sessionEvents) OnRemaining(seconds int) {
	e.events.Broadcast(e.intent.PaymentID, EventCountdown, session.Countdown(seconds))
}

func (e *sessionEvents) OnSuccess(snap services.SessionSnapshot) {
	utils.Info("session", "Payment succeeded",
		"payment_id", snap.PaymentID,
		"order_code", snap.OrderCode,
		"amount", e.intent.Amount,
	)
	e.events.Broadcast(e.intent.PaymentID, EventSuccess, session.SuccessPanel(snap.OrderCode, e.intent.Amount, e.intent.Description))
}

func (e *sessionEvents) OnQRChange(d services.QRRenderDecision) {
	e.events.Broadcast(e.intent.PaymentID, EventQR, session.QRPanel(qrView(e.intent.PaymentID, d)))
}

func qrView(paymentID string, d services.QRRenderDecision) session.QRView {
	v := session.QRView{
		PaymentID: paymentID,
		Strategy:  string(d.Strategy),
		Payload:   d.Payload,
		Action:    string(d.Action),
	}
	if len(d.Image) > 0 {
		v.ImageBase64 = base64.StdEncoding.EncodeToString(d.Image)
		v.MimeType = http.DetectContentType(d.Image)
	}
	return v
}
