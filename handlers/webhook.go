package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"paysession/services"
	"paysession/utils"
)

const maxWebhookBody = 64 << 10

// WebhookEvents are the Stripe events the webhook handler understands.
var WebhookEvents = []string{
	"checkout.session.completed",
	"checkout.session.expired",
	"payment_link.updated",
}

// StripeWebhookHandler processes Stripe webhook events. Events that concern
// the active session's payment link are fed to its reconciler as status
// observations, exactly like a poll result.
func (a *API) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	// Read request body
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		utils.Error("webhook", "Error reading webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if a.WebhookSecret == "" {
		utils.Warn("webhook", "Stripe webhook secret not configured")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// Verify signature
	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), a.WebhookSecret)
	if err != nil {
		utils.Error("webhook", "Signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	utils.Info("webhook", "Received event", "type", event.Type, "id", event.ID)

	var (
		linkID string
		result services.RemoteStatus
	)
	switch event.Type {
	case "checkout.session.completed":
		linkID, result = checkoutSessionStatus(event.Data.Raw)
	case "checkout.session.expired":
		// the customer's checkout expired; the link itself stays usable
		linkID, result = checkoutSessionStatus(event.Data.Raw)
	case "payment_link.updated":
		linkID, result = paymentLinkStatus(event.Data.Raw)
	default:
		utils.Debug("webhook", "Unhandled event type", "type", event.Type)
	}

	if linkID != "" {
		a.forwardToSession(linkID, result)
	}

	// Return a success response to Stripe
	w.WriteHeader(http.StatusOK)
}

func (a *API) forwardToSession(linkID string, result services.RemoteStatus) {
	active, ok := a.Sessions.ForPayment(linkID)
	if !ok {
		utils.Debug("webhook", "Event for inactive payment link ignored", "payment_link_id", linkID)
		return
	}
	utils.Info("webhook", "Forwarding status to session", "payment_link_id", linkID, "status", result.Status)
	active.Reconciler.OnPollResult(result)
}

func checkoutSessionStatus(raw json.RawMessage) (string, services.RemoteStatus) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		utils.Error("webhook", "Error parsing checkout session", "error", err)
		return "", services.RemoteStatus{}
	}
	if cs.PaymentLink == nil {
		return "", services.RemoteStatus{}
	}

	status := services.StatusPending
	if cs.Status == stripe.CheckoutSessionStatusComplete {
		status = services.StatusPaid
	}
	return cs.PaymentLink.ID, services.RemoteStatus{Status: status, Raw: string(raw)}
}

func paymentLinkStatus(raw json.RawMessage) (string, services.RemoteStatus) {
	var pl stripe.PaymentLink
	if err := json.Unmarshal(raw, &pl); err != nil {
		utils.Error("webhook", "Error parsing payment link", "error", err)
		return "", services.RemoteStatus{}
	}

	status := services.StatusPending
	if !pl.Active {
		status = services.StatusCancelled
	}
	return pl.ID, services.RemoteStatus{Status: status, Raw: string(raw)}
}
