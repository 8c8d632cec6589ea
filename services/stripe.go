package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"paysession/utils"
)

// OrderCodeMetadataKey is the payment link metadata key carrying the order code.
const OrderCodeMetadataKey = "order_code"

// StripeProvider treats a Stripe payment link as the remote payment: the
// session's payment id is the link id and cancelling deactivates the link.
type StripeProvider struct {
	api *client.API

	mu    sync.RWMutex
	links map[int64]string // order code -> payment link id
}

// NewStripeProvider builds a provider. backends may be nil for the default Stripe endpoints.
func NewStripeProvider(key string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{
		api:   client.New(key, backends),
		links: make(map[int64]string),
	}
}

// Track records which payment link belongs to an order code.
func (p *StripeProvider) Track(orderCode int64, paymentLinkID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.links[orderCode] = paymentLinkID
}

func (p *StripeProvider) linkFor(orderCode int64) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.links[orderCode]
	return id, ok
}

// FetchStatus checks the payment link and its checkout sessions. A complete
// checkout session means paid; an inactive link without one means cancelled.
func (p *StripeProvider) FetchStatus(ctx context.Context, paymentLinkID string) (RemoteStatus, error) {
	linkParams := &stripe.PaymentLinkParams{}
	linkParams.Context = ctx
	pl, err := p.api.PaymentLinks.Get(paymentLinkID, linkParams)
	if err != nil {
		return RemoteStatus{}, fmt.Errorf("error retrieving payment link: %w", err)
	}

	if raw, ok := pl.Metadata[OrderCodeMetadataKey]; ok {
		if code, err := strconv.ParseInt(raw, 10, 64); err == nil {
			p.Track(code, pl.ID)
		}
	}

	// Query for checkout sessions associated with this payment link
	params := &stripe.CheckoutSessionListParams{}
	params.Context = ctx
	params.PaymentLink = stripe.String(paymentLinkID)

	i := p.api.CheckoutSessions.List(params)
	completed := false
	for i.Next() {
		s := i.CheckoutSession()
		if s.Status == "complete" {
			completed = true
			break
		}
	}
	if err := i.Err(); err != nil {
		return RemoteStatus{}, fmt.Errorf("error listing checkout sessions: %w", err)
	}

	status := StatusPending
	switch {
	case completed:
		status = StatusPaid
	case !pl.Active:
		status = StatusCancelled
	}

	utils.Debug("provider", "Stripe payment link status", "payment_link_id", paymentLinkID, "active", pl.Active, "completed", completed)
	return RemoteStatus{
		Status: status,
		Raw:    fmt.Sprintf("active=%t completed=%t", pl.Active, completed),
	}, nil
}

// Cancel deactivates the order's payment link. Deactivating an inactive link
// succeeds, so repeated cancels are harmless.
func (p *StripeProvider) Cancel(ctx context.Context, orderCode int64) error {
	linkID, ok := p.linkFor(orderCode)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOrder, orderCode)
	}

	params := &stripe.PaymentLinkParams{Active: stripe.Bool(false)}
	params.Context = ctx
	if _, err := p.api.PaymentLinks.Update(linkID, params); err != nil {
		return fmt.Errorf("error deactivating payment link %s: %w", linkID, err)
	}

	utils.Info("provider", "Payment link deactivated", "payment_link_id", linkID, "order_code", orderCode)
	return nil
}

// Ping checks the API key with a balance lookup.
func (p *StripeProvider) Ping(ctx context.Context) error {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	if _, err := p.api.Balance.Get(params); err != nil {
		return fmt.Errorf("stripe API key is invalid or not working: %w", err)
	}
	return nil
}

// RegisterWebhook registers url as a webhook endpoint for events and returns the endpoint id.
func (p *StripeProvider) RegisterWebhook(ctx context.Context, url string, events []string) (string, error) {
	params := &stripe.WebhookEndpointParams{
		URL:           stripe.String(url),
		EnabledEvents: stripe.StringSlice(events),
	}
	params.Context = ctx
	endpoint, err := p.api.WebhookEndpoints.New(params)
	if err != nil {
		return "", fmt.Errorf("error registering webhook endpoint: %w", err)
	}
	utils.Info("provider", "Registered webhook endpoint", "url", url, "endpoint_id", endpoint.ID, "events", events)
	return endpoint.ID, nil
}
