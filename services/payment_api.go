package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"paysession/utils"
)

// PaymentAPI is the HTTP payment service that created the payment intent.
//
//	GET  {base}/payments/{paymentId}          -> {"status": "PENDING", "isExpired": false}
//	POST {base}/payments/{orderCode}/cancel
type PaymentAPI struct {
	client *resty.Client
}

type paymentStatusResponse struct {
	Status    string `json:"status"`
	IsExpired bool   `json:"isExpired"`
}

// NewPaymentAPI builds a client for baseURL. apiKey is sent as a bearer token when set.
func NewPaymentAPI(baseURL, apiKey string, timeout time.Duration) *PaymentAPI {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &PaymentAPI{client: client}
}

// FetchStatus reads the payment's current status.
func (a *PaymentAPI) FetchStatus(ctx context.Context, paymentID string) (RemoteStatus, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("paymentId", paymentID).
		Get("/payments/{paymentId}")
	if err != nil {
		return RemoteStatus{}, fmt.Errorf("error fetching payment status: %w", err)
	}
	if !resp.IsSuccess() {
		return RemoteStatus{}, fmt.Errorf("payment status non-2xx: %d", resp.StatusCode())
	}

	var body paymentStatusResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return RemoteStatus{}, fmt.Errorf("error decoding payment status: %w", err)
	}

	return RemoteStatus{
		Status:    ParseStatus(body.Status),
		IsExpired: body.IsExpired,
		Raw:       string(resp.Body()),
	}, nil
}

// Cancel cancels the order. A 409 means the order is already cancelled and
// is treated as success.
func (a *PaymentAPI) Cancel(ctx context.Context, orderCode int64) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("orderCode", strconv.FormatInt(orderCode, 10)).
		Post("/payments/{orderCode}/cancel")
	if err != nil {
		return fmt.Errorf("error cancelling order: %w", err)
	}

	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() == http.StatusConflict:
		utils.Info("provider", "Order already cancelled", "order_code", orderCode)
		return nil
	default:
		return fmt.Errorf("cancel non-2xx: %d", resp.StatusCode())
	}
}
