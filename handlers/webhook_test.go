package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	"paysession/services"
)

const testWebhookSecret = "whsec_test"

func signedWebhookRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)

	req := httptest.NewRequest(http.MethodPost, "/stripe-webhook", bytes.NewBufferString(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return req
}

func eventJSON(eventType, object string) string {
	return fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		stripe.APIVersion, eventType, object)
}

func TestStripeWebhookHandler(t *testing.T) {
	var tests = []struct {
		name     string
		payload  string
		secret   string
		code     int
		expected services.Status
	}{
		{
			name:     "checkout completed for active link",
			payload:  eventJSON("checkout.session.completed", `{"id":"cs_1","object":"checkout.session","status":"complete","payment_link":"plink_1"}`),
			secret:   testWebhookSecret,
			code:     http.StatusOK,
			expected: services.StatusPaid,
		},
		{
			name:     "checkout expired keeps session pending",
			payload:  eventJSON("checkout.session.expired", `{"id":"cs_1","object":"checkout.session","status":"expired","payment_link":"plink_1"}`),
			secret:   testWebhookSecret,
			code:     http.StatusOK,
			expected: services.StatusPending,
		},
		{
			name:     "payment link deactivated",
			payload:  eventJSON("payment_link.updated", `{"id":"plink_1","object":"payment_link","active":false}`),
			secret:   testWebhookSecret,
			code:     http.StatusOK,
			expected: services.StatusCancelled,
		},
		{
			name:     "event for another link ignored",
			payload:  eventJSON("checkout.session.completed", `{"id":"cs_2","object":"checkout.session","status":"complete","payment_link":"plink_other"}`),
			secret:   testWebhookSecret,
			code:     http.StatusOK,
			expected: services.StatusPending,
		},
		{
			name:     "unhandled event type",
			payload:  eventJSON("charge.succeeded", `{"id":"ch_1","object":"charge"}`),
			secret:   testWebhookSecret,
			code:     http.StatusOK,
			expected: services.StatusPending,
		},
		{
			name:     "bad signature",
			payload:  eventJSON("checkout.session.completed", `{"id":"cs_1","object":"checkout.session","status":"complete","payment_link":"plink_1"}`),
			secret:   "whsec_wrong",
			code:     http.StatusBadRequest,
			expected: services.StatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, newFakeRemote())
			a, err := m.Open(context.Background(), testIntent("plink_1", 42))
			require.NoError(t, err)

			api := &API{Sessions: m, WebhookSecret: testWebhookSecret}
			rec := httptest.NewRecorder()
			api.StripeWebhookHandler(rec, signedWebhookRequest(t, tt.secret, tt.payload))

			require.Equal(t, tt.code, rec.Code)
			require.Equal(t, tt.expected, a.Reconciler.Status())
		})
	}
}

func TestStripeWebhookHandler_NoSecret(t *testing.T) {
	api := &API{Sessions: newTestManager(t, newFakeRemote())}
	rec := httptest.NewRecorder()
	api.StripeWebhookHandler(rec, signedWebhookRequest(t, testWebhookSecret, eventJSON("payment_link.updated", `{"id":"plink_1"}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStripeWebhookHandler_PaidNotifiesOnce(t *testing.T) {
	m := newTestManager(t, newFakeRemote())
	a, err := m.Open(context.Background(), testIntent("plink_1", 42))
	require.NoError(t, err)
	api := &API{Sessions: m, WebhookSecret: testWebhookSecret}

	payload := eventJSON("checkout.session.completed", `{"id":"cs_1","object":"checkout.session","status":"complete","payment_link":"plink_1"}`)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		api.StripeWebhookHandler(rec, signedWebhookRequest(t, testWebhookSecret, payload))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	snap := a.Reconciler.Snapshot()
	require.Equal(t, services.StatusPaid, snap.Status)
	require.True(t, snap.SuccessNotified)
	require.False(t, snap.PollingActive)
}
