package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
)

// fakeStripe serves the handful of payment link and checkout session
// endpoints the provider calls.
type fakeStripe struct {
	mu       sync.Mutex
	active   bool
	complete bool
	updates  []url.Values
	webhooks []url.Values
	badKey   bool
}

func (f *fakeStripe) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/payment_links/plink_1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			form, err := url.ParseQuery(string(body))
			assert.NoError(t, err)
			f.updates = append(f.updates, form)
			if form.Get("active") == "false" {
				f.active = false
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"plink_1","object":"payment_link","active":`+boolJSON(f.active)+`,"metadata":{"order_code":"42"}}`)
	})
	mux.HandleFunc("/v1/balance", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if f.badKey {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"object":"balance","available":[],"pending":[],"livemode":false}`)
	})
	mux.HandleFunc("/v1/webhook_endpoints", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		assert.NoError(t, err)
		f.webhooks = append(f.webhooks, form)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"we_1","object":"webhook_endpoint","url":"`+form.Get("url")+`"}`)
	})
	mux.HandleFunc("/v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, "plink_1", r.URL.Query().Get("payment_link"))
		status := "open"
		if f.complete {
			status = "complete"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"cs_1","object":"checkout.session","status":"`+status+`"}],"has_more":false,"url":"/v1/checkout/sessions"}`)
	})
	return mux
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func newTestStripeProvider(t *testing.T, f *fakeStripe) *StripeProvider {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeProvider("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
}

func TestStripeProvider_FetchStatus(t *testing.T) {
	var tests = []struct {
		name     string
		active   bool
		complete bool
		expected Status
	}{
		{name: "open link", active: true, expected: StatusPending},
		{name: "completed checkout", active: true, complete: true, expected: StatusPaid},
		{name: "deactivated link", active: false, expected: StatusCancelled},
		{name: "completed wins over inactive", active: false, complete: true, expected: StatusPaid},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeStripe{active: tt.active, complete: tt.complete}
			p := newTestStripeProvider(t, f)

			got, err := p.FetchStatus(context.Background(), "plink_1")
			require.NoError(t, err)
			require.Equal(t, tt.expected, got.Status)
			require.False(t, got.IsExpired)

			linkID, ok := p.linkFor(42)
			require.True(t, ok)
			require.Equal(t, "plink_1", linkID)
		})
	}
}

func TestStripeProvider_Cancel(t *testing.T) {
	f := &fakeStripe{active: true}
	p := newTestStripeProvider(t, f)

	err := p.Cancel(context.Background(), 42)
	require.ErrorIs(t, err, ErrUnknownOrder)

	p.Track(42, "plink_1")
	require.NoError(t, p.Cancel(context.Background(), 42))

	f.mu.Lock()
	require.Len(t, f.updates, 1)
	require.Equal(t, "false", f.updates[0].Get("active"))
	f.mu.Unlock()

	got, err := p.FetchStatus(context.Background(), "plink_1")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
}

func TestStripeProvider_FetchUnknownLink(t *testing.T) {
	p := newTestStripeProvider(t, &fakeStripe{})

	_, err := p.FetchStatus(context.Background(), "plink_missing")
	require.Error(t, err)
}

func TestStripeProvider_Ping(t *testing.T) {
	require.NoError(t, newTestStripeProvider(t, &fakeStripe{}).Ping(context.Background()))
	require.Error(t, newTestStripeProvider(t, &fakeStripe{badKey: true}).Ping(context.Background()))
}

func TestStripeProvider_RegisterWebhook(t *testing.T) {
	f := &fakeStripe{}
	p := newTestStripeProvider(t, f)

	id, err := p.RegisterWebhook(context.Background(), "https://pos.example.com/stripe-webhook", []string{"checkout.session.completed", "payment_link.updated"})
	require.NoError(t, err)
	require.Equal(t, "we_1", id)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.webhooks, 1)
	require.Equal(t, "https://pos.example.com/stripe-webhook", f.webhooks[0].Get("url"))
	require.Equal(t, "checkout.session.completed", f.webhooks[0].Get("enabled_events[0]"))
	require.Equal(t, "payment_link.updated", f.webhooks[0].Get("enabled_events[1]"))
}
