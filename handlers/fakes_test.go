package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"paysession/services"
)

// fakeRemote always reports pending and records cancels and tracked orders.
type fakeRemote struct {
	mu        sync.Mutex
	cancelErr error
	cancels   []int64
	tracked   map[int64]string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{tracked: make(map[int64]string)}
}

func (f *fakeRemote) FetchStatus(ctx context.Context, paymentID string) (services.RemoteStatus, error) {
	if err := ctx.Err(); err != nil {
		return services.RemoteStatus{}, err
	}
	return services.RemoteStatus{Status: services.StatusPending}, nil
}

func (f *fakeRemote) Cancel(ctx context.Context, orderCode int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderCode)
	return f.cancelErr
}

func (f *fakeRemote) Track(orderCode int64, paymentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked[orderCode] = paymentID
}

func (f *fakeRemote) cancelled() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.cancels...)
}

func testOptions() services.ReconcilerOptions {
	return services.ReconcilerOptions{
		PollInterval:  time.Hour,
		TickInterval:  20 * time.Millisecond,
		FetchTimeout:  50 * time.Millisecond,
		CancelTimeout: time.Second,
	}
}

func newTestManager(t *testing.T, remote services.RemoteService) *SessionManager {
	t.Helper()
	resolver := services.NewQRResolver(nil, services.NewQRCodeEncoder(128), 50*time.Millisecond)
	m := NewSessionManager(remote, resolver, NewSSEBroadcaster(), testOptions())
	t.Cleanup(m.Shutdown)
	return m
}

func testIntent(paymentID string, orderCode int64) services.PaymentIntent {
	return services.PaymentIntent{
		PaymentID:   paymentID,
		OrderCode:   orderCode,
		QRPayload:   "0002ORDER123|amount=50000",
		ExpiresAt:   time.Now().Add(time.Minute),
		Amount:      50000,
		Description: "Court rental",
	}
}
