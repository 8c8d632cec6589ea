package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

var errNetwork = errors.New("network unreachable")

// scriptedRemote answers fetches from a queue of results; once the queue is
// drained the last entry repeats. Cancel blocks on cancelGate when set.
type scriptedRemote struct {
	mu         sync.Mutex
	results    []fetchOutcome
	fetches    int
	cancels    int
	cancelErr  error
	cancelGate chan struct{}
	cancelSeen chan struct{}
}

type fetchOutcome struct {
	status RemoteStatus
	err    error
}

func newScriptedRemote(outcomes ...fetchOutcome) *scriptedRemote {
	return &scriptedRemote{results: outcomes, cancelSeen: make(chan struct{}, 1)}
}

func pending() fetchOutcome { return fetchOutcome{status: RemoteStatus{Status: StatusPending}} }
func paid() fetchOutcome    { return fetchOutcome{status: RemoteStatus{Status: StatusPaid}} }
func failing() fetchOutcome { return fetchOutcome{err: errNetwork} }

func (s *scriptedRemote) FetchStatus(ctx context.Context, paymentID string) (RemoteStatus, error) {
	s.mu.Lock()
	s.fetches++
	var out fetchOutcome
	switch {
	case len(s.results) == 0:
		out = pending()
	case len(s.results) == 1:
		out = s.results[0]
	default:
		out = s.results[0]
		s.results = s.results[1:]
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return RemoteStatus{}, err
	}
	return out.status, out.err
}

func (s *scriptedRemote) Cancel(ctx context.Context, orderCode int64) error {
	s.mu.Lock()
	s.cancels++
	gate := s.cancelGate
	err := s.cancelErr
	s.mu.Unlock()

	select {
	case s.cancelSeen <- struct{}{}:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *scriptedRemote) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *scriptedRemote) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// RemoteServiceMock is a testify mock for single-call expectations.
type RemoteServiceMock struct {
	mock.Mock
}

func (m *RemoteServiceMock) FetchStatus(ctx context.Context, paymentID string) (RemoteStatus, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(RemoteStatus), args.Error(1)
}

func (m *RemoteServiceMock) Cancel(ctx context.Context, orderCode int64) error {
	args := m.Called(ctx, orderCode)
	return args.Error(0)
}

// recorder captures listener callbacks.
type recorder struct {
	mu        sync.Mutex
	states    []Status
	successes []SessionSnapshot
	remaining []int
}

func (r *recorder) OnStateChange(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, status)
}

func (r *recorder) OnSuccess(snapshot SessionSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, snapshot)
}

func (r *recorder) OnRemaining(seconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = append(r.remaining, seconds)
}

func (r *recorder) successCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.successes)
}

func (r *recorder) stateList() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.states...)
}

func (r *recorder) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.remaining)
}

// fastOptions keeps the real timing relationships at test speed.
func fastOptions() ReconcilerOptions {
	return ReconcilerOptions{
		PollInterval:  20 * time.Millisecond,
		TickInterval:  10 * time.Millisecond,
		FetchTimeout:  50 * time.Millisecond,
		CancelTimeout: time.Second,
	}
}

func testIntent(expiresIn time.Duration) PaymentIntent {
	return PaymentIntent{
		PaymentID: "pay_1",
		OrderCode: 42,
		QRPayload: "0002ORDER123|amount=50000",
		ExpiresAt: time.Now().Add(expiresIn),
	}
}

// stuckRemote blocks every fetch until release, ignoring the context, and
// then reports paid.
type stuckRemote struct {
	mu       sync.Mutex
	fetches  int
	entered  chan struct{}
	gate     chan struct{}
	gateOnce sync.Once
}

func newStuckRemote() *stuckRemote {
	return &stuckRemote{entered: make(chan struct{}, 1), gate: make(chan struct{})}
}

func (s *stuckRemote) FetchStatus(ctx context.Context, paymentID string) (RemoteStatus, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()

	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.gate
	return RemoteStatus{Status: StatusPaid}, nil
}

func (s *stuckRemote) Cancel(ctx context.Context, orderCode int64) error { return nil }

func (s *stuckRemote) release() {
	s.gateOnce.Do(func() { close(s.gate) })
}

func (s *stuckRemote) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// eventLog records listener callbacks in delivery order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) OnStateChange(status Status) { l.add("state:" + string(status)) }
func (l *eventLog) OnSuccess(SessionSnapshot) { l.add("success") }
func (l *eventLog) OnRemaining(int) { l.add("tick") }

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}
