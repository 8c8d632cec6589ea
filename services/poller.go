package services

import (
	"context"
	"sync"
	"time"

	"paysession/utils"
)

// Poller fetches a payment's remote status at a fixed interval until stopped.
type Poller struct {
	fetcher      StatusFetcher
	paymentID    string
	interval     time.Duration
	fetchTimeout time.Duration
	deliver      func(RemoteStatus)

	// mu guards the flags only; it is never held across a fetch.
	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// NewPoller builds a poller that forwards every successful fetch to deliver.
func NewPoller(fetcher StatusFetcher, paymentID string, interval, fetchTimeout time.Duration, deliver func(RemoteStatus)) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if fetchTimeout <= 0 {
		fetchTimeout = interval
	}
	return &Poller{
		fetcher:      fetcher,
		paymentID:    paymentID,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		deliver:      deliver,
	}
}

// Start schedules the first fetch immediately and then one per interval.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	utils.Debug("poller", "Polling started", "payment_id", p.paymentID, "interval", p.interval)
	go p.run(ctx)
}

// Stop cancels any in-flight fetch and prevents further ones without
// waiting for the fetch to return. A fetch already in flight has its result
// dropped. Safe to call more than once and from within deliver.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
	utils.Debug("poller", "Polling stopped", "payment_id", p.paymentID)
}

func (p *Poller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Active reports whether the periodic fetch is scheduled.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.stopped
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if !p.poll(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll performs one fetch and reports whether polling should continue.
func (p *Poller) poll(ctx context.Context) bool {
	if p.isStopped() {
		return false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	result, err := p.fetcher.FetchStatus(fetchCtx, p.paymentID)
	cancel()

	if p.isStopped() || ctx.Err() != nil {
		// stopped while the fetch was in flight; its result is stale
		return false
	}

	if err != nil {
		pollFetches.WithLabelValues("error").Inc()
		fetchErr := &TransientFetchError{PaymentID: p.paymentID, Err: err}
		utils.Warn("poller", "Status fetch failed, retrying next interval", "payment_id", p.paymentID, "error", fetchErr)
		return true
	}

	pollFetches.WithLabelValues("ok").Inc()
	utils.Debug("poller", "Status fetched", "payment_id", p.paymentID, "status", result.Status, "is_expired", result.IsExpired)
	if p.deliver != nil {
		p.deliver(result)
	}
	return true
}
