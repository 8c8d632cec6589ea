package services

import (
	"context"
	"sync"
	"time"

	"paysession/utils"
)

// Remaining returns how long until expiresAt, floored at zero.
func Remaining(expiresAt, now time.Time) time.Duration {
	d := expiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RemainingSeconds is Remaining rounded up to whole seconds for display, so
// the countdown only shows 0 once the session has actually run out.
func RemainingSeconds(expiresAt, now time.Time) int {
	return ceilSeconds(Remaining(expiresAt, now))
}

func ceilSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// Countdown ticks while a session is open and fires onExpire once when the
// remaining time reaches zero. Remaining time is re-derived from expiresAt on
// every tick.
type Countdown struct {
	expiresAt time.Time
	interval  time.Duration
	now       func() time.Time
	onTick    func(remaining time.Duration)
	onExpire  func()

	mu      sync.Mutex
	started bool
	stopped bool
	fired   bool
	cancel  context.CancelFunc
}

// NewCountdown builds a countdown. now defaults to time.Now.
func NewCountdown(expiresAt time.Time, interval time.Duration, now func() time.Time, onTick func(time.Duration), onExpire func()) *Countdown {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{
		expiresAt: expiresAt,
		interval:  interval,
		now:       now,
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Start begins ticking. The first tick happens immediately.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop halts ticking. A tick already past its stop check may still deliver
// one callback after Stop returns; callers that need a hard cut-off must
// re-check their own state in onTick.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
	}
}

// Fired reports whether onExpire has been invoked.
func (c *Countdown) Fired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

func (c *Countdown) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if !c.tick() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick reports whether ticking should continue.
func (c *Countdown) tick() bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	remaining := Remaining(c.expiresAt, c.now())
	expired := remaining <= 0
	if expired {
		c.stopped = true
		c.fired = true
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(remaining)
	}
	if expired {
		utils.Debug("countdown", "Countdown reached zero", "expires_at", c.expiresAt)
		if c.onExpire != nil {
			c.onExpire()
		}
		return false
	}
	return true
}
