// Package ratelimit implements the per-client fixed-window request limiter
// that guards the extraction endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 10
)

// Window is the request count of one client inside one window.
type Window struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// Store holds windows by client key. Set receives the window length as a
// TTL hint so backends may evict windows that can no longer matter.
type Store interface {
	Get(ctx context.Context, key string) (Window, bool, error)
	Set(ctx context.Context, key string, w Window, ttl time.Duration) error
}

// Counter is implemented by stores that can open-or-increment a window
// atomically on their own, e.g. across processes.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error)
}

// Options configures a Limiter.
type Options struct {
	Window      time.Duration
	MaxRequests int
}

// Limiter allows at most MaxRequests per client key per Window.
type Limiter struct {
	store Store
	opts  Options
	now   func() time.Time

	// mu makes the get-check-set sequence atomic for stores without Counter.
	mu sync.Mutex
}

func New(store Store, opts Options) *Limiter {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = DefaultMaxRequests
	}
	return &Limiter{
		store: store,
		opts:  opts,
		now:   time.Now,
	}
}

// SetClock overrides the time source; intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *Limiter) Options() Options { return l.opts }

// Allow records one request for key and reports whether it fits the window.
// It never blocks on the window itself.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if c, ok := l.store.(Counter); ok {
		w, err := c.Increment(ctx, key, l.opts.Window, l.clock())
		if err != nil {
			return false, fmt.Errorf("increment window: %w", err)
		}
		return w.Count <= l.opts.MaxRequests, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	w, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load window: %w", err)
	}
	if !ok || now.After(w.ResetAt) {
		fresh := Window{Count: 1, ResetAt: now.Add(l.opts.Window)}
		if err := l.store.Set(ctx, key, fresh, l.opts.Window); err != nil {
			return false, fmt.Errorf("open window: %w", err)
		}
		return true, nil
	}
	if w.Count >= l.opts.MaxRequests {
		return false, nil
	}
	w.Count++
	if err := l.store.Set(ctx, key, w, w.ResetAt.Sub(now)); err != nil {
		return false, fmt.Errorf("update window: %w", err)
	}
	return true, nil
}

func (l *Limiter) clock() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now()
}
