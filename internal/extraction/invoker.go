package extraction

import (
	"context"
	"log/slog"
	"time"

	"github.com/ent0n29/skilldash/internal/completion"
	"github.com/ent0n29/skilldash/internal/observability"
	"github.com/ent0n29/skilldash/internal/reliability"
)

const (
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 1000 * time.Millisecond
)

// InvokerOptions configures an Invoker. Zero values select the defaults.
type InvokerOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep waits between attempts; tests replace it to observe backoff.
	Sleep   func(ctx context.Context, d time.Duration) error
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Invoker calls a completer and retries overload failures with linear
// backoff. Every other failure is returned at once.
type Invoker struct {
	completer   completion.Completer
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
	metrics     *observability.Metrics
}

func NewInvoker(c completion.Completer, opts InvokerOptions) *Invoker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultRetryBaseDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = reliability.Sleep
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Invoker{
		completer:   c,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

func (i *Invoker) Provider() string { return i.completer.Name() }

func (i *Invoker) Invoke(ctx context.Context, prompt string) (string, error) {
	provider := i.completer.Name()
	var lastErr error
	for attempt := 0; attempt < i.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := reliability.LinearBackoff(attempt, i.baseDelay)
			i.logger.Warn("completion overloaded, retrying",
				"provider", provider,
				"attempt", attempt+1,
				"wait", wait,
				"error", lastErr,
			)
			if err := i.sleep(ctx, wait); err != nil {
				return "", &PermanentUpstreamError{Err: err}
			}
		}

		start := time.Now()
		out, err := i.completer.Complete(ctx, prompt)
		elapsed := time.Since(start)
		i.metrics.ObserveStage("model_call", elapsed)
		if err == nil {
			i.metrics.ObserveModelAttempt(provider, "ok", elapsed)
			return out, nil
		}
		if !reliability.IsOverload(err) {
			i.metrics.ObserveModelAttempt(provider, "error", elapsed)
			return "", &PermanentUpstreamError{Err: err}
		}
		i.metrics.ObserveModelAttempt(provider, "overload", elapsed)
		lastErr = err
	}
	return "", &TransientUpstreamError{Attempts: i.maxAttempts, Err: lastErr}
}
