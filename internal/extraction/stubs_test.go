package extraction

import (
	"context"
	"sync"
	"time"

	"github.com/ent0n29/skilldash/internal/completion"
)

type stubLimiter struct {
	allow bool
	err   error
	calls int
}

func (l *stubLimiter) Allow(context.Context, string) (bool, error) {
	l.calls++
	return l.allow, l.err
}

type stubModel struct {
	reply   string
	err     error
	calls   int
	prompts []string
}

func (m *stubModel) Invoke(_ context.Context, prompt string) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

// scriptedCompleter fails with the queued errors in order, then returns
// reply.
type scriptedCompleter struct {
	mu    sync.Mutex
	errs  []error
	reply string
	calls int
}

func (c *scriptedCompleter) Name() string { return "scripted" }

func (c *scriptedCompleter) Complete(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return "", err
	}
	return c.reply, nil
}

func overloaded() error {
	return &completion.StatusError{Provider: "scripted", StatusCode: 503, Message: "service unavailable"}
}

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestInvoker(c completion.Completer, rec *sleepRecorder) *Invoker {
	return NewInvoker(c, InvokerOptions{Sleep: rec.Sleep})
}
