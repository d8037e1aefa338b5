// Package completion adapts hosted language models to a single-shot
// prompt-in/text-out contract. Callers treat latency, overload failures and
// free-form output as the entire contract.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Completer returns a completion for a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Config controls completer construction.
type Config struct {
	Provider        string
	Model           string
	BaseURL         string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string
	HTTPURL         string
	Timeout         time.Duration
}

// StatusError is an upstream failure carrying the provider's HTTP status.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, msg)
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

func (e *StatusError) Unwrap() error { return e.Err }

var ErrEmptyCompletion = errors.New("empty completion")

func New(cfg Config) (Completer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoCompleter(cfg)
	case "openai":
		return NewOpenAICompleter(cfg.BaseURL, cfg.OpenAIAPIKey, cfg.Model, cfg.Timeout)
	case "anthropic":
		return NewAnthropicCompleter(cfg.BaseURL, cfg.AnthropicAPIKey, cfg.Model, cfg.Timeout)
	case "ollama":
		host := cfg.OllamaHost
		if strings.TrimSpace(host) == "" {
			host = cfg.BaseURL
		}
		return NewOllamaCompleter(host, cfg.Model, cfg.Timeout)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("completion HTTP url is required for http mode")
		}
		return NewHTTPCompleter(cfg.HTTPURL, cfg.Timeout), nil
	case "mock":
		return NewMockCompleter(), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}

// newAutoCompleter prefers hosted APIs with credentials, then an explicit
// HTTP endpoint, then a configured Ollama host, then the mock.
func newAutoCompleter(cfg Config) (Completer, error) {
	switch {
	case strings.TrimSpace(cfg.OpenAIAPIKey) != "":
		return NewOpenAICompleter(cfg.BaseURL, cfg.OpenAIAPIKey, cfg.Model, cfg.Timeout)
	case strings.TrimSpace(cfg.AnthropicAPIKey) != "":
		return NewAnthropicCompleter(cfg.BaseURL, cfg.AnthropicAPIKey, cfg.Model, cfg.Timeout)
	case strings.TrimSpace(cfg.HTTPURL) != "":
		return NewHTTPCompleter(cfg.HTTPURL, cfg.Timeout), nil
	case strings.TrimSpace(cfg.OllamaHost) != "":
		return NewOllamaCompleter(cfg.OllamaHost, cfg.Model, cfg.Timeout)
	default:
		return NewMockCompleter(), nil
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
