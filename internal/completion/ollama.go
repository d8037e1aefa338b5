package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaCompleter calls a local or remote Ollama server.
type OllamaCompleter struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

func NewOllamaCompleter(baseURL, model string, timeout time.Duration) (*OllamaCompleter, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:11434"
	}
	if strings.TrimSpace(model) == "" {
		model = "llama3.1:latest"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	return &OllamaCompleter{
		client:  api.NewClient(parsed, http.DefaultClient),
		model:   model,
		timeout: timeout,
	}, nil
}

func (c *OllamaCompleter) Name() string { return "ollama" }

func (c *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	stream := false
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var out strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) {
			return "", &StatusError{Provider: c.Name(), StatusCode: se.StatusCode, Message: se.ErrorMessage, Err: err}
		}
		return "", fmt.Errorf("ollama completion: %w", err)
	}
	if out.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return out.String(), nil
}
