package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/skilldash/internal/completion"
	"github.com/ent0n29/skilldash/internal/config"
)

type completionSetup struct {
	completer        completion.Completer
	resolvedProvider string
	detail           string
}

func resolveCompleter(cfg config.Config) (completionSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.CompletionProvider))
	if mode == "" {
		mode = "auto"
	}

	c, err := completion.New(completion.Config{
		Provider:        mode,
		Model:           cfg.CompletionModel,
		BaseURL:         cfg.CompletionBaseURL,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OllamaHost:      cfg.OllamaHost,
		HTTPURL:         cfg.CompletionHTTPURL,
		Timeout:         cfg.CompletionTimeout,
	})
	if err != nil {
		return completionSetup{}, fmt.Errorf("completion provider %q init failed: %w", mode, err)
	}

	resolved := c.Name()
	detail := resolved
	if model := strings.TrimSpace(cfg.CompletionModel); model != "" && resolved != "mock" && resolved != "http" {
		detail = fmt.Sprintf("%s (%s)", resolved, model)
	}
	if mode == "auto" {
		detail += " [auto]"
	}

	return completionSetup{
		completer:        c,
		resolvedProvider: resolved,
		detail:           detail,
	}, nil
}
