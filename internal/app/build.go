package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/skilldash/internal/config"
	"github.com/ent0n29/skilldash/internal/extraction"
	"github.com/ent0n29/skilldash/internal/httpapi"
	"github.com/ent0n29/skilldash/internal/observability"
	"github.com/ent0n29/skilldash/internal/ratelimit"
	"github.com/ent0n29/skilldash/internal/session"
	"github.com/ent0n29/skilldash/internal/skill"
)

type CompletionInfo struct {
	Provider string
	Detail   string
}

// Options carries process-level collaborators. A nil Registerer keeps
// metrics off the global registry, which one-shot commands and tests rely on.
type Options struct {
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Sessions   *session.Manager
	Chat       *extraction.Pipeline
	Voice      *extraction.VoicePipeline
	Skills     skill.Store
	Metrics    *observability.Metrics
	Completion CompletionInfo

	// Cleanup should be called on shutdown to release external resources (DB, Redis).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, opts Options) (*BuildResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace, opts.Registerer)

	skills, err := skill.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("skill store init failed: %w", err)
	}

	var windows ratelimit.Store
	var redisStore *ratelimit.RedisStore
	switch strings.ToLower(strings.TrimSpace(cfg.RateLimitStore)) {
	case "redis":
		redisStore, err = ratelimit.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			_ = skills.Close()
			return nil, fmt.Errorf("rate limit store init failed: %w", err)
		}
		windows = redisStore
	default:
		windows = ratelimit.NewMemoryStore(cfg.RateLimitWindow)
	}
	limiter := ratelimit.New(windows, ratelimit.Options{
		Window:      cfg.RateLimitWindow,
		MaxRequests: cfg.RateLimitMaxRequests,
	})

	setup, err := resolveCompleter(cfg)
	if err != nil {
		_ = skills.Close()
		if redisStore != nil {
			_ = redisStore.Close()
		}
		return nil, err
	}

	invoker := extraction.NewInvoker(setup.completer, extraction.InvokerOptions{
		MaxAttempts: cfg.ModelMaxAttempts,
		BaseDelay:   cfg.ModelRetryBaseDelay,
		Logger:      logger,
		Metrics:     metrics,
	})
	chat := extraction.NewPipeline(limiter, invoker, logger, metrics)
	voice := extraction.NewVoicePipeline(invoker, logger, metrics)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		logger.Info("chat session expired",
			"session_id", s.ID,
			"turns", s.TurnCount,
			"active", sessions.ActiveCount(),
		)
	})

	ready := func(ctx context.Context) error {
		var errs []error
		if p, ok := skills.(skill.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("skill store: %w", err))
			}
		}
		if redisStore != nil {
			if err := redisStore.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("rate limit store: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	api := httpapi.New(cfg, httpapi.Deps{
		Chat:     chat,
		Voice:    voice,
		Skills:   skills,
		Sessions: sessions,
		Metrics:  metrics,
		Logger:   logger,
		Ready:    ready,
	})

	cleanup := func() error {
		var errs []string
		if redisStore != nil {
			if err := redisStore.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := skills.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Chat:     chat,
		Voice:    voice,
		Skills:   skills,
		Metrics:  metrics,
		Completion: CompletionInfo{
			Provider: setup.resolvedProvider,
			Detail:   setup.detail,
		},
		Cleanup: cleanup,
	}, nil
}
