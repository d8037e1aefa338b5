package extraction

import (
	"context"
	"log/slog"
	"time"

	"github.com/ent0n29/skilldash/internal/observability"
	"github.com/ent0n29/skilldash/internal/policy"
)

// Terminal states of an extraction.
const (
	OutcomeDone     = "done"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// Pipeline runs one chat turn: validate, rate limit, sanitize, build the
// prompt, invoke the model, parse. Parsing never fails a turn.
type Pipeline struct {
	limiter Limiter
	model   Model
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPipeline builds a chat pipeline. A nil limiter admits every request.
func NewPipeline(limiter Limiter, model Model, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		limiter: limiter,
		model:   model,
		logger:  logger.With("pipeline", "chat"),
		metrics: metrics,
	}
}

func (p *Pipeline) Extract(ctx context.Context, req ChatRequest) (Result, error) {
	start := time.Now()
	log := p.logger.With("client_key", req.ClientKey)

	if err := req.Validate(); err != nil {
		log.Info("chat turn rejected", "error", err)
		p.finish(OutcomeInvalid, start)
		return Result{}, err
	}

	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, req.ClientKey)
		switch {
		case err != nil:
			// Fail open on store errors.
			log.Warn("rate limiter unavailable, admitting request", "error", err)
			p.metrics.ObserveRateLimit("error")
			p.metrics.ObserveStoreError("ratelimit", "allow")
		case !allowed:
			log.Info("chat turn rate limited")
			p.metrics.ObserveRateLimit("denied")
			p.finish(OutcomeRejected, start)
			return Result{}, &RateLimitError{ClientKey: req.ClientKey}
		default:
			p.metrics.ObserveRateLimit("allowed")
		}
	}

	stage := time.Now()
	message := policy.Sanitize(req.Message)
	history := make([]Turn, 0, min(len(req.History), PromptHistoryTurns))
	for _, t := range req.History[max(len(req.History)-PromptHistoryTurns, 0):] {
		history = append(history, Turn{Role: t.Role, Content: policy.Sanitize(t.Content)})
	}
	p.metrics.ObserveStage("sanitize", time.Since(stage))

	stage = time.Now()
	prompt := BuildChatPrompt(history, message)
	p.metrics.ObserveStage("prompt", time.Since(stage))

	log.Debug("invoking model", "message", policy.LogPreview(message), "history_turns", len(history))
	completion, err := p.model.Invoke(ctx, prompt)
	if err != nil {
		log.Error("chat completion failed", "error", err)
		p.finish(OutcomeFailed, start)
		return Result{}, err
	}

	stage = time.Now()
	res, perr := parseChatCompletion(completion)
	p.metrics.ObserveStage("parse", time.Since(stage))
	if perr != nil {
		log.Warn("dropping malformed payload", "error", perr)
		p.metrics.ObserveDegradedParse("chat")
	}

	log.Info("chat turn done",
		"has_update", res.Update != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	p.finish(OutcomeDone, start)
	return res, nil
}

func (p *Pipeline) finish(outcome string, start time.Time) {
	p.metrics.ObserveExtraction("chat", outcome)
	if outcome == OutcomeDone {
		p.metrics.ObserveStage("chat_total", time.Since(start))
	}
}
