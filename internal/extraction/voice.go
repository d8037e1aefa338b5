package extraction

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/skilldash/internal/observability"
	"github.com/ent0n29/skilldash/internal/policy"
	"github.com/ent0n29/skilldash/internal/skill"
)

// VoicePipeline extracts a complete draft from one transcript. It has no
// history and no rate limiter but shares the invoker's retry policy.
type VoicePipeline struct {
	model   Model
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewVoicePipeline(model Model, logger *slog.Logger, metrics *observability.Metrics) *VoicePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &VoicePipeline{
		model:   model,
		logger:  logger.With("pipeline", "voice"),
		metrics: metrics,
	}
}

func (p *VoicePipeline) Extract(ctx context.Context, transcript string) (skill.Draft, error) {
	start := time.Now()
	if strings.TrimSpace(transcript) == "" {
		p.metrics.ObserveExtraction("voice", OutcomeInvalid)
		return skill.Draft{}, &ValidationError{Field: "transcript", Reason: "is required"}
	}
	clean := policy.Sanitize(transcript)
	if clean == "" {
		p.metrics.ObserveExtraction("voice", OutcomeInvalid)
		return skill.Draft{}, &ValidationError{Field: "transcript", Reason: "contains no usable text"}
	}

	completion, err := p.model.Invoke(ctx, BuildVoicePrompt(clean))
	if err != nil {
		p.logger.Error("voice completion failed", "error", err)
		p.metrics.ObserveExtraction("voice", OutcomeFailed)
		return skill.Draft{}, err
	}

	d, err := ParseVoiceCompletion(completion)
	if err != nil {
		p.logger.Warn("voice payload unusable", "error", err, "completion", policy.LogPreview(completion))
		p.metrics.ObserveDegradedParse("voice")
		p.metrics.ObserveExtraction("voice", OutcomeFailed)
		return skill.Draft{}, err
	}

	p.logger.Info("voice transcript parsed",
		"name", d.Name,
		"category", d.Category,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	p.metrics.ObserveExtraction("voice", OutcomeDone)
	p.metrics.ObserveStage("voice_total", time.Since(start))
	return d, nil
}
