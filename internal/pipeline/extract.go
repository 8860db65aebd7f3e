package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/schema"
	"github.com/Gatsby0916/reporteval/pkg/anthropic"
)

// Extractor produces a raw key/value object from one report's text.
type Extractor interface {
	Extract(ctx context.Context, reportID, reportText string) (model.RawRecord, error)
}

// AnthropicExtractor extracts structured fields by prompting Claude with
// the schema-derived template. The system prompt is identical for every
// report, so it carries a cache breakpoint.
type AnthropicExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    []anthropic.SystemBlock
	limiter   *rate.Limiter
}

// NewAnthropicExtractor builds an extractor for the given schema.
// requestsPerSecond bounds the request rate across goroutines; zero means
// unlimited.
func NewAnthropicExtractor(client anthropic.Client, s *schema.Schema, model string, maxTokens int64, requestsPerSecond float64) *AnthropicExtractor {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &AnthropicExtractor{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		system:    anthropic.CachedSystem(BuildExtractionPrompt(s)),
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Model returns the model ID requests are sent to.
func (e *AnthropicExtractor) Model() string { return e.model }

func (e *AnthropicExtractor) Extract(ctx context.Context, reportID, reportText string) (model.RawRecord, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "pipeline: rate limit wait for %s", reportID)
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    e.system,
		Messages: []anthropic.Message{
			{Role: "user", Content: reportText},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: extract %s", reportID)
	}
	resp.LogUsage(reportID)

	raw, err := ParseModelJSON(resp.Text())
	if err != nil {
		zap.L().Warn("unparsable model reply",
			zap.String("report_id", reportID),
			zap.String("stop_reason", resp.StopReason),
		)
		return nil, err
	}
	return raw, nil
}
