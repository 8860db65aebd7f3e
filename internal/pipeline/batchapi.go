package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Gatsby0916/reporteval/internal/model"
	"github.com/Gatsby0916/reporteval/internal/truth"
	"github.com/Gatsby0916/reporteval/pkg/anthropic"
)

// BatchExtractor extracts many reports in one round trip. Reports that
// fail are absent from the returned map.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, reports []Report) (map[string]model.RawRecord, error)
}

// ExtractBatch submits every report through the Message Batches API.
// The cache is warmed first so the shared system prompt is written once
// before the batch fans out.
func (e *AnthropicExtractor) ExtractBatch(ctx context.Context, reports []Report) (map[string]model.RawRecord, error) {
	warm, err := anthropic.WarmCache(ctx, e.client, e.model, e.system)
	if err != nil {
		return nil, err
	}
	zap.L().Info("prompt cache warmed",
		zap.Int64("cache_write_tokens", warm.CacheCreationInputTokens),
	)

	items := make([]anthropic.BatchRequestItem, len(reports))
	for i, rep := range reports {
		items[i] = anthropic.BatchRequestItem{
			CustomID: rep.ID,
			Params: anthropic.MessageRequest{
				Model:     e.model,
				MaxTokens: e.maxTokens,
				System:    e.system,
				Messages: []anthropic.Message{
					{Role: "user", Content: rep.Text},
				},
			},
		}
	}

	batch, err := e.client.CreateBatch(ctx, anthropic.BatchRequest{Requests: items})
	if err != nil {
		return nil, err
	}
	zap.L().Info("batch submitted",
		zap.String("batch_id", batch.ID),
		zap.Int("requests", len(items)),
	)

	if _, err := anthropic.PollBatch(ctx, e.client, batch.ID, anthropic.PollConfig{}); err != nil {
		return nil, err
	}
	iter, err := e.client.GetBatchResults(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	replies, failures, err := anthropic.CollectResults(iter)
	if err != nil {
		return nil, err
	}
	for _, f := range failures {
		zap.L().Warn("report failed in batch",
			zap.String("report_id", f.ReportID),
			zap.String("reason", f.Reason),
		)
	}

	raws := make(map[string]model.RawRecord, len(replies))
	for id, resp := range replies {
		resp.LogUsage(id)
		raw, err := ParseModelJSON(resp.Text())
		if err != nil {
			zap.L().Warn("unparsable batch reply",
				zap.String("report_id", id),
				zap.String("stop_reason", resp.StopReason),
			)
			continue
		}
		raws[id] = raw
	}
	return raws, nil
}

// RunBatchAPI processes reports through the extractor's batch path. The
// recorded per-report elapsed time is the batch wall clock, since the API
// does not attribute time to individual requests.
func (p *Pipeline) RunBatchAPI(ctx context.Context, reports []Report) ([]*Result, error) {
	be, ok := p.Extractor.(BatchExtractor)
	if !ok {
		return nil, eris.New("pipeline: extractor does not support batch extraction")
	}

	canonical := make([]Report, len(reports))
	for i, rep := range reports {
		canonical[i] = Report{ID: truth.CanonicalID(rep.ID), Text: rep.Text}
	}

	start := time.Now()
	raws, err := be.ExtractBatch(ctx, canonical)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	results := make([]*Result, 0, len(raws))
	failed := 0
	for _, rep := range canonical {
		raw, ok := raws[rep.ID]
		if !ok {
			failed++
			continue
		}
		res, err := p.processExtracted(ctx, rep.ID, raw, elapsed)
		if err != nil {
			zap.L().Error("report failed",
				zap.String("report_id", rep.ID),
				zap.Error(err),
			)
			failed++
			continue
		}
		results = append(results, res)
	}
	if failed > 0 {
		zap.L().Warn("batch finished with failures",
			zap.Int("failed", failed),
			zap.Int("succeeded", len(results)),
		)
	}
	return results, nil
}
