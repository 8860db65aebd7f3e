package anthropic

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PollConfig tunes PollBatch. Zero values take the defaults, which suit
// extraction runs of a few hundred reports: most batches finish inside
// an hour, so polling backs off to a minute and gives up after two.
type PollConfig struct {
	Interval    time.Duration // first poll delay, default 5s
	MaxInterval time.Duration // backoff cap, default 1m
	Timeout     time.Duration // overall deadline, default 2h
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Hour
	}
	return c
}

// PollBatch polls until the batch ends, doubling the interval up to the
// cap with up to 20% jitter so restarted runs do not poll in lockstep.
// Expired and canceled batches return an error immediately.
func PollBatch(ctx context.Context, client Client, batchID string, cfg PollConfig) (*BatchResponse, error) {
	cfg = cfg.withDefaults()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	interval := cfg.Interval
	for {
		batch, err := client.GetBatch(ctx, batchID)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("anthropic: poll batch %s", batchID))
		}

		switch batch.ProcessingStatus {
		case "ended":
			return batch, nil
		case "expired":
			return batch, eris.Errorf("anthropic: batch %s expired", batchID)
		case "canceling", "canceled":
			return batch, eris.Errorf("anthropic: batch %s canceled", batchID)
		}

		zap.L().Debug("batch in progress",
			zap.String("batch_id", batchID),
			zap.Int64("processing", batch.RequestCounts.Processing),
			zap.Int64("succeeded", batch.RequestCounts.Succeeded),
			zap.Int64("errored", batch.RequestCounts.Errored),
		)

		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("anthropic: poll batch %s timed out", batchID))
		case <-time.After(interval + time.Duration(rand.Int64N(int64(interval)/5+1))):
		}

		interval *= 2
		if interval > cfg.MaxInterval {
			interval = cfg.MaxInterval
		}
	}
}

// BatchFailure is one report whose batch request did not succeed.
type BatchFailure struct {
	ReportID string
	Reason   string // "errored", "canceled", "expired"
}

// CollectResults drains the iterator into replies keyed by report ID,
// plus the reports that failed. The caller decides how failures are
// logged and whether they abort the run.
func CollectResults(iter BatchResultIterator) (map[string]*MessageResponse, []BatchFailure, error) {
	defer iter.Close()

	replies := make(map[string]*MessageResponse)
	var failed []BatchFailure
	for iter.Next() {
		item := iter.Item()
		if item.Type == "succeeded" && item.Message != nil {
			replies[item.CustomID] = item.Message
			continue
		}
		failed = append(failed, BatchFailure{ReportID: item.CustomID, Reason: item.Type})
	}
	if err := iter.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "anthropic: read batch results")
	}
	return replies, failed, nil
}
