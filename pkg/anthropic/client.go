// Package anthropic is the thin Claude client behind report extraction.
// It exposes only what the pipeline sends: single extraction messages, a
// cacheable shared system prompt, and Message Batches for whole-run
// submission, with per-report token cost accounting.
package anthropic

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/jsonl"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client is the API surface the extraction pipeline depends on.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
	CreateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error)
	GetBatch(ctx context.Context, batchID string) (*BatchResponse, error)
	GetBatchResults(ctx context.Context, batchID string) (BatchResultIterator, error)
}

// MessageRequest carries one extraction call: the shared system prompt
// plus a single user turn holding the report text.
type MessageRequest struct {
	Model     string
	MaxTokens int64
	System    []SystemBlock
	Messages  []Message
}

// SystemBlock is one system prompt block. Cached marks it as a prompt
// cache breakpoint with a 1-hour TTL; the extraction prompt is the same
// for every report in a run, so it is always sent cached.
type SystemBlock struct {
	Text   string
	Cached bool
}

// Message is one conversational turn.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// MessageResponse is the subset of the API reply the pipeline reads.
type MessageResponse struct {
	ID         string
	Model      string
	StopReason string
	Content    []ContentBlock
	Usage      TokenUsage
}

// ContentBlock is one block of reply content.
type ContentBlock struct {
	Type string
	Text string
}

// Text concatenates the text blocks of the reply. Extraction replies are
// a single JSON object, but truncated or tool-bearing replies still
// yield whatever text came back.
func (r *MessageResponse) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// LogUsage emits the reply's token counts and estimated cost attributed
// to the report that produced it.
func (r *MessageResponse) LogUsage(reportID string) {
	zap.L().Info("token usage",
		zap.String("report_id", reportID),
		zap.String("model", r.Model),
		zap.Int64("input_tokens", r.Usage.InputTokens),
		zap.Int64("output_tokens", r.Usage.OutputTokens),
		zap.Int64("cache_write_tokens", r.Usage.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", r.Usage.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", r.Usage.Cost(r.Model)),
	)
}

// TokenUsage tallies token consumption for one request.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

type modelRate struct {
	in, out float64 // $ per MTok
}

var modelRates = map[string]modelRate{
	"claude-haiku-4-5-20251001":  {in: 0.80, out: 4.00},
	"claude-sonnet-4-5-20250929": {in: 3.00, out: 15.00},
	"claude-opus-4-6":            {in: 15.00, out: 75.00},
}

// Cache writes bill at 1.25x the input rate, cache reads at 0.1x. With
// the extraction prompt cached, reads dominate after the first report.
const (
	cacheWriteFactor = 1.25
	cacheReadFactor  = 0.10
)

// Cost estimates the request cost in USD, 0 for unknown models.
func (u TokenUsage) Cost(model string) float64 {
	rate, ok := modelRates[model]
	if !ok {
		return 0
	}
	mtok := func(n int64) float64 { return float64(n) / 1e6 }
	return mtok(u.InputTokens)*rate.in +
		mtok(u.OutputTokens)*rate.out +
		mtok(u.CacheCreationInputTokens)*rate.in*cacheWriteFactor +
		mtok(u.CacheReadInputTokens)*rate.in*cacheReadFactor
}

// BatchRequest submits one extraction request per report.
type BatchRequest struct {
	Requests []BatchRequestItem
}

// BatchRequestItem is a single report's request; CustomID is the
// canonical report ID, which keys the results back to their reports.
type BatchRequestItem struct {
	CustomID string
	Params   MessageRequest
}

// BatchResponse is the batch's processing state.
type BatchResponse struct {
	ID               string
	ProcessingStatus string
	RequestCounts    RequestCounts
}

// RequestCounts breaks a batch down by request status.
type RequestCounts struct {
	Processing int64
	Succeeded  int64
	Errored    int64
	Canceled   int64
	Expired    int64
}

// BatchResultItem is one report's outcome from a finished batch.
type BatchResultItem struct {
	CustomID string
	Type     string // "succeeded", "errored", "canceled", "expired"
	Message  *MessageResponse
}

// BatchResultIterator streams results from a finished batch.
type BatchResultIterator interface {
	Next() bool
	Item() BatchResultItem
	Err() error
	Close() error
}

type sdkClient struct {
	client sdk.Client
}

// NewClient builds a Client backed by the official SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.client.Messages.New(ctx, sdkParams(req))
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return messageFromSDK(msg), nil
}

func (c *sdkClient) CreateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	items := make([]sdk.MessageBatchNewParamsRequest, len(req.Requests))
	for i, r := range req.Requests {
		p := sdkParams(r.Params)
		items[i] = sdk.MessageBatchNewParamsRequest{
			CustomID: r.CustomID,
			Params: sdk.MessageBatchNewParamsRequestParams{
				Model:       p.Model,
				MaxTokens:   p.MaxTokens,
				System:      p.System,
				Messages:    p.Messages,
				Temperature: p.Temperature,
			},
		}
	}

	batch, err := c.client.Messages.Batches.New(ctx, sdk.MessageBatchNewParams{Requests: items})
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create batch")
	}
	return batchFromSDK(batch), nil
}

func (c *sdkClient) GetBatch(ctx context.Context, batchID string) (*BatchResponse, error) {
	batch, err := c.client.Messages.Batches.Get(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("anthropic: get batch %s", batchID))
	}
	return batchFromSDK(batch), nil
}

func (c *sdkClient) GetBatchResults(ctx context.Context, batchID string) (BatchResultIterator, error) {
	stream := c.client.Messages.Batches.ResultsStreaming(ctx, batchID)
	if err := stream.Err(); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("anthropic: get batch results %s", batchID))
	}
	return &sdkResultIterator{stream: stream}, nil
}

type sdkResultIterator struct {
	stream *jsonl.Stream[sdk.MessageBatchIndividualResponse]
	item   BatchResultItem
}

func (it *sdkResultIterator) Next() bool {
	if !it.stream.Next() {
		return false
	}
	it.item = resultFromSDK(it.stream.Current())
	return true
}

func (it *sdkResultIterator) Item() BatchResultItem { return it.item }
func (it *sdkResultIterator) Err() error            { return it.stream.Err() }
func (it *sdkResultIterator) Close() error          { return it.stream.Close() }

// sdkParams converts a MessageRequest. Temperature is pinned to zero:
// field extraction has one right answer per report and replies must be
// reproducible across runs.
func sdkParams(req MessageRequest) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(req.Model),
		MaxTokens:   req.MaxTokens,
		Messages:    sdkMessages(req.Messages),
		Temperature: sdk.Float(0),
	}
	if len(req.System) > 0 {
		params.System = sdkSystem(req.System)
	}
	return params
}

func sdkMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out[i] = sdk.NewAssistantMessage(block)
		} else {
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}

func sdkSystem(blocks []SystemBlock) []sdk.TextBlockParam {
	out := make([]sdk.TextBlockParam, len(blocks))
	for i, b := range blocks {
		out[i] = sdk.TextBlockParam{Text: b.Text}
		if b.Cached {
			cc := sdk.NewCacheControlEphemeralParam()
			cc.TTL = sdk.CacheControlEphemeralTTL("1h")
			out[i].CacheControl = cc
		}
	}
	return out
}

func messageFromSDK(msg *sdk.Message) *MessageResponse {
	blocks := make([]ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		blocks = append(blocks, ContentBlock{Type: b.Type, Text: b.Text})
	}
	return &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Content:    blocks,
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
	}
}

func batchFromSDK(batch *sdk.MessageBatch) *BatchResponse {
	return &BatchResponse{
		ID:               batch.ID,
		ProcessingStatus: string(batch.ProcessingStatus),
		RequestCounts: RequestCounts{
			Processing: batch.RequestCounts.Processing,
			Succeeded:  batch.RequestCounts.Succeeded,
			Errored:    batch.RequestCounts.Errored,
			Canceled:   batch.RequestCounts.Canceled,
			Expired:    batch.RequestCounts.Expired,
		},
	}
}

func resultFromSDK(resp sdk.MessageBatchIndividualResponse) BatchResultItem {
	item := BatchResultItem{
		CustomID: resp.CustomID,
		Type:     resp.Result.Type,
	}
	if resp.Result.Type == "succeeded" {
		msg := resp.Result.Message
		item.Message = messageFromSDK(&msg)
	}
	return item
}
