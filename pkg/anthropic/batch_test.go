package anthropic

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient answers from function fields; unset operations fail.
type stubClient struct {
	createMessage func(MessageRequest) (*MessageResponse, error)
	getBatch      func(string) (*BatchResponse, error)
}

func (c *stubClient) CreateMessage(_ context.Context, req MessageRequest) (*MessageResponse, error) {
	if c.createMessage == nil {
		return nil, eris.New("unexpected CreateMessage")
	}
	return c.createMessage(req)
}

func (c *stubClient) CreateBatch(context.Context, BatchRequest) (*BatchResponse, error) {
	return nil, eris.New("unexpected CreateBatch")
}

func (c *stubClient) GetBatch(_ context.Context, batchID string) (*BatchResponse, error) {
	if c.getBatch == nil {
		return nil, eris.New("unexpected GetBatch")
	}
	return c.getBatch(batchID)
}

func (c *stubClient) GetBatchResults(context.Context, string) (BatchResultIterator, error) {
	return nil, eris.New("unexpected GetBatchResults")
}

// fastPoll keeps backoff out of test wall time.
var fastPoll = PollConfig{Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestPollBatchEnded(t *testing.T) {
	t.Parallel()

	calls := 0
	client := &stubClient{getBatch: func(id string) (*BatchResponse, error) {
		calls++
		assert.Equal(t, "batch_reports", id)
		return &BatchResponse{ID: id, ProcessingStatus: "ended"}, nil
	}}

	batch, err := PollBatch(context.Background(), client, "batch_reports", PollConfig{})
	require.NoError(t, err)
	assert.Equal(t, "ended", batch.ProcessingStatus)
	assert.Equal(t, 1, calls)
}

func TestPollBatchRetriesUntilEnded(t *testing.T) {
	t.Parallel()

	calls := 0
	client := &stubClient{getBatch: func(id string) (*BatchResponse, error) {
		calls++
		status := "in_progress"
		if calls >= 4 {
			status = "ended"
		}
		return &BatchResponse{ID: id, ProcessingStatus: status}, nil
	}}

	_, err := PollBatch(context.Background(), client, "b1", fastPoll)
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestPollBatchExpired(t *testing.T) {
	t.Parallel()

	client := &stubClient{getBatch: func(id string) (*BatchResponse, error) {
		return &BatchResponse{ID: id, ProcessingStatus: "expired"}, nil
	}}

	batch, err := PollBatch(context.Background(), client, "b1", fastPoll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
	require.NotNil(t, batch)
}

func TestPollBatchCanceled(t *testing.T) {
	t.Parallel()

	client := &stubClient{getBatch: func(id string) (*BatchResponse, error) {
		return &BatchResponse{ID: id, ProcessingStatus: "canceling"}, nil
	}}

	_, err := PollBatch(context.Background(), client, "b1", fastPoll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
}

func TestPollBatchContextDeadline(t *testing.T) {
	t.Parallel()

	client := &stubClient{getBatch: func(id string) (*BatchResponse, error) {
		return &BatchResponse{ID: id, ProcessingStatus: "in_progress"}, nil
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := PollBatch(ctx, client, "b1", PollConfig{Interval: 5 * time.Millisecond, MaxInterval: 5 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestPollBatchAPIError(t *testing.T) {
	t.Parallel()

	client := &stubClient{getBatch: func(string) (*BatchResponse, error) {
		return nil, eris.New("boom")
	}}

	_, err := PollBatch(context.Background(), client, "b1", fastPoll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll batch b1")
}

type listIterator struct {
	items  []BatchResultItem
	idx    int
	err    error
	closed bool
}

func (it *listIterator) Next() bool {
	if it.err != nil || it.idx >= len(it.items) {
		return false
	}
	it.idx++
	return true
}

func (it *listIterator) Item() BatchResultItem { return it.items[it.idx-1] }
func (it *listIterator) Err() error            { return it.err }
func (it *listIterator) Close() error          { it.closed = true; return nil }

func TestCollectResults(t *testing.T) {
	t.Parallel()

	iter := &listIterator{items: []BatchResultItem{
		{CustomID: "101", Type: "succeeded", Message: &MessageResponse{
			Content: []ContentBlock{{Type: "text", Text: extractionReply}},
		}},
		{CustomID: "RRI 012", Type: "errored"},
		{CustomID: "104", Type: "succeeded", Message: &MessageResponse{
			Content: []ContentBlock{{Type: "text", Text: `{"Adenomyosis": "0"}`}},
		}},
		{CustomID: "107", Type: "expired"},
	}}

	replies, failed, err := CollectResults(iter)
	require.NoError(t, err)
	assert.True(t, iter.closed)

	require.Len(t, replies, 2)
	assert.Equal(t, extractionReply, replies["101"].Text())
	require.Len(t, failed, 2)
	assert.Equal(t, BatchFailure{ReportID: "RRI 012", Reason: "errored"}, failed[0])
	assert.Equal(t, BatchFailure{ReportID: "107", Reason: "expired"}, failed[1])
}

func TestCollectResultsEmpty(t *testing.T) {
	t.Parallel()

	replies, failed, err := CollectResults(&listIterator{})
	require.NoError(t, err)
	assert.Empty(t, replies)
	assert.Empty(t, failed)
}

func TestCollectResultsIteratorError(t *testing.T) {
	t.Parallel()

	_, _, err := CollectResults(&listIterator{err: eris.New("stream cut")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read batch results")
}
