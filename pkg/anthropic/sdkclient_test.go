package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAPI serves canned JSON, recording the paths hit.
func stubAPI(t *testing.T, status int, body string) (*sdkClient, *[]string) {
	t.Helper()
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	client := &sdkClient{client: sdk.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(ts.URL),
	)}
	return client, &paths
}

const messageBody = `{
	"id": "msg_rri045",
	"type": "message",
	"role": "assistant",
	"model": "claude-haiku-4-5-20251001",
	"stop_reason": "end_turn",
	"content": [{"type": "text", "text": "{\"Adenomyosis\": \"1\", \"Uterus size_mm\": \"80\"}"}],
	"usage": {
		"input_tokens": 350,
		"output_tokens": 40,
		"cache_creation_input_tokens": 0,
		"cache_read_input_tokens": 4000
	}
}`

func TestSDKClientCreateMessage(t *testing.T) {
	client, paths := stubAPI(t, http.StatusOK, messageBody)

	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
		System:    CachedSystem("Extract the listed fields from the ultrasound report."),
		Messages:  []Message{{Role: "user", Content: "Report RRI 045: the uterus measures 80mm..."}},
	})
	require.NoError(t, err)
	require.Len(t, *paths, 1)
	assert.Contains(t, (*paths)[0], "/messages")

	assert.Equal(t, "msg_rri045", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, `{"Adenomyosis": "1", "Uterus size_mm": "80"}`, resp.Text())
	assert.Equal(t, int64(4000), resp.Usage.CacheReadInputTokens)
}

func TestSDKClientCreateMessageError(t *testing.T) {
	client, _ := stubAPI(t, http.StatusInternalServerError,
		`{"type": "error", "error": {"type": "api_error", "message": "upstream"}}`)

	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "report text"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}

func TestSDKClientCreateBatch(t *testing.T) {
	client, paths := stubAPI(t, http.StatusOK, `{
		"id": "batch_run1",
		"type": "message_batch",
		"processing_status": "in_progress",
		"request_counts": {"processing": 2, "succeeded": 0, "errored": 0, "canceled": 0, "expired": 0}
	}`)

	req := MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
		System:    CachedSystem("Extract the listed fields from the ultrasound report."),
	}
	resp, err := client.CreateBatch(context.Background(), BatchRequest{Requests: []BatchRequestItem{
		{CustomID: "101", Params: req},
		{CustomID: "RRI 012", Params: req},
	}})
	require.NoError(t, err)
	require.Len(t, *paths, 1)
	assert.Contains(t, (*paths)[0], "/batches")

	assert.Equal(t, "batch_run1", resp.ID)
	assert.Equal(t, "in_progress", resp.ProcessingStatus)
	assert.Equal(t, int64(2), resp.RequestCounts.Processing)
}

func TestSDKClientGetBatch(t *testing.T) {
	client, paths := stubAPI(t, http.StatusOK, `{
		"id": "batch_run1",
		"type": "message_batch",
		"processing_status": "ended",
		"request_counts": {"processing": 0, "succeeded": 2, "errored": 0, "canceled": 0, "expired": 0}
	}`)

	resp, err := client.GetBatch(context.Background(), "batch_run1")
	require.NoError(t, err)
	assert.Contains(t, (*paths)[0], "batch_run1")
	assert.Equal(t, "ended", resp.ProcessingStatus)
	assert.Equal(t, int64(2), resp.RequestCounts.Succeeded)
}

func TestSDKClientGetBatchError(t *testing.T) {
	client, _ := stubAPI(t, http.StatusNotFound,
		`{"type": "error", "error": {"type": "not_found_error", "message": "no such batch"}}`)

	_, err := client.GetBatch(context.Background(), "batch_gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get batch batch_gone")
}

func TestSDKClientGetBatchResults(t *testing.T) {
	reply := func(id, text string) string {
		return `{"custom_id":"` + id + `","result":{"type":"succeeded","message":{` +
			`"id":"msg_` + id + `","type":"message","role":"assistant",` +
			`"model":"claude-haiku-4-5-20251001","stop_reason":"end_turn",` +
			`"content":[{"type":"text","text":` + text + `}],` +
			`"usage":{"input_tokens":350,"output_tokens":40,"cache_creation_input_tokens":0,"cache_read_input_tokens":4000}}}}`
	}
	body := reply("101", `"{\"Adenomyosis\": \"1\"}"`) + "\n" +
		`{"custom_id":"104","result":{"type":"errored"}}` + "\n" +
		reply("107", `"{\"Adenomyosis\": \"0\"}"`) + "\n"

	client, _ := stubAPI(t, http.StatusOK, body)
	iter, err := client.GetBatchResults(context.Background(), "batch_run1")
	require.NoError(t, err)

	replies, failed, err := CollectResults(iter)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, `{"Adenomyosis": "1"}`, replies["101"].Text())
	assert.Equal(t, `{"Adenomyosis": "0"}`, replies["107"].Text())
	require.Len(t, failed, 1)
	assert.Equal(t, "104", failed[0].ReportID)
}

func TestSDKClientGetBatchResultsError(t *testing.T) {
	client, _ := stubAPI(t, http.StatusNotFound,
		`{"type": "error", "error": {"type": "not_found_error", "message": "no such batch"}}`)

	_, err := client.GetBatchResults(context.Background(), "batch_gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get batch results")
}
