package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
)

// CachedSystem wraps the shared extraction prompt in a single system
// block carrying a cache breakpoint.
func CachedSystem(prompt string) []SystemBlock {
	return []SystemBlock{{Text: prompt, Cached: true}}
}

// warmTurn is the throwaway user turn of a cache warm-up request. The
// reply is irrelevant; the request exists to write the system prompt
// into the cache before a run fans out.
const warmTurn = "Reply with OK."

// WarmCache sends one small request so every later request in the run
// reads the system prompt from cache instead of re-billing it. Returns
// the warm-up usage; CacheCreationInputTokens is the cached prompt size.
func WarmCache(ctx context.Context, client Client, model string, system []SystemBlock) (TokenUsage, error) {
	resp, err := client.CreateMessage(ctx, MessageRequest{
		Model:     model,
		MaxTokens: 16,
		System:    system,
		Messages:  []Message{{Role: "user", Content: warmTurn}},
	})
	if err != nil {
		return TokenUsage{}, eris.Wrap(err, "anthropic: warm prompt cache")
	}
	return resp.Usage, nil
}
