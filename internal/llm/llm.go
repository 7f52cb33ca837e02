// Package llm adapts the supported model providers behind one small
// streaming interface. DeepSeek and Kimi speak the OpenAI-compatible
// chat completions protocol; Gemini uses Google's own API.
package llm

import (
	"context"

	"github.com/resumind/resumind/internal/core"
)

// Message roles accepted by all providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat completion request.
type Message struct {
	Role    string
	Content string
}

// Request describes one streaming completion.
type Request struct {
	Messages    []Message
	Temperature float64
}

// Stream represents a stream of model output fragments.
type Stream interface {
	// Next returns the next text fragment. It returns false when the
	// stream is complete or an error occurred; check Err afterwards.
	Next(ctx context.Context) (string, bool)

	// Err returns any error that occurred while reading from the stream.
	Err() error

	// Close closes the stream and releases any associated resources.
	Close() error
}

// Streamer is a provider client bound to one model.
type Streamer interface {
	// Name returns the provider identifier.
	Name() string

	// Stream starts a streaming completion.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// New creates a streamer for the given stored configuration. Base URL
// and model fall back to the provider catalog defaults when unset.
func New(ctx context.Context, cfg *core.LLMConfig) (Streamer, error) {
	p, ok := ProviderByID(cfg.Provider)
	if !ok {
		return nil, core.ErrValidation("unknown_provider", "unsupported provider: "+cfg.Provider)
	}

	model := cfg.ModelName
	if model == "" {
		model = p.DefaultModel()
	}

	switch p.ID {
	case ProviderGemini:
		return newGeminiStreamer(ctx, cfg.APIKey, model)
	default:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = p.BaseURL
		}
		return newOpenAIStreamer(p.ID, cfg.APIKey, baseURL, model), nil
	}
}
