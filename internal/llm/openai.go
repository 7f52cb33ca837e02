package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/resumind/resumind/internal/core"
)

// openaiStreamer serves every provider speaking the OpenAI-compatible
// chat completions protocol. DeepSeek and Kimi differ only in base URL
// and model names.
type openaiStreamer struct {
	name   string
	model  string
	client openai.Client
}

func newOpenAIStreamer(name, apiKey, baseURL, model string) *openaiStreamer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openaiStreamer{
		name:   name,
		model:  model,
		client: openai.NewClient(opts...),
	}
}

func (s *openaiStreamer) Name() string { return s.name }

func (s *openaiStreamer) Stream(ctx context.Context, req Request) (Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(s.model),
		Messages:    encodeMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}

	raw := s.client.Chat.Completions.NewStreaming(ctx, params)
	if err := raw.Err(); err != nil {
		return nil, convertOpenAIError(s.name, err)
	}
	return &openaiStream{name: s.name, raw: raw}, nil
}

func encodeMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type openaiStream struct {
	name string
	raw  *ssestream.Stream[openai.ChatCompletionChunk]
	err  error
}

func (s *openaiStream) Next(ctx context.Context) (string, bool) {
	if s.err != nil {
		return "", false
	}
	for {
		if err := ctx.Err(); err != nil {
			s.err = err
			return "", false
		}
		if !s.raw.Next() {
			if err := s.raw.Err(); err != nil {
				s.err = convertOpenAIError(s.name, err)
			}
			return "", false
		}
		chunk := s.raw.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, true
		}
	}
}

func (s *openaiStream) Err() error { return s.err }

func (s *openaiStream) Close() error { return s.raw.Close() }

func convertOpenAIError(name string, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) && apierr.StatusCode == 429 {
		return core.ErrRateLimit(name + ": rate limited").WithCause(err)
	}
	return core.ErrExecution("provider_error", name+": request failed").WithCause(err)
}
