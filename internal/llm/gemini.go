package llm

import (
	"context"
	"iter"

	"google.golang.org/genai"

	"github.com/resumind/resumind/internal/core"
)

type geminiStreamer struct {
	model  string
	client *genai.Client
}

func newGeminiStreamer(ctx context.Context, apiKey, model string) (*geminiStreamer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.ErrExecution("provider_error", "gemini: client init failed").WithCause(err)
	}
	return &geminiStreamer{model: model, client: client}, nil
}

func (s *geminiStreamer) Name() string { return ProviderGemini }

func (s *geminiStreamer) Stream(ctx context.Context, req Request) (Stream, error) {
	contents, cfg := encodeGeminiRequest(req)
	seq := s.client.Models.GenerateContentStream(ctx, s.model, contents, cfg)
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}, nil
}

// encodeGeminiRequest maps chat messages onto Gemini's content model:
// system messages become the system instruction, assistant turns use
// the "model" role.
func encodeGeminiRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, cfg
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
	err  error
}

func (s *geminiStream) Next(ctx context.Context) (string, bool) {
	if s.err != nil {
		return "", false
	}
	for {
		if err := ctx.Err(); err != nil {
			s.err = err
			return "", false
		}
		resp, err, ok := s.next()
		if !ok {
			return "", false
		}
		if err != nil {
			s.err = core.ErrExecution("provider_error", "gemini: request failed").WithCause(err)
			return "", false
		}
		if text := resp.Text(); text != "" {
			return text, true
		}
	}
}

func (s *geminiStream) Err() error { return s.err }

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}
