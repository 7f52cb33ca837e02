package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/resumind/resumind/internal/events"
	"github.com/resumind/resumind/internal/llm"
	"github.com/resumind/resumind/internal/logging"
)

// EmitFunc delivers one event to the caller. A non-nil return aborts
// the run; the executor never retries delivery.
type EmitFunc func(ctx context.Context, ev events.Event) error

// Input is the material one analysis run works on.
type Input struct {
	Resume         string
	JobDescription string
}

// ExecutorOptions configures NewExecutor. Steps defaults to the
// built-in manifest when nil.
type ExecutorOptions struct {
	Steps       []Step
	Prompts     *Prompts
	Streamer    llm.Streamer
	Input       Input
	Temperature float64
	Logger      *logging.Logger
}

// Executor drives one analysis run: every manifest step in order, each
// as a single streaming completion whose output feeds the prompts of
// all later steps.
type Executor struct {
	steps       []Step
	prompts     *Prompts
	streamer    llm.Streamer
	input       Input
	temperature float64
	logger      *logging.Logger
}

// NewExecutor validates the wiring and checks that every step key
// resolves to a system prompt before anything is streamed.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Prompts == nil {
		return nil, fmt.Errorf("workflow: prompts are required")
	}
	if opts.Streamer == nil {
		return nil, fmt.Errorf("workflow: streamer is required")
	}
	if strings.TrimSpace(opts.Input.Resume) == "" {
		return nil, fmt.Errorf("workflow: resume text is required")
	}

	steps := opts.Steps
	if steps == nil {
		var err error
		steps, err = Steps()
		if err != nil {
			return nil, err
		}
	}
	for _, s := range steps {
		if _, err := opts.Prompts.SystemPrompt(s.Key); err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Executor{
		steps:       steps,
		prompts:     opts.Prompts,
		streamer:    opts.Streamer,
		input:       opts.Input,
		temperature: opts.Temperature,
		logger:      logger,
	}, nil
}

// Run executes every step in order. Each step emits step_start, one
// content event per fragment and a step_end carrying the full text.
// A stream fault aborts the run before the step's step_end, so a
// partially streamed step is never marked finished.
func (e *Executor) Run(ctx context.Context, emit EmitFunc) error {
	prior := make([]string, 0, len(e.steps))
	for _, step := range e.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := e.runStep(ctx, step, prior, emit)
		if err != nil {
			return err
		}
		prior = append(prior, content)
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, step Step, prior []string, emit EmitFunc) (string, error) {
	system, err := e.prompts.SystemPrompt(step.Key)
	if err != nil {
		return "", err
	}
	user, err := e.prompts.UserMessage(e.input.Resume, e.input.JobDescription, prior)
	if err != nil {
		return "", err
	}

	if err := emit(ctx, events.NewStepStartEvent(step.Number, step.Title, step.Description)); err != nil {
		return "", err
	}

	stream, err := e.streamer.Stream(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: e.temperature,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var content strings.Builder
	for {
		fragment, ok := stream.Next(ctx)
		if !ok {
			break
		}
		content.WriteString(fragment)
		if err := emit(ctx, events.NewContentEvent(step.Number, fragment)); err != nil {
			return "", err
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}

	full := content.String()
	if err := emit(ctx, events.NewStepEndEvent(step.Number, full)); err != nil {
		return "", err
	}

	e.logger.Debug("step finished",
		"step", step.Number,
		"provider", e.streamer.Name(),
		"chars", len(full))
	return full, nil
}
