package workflow

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"

	"github.com/resumind/resumind/internal/core"
	"github.com/resumind/resumind/internal/logging"
)

//go:embed prompts/*.md prompts/*.md.tmpl
var promptFS embed.FS

const userMessageTemplate = "user_message.md.tmpl"

// userMessageData is the payload for user_message.md.tmpl. Prior holds
// the outputs of all finished steps, already joined by blank lines.
type userMessageData struct {
	Resume         string
	JobDescription string
	Prior          string
}

// Prompts resolves the system prompt for each workflow step and renders
// the per-step user message. Prompt files embedded at build time can be
// shadowed by same-named files in an override directory; the override
// set is re-read whenever the directory changes.
type Prompts struct {
	logger   *logging.Logger
	dir      string
	userTmpl *template.Template

	mu        sync.RWMutex
	embedded  map[string]string
	overrides map[string]string
}

// NewPrompts loads the embedded prompt set and, when dir is non-empty,
// the initial override set from it. A missing override directory is not
// an error; overrides simply stay empty until the directory appears.
func NewPrompts(dir string, logger *logging.Logger) (*Prompts, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	embedded := make(map[string]string)
	entries, err := fs.ReadDir(promptFS, "prompts")
	if err != nil {
		return nil, fmt.Errorf("reading embedded prompts: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) != ".md" {
			continue
		}
		data, err := promptFS.ReadFile("prompts/" + name)
		if err != nil {
			return nil, fmt.Errorf("reading embedded prompt %s: %w", name, err)
		}
		embedded[strings.TrimSuffix(name, ".md")] = string(data)
	}

	tmplData, err := promptFS.ReadFile("prompts/" + userMessageTemplate)
	if err != nil {
		return nil, fmt.Errorf("reading user message template: %w", err)
	}
	userTmpl, err := template.New(userMessageTemplate).Parse(string(tmplData))
	if err != nil {
		return nil, fmt.Errorf("parsing user message template: %w", err)
	}

	p := &Prompts{
		logger:    logger,
		dir:       dir,
		userTmpl:  userTmpl,
		embedded:  embedded,
		overrides: make(map[string]string),
	}
	if dir != "" {
		if err := p.loadOverrides(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SystemPrompt returns the prompt for a step key, preferring an
// override over the embedded copy.
func (p *Prompts) SystemPrompt(key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if content, ok := p.overrides[key]; ok {
		return content, nil
	}
	if content, ok := p.embedded[key]; ok {
		return content, nil
	}
	return "", core.ErrInternal("prompt_missing", fmt.Sprintf("no prompt for step key %q", key))
}

// UserMessage renders the user message for one step: the resume, the
// job description and every prior step output wrapped in their tags.
func (p *Prompts) UserMessage(resume, jobDescription string, prior []string) (string, error) {
	var buf strings.Builder
	data := userMessageData{
		Resume:         resume,
		JobDescription: jobDescription,
		Prior:          strings.Join(prior, "\n\n"),
	}
	if err := p.userTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering user message: %w", err)
	}
	return buf.String(), nil
}

// Watch re-reads the override directory whenever a prompt file inside
// it changes. It returns after starting the watch goroutine; the watch
// stops when ctx is cancelled. Without an override directory, or when
// the directory does not exist yet, Watch is a no-op.
func (p *Prompts) Watch(ctx context.Context) error {
	if p.dir == "" {
		return nil
	}
	if _, err := os.Stat(p.dir); err != nil {
		p.logger.Warn("prompt override directory not watchable", "dir", p.dir, "error", err)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating prompt watcher: %w", err)
	}
	if err := watcher.Add(p.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", p.dir, err)
	}

	go p.watchLoop(ctx, watcher)
	return nil
}

func (p *Prompts) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".md" {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := p.loadOverrides(); err != nil {
				p.logger.Warn("reloading prompt overrides", "error", err)
				continue
			}
			p.logger.Info("prompt overrides reloaded", "file", filepath.Base(event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("prompt watcher error", "error", err)
		}
	}
}

// loadOverrides replaces the whole override set from the directory so
// deletions fall back to the embedded copy again.
func (p *Prompts) loadOverrides() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			p.mu.Lock()
			p.overrides = make(map[string]string)
			p.mu.Unlock()
			return nil
		}
		return fmt.Errorf("reading prompt directory %s: %w", p.dir, err)
	}

	overrides := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.dir, name))
		if err != nil {
			return fmt.Errorf("reading prompt override %s: %w", name, err)
		}
		overrides[strings.TrimSuffix(name, ".md")] = string(data)
	}

	p.mu.Lock()
	p.overrides = overrides
	p.mu.Unlock()
	return nil
}
