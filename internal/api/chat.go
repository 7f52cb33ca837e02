package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/resumind/resumind/internal/auth"
	"github.com/resumind/resumind/internal/core"
	"github.com/resumind/resumind/internal/events"
	"github.com/resumind/resumind/internal/extract"
	"github.com/resumind/resumind/internal/run"
	"github.com/resumind/resumind/internal/workflow"
)

// maxHistoryLimit caps one history page.
const maxHistoryLimit = 10

// conversationTitlePrefix names new analyses after the resume file.
const conversationTitlePrefix = "简历分析 - "

type conversationDTO struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type messageDTO struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Step      *int   `json:"step"`
	CreatedAt string `json:"created_at"`
}

type conversationDetailDTO struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	ResumeText     string       `json:"resume_text"`
	JobDescription string       `json:"job_description"`
	CreatedAt      string       `json:"created_at"`
	Messages       []messageDTO `json:"messages"`
}

// resumeMaterial is the text one analysis works on and the filename it
// came from.
type resumeMaterial struct {
	filename string
	text     string
}

// handleAnalyze starts a resume analysis and streams its events. The
// run itself is scoped to the server, not the request: closing the
// stream leaves the analysis running for a later reconnect.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	ctx := r.Context()

	cfg, err := s.store.DefaultLLMConfig(ctx, user.ID)
	if err != nil {
		if core.CategoryOf(err) == core.ErrCatNotFound {
			err = core.ErrValidation("no_llm_config",
				"No LLM configuration found. Please configure an LLM provider first.")
		}
		s.respondDomainError(w, r, err)
		return
	}

	material, err := s.resolveResume(w, r, user.ID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	jobDescription := strings.TrimSpace(r.FormValue("job_description"))

	conv, err := s.store.CreateConversation(ctx, user.ID,
		conversationTitlePrefix+material.filename, material.text, jobDescription)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if pruned, err := s.store.PruneConversations(ctx, user.ID, s.settings.KeepConversations); err != nil {
		s.logger.Warn("pruning conversations", "user_id", user.ID, "error", err)
	} else if pruned > 0 {
		s.logger.Debug("conversations pruned", "user_id", user.ID, "count", pruned)
	}

	streamer, err := s.newStreamer(ctx, cfg)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	executor, err := workflow.NewExecutor(workflow.ExecutorOptions{
		Steps:    s.steps,
		Prompts:  s.prompts,
		Streamer: streamer,
		Input: workflow.Input{
			Resume:         material.text,
			JobDescription: jobDescription,
		},
		Temperature: s.settings.Temperature,
		Logger:      s.logger.WithConversation(conv.ID),
	})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	sub, err := s.registry.Admit(s.baseCtx, user.ID, conv.ID, executor)
	if err != nil {
		s.respondDomainError(w, r, core.ErrConflict("analysis_running", "Analysis already running").WithCause(err))
		return
	}
	defer s.registry.Unsubscribe(sub)

	sw, ok := newSSEWriter(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	s.logger.Info("analysis started",
		"user_id", user.ID,
		"conversation_id", conv.ID,
		"provider", cfg.Provider)

	if sw.send(events.NewConversationStartEvent(conv.ID, conv.Title, conv.CreatedAt)) != nil {
		return
	}
	s.streamEvents(ctx, sw, sub)
}

// handleConversationStream reattaches a viewer to a running analysis:
// a ping, then a replay of the step in progress, then live events. An
// already finished runtime gets its terminal event synthesized instead
// of live forwarding.
func (s *Server) handleConversationStream(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	id, err := pathID(r, "conversationID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	sub, snap, err := s.registry.Subscribe(id, user.ID)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			s.respondDomainError(w, r, core.ErrNotFound("no_running_analysis",
				"No running analysis for this conversation"))
			return
		}
		s.respondDomainError(w, r, err)
		return
	}
	defer s.registry.Unsubscribe(sub)

	sw, ok := newSSEWriter(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	s.logger.Debug("viewer reattached", "user_id", user.ID, "conversation_id", id)

	if sw.send(events.NewPingEvent()) != nil {
		return
	}
	if snap.Step > 0 {
		if sw.send(events.NewStepStartEvent(snap.Step, snap.StepTitle, snap.StepDescription)) != nil {
			return
		}
		if snap.Content != "" {
			if sw.send(events.NewContentEvent(snap.Step, snap.Content)) != nil {
				return
			}
		}
	}
	if snap.Status.Terminal() {
		_ = sw.send(terminalEvent(snap.Status, snap.ErrMessage))
		return
	}
	s.streamEvents(r.Context(), sw, sub)
}

// handleHistory returns a page of the user's conversations with their
// derived status, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())

	limit := queryInt(r, "limit", maxHistoryLimit)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if limit < 1 {
		limit = 1
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	summaries, err := s.store.ListConversations(r.Context(), user.ID, limit, offset)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	out := make([]conversationDTO, 0, len(summaries))
	for _, c := range summaries {
		out = append(out, conversationDTO{
			ID:        c.ID,
			Title:     c.Title,
			Status:    c.Status,
			CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleStopConversation cancels a running analysis. A conversation
// whose final step is already durable reports already_completed; in
// every other case the stop marker is ensured even when no live run
// exists anymore.
func (s *Server) handleStopConversation(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	id, err := pathID(r, "conversationID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	ctx := r.Context()

	if _, err := s.store.GetConversation(ctx, user.ID, id); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	done, err := s.store.HasStepResult(ctx, id, s.finalStep)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if done {
		respondJSON(w, http.StatusOK, map[string]string{"status": "already_completed"})
		return
	}

	if err := s.registry.Cancel(id, user.ID); err != nil && !errors.Is(err, run.ErrNotFound) {
		s.respondDomainError(w, r, err)
		return
	}
	if _, err := s.store.MarkStoppedOnce(ctx, id); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.logger.Info("analysis stop requested", "user_id", user.ID, "conversation_id", id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleDeleteConversation removes a conversation and its messages.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	id, err := pathID(r, "conversationID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := s.store.DeleteConversation(r.Context(), user.ID, id); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleGetConversation returns a conversation with all its messages.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	id, err := pathID(r, "conversationID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	conv, err := s.store.GetConversation(r.Context(), user.ID, id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	out := conversationDetailDTO{
		ID:             conv.ID,
		Title:          conv.Title,
		ResumeText:     conv.ResumeText,
		JobDescription: conv.JobDescription,
		CreatedAt:      conv.CreatedAt.UTC().Format(time.RFC3339Nano),
		Messages:       make([]messageDTO, 0, len(msgs)),
	}
	for _, m := range msgs {
		dto := messageDTO{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if m.Step > 0 {
			step := m.Step
			dto.Step = &step
		}
		out.Messages = append(out.Messages, dto)
	}
	respondJSON(w, http.StatusOK, out)
}

// resolveResume produces the text to analyze: a fresh upload when the
// request carries one, otherwise the referenced or active stored file.
// A fresh upload is persisted and becomes the active resume.
func (s *Server) resolveResume(w http.ResponseWriter, r *http.Request, userID int64) (resumeMaterial, error) {
	data, filename, err := s.formFile(w, r, "resume")
	if err != nil {
		return resumeMaterial{}, err
	}

	if data != nil {
		if _, ok := allowedExt(filename); !ok {
			return resumeMaterial{}, errUnsupportedFileType()
		}
		text, err := extract.Text(filename, data)
		if err != nil {
			return resumeMaterial{}, core.ErrValidation("extract_failed",
				"Failed to extract text: "+domainMessage(err, "unreadable file"))
		}
		if strings.TrimSpace(text) == "" {
			return resumeMaterial{}, core.ErrValidation("empty_resume",
				"Could not extract text from resume file")
		}
		if _, err := s.saveResume(r.Context(), userID, filename, data); err != nil {
			return resumeMaterial{}, err
		}
		return resumeMaterial{filename: filename, text: text}, nil
	}

	var file *core.ResumeFile
	var lookupErr error
	if raw := strings.TrimSpace(r.FormValue("resume_id")); raw != "" {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || id <= 0 {
			return resumeMaterial{}, core.ErrValidation("invalid_resume_id", "Invalid resume id")
		}
		file, lookupErr = s.store.GetResumeFile(r.Context(), userID, id)
	} else {
		file, lookupErr = s.store.ActiveResumeFile(r.Context(), userID)
	}
	if lookupErr != nil {
		if core.CategoryOf(lookupErr) == core.ErrCatNotFound {
			return resumeMaterial{}, errNoResume()
		}
		return resumeMaterial{}, lookupErr
	}

	stored, err := s.uploads.Read(file.FilePath)
	if err != nil {
		if missingOnDisk(err) {
			return resumeMaterial{}, errNoResume()
		}
		return resumeMaterial{}, core.ErrInternal("read_resume", "Failed to read stored resume").WithCause(err)
	}
	text, err := extract.Text(file.OriginalFilename, stored)
	if err != nil {
		return resumeMaterial{}, core.ErrInternal("read_resume", "Failed to read stored resume").WithCause(err)
	}
	if strings.TrimSpace(text) == "" {
		return resumeMaterial{}, core.ErrValidation("empty_resume", "Extracted resume text is empty.")
	}
	return resumeMaterial{filename: file.OriginalFilename, text: text}, nil
}

func errNoResume() error {
	return core.ErrValidation("no_resume", "No resume uploaded. Please upload a resume first.")
}

// domainMessage extracts the client-facing message of a domain error.
func domainMessage(err error, fallback string) string {
	var derr *core.DomainError
	if errors.As(err, &derr) {
		return derr.Message
	}
	return fallback
}

// queryInt parses an integer query parameter, falling back to def when
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
