package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/resumind/resumind/internal/auth"
	"github.com/resumind/resumind/internal/core"
)

// allowedResumeExts lists accepted upload extensions, in the order they
// appear in error messages.
var allowedResumeExts = []string{".pdf", ".docx", ".doc", ".txt", ".md"}

// multipartMemory is how much of a parsed form stays in memory before
// spilling to temp files.
const multipartMemory = 4 << 20

type resumeDTO struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	UploadedAt string `json:"uploaded_at"`
	IsActive   bool   `json:"is_active"`
}

type activeResumeDTO struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	HasResume  bool   `json:"has_resume"`
	UploadedAt string `json:"uploaded_at"`
}

func toResumeDTO(file *core.ResumeFile) resumeDTO {
	return resumeDTO{
		ID:         file.ID,
		Filename:   file.OriginalFilename,
		UploadedAt: file.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsActive:   file.IsActive,
	}
}

// handleListResumes returns the user's uploads, newest first.
func (s *Server) handleListResumes(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	files, err := s.store.ListResumeFiles(r.Context(), user.ID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	out := make([]resumeDTO, 0, len(files))
	for _, f := range files {
		out = append(out, toResumeDTO(f))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleActiveResume returns the active upload, or a JSON null when the
// user has none.
func (s *Server) handleActiveResume(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	file, err := s.store.ActiveResumeFile(r.Context(), user.ID)
	if err != nil {
		if core.CategoryOf(err) == core.ErrCatNotFound {
			respondJSON(w, http.StatusOK, (*activeResumeDTO)(nil))
			return
		}
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, activeResumeDTO{
		ID:         file.ID,
		Filename:   file.OriginalFilename,
		HasResume:  true,
		UploadedAt: file.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// handleUploadResume stores a new resume and makes it the active one.
// The oldest upload is evicted once the retention cap is reached.
func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())

	data, filename, err := s.formFile(w, r, "file")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if data == nil {
		s.respondDomainError(w, r, core.ErrValidation("missing_file", "No file uploaded"))
		return
	}
	if _, ok := allowedExt(filename); !ok {
		s.respondDomainError(w, r, errUnsupportedFileType())
		return
	}

	file, err := s.saveResume(r.Context(), user.ID, filename, data)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toResumeDTO(file))
}

// handleSetActiveResume switches the active resume.
func (s *Server) handleSetActiveResume(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	id, err := pathID(r, "resumeID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if _, err := s.store.SetActiveResumeFile(r.Context(), user.ID, id); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleDeleteResume removes an upload from the database and disk. When
// the active resume is deleted, the newest remaining one takes over.
func (s *Server) handleDeleteResume(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	id, err := pathID(r, "resumeID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	deleted, err := s.store.DeleteResumeFile(r.Context(), user.ID, id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := s.uploads.Remove(deleted.FilePath); err != nil {
		s.logger.Warn("removing deleted resume file", "path", deleted.FilePath, "error", err)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handlePreviewActiveResume serves the active resume's bytes.
func (s *Server) handlePreviewActiveResume(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	file, err := s.store.ActiveResumeFile(r.Context(), user.ID)
	if err != nil {
		s.respondDomainError(w, r, previewError(err))
		return
	}
	s.servePreview(w, r, file)
}

// handlePreviewResume serves one upload's bytes by id.
func (s *Server) handlePreviewResume(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	id, err := pathID(r, "resumeID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	file, err := s.store.GetResumeFile(r.Context(), user.ID, id)
	if err != nil {
		s.respondDomainError(w, r, previewError(err))
		return
	}
	s.servePreview(w, r, file)
}

// previewError normalizes every missing-resume case to one message.
func previewError(err error) error {
	if core.CategoryOf(err) == core.ErrCatNotFound {
		return core.ErrNotFound("no_resume", "No resume found")
	}
	return err
}

func (s *Server) servePreview(w http.ResponseWriter, r *http.Request, file *core.ResumeFile) {
	data, err := s.uploads.Read(file.FilePath)
	if err != nil {
		if missingOnDisk(err) {
			s.respondDomainError(w, r, core.ErrNotFound("no_resume", "No resume found"))
			return
		}
		s.respondDomainError(w, r, core.ErrInternal("read_resume", "Failed to read stored resume").WithCause(err))
		return
	}
	w.Header().Set("Content-Type", mediaTypeFor(file.FilePath))
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": file.OriginalFilename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// mediaTypeFor maps a stored file's extension to its content type.
func mediaTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}

// saveResume stores an upload on disk and records it as the active
// resume, evicting the oldest files beyond the retention cap first.
func (s *Server) saveResume(ctx context.Context, userID int64, filename string, data []byte) (*core.ResumeFile, error) {
	evicted, err := s.store.EvictResumeFiles(ctx, userID, s.settings.MaxResumes-1)
	if err != nil {
		return nil, err
	}
	for _, old := range evicted {
		if err := s.uploads.Remove(old.FilePath); err != nil {
			s.logger.Warn("removing evicted resume file", "path", old.FilePath, "error", err)
		}
	}

	path, err := s.uploads.Save(data, filename)
	if err != nil {
		return nil, core.ErrInternal("save_upload", "Failed to save file").WithCause(err)
	}
	file, err := s.store.CreateResumeFile(ctx, userID, filename, path)
	if err != nil {
		_ = s.uploads.Remove(path)
		return nil, err
	}
	s.logger.Info("resume uploaded", "user_id", userID, "resume_id", file.ID, "filename", filename)
	return file, nil
}

// formFile reads one multipart file field fully into memory. A missing
// field returns nil data and no error; callers decide whether the file
// is required.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", core.ErrValidation("file_too_large",
				fmt.Sprintf("File exceeds the %d MB upload limit", s.settings.MaxUploadBytes>>20))
		}
		return nil, "", core.ErrValidation("bad_multipart", "Invalid multipart form").WithCause(err)
	}

	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", core.ErrValidation("bad_multipart", "Invalid multipart form").WithCause(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", core.ErrInternal("read_upload", "Failed to read uploaded file").WithCause(err)
	}
	return data, header.Filename, nil
}

// allowedExt extracts the lowercase extension and reports whether it is
// an accepted resume format.
func allowedExt(filename string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext, slices.Contains(allowedResumeExts, ext)
}

func errUnsupportedFileType() error {
	return core.ErrValidation("unsupported_file_type",
		"Unsupported file type. Allowed: "+strings.Join(allowedResumeExts, ", "))
}

// missingOnDisk reports whether err means the stored file is gone.
func missingOnDisk(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
