package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/resumind/resumind/internal/auth"
	"github.com/resumind/resumind/internal/core"
	"github.com/resumind/resumind/internal/llm"
)

type createConfigRequest struct {
	Provider  string `json:"provider"`
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	ModelName string `json:"model_name"`
	BaseURL   string `json:"base_url"`
}

type updateConfigRequest struct {
	Name      *string `json:"name"`
	APIKey    *string `json:"api_key"`
	ModelName *string `json:"model_name"`
	BaseURL   *string `json:"base_url"`
	IsDefault *bool   `json:"is_default"`
}

// configDTO is the client view of a config. The API key never leaves
// the server.
type configDTO struct {
	ID        int64  `json:"id"`
	Provider  string `json:"provider"`
	Name      string `json:"name"`
	ModelName string `json:"model_name"`
	BaseURL   string `json:"base_url,omitempty"`
	IsDefault bool   `json:"is_default"`
}

func toConfigDTO(cfg *core.LLMConfig) configDTO {
	return configDTO{
		ID:        cfg.ID,
		Provider:  cfg.Provider,
		Name:      cfg.Name,
		ModelName: cfg.ModelName,
		BaseURL:   cfg.BaseURL,
		IsDefault: cfg.IsDefault,
	}
}

func toConfigDTOs(cfgs []*core.LLMConfig) []configDTO {
	out := make([]configDTO, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, toConfigDTO(cfg))
	}
	return out
}

// handleListProviders returns the supported provider catalog.
func (s *Server) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, llm.Providers())
}

// handleListConfigs returns the user's configs, default first.
func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	cfgs, err := s.store.ListLLMConfigs(r.Context(), user.ID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toConfigDTOs(cfgs))
}

// handleCreateConfig stores a new config. The first config a user
// creates becomes the default; a missing base URL or model name is
// filled from the provider catalog.
func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())

	var req createConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	provider, ok := llm.ProviderByID(req.Provider)
	if !ok {
		s.respondDomainError(w, r, core.ErrValidation("invalid_provider",
			"Invalid provider. Must be one of: "+strings.Join(providerIDs(), ", ")))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondDomainError(w, r, core.ErrValidation("missing_name", "Configuration name is required"))
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		s.respondDomainError(w, r, core.ErrValidation("missing_api_key", "API key is required"))
		return
	}
	if req.ModelName == "" {
		req.ModelName = provider.DefaultModel()
	}
	if req.BaseURL == "" {
		req.BaseURL = provider.BaseURL
	}

	cfg, err := s.store.CreateLLMConfig(r.Context(), &core.LLMConfig{
		UserID:    user.ID,
		Provider:  req.Provider,
		Name:      req.Name,
		APIKey:    req.APIKey,
		ModelName: req.ModelName,
		BaseURL:   req.BaseURL,
	})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.logger.Info("llm config created", "user_id", user.ID, "provider", cfg.Provider, "config_id", cfg.ID)
	respondJSON(w, http.StatusCreated, toConfigDTO(cfg))
}

// handleUpdateConfig applies a partial update to one config.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	id, err := pathID(r, "configID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	var req updateConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	cfg, err := s.store.UpdateLLMConfig(r.Context(), user.ID, id, core.LLMConfigUpdate{
		Name:      req.Name,
		APIKey:    req.APIKey,
		ModelName: req.ModelName,
		BaseURL:   req.BaseURL,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toConfigDTO(cfg))
}

// handleDeleteConfig removes one config.
func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	id, err := pathID(r, "configID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := s.store.DeleteLLMConfig(r.Context(), user.ID, id); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetDefaultConfig marks one config as the default.
func (s *Server) handleSetDefaultConfig(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	id, err := pathID(r, "configID")
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	cfg, err := s.store.SetDefaultLLMConfig(r.Context(), user.ID, id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toConfigDTO(cfg))
}

func providerIDs() []string {
	providers := llm.Providers()
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID)
	}
	return ids
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.ErrValidation("invalid_id", "Invalid id in path")
	}
	return id, nil
}
