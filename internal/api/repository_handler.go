package api

import (
	"log/slog"
	"net/http"

	"github.com/quarryproj/quarry/internal/api/shared"
	"github.com/quarryproj/quarry/internal/service"
)

// RepositoryHandler handles repository-related HTTP requests.
type RepositoryHandler struct {
	service *service.RepositoryService
	logger  *slog.Logger
}

// NewRepositoryHandler creates a new RepositoryHandler.
func NewRepositoryHandler(svc *service.RepositoryService, logger *slog.Logger) *RepositoryHandler {
	return &RepositoryHandler{
		service: svc,
		logger:  logger.With("component", "repository_handler"),
	}
}

// CreateRepository handles POST /api/repositories requests.
func (h *RepositoryHandler) CreateRepository(w http.ResponseWriter, r *http.Request) {
	var req CreateRepositoryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	repo, err := h.service.CreateRepository(r.Context(), req.Name, req.FeedURL, req.SyncSchedule)
	if err != nil {
		h.logger.Error("failed to create repository", "name", req.Name, "error", err)
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, repositoryToResponse(repo))
}

// ListRepositories handles GET /api/repositories requests.
func (h *RepositoryHandler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.service.ListRepositories(r.Context())
	if err != nil {
		h.logger.Error("failed to list repositories", "error", err)
		HandleAPIError(w, r, err, "")
		return
	}

	responses := make([]RepositoryResponse, 0, len(repos))
	for _, repo := range repos {
		responses = append(responses, repositoryToResponse(repo))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// GetRepository handles GET /api/repositories/{id} requests.
func (h *RepositoryHandler) GetRepository(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	repo, err := h.service.GetRepository(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, repositoryToResponse(repo))
}

// DeleteRepository handles DELETE /api/repositories/{id} requests.
func (h *RepositoryHandler) DeleteRepository(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRepository(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncRepository handles POST /api/repositories/{id}/sync requests. The
// sync runs as a background task; the response carries its id. A sync
// already in flight for the repository yields 409.
func (h *RepositoryHandler) SyncRepository(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	taskID, err := h.service.RequestSync(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{TaskID: taskID.String()})
}

// CloneRepository handles POST /api/repositories/{id}/clone requests.
func (h *RepositoryHandler) CloneRepository(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req CloneRepositoryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	taskID, err := h.service.RequestClone(r.Context(), id, req.Name)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{TaskID: taskID.String()})
}
