package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/quarryproj/quarry/internal/api/shared"
	"github.com/quarryproj/quarry/internal/task"
)

// TaskHandler exposes the task queue over HTTP.
type TaskHandler struct {
	queue *task.TaskQueue
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(queue *task.TaskQueue) *TaskHandler {
	return &TaskHandler{queue: queue}
}

// ListTasks handles GET /api/tasks requests. Optional query parameters
// state and method filter the result.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var criteria task.Criteria

	if raw := r.URL.Query().Get("state"); raw != "" {
		state, err := task.ParseState(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown task state")
			return
		}
		criteria.State = &state
	}
	criteria.Method = r.URL.Query().Get("method")

	tasks := h.queue.Find(criteria)
	responses := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		responses = append(responses, taskToResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// GetTask handles GET /api/tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	t := h.queue.FindByID(id)
	if t == nil {
		HandleAPIError(w, r, task.ErrTaskNotFound, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// CancelTask handles DELETE /api/tasks/{id} requests. A waiting task is
// removed immediately; a running task gets a cancellation request and
// reports canceled once its callable yields. Terminal tasks conflict.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	t := h.queue.FindByID(id)
	if t == nil {
		HandleAPIError(w, r, task.ErrTaskNotFound, "")
		return
	}

	if !h.queue.Cancel(id) {
		shared.RespondWithError(w, r, http.StatusConflict, "Task has already completed")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(h.queue.FindByID(id)))
}

// pathUUID extracts and parses the named path parameter, writing a 400
// on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := parsePathUUID(r, name)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+name+" parameter")
		return uuid.Nil, false
	}
	return id, true
}
