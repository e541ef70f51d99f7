package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/services/workqueue"
)

// EngineStatus is the part of the job engine the status endpoint reads.
type EngineStatus interface {
	Progress() workqueue.Progress
	Tasks() []workqueue.TaskSnapshot
}

// EngineStatusResponse reports this instance's work queue.
type EngineStatusResponse struct {
	InstanceID string                   `json:"instance_id"`
	Progress   workqueue.Progress       `json:"progress"`
	Tasks      []workqueue.TaskSnapshot `json:"tasks"`
}

// EngineHandler serves the local work queue state. Job records themselves
// live under /api/jobs.
type EngineHandler struct {
	engine     EngineStatus
	instanceID string
	logger     *zap.Logger
}

func NewEngineHandler(engine EngineStatus, instanceID string, logger *zap.Logger) *EngineHandler {
	return &EngineHandler{engine: engine, instanceID: instanceID, logger: logger}
}

// RegisterRoutes registers the engine handler's routes on the given mux.
func (h *EngineHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/engine", h.Status)
}

// Status handles GET /api/engine.
func (h *EngineHandler) Status(w http.ResponseWriter, r *http.Request) {
	tasks := h.engine.Tasks()
	if tasks == nil {
		tasks = []workqueue.TaskSnapshot{}
	}
	response := EngineStatusResponse{
		InstanceID: h.instanceID,
		Progress:   h.engine.Progress(),
		Tasks:      tasks,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode engine status", zap.Error(err))
	}
}
