package handlers

import (
	"net/http"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Environment string `json:"environment"`
	Store       string `json:"store"`
	Connections int    `json:"connections"`
	LLMProvider string `json:"llm_default_provider,omitempty"`
}

// HealthHandler serves liveness endpoints. They never touch the engine store.
type HealthHandler struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with the given configuration.
func NewHealthHandler(cfg *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping reports build info plus which engine store and how many target
// connections this instance was configured with.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-dictionary",
		GoVersion:   runtime.Version(),
		Environment: h.cfg.Env,
		Store:       h.cfg.Database.Type,
		Connections: len(h.cfg.Datasources),
		LLMProvider: h.cfg.LLM.DefaultProvider,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
