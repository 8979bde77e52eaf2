package handlers

import (
	"net/http"

	"github.com/ajoudaki/scheduler/internal/scheduler"
)

// GPUHandler serves GET /gpus.
type GPUHandler struct {
	BaseHandler
	engine *scheduler.Engine
}

func NewGPUHandler(engine *scheduler.Engine) *GPUHandler {
	return &GPUHandler{engine: engine}
}

func (h *GPUHandler) ListGPUs(w http.ResponseWriter, r *http.Request) {
	gpus := h.engine.ListGPUs()
	h.respondWithJSON(w, http.StatusOK, map[string][]*scheduler.GPU{"gpus": gpus})
}
