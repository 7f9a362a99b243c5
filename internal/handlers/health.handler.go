package handlers

import (
	"context"

	"github.com/fasthttp/router"

	xhttp "github.com/bubuagent/bubu-agent/pkg/http"
)

type ProviderProbe interface {
	Available(ctx context.Context) bool
	Name() string
}

type PauseState interface {
	Paused() bool
}

type HealthHandler struct {
	provider ProviderProbe
	agent    PauseState
}

func RegisterHealthRoutes(r *router.Router, h *HealthHandler) {
	r.GET("/healthz", h.GetHealth)
}

func NewHealthHandler(provider ProviderProbe, agent PauseState) *HealthHandler {
	return &HealthHandler{
		provider: provider,
		agent:    agent,
	}
}

type healthResponse struct {
	Status            string `json:"status"`
	Provider          string `json:"provider"`
	ProviderAvailable bool   `json:"provider_available"`
	Paused            bool   `json:"paused"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	resp := healthResponse{
		Status:   "ok",
		Provider: h.provider.Name(),
		Paused:   h.agent.Paused(),
	}
	resp.ProviderAvailable = h.provider.Available(ctx)
	if !resp.ProviderAvailable {
		resp.Status = "degraded"
	}
	writeJSON(ctx, 200, resp)
}
