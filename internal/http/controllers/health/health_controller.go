// Package health contiene el controller para GET /health.
package health

import (
	"net/http"

	httperrors "github.com/dropDatabas3/biliproxy/internal/http/errors"
	svc "github.com/dropDatabas3/biliproxy/internal/http/services/health"
	"github.com/dropDatabas3/biliproxy/internal/observability/logger"
)

// HealthController maneja GET /health.
type HealthController struct {
	service svc.HealthService
}

// NewHealthController crea el controller.
func NewHealthController(service svc.HealthService) *HealthController {
	return &HealthController{service: service}
}

// Health responde siempre 200; el detalle va en status y wbi_ready.
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := c.service.Check(ctx)

	logger.From(ctx).Debug("health check completed",
		logger.Layer("controller"),
		logger.String("status", resp.Status),
		logger.Bool("wbi_ready", resp.WbiReady),
	)
	httperrors.WriteJSON(w, http.StatusOK, resp)
}
