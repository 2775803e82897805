package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/PxPatel/p2p-swap/internal/api/models"
)

// HealthHandler reports uptime and whether the trade store answers
func (th *TradeHolder) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := models.HealthResponse{
		BaseResponse: models.BaseResponse{Success: true},
		Status:       "healthy",
		Uptime:       time.Since(th.startTime).Round(time.Second).String(),
		Version:      th.Version,
		Checks:       map[string]string{"store": "ok"},
	}
	status := http.StatusOK

	if err := th.Service.Ping(ctx); err != nil {
		response.Success = false
		response.Status = "degraded"
		response.Checks["store"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}
