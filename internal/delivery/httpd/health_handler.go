package httpd

import (
	"context"
	"net/http"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := models.HealthCheckResponse{
		Status:         "healthy",
		Database:       h.database != nil && h.database.Ping(ctx) == nil,
		RabbitMQ:       h.broker != nil && h.broker.Ping(ctx) == nil,
		ActiveSessions: h.sessions.Count(),
		Timestamp:      time.Now().UTC(),
	}

	status := http.StatusOK
	switch {
	case !response.Database:
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	case h.broker != nil && !response.RabbitMQ:
		response.Status = "degraded"
	}

	writeJSON(w, status, response)
}
