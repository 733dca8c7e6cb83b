package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SystemInfo describes the configured backends for the health endpoint
type SystemInfo struct {
	Embeddings     bool
	CacheBackend   string
	RankingBackend string
	// Ping checks the bookmark database. Nil skips the check.
	Ping func(ctx context.Context) error
}

type HealthStatus struct {
	Status         string `json:"status"`
	Embeddings     bool   `json:"embeddings"`
	CacheBackend   string `json:"cacheBackend"`
	RankingBackend string `json:"rankingBackend"`
	Database       string `json:"database"`
}

// CheckHealth godoc
// @Summary Check system health status
// @Tags system
// @Produce json
// @Success 200 {object} HealthStatus
// @Failure 503 {object} HealthStatus
// @Router /health [get]
func (h *Handler) CheckHealth(c *gin.Context) {
	status := HealthStatus{
		Status:         "ok",
		Embeddings:     h.system.Embeddings,
		CacheBackend:   h.system.CacheBackend,
		RankingBackend: h.system.RankingBackend,
		Database:       "ok",
	}

	if h.system.Ping != nil {
		if err := h.system.Ping(c.Request.Context()); err != nil {
			status.Status = "degraded"
			status.Database = "unavailable"
			sendJSON(c, http.StatusServiceUnavailable, status)
			return
		}
	}

	sendJSON(c, http.StatusOK, status)
}
