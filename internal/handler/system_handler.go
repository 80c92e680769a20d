package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-live/internal/database"
	"github.com/stemsi/exstem-live/internal/response"
)

// ConnectionCounter reports live WebSocket connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

// SystemHandler serves health information.
type SystemHandler struct {
	check func(ctx context.Context) database.Status
	conns ConnectionCounter
}

// NewSystemHandler creates a SystemHandler. check pings the backing stores.
func NewSystemHandler(check func(ctx context.Context) database.Status, conns ConnectionCounter) *SystemHandler {
	return &SystemHandler{check: check, conns: conns}
}

// Health godoc
// GET /health
// 200 when Postgres and Redis answer, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	st := h.check(c.Request.Context())

	code := http.StatusOK
	status := "ok"
	if !st.Healthy() {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	response.Success(c, code, gin.H{
		"status":      status,
		"stores":      st,
		"connections": h.conns.ConnectionCount(),
	})
}
