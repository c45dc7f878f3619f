package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"garage-sentry-backend/internal/door"
)

// GetAccessory returns the accessory information.
func (h *Handler) GetAccessory(c *gin.Context) {
	c.JSON(http.StatusOK, h.accessory.Info())
}

// GetDoor returns the cached door state.
func (h *Handler) GetDoor(c *gin.Context) {
	c.JSON(http.StatusOK, h.accessory.State())
}

type putTargetRequest struct {
	TargetState string `json:"target_state" binding:"required"`
}

// PutDoorTarget requests a new target state. Accepted requests are always
// acknowledged; the outcome shows up in the current state.
func (h *Handler) PutDoorTarget(c *gin.Context) {
	var req putTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	target, err := door.ParseTarget(req.TargetState)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.accessory.SetTargetState(c.Request.Context(), target)
	c.JSON(http.StatusAccepted, gin.H{"acknowledged": true})
}

// GetDoorEvents upgrades to a websocket that streams the current state and
// every update after it.
func (h *Handler) GetDoorEvents(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable"})
		return
	}

	initial, err := json.Marshal(Message{Type: MessageTypeState, Payload: h.accessory.State()})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.serve(conn, initial)
}
