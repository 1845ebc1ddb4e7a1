// internal/api/websocket_handlers.go
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/senushidinara/DreamStruct/internal/models"
	"github.com/senushidinara/DreamStruct/internal/utils"
)

// SessionWebSocket streams the snapshots of one session. The current snapshot
// is sent on connect.
func (h *Handler) SessionWebSocket(c *gin.Context) {
	sessionID := c.Param("id")

	if _, err := h.Sessions.GetSession(sessionID); err != nil {
		h.resp.AppError(c, err, sessionErrorCodes)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warn("WebSocket upgrade failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}

	// register before reading the snapshot; WithSnapshot orders the first
	// frame against concurrent broadcasts
	client := newWebSocketClient(conn, sessionID)
	h.WS.Register(client)
	defer h.WS.Unregister(client)

	go client.writePump()
	if err := h.Sessions.WithSnapshot(sessionID, func(view models.SessionView) {
		_ = client.SendMessage(snapshotMessage(view))
	}); err != nil {
		_ = client.SendMessage(WebSocketMessage{
			Type:      MessageError,
			SessionID: sessionID,
			Error:     err.Error(),
			Timestamp: time.Now(),
		})
	}

	utils.GetLogger().Debug("WebSocket connected", map[string]interface{}{
		"session_id": sessionID,
	})
	client.readPump()
	utils.GetLogger().Debug("WebSocket disconnected", map[string]interface{}{
		"session_id": sessionID,
		"duration":   time.Since(client.createdAt).String(),
	})
}

// GetWebSocketStatus reports connection counts.
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.resp.Success(c, h.WS.Stats())
}
