package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/engine"
)

// RegisterDebugRoutes wires debug-only inspection endpoints.
func RegisterDebugRoutes(router *gin.Engine, eng *engine.Engine, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"rooms":        eng.Rooms(),
			"total_unread": eng.TotalUnread(),
		})
	})

	router.GET("/debug/connection", func(c *gin.Context) {
		c.JSON(http.StatusOK, eng.ChannelSnapshot())
	})

	router.GET("/debug/messages", func(c *gin.Context) {
		roomID := eng.ActiveRoomID()
		if roomID == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active room"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"room_id":  roomID,
			"messages": eng.ActiveMessages(),
		})
	})
}
