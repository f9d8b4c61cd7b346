package approuters

import (
	"LanChat/internal/configuration"

	"github.com/gin-gonic/gin"
)

// ChatRouters mounts the conversation and message endpoints under api.
func ChatRouters(api *gin.RouterGroup, container *configuration.Container) {
	h := container.ChatHandler

	conversationRoute := api.Group("/conversations")
	{
		conversationRoute.GET("", h.ListConversations)
		conversationRoute.POST("", h.CreateConversation)
		conversationRoute.GET("/:id", h.FetchMessages)
		conversationRoute.POST("/:id", h.SendMessage)
		conversationRoute.PUT("/:id/participants", h.ManageParticipants)
	}

	messageRoute := api.Group("/messages")
	{
		messageRoute.PUT("/:id", h.EditMessage)
		messageRoute.DELETE("/:id", h.DeleteMessage)
		messageRoute.PUT("/:id/read", h.MarkRead)
		messageRoute.POST("/:id/react", h.ToggleReaction)
	}
}
