// internal/app/router.go
package app

import (
	chatHandler "salesbridge-service/internal/handlers/chats"
	conversationHandler "salesbridge-service/internal/handlers/conversations"
	peopleHandler "salesbridge-service/internal/handlers/people"
	repHandler "salesbridge-service/internal/handlers/reps"
	salesHandler "salesbridge-service/internal/handlers/sales"
	"salesbridge-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	SalesHandler        *salesHandler.SalesHandler
	ChatHandler         *chatHandler.ChatHandler
	ConversationHandler *conversationHandler.ConversationHandler
	PeopleHandler       *peopleHandler.PeopleHandler
	RepHandler          *repHandler.RepHandler
	AuthMiddleware      *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Sales ====================
	sales := api.Group("/sales")
	sales.Use(h.AuthMiddleware.Auth())
	{
		sales.POST("/active", h.SalesHandler.ActiveSale)
		sales.POST("/passive", h.SalesHandler.PassiveSale)
	}

	// ==================== Chats ====================
	chats := api.Group("/chats")
	chats.Use(h.AuthMiddleware.Auth())
	{
		chats.POST("/sync", h.ChatHandler.SyncChat)
	}

	// ==================== Messages ====================
	messages := api.Group("/messages")
	messages.Use(h.AuthMiddleware.Auth())
	{
		messages.POST("/sync", h.ChatHandler.SyncMessages)
	}

	// ==================== Conversations ====================
	conversations := api.Group("/conversations")
	conversations.Use(h.AuthMiddleware.Auth())
	{
		conversations.GET("", h.ConversationHandler.List)
		conversations.GET("/detail", h.ConversationHandler.Detail)
		conversations.GET("/:id/messages", h.ConversationHandler.Messages)
		conversations.GET("/lead/:lead_id", h.ConversationHandler.ByLead)
		conversations.GET("/people/:party_number/programs", h.ConversationHandler.Programs)
		conversations.GET("/people/:party_number/programs/:program_code", h.ConversationHandler.ProgramConversations)
		conversations.POST("/assign-rep", h.ConversationHandler.AssignRep)
		conversations.POST("/update-lead", h.ConversationHandler.UpdateLead)
	}

	// ==================== People ====================
	people := api.Group("/people")
	people.Use(h.AuthMiddleware.Auth())
	{
		people.GET("", h.PeopleHandler.List)
		people.GET("/search", h.PeopleHandler.Search)
		people.POST("/upload-csv", h.PeopleHandler.UploadCSV)
		people.POST("/sync", h.PeopleHandler.Sync)
	}

	// ==================== Sales Reps ====================
	reps := api.Group("/reps")
	reps.Use(h.AuthMiddleware.Auth())
	{
		reps.GET("", h.RepHandler.List)
		reps.GET("/search", h.RepHandler.Search)
		reps.POST("/sync", h.RepHandler.Sync)
	}
}
