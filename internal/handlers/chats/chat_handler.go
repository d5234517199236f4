// internal/handlers/chats/chat_handler.go
package chats

import (
	"net/http"

	"salesbridge-service/internal/pkg/response"
	"salesbridge-service/internal/repository/postgres"
	"salesbridge-service/internal/service/chatsync"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	inbound *chatsync.Inbound
	syncer  *chatsync.Syncer
	records *postgres.MessageRepo
}

func NewChatHandler(inbound *chatsync.Inbound, syncer *chatsync.Syncer, records *postgres.MessageRepo) *ChatHandler {
	return &ChatHandler{inbound: inbound, syncer: syncer, records: records}
}

// SyncChat ingests an inbound conversation event from the channel side.
func (h *ChatHandler) SyncChat(c *gin.Context) {
	var ev chatsync.InboundEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.inbound.Handle(c.Request.Context(), ev)
	if err != nil {
		response.Error(c, http.StatusBadGateway, "chat sync failed", err)
		return
	}
	response.Success(c, http.StatusOK, "chat synchronized", result)
}

type syncMessagesRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// SyncMessages pulls the message and note history of one conversation
// into the local mirror.
func (h *ChatHandler) SyncMessages(c *gin.Context) {
	var req syncMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	total, inserted, err := h.syncer.Sync(c.Request.Context(), req.ConversationID)
	if err != nil {
		response.Error(c, http.StatusBadGateway, "message sync failed", err)
		return
	}

	stored, err := h.records.CountByConversation(c.Request.Context(), req.ConversationID)
	if err != nil {
		stored = -1
	}
	response.Success(c, http.StatusOK, "messages synchronized", gin.H{
		"conversation_id": req.ConversationID,
		"remote_total":    total,
		"new_inserted":    inserted,
		"total_stored":    stored,
	})
}
