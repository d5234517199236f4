// internal/handlers/conversations/conversation_handler.go
package conversations

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	xerrors "salesbridge-service/internal/pkg/errors"
	"salesbridge-service/internal/pkg/response"
	"salesbridge-service/internal/repository/postgres"
	"salesbridge-service/internal/service/assignment"
	"salesbridge-service/internal/service/lead"

	"github.com/gin-gonic/gin"
)

// ProgramNames resolves program display names for the summaries.
type ProgramNames interface {
	GetProgramName(ctx context.Context, programCode string) (string, error)
}

type ConversationHandler struct {
	conversations *postgres.ConversationRepo
	messages      *postgres.MessageRepo
	people        *postgres.PersonRepo
	assignments   *assignment.Service
	leads         *lead.Service
	programs      ProgramNames
}

func NewConversationHandler(
	conversations *postgres.ConversationRepo,
	messages *postgres.MessageRepo,
	people *postgres.PersonRepo,
	assignments *assignment.Service,
	leads *lead.Service,
	programs ProgramNames,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		people:        people,
		assignments:   assignments,
		leads:         leads,
		programs:      programs,
	}
}

// List returns local conversation rows, newest first.
func (h *ConversationHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	rows, err := h.conversations.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list conversations", err)
		return
	}
	response.Success(c, http.StatusOK, "conversations retrieved", rows)
}

// Detail returns the latest local row of a remote conversation along
// with its event history and mirrored messages.
func (h *ConversationHandler) Detail(c *gin.Context) {
	remoteID := c.Query("conversation_id")
	if remoteID == "" {
		response.Error(c, http.StatusBadRequest, "conversation_id is required", nil)
		return
	}

	row, err := h.conversations.LatestByRemoteID(c.Request.Context(), remoteID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "conversation not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load conversation", err)
		return
	}

	history, err := h.conversations.ListByRemoteID(c.Request.Context(), remoteID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to load conversation history", err)
		return
	}

	records, err := h.messages.ListByConversation(c.Request.Context(), remoteID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to load messages", err)
		return
	}
	response.Success(c, http.StatusOK, "conversation retrieved", gin.H{
		"conversation": row,
		"history":      history,
		"messages":     records,
	})
}

// Messages returns the mirrored timeline of one remote conversation.
func (h *ConversationHandler) Messages(c *gin.Context) {
	remoteID := c.Param("id")
	records, err := h.messages.ListByConversation(c.Request.Context(), remoteID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to load messages", err)
		return
	}
	response.Success(c, http.StatusOK, "messages retrieved", records)
}

// ByLead lists local rows tied to one CRM lead.
func (h *ConversationHandler) ByLead(c *gin.Context) {
	leadID := c.Param("lead_id")
	rows, err := h.conversations.ListByLeadID(c.Request.Context(), leadID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list conversations", err)
		return
	}
	response.Success(c, http.StatusOK, "conversations retrieved", rows)
}

type programSummary struct {
	ProgramCode   string `json:"program_code"`
	ProgramName   string `json:"program_name,omitempty"`
	Conversations int    `json:"conversations"`
}

// Programs lists the distinct programs a person has conversations for.
func (h *ConversationHandler) Programs(c *gin.Context) {
	partyNumber, err := strconv.ParseInt(c.Param("party_number"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid party number", err)
		return
	}

	p, err := h.people.FindByParty(c.Request.Context(), nil, &partyNumber)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "person not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load person", err)
		return
	}

	rows, err := h.conversations.ListByPerson(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list conversations", err)
		return
	}

	counts := make(map[string]int)
	var order []string
	for _, row := range rows {
		if row.ProgramCode == nil || *row.ProgramCode == "" {
			continue
		}
		if _, seen := counts[*row.ProgramCode]; !seen {
			order = append(order, *row.ProgramCode)
		}
		counts[*row.ProgramCode]++
	}

	summaries := make([]programSummary, 0, len(order))
	for _, code := range order {
		s := programSummary{ProgramCode: code, Conversations: counts[code]}
		if h.programs != nil {
			if name, err := h.programs.GetProgramName(c.Request.Context(), code); err == nil {
				s.ProgramName = name
			}
		}
		summaries = append(summaries, s)
	}
	response.Success(c, http.StatusOK, "programs retrieved", summaries)
}

// ProgramConversations lists a person's rows for one program.
func (h *ConversationHandler) ProgramConversations(c *gin.Context) {
	partyNumber, err := strconv.ParseInt(c.Param("party_number"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid party number", err)
		return
	}
	programCode := c.Param("program_code")

	p, err := h.people.FindByParty(c.Request.Context(), nil, &partyNumber)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "person not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load person", err)
		return
	}

	rows, err := h.conversations.ListByProgramAndPerson(c.Request.Context(), programCode, p.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list conversations", err)
		return
	}
	response.Success(c, http.StatusOK, "conversations retrieved", rows)
}

type assignRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	RepPartyNumber int64  `json:"rep_party_number" binding:"required"`
}

// AssignRep reassigns a conversation to a rep named in its notes.
func (h *ConversationHandler) AssignRep(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.assignments.Assign(c.Request.Context(), req.ConversationID, req.RepPartyNumber)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "assignment failed", err)
		return
	}

	status := http.StatusOK
	switch result.Status {
	case assignment.StatusNotAuthorized:
		status = http.StatusForbidden
	case assignment.StatusRepNotFound:
		status = http.StatusNotFound
	case assignment.StatusMisconfigured:
		status = http.StatusUnprocessableEntity
	case assignment.StatusGatewayError:
		status = http.StatusBadGateway
	}
	response.Success(c, status, result.Message, result)
}

// UpdateLead classifies the lead behind a conversation in the CRM.
func (h *ConversationHandler) UpdateLead(c *gin.Context) {
	var req lead.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.leads.Update(c.Request.Context(), req)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "lead update failed", err)
		return
	}
	if !result.Success {
		response.Success(c, http.StatusUnprocessableEntity, result.Message, result)
		return
	}
	response.Success(c, http.StatusOK, result.Message, result)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
