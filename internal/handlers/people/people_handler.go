// internal/handlers/people/people_handler.go
package people

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"salesbridge-service/internal/domain/person"
	xerrors "salesbridge-service/internal/pkg/errors"
	"salesbridge-service/internal/pkg/response"
	service "salesbridge-service/internal/service/people"

	"github.com/gin-gonic/gin"
)

// PersonStore is the slice of the people repository the handler needs.
type PersonStore interface {
	List(ctx context.Context, limit, offset int) ([]*person.Person, error)
	FindByID(ctx context.Context, id int64) (*person.Person, error)
	FindByParty(ctx context.Context, partyID, partyNumber *int64) (*person.Person, error)
	FindByPhone(ctx context.Context, phone string) (*person.Person, error)
	FindByMessagingID(ctx context.Context, messagingID string) (*person.Person, error)
}

type PeopleHandler struct {
	people  PersonStore
	service *service.Service
}

func NewPeopleHandler(people PersonStore, svc *service.Service) *PeopleHandler {
	return &PeopleHandler{people: people, service: svc}
}

// List returns the local people mirror with pagination.
func (h *PeopleHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	rows, err := h.people.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list people", err)
		return
	}
	response.Success(c, http.StatusOK, "people retrieved", rows)
}

// Search looks a person up by row id, party keys, phone or messaging id.
func (h *PeopleHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	if raw := c.Query("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid id", err)
			return
		}
		p, err := h.people.FindByID(ctx, id)
		h.respond(c, p, err)
		return
	}
	if raw := c.Query("party_id"); raw != "" {
		partyID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid party_id", err)
			return
		}
		p, err := h.people.FindByParty(ctx, &partyID, nil)
		h.respond(c, p, err)
		return
	}
	if raw := c.Query("party_number"); raw != "" {
		partyNumber, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid party_number", err)
			return
		}
		p, err := h.people.FindByParty(ctx, nil, &partyNumber)
		h.respond(c, p, err)
		return
	}
	if phone := c.Query("phone"); phone != "" {
		p, err := h.people.FindByPhone(ctx, phone)
		h.respond(c, p, err)
		return
	}
	if messagingID := c.Query("messaging_id"); messagingID != "" {
		p, err := h.people.FindByMessagingID(ctx, messagingID)
		h.respond(c, p, err)
		return
	}
	response.Error(c, http.StatusBadRequest, "provide id, party_id, party_number, phone or messaging_id", nil)
}

// UploadCSV bulk loads people from a CSV export.
func (h *PeopleHandler) UploadCSV(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "file is required", err)
		return
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".csv") {
		response.Error(c, http.StatusBadRequest, "only CSV files are allowed", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "could not read file", err)
		return
	}
	defer file.Close()

	result, err := h.service.ImportCSV(c.Request.Context(), file)
	if err != nil {
		if errors.Is(err, xerrors.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, "invalid CSV", err)
			return
		}
		response.Error(c, http.StatusInternalServerError, "CSV import failed", err)
		return
	}
	response.Success(c, http.StatusOK, "CSV processed", result)
}

// Sync reconciles the local mirror against the platform directory.
func (h *PeopleHandler) Sync(c *gin.Context) {
	result, err := h.service.Sync(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusBadGateway, "people sync failed", err)
		return
	}
	response.Success(c, http.StatusOK, "people synchronized", result)
}

func (h *PeopleHandler) respond(c *gin.Context, p *person.Person, err error) {
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "person not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "lookup failed", err)
		return
	}
	response.Success(c, http.StatusOK, "person retrieved", p)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
