// internal/handlers/reps/rep_handler.go
package reps

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"salesbridge-service/internal/domain/salesrep"
	xerrors "salesbridge-service/internal/pkg/errors"
	"salesbridge-service/internal/pkg/response"
	"salesbridge-service/internal/service/directory"

	"github.com/gin-gonic/gin"
)

// RepStore is the slice of the rep repository the handler needs.
type RepStore interface {
	List(ctx context.Context, limit, offset int) ([]*salesrep.SalesRep, error)
	FindByPartyID(ctx context.Context, partyID int64) (*salesrep.SalesRep, error)
	FindByPartyNumber(ctx context.Context, partyNumber int64) (*salesrep.SalesRep, error)
	FindByExternalID(ctx context.Context, externalID string) (*salesrep.SalesRep, error)
}

type RepHandler struct {
	reps      RepStore
	directory *directory.Service
}

func NewRepHandler(reps RepStore, dir *directory.Service) *RepHandler {
	return &RepHandler{reps: reps, directory: dir}
}

// List returns the local sales rep roster with pagination.
func (h *RepHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	rows, err := h.reps.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list reps", err)
		return
	}
	response.Success(c, http.StatusOK, "reps retrieved", rows)
}

// Search looks a rep up by party id, party number or external id.
func (h *RepHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	if raw := c.Query("party_id"); raw != "" {
		partyID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid party_id", err)
			return
		}
		rep, err := h.reps.FindByPartyID(ctx, partyID)
		h.respond(c, rep, err)
		return
	}
	if raw := c.Query("party_number"); raw != "" {
		partyNumber, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid party_number", err)
			return
		}
		rep, err := h.reps.FindByPartyNumber(ctx, partyNumber)
		h.respond(c, rep, err)
		return
	}
	if externalID := c.Query("external_id"); externalID != "" {
		rep, err := h.reps.FindByExternalID(ctx, externalID)
		h.respond(c, rep, err)
		return
	}
	response.Error(c, http.StatusBadRequest, "provide party_id, party_number or external_id", nil)
}

// Sync refreshes the roster from the platform directory and the CRM.
func (h *RepHandler) Sync(c *gin.Context) {
	result := h.directory.SyncAll(c.Request.Context())
	if len(result.Errors) > 0 && result.Roster == nil && result.Emails == nil {
		response.Error(c, http.StatusBadGateway, "rep sync failed", errors.New(result.Errors[0]))
		return
	}
	response.Success(c, http.StatusOK, "reps synchronized", result)
}

func (h *RepHandler) respond(c *gin.Context, rep *salesrep.SalesRep, err error) {
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "rep not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "lookup failed", err)
		return
	}
	response.Success(c, http.StatusOK, "rep retrieved", rep)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
