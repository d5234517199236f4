// internal/handlers/sales/sales_handler.go
package sales

import (
	"net/http"

	"salesbridge-service/internal/domain/sale"
	"salesbridge-service/internal/pkg/response"
	"salesbridge-service/internal/service/orchestrator"

	"github.com/gin-gonic/gin"
)

type SalesHandler struct {
	sales *orchestrator.Sales
}

func NewSalesHandler(sales *orchestrator.Sales) *SalesHandler {
	return &SalesHandler{sales: sales}
}

// ActiveSale runs the outbound sale flow for a CRM event.
func (h *SalesHandler) ActiveSale(c *gin.Context) {
	var ev sale.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	outcome, err := h.sales.ProcessSale(c.Request.Context(), ev)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "sale flow failed", err)
		return
	}

	if !outcome.Success {
		response.Success(c, http.StatusUnprocessableEntity, "sale flow did not complete", outcome)
		return
	}
	response.Success(c, http.StatusOK, "sale processed", outcome)
}

// PassiveSale exists for API symmetry. Passive sales start on the
// messaging platform itself, so there is nothing to orchestrate here.
func (h *SalesHandler) PassiveSale(c *gin.Context) {
	response.Success(c, http.StatusOK, "passive sales are handled entirely on the messaging platform", gin.H{
		"action": "none",
	})
}
