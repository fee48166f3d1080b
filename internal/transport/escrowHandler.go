package transport

import (
	"net/http"

	"github.com/pawsuite/paycore/internal/service"
	"github.com/gin-gonic/gin"
)

type EscrowHandler struct {
	escrowService service.EscrowService
}

func NewEscrowHandler(escrowService service.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrowService: escrowService}
}

func (h *EscrowHandler) CreateEscrow(c *gin.Context) {
	var req service.CreateEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	escrow, err := h.escrowService.CreateEscrow(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, escrow)
}

func (h *EscrowHandler) GetEscrow(c *gin.Context) {
	escrow, err := h.escrowService.GetEscrow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}
