package transport

import (
	"net/http"
	"strconv"

	"github.com/pawsuite/paycore/internal/entity"
	"github.com/pawsuite/paycore/internal/service"
	"github.com/pawsuite/paycore/pkg/queue"
	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the operator surface: manual escrow resolution,
// voucher cancellation, on-demand sweeps and DLQ reconciliation.
type AdminHandler struct {
	escrowService      service.EscrowService
	voucherService     service.VoucherService
	reservationService service.ReservationService
	dlqHandler         queue.DLQHandler
}

func NewAdminHandler(
	escrowService service.EscrowService,
	voucherService service.VoucherService,
	reservationService service.ReservationService,
	dlqHandler queue.DLQHandler,
) *AdminHandler {
	return &AdminHandler{
		escrowService:      escrowService,
		voucherService:     voucherService,
		reservationService: reservationService,
		dlqHandler:         dlqHandler,
	}
}

// ResolveEscrowRequest carries the operator identity and, for refunds and
// disputes, the mandatory reason.
type ResolveEscrowRequest struct {
	ActorRef string `json:"actor_ref" binding:"required,min=1,max=255"`
	Reason   string `json:"reason" binding:"max=500"`
}

func (h *AdminHandler) ReleaseEscrow(c *gin.Context) {
	var req ResolveEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: err.Error()})
		return
	}

	if err := h.escrowService.ReleaseEscrow(c.Request.Context(), c.Param("id"), req.ActorRef); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Escrow released to payee",
	})
}

func (h *AdminHandler) RefundEscrow(c *gin.Context) {
	var req ResolveEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: err.Error()})
		return
	}

	if req.Reason == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Refund reason is required",
		})
		return
	}

	if err := h.escrowService.RefundEscrow(c.Request.Context(), c.Param("id"), req.Reason, req.ActorRef); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Escrow refunded to payer",
	})
}

func (h *AdminHandler) DisputeEscrow(c *gin.Context) {
	var req ResolveEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: err.Error()})
		return
	}

	if req.Reason == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Dispute reason is required",
		})
		return
	}

	if err := h.escrowService.DisputeEscrow(c.Request.Context(), c.Param("id"), req.Reason, req.ActorRef); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Escrow frozen under dispute",
	})
}

func (h *AdminHandler) GetEscrowsByStatus(c *gin.Context) {
	status, err := parseEscrowStatus(c.DefaultQuery("status", "held"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid escrow status",
		})
		return
	}

	escrows, err := h.escrowService.GetEscrowsByStatus(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Escrows retrieved successfully",
		Data:    escrows,
		Meta: map[string]interface{}{
			"status": status,
			"total":  len(escrows),
		},
	})
}

func (h *AdminHandler) CancelVoucher(c *gin.Context) {
	if err := h.voucherService.CancelVoucher(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Voucher cancelled",
	})
}

// TriggerReservationSweep runs the expiry sweep outside its schedule.
func (h *AdminHandler) TriggerReservationSweep(c *gin.Context) {
	expired, err := h.reservationService.SweepExpired(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Reservation sweep completed",
		Meta:    map[string]interface{}{"expired": expired},
	})
}

// TriggerEscrowSweep runs the auto-release pass outside its schedule.
func (h *AdminHandler) TriggerEscrowSweep(c *gin.Context) {
	released, err := h.escrowService.AutoReleaseExpiredHolds(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Escrow auto-release completed",
		Meta:    map[string]interface{}{"released": released},
	})
}

// requireDLQ guards the reconciliation endpoints when the queue is not
// configured.
func (h *AdminHandler) requireDLQ(c *gin.Context) bool {
	if h.dlqHandler == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Success: false,
			Error:   "Task queue is not configured",
		})
		return false
	}
	return true
}

func (h *AdminHandler) GetFailedTasks(c *gin.Context) {
	if !h.requireDLQ(c) {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	tasks, err := h.dlqHandler.GetFailedTasks(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Success: false,
			Error:   "Failed to get DLQ tasks: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Failed tasks retrieved successfully",
		Data:    tasks,
		Meta:    map[string]interface{}{"total": len(tasks)},
	})
}

func (h *AdminHandler) RequeueFailedTask(c *gin.Context) {
	if !h.requireDLQ(c) {
		return
	}

	if err := h.dlqHandler.RequeueFailedTask(c.Request.Context(), c.Param("task_id")); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Task requeued",
	})
}

func (h *AdminHandler) DeleteFailedTask(c *gin.Context) {
	if !h.requireDLQ(c) {
		return
	}

	if err := h.dlqHandler.DeleteFailedTask(c.Request.Context(), c.Param("task_id")); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Task deleted from DLQ",
	})
}

func (h *AdminHandler) GetDLQStats(c *gin.Context) {
	if !h.requireDLQ(c) {
		return
	}

	stats, err := h.dlqHandler.GetDLQStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Success: false,
			Error:   "Failed to get DLQ stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "DLQ stats retrieved successfully",
		Data:    stats,
	})
}

func parseEscrowStatus(status string) (entity.EscrowStatus, error) {
	switch status {
	case "held":
		return entity.EscrowStatusHeld, nil
	case "released":
		return entity.EscrowStatusReleased, nil
	case "refunded":
		return entity.EscrowStatusRefunded, nil
	case "disputed":
		return entity.EscrowStatusDisputed, nil
	default:
		return "", entity.ErrInvalidInput
	}
}
