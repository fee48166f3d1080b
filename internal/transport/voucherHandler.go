package transport

import (
	"net/http"
	"strconv"

	"github.com/pawsuite/paycore/internal/service"
	"github.com/gin-gonic/gin"
)

type VoucherHandler struct {
	voucherService service.VoucherService
}

func NewVoucherHandler(voucherService service.VoucherService) *VoucherHandler {
	return &VoucherHandler{voucherService: voucherService}
}

func (h *VoucherHandler) IssueVoucher(c *gin.Context) {
	var req service.IssueVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issued, err := h.voucherService.IssueVoucher(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	// The plaintext code appears in this response and nowhere else.
	c.JSON(http.StatusCreated, issued)
}

func (h *VoucherHandler) ClaimVoucher(c *gin.Context) {
	var req service.ClaimVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	voucher, err := h.voucherService.ClaimVoucher(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, voucher)
}

func (h *VoucherHandler) RedeemVoucher(c *gin.Context) {
	var req service.RedeemVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.voucherService.RedeemVoucher(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *VoucherHandler) GetVoucher(c *gin.Context) {
	voucher, err := h.voucherService.GetVoucher(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, voucher)
}

func (h *VoucherHandler) GetOwnerVouchers(c *gin.Context) {
	ownerRef := c.Param("owner_ref")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	cursor := c.Query("cursor")

	page, err := h.voucherService.ListOwnerVouchers(c.Request.Context(), ownerRef, cursor, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Vouchers retrieved successfully",
		Data:    page.Vouchers,
		Meta: map[string]interface{}{
			"limit":       limit,
			"next_cursor": page.NextCursor,
			"has_more":    page.HasMore,
		},
	})
}
