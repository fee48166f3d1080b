package transport

import (
	"errors"
	"net/http"

	"github.com/pawsuite/paycore/internal/entity"
	"github.com/pawsuite/paycore/internal/service"
	"github.com/gin-gonic/gin"
)

type ReservationHandler struct {
	reservationService service.ReservationService
}

func NewReservationHandler(reservationService service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: reservationService}
}

// SuccessResponse is the envelope for admin endpoints.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorResponse is the envelope for failed requests.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// statusFromError maps domain errors to HTTP status codes. Conflicts with
// committed state are 409 so that clients can distinguish "retry later"
// from "lost the race".
func statusFromError(err error) int {
	switch {
	case errors.Is(err, entity.ErrReservationNotFound),
		errors.Is(err, entity.ErrVoucherNotFound),
		errors.Is(err, entity.ErrEscrowNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrSlotTaken),
		errors.Is(err, entity.ErrReservationNotActive),
		errors.Is(err, entity.ErrVoucherClaimed),
		errors.Is(err, entity.ErrVoucherNotRedeemable),
		errors.Is(err, entity.ErrVoucherExpired),
		errors.Is(err, entity.ErrEscrowExists),
		errors.Is(err, entity.ErrEscrowNotHeld):
		return http.StatusConflict
	case errors.Is(err, entity.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFromError(err), ErrorResponse{
		Success: false,
		Error:   err.Error(),
	})
}

func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	var req service.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reservation, err := h.reservationService.CreateReservation(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, reservation)
}

func (h *ReservationHandler) GetReservation(c *gin.Context) {
	reservation, err := h.reservationService.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}

func (h *ReservationHandler) ConsumeReservation(c *gin.Context) {
	if err := h.reservationService.ConsumeReservation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reservation consumed"})
}

func (h *ReservationHandler) ReleaseReservation(c *gin.Context) {
	if err := h.reservationService.ReleaseReservation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reservation released"})
}
