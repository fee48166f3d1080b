package transport

import (
	"net/http"

	"github.com/pawsuite/paycore/internal/entity"
	"github.com/pawsuite/paycore/internal/service"
	"github.com/gin-gonic/gin"
)

type WebhookHandler struct {
	webhookService service.WebhookService
}

func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// HandlePaymentEvent ingests gateway callbacks. The gateway retries until it
// sees a 2xx, so only transient failures return 5xx; everything the gateway
// cannot fix by retrying is acknowledged.
func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	var event entity.PaymentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.webhookService.ProcessPaymentEvent(c.Request.Context(), &event); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "event processed"})
}
