package transport

import (
	"github.com/pawsuite/paycore/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

func InitRoutes(
	reservationHandler *ReservationHandler,
	voucherHandler *VoucherHandler,
	escrowHandler *EscrowHandler,
	webhookHandler *WebhookHandler,
	adminHandler *AdminHandler,
) *gin.Engine {

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(30))

	// API routes
	api := router.Group("/api/v1")
	{
		// Reservation routes
		reservations := api.Group("/reservations")
		{
			reservations.POST("", reservationHandler.CreateReservation)
			reservations.GET("/:id", reservationHandler.GetReservation)
			reservations.POST("/:id/consume", reservationHandler.ConsumeReservation)
			reservations.POST("/:id/release", reservationHandler.ReleaseReservation)
		}

		// Voucher routes. Claim and redeem carry their identifiers in the
		// body so the POST tree stays free of wildcard conflicts.
		vouchers := api.Group("/vouchers")
		{
			vouchers.POST("", voucherHandler.IssueVoucher)
			vouchers.POST("/claim", voucherHandler.ClaimVoucher)
			vouchers.POST("/redeem", voucherHandler.RedeemVoucher)
			vouchers.GET("/:id", voucherHandler.GetVoucher)
		}

		api.GET("/owners/:owner_ref/vouchers", voucherHandler.GetOwnerVouchers)

		// Escrow routes
		escrows := api.Group("/escrows")
		{
			escrows.POST("", escrowHandler.CreateEscrow)
			escrows.GET("/:id", escrowHandler.GetEscrow)
		}

		// Payment gateway callbacks
		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/payment", webhookHandler.HandlePaymentEvent)
		}

		// Admin routes
		admin := api.Group("/admin")
		{
			admin.POST("/escrows/:id/release", adminHandler.ReleaseEscrow)
			admin.POST("/escrows/:id/refund", adminHandler.RefundEscrow)
			admin.POST("/escrows/:id/dispute", adminHandler.DisputeEscrow)
			admin.GET("/escrows", adminHandler.GetEscrowsByStatus)
			admin.DELETE("/vouchers/:id", adminHandler.CancelVoucher)
			admin.POST("/sweeps/reservations", adminHandler.TriggerReservationSweep)
			admin.POST("/sweeps/escrows", adminHandler.TriggerEscrowSweep)
			admin.GET("/dlq/tasks", adminHandler.GetFailedTasks)
			admin.POST("/dlq/tasks/:task_id/requeue", adminHandler.RequeueFailedTask)
			admin.DELETE("/dlq/tasks/:task_id", adminHandler.DeleteFailedTask)
			admin.GET("/dlq/stats", adminHandler.GetDLQStats)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	return router
}
