// Package handlers exposes the order lifecycle over HTTP for admin tooling.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/delivery"
	"github.com/imrishuroy/go-order-lifecycle/internal/idempotency"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/payment"
	"github.com/imrishuroy/go-order-lifecycle/internal/refund"
	"github.com/imrishuroy/go-order-lifecycle/internal/revenue"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
	"github.com/imrishuroy/go-order-lifecycle/internal/verification"
)

// Deps groups what the routes call into. Idempotency may be nil, in which
// case Idempotency-Key headers are ignored.
type Deps struct {
	Store        *orders.Store
	Payments     *payment.Workflow
	Verification *verification.Workflow
	Refunds      *refund.Workflow
	Delivery     *delivery.Service
	Revenue      *revenue.Reporter
	Idempotency  idempotency.Keeper
	Logger       *zap.Logger
}

type api struct {
	Deps
	v *validatorv10.Validate
}

// Register mounts every route on r.
func Register(r gin.IRouter, d Deps) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	h := &api{Deps: d, v: validation.New()}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	o := r.Group("/orders")
	o.POST("", h.createOrder)
	o.GET("", h.listOrders)
	o.GET("/next-id", h.nextID)
	o.GET("/:id", h.getOrder)
	o.DELETE("/:id", h.deleteOrder)
	o.PUT("/:id/payment-status", h.updatePaymentStatus)
	o.POST("/:id/payment/verify", h.verifyPayment)
	o.POST("/:id/payment/retry", h.retryPayment)
	o.POST("/:id/refund", h.requestRefund)
	o.PUT("/:id/courier", h.assignCourier)
	o.PUT("/:id/delivery-status", h.updateDeliveryStatus)

	v := r.Group("/verifications")
	v.GET("/pending", h.pendingVerifications)
	v.POST("/:id/decision", h.decideVerification)
	v.POST("/:id/confirm", h.confirmVerification)
	v.GET("/:id/history", h.verificationHistory)

	rev := r.Group("/revenue")
	rev.GET("/monthly", h.monthlyRevenue)
	rev.GET("/by-payment-method", h.revenueByMethod)
}
