package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/observability"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

func statusFor(kind orders.Kind) int {
	switch kind {
	case orders.KindNotFound:
		return http.StatusNotFound
	case orders.KindValidation, orders.KindPaymentResultMissing, orders.KindTransactionIDMissing:
		return http.StatusBadRequest
	case orders.KindWalletPaymentFailed:
		return http.StatusPaymentRequired
	case orders.KindVerificationNotPending, orders.KindNotPendingVerification, orders.KindAlreadyPaid, orders.KindConflict:
		return http.StatusConflict
	case orders.KindVerificationFailed, orders.KindRefund:
		return http.StatusUnprocessableEntity
	case orders.KindFollowUpFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error", "message", "code"} with the status its kind maps to.
func writeError(c *gin.Context, err error) {
	var oe *orders.Error
	kind := orders.KindOf(err)
	status := statusFor(kind)

	body := gin.H{"error": kind.String(), "message": err.Error()}
	if kind == orders.KindUnknown {
		body["error"] = "internal_error"
		body["message"] = "internal server error"
		observability.FromContext(c).Error("request failed", zap.Error(err))
	} else if errors.As(err, &oe) {
		if oe.Msg != "" {
			body["message"] = oe.Msg
		}
		if oe.Code != "" {
			body["code"] = oe.Code
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   orders.KindValidation.String(),
		"message": msg,
	})
}

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "order id must be a positive integer")
		return 0, false
	}
	return id, true
}
