package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

func (h *api) pendingVerifications(c *gin.Context) {
	list, err := h.Verification.GetPendingVerifications(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verifications": list, "count": len(list)})
}

// decideVerification answers 200 when the order was confirmed in the same
// call and 202 when the confirm step was queued.
func (h *api) decideVerification(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req validation.VerificationDecisionRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	res, err := h.Verification.UpdateVerificationStatus(c.Request.Context(), id,
		orders.VerificationStatus(req.Status), req.Notes, req.VerifiedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if res.ConfirmPending {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}

func (h *api) confirmVerification(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.Verification.Confirm(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) verificationHistory(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	rec, err := h.Verification.GetVerificationHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if rec == nil {
		writeError(c, orders.E(orders.KindNotFound, "handlers.verificationHistory", id, "no payment proof was submitted for this order"))
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *api) monthlyRevenue(c *gin.Context) {
	total, err := h.Revenue.Monthly(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revenue": total})
}

func (h *api) revenueByMethod(c *gin.Context) {
	byMethod, err := h.Revenue.ByPaymentMethod(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revenue": byMethod})
}
