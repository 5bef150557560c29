package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/gateway"
	"github.com/imrishuroy/go-order-lifecycle/internal/idempotency"
	"github.com/imrishuroy/go-order-lifecycle/internal/observability"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/payment"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "X-Idempotent-Replay"
)

func (h *api) createOrder(c *gin.Context) {
	ctx := c.Request.Context()
	logger := observability.FromContext(c)

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "could not read request body")
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	key := c.GetHeader(idempotencyHeader)
	if key != "" && h.Idempotency != nil {
		claim, err := h.Idempotency.Claim(ctx, key, idempotency.Fingerprint(raw))
		switch {
		case errors.Is(err, idempotency.ErrFingerprintMismatch):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":   orders.KindConflict.String(),
				"message": "idempotency key was already used for a different request",
			})
			return
		case err != nil:
			writeError(c, fmt.Errorf("claim idempotency key: %w", err))
			return
		}
		switch claim.Outcome {
		case idempotency.OutcomeReplay:
			c.Header(replayHeader, "true")
			c.Data(claim.Record.ResponseStatus, "application/json; charset=utf-8", []byte(claim.Record.ResponseBody))
			return
		case idempotency.OutcomeInProgress:
			c.JSON(http.StatusAccepted, gin.H{"status": "in_progress", "orderId": claim.Record.OrderID})
			return
		}
	} else {
		key = ""
	}

	created, err := h.Payments.Create(ctx, createInput(req))
	if err != nil {
		if key != "" {
			if ferr := h.Idempotency.Fail(ctx, key, err.Error()); ferr != nil {
				logger.Warn("idempotency key could not be released", zap.String("key", key), zap.Error(ferr))
			}
		}
		writeError(c, err)
		return
	}

	body, err := json.Marshal(created)
	if err != nil {
		writeError(c, fmt.Errorf("encode order: %w", err))
		return
	}
	if key != "" {
		if err := h.Idempotency.Complete(ctx, key, created.ID, http.StatusCreated, string(body)); err != nil {
			logger.Error("idempotency response not stored", zap.String("key", key), zap.Int64("order_id", created.ID), zap.Error(err))
		}
	}
	c.Header("Location", fmt.Sprintf("/orders/%d", created.ID))
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

func (h *api) listOrders(c *gin.Context) {
	var preds []orders.Predicate
	if v := c.Query("paymentStatus"); v != "" {
		st := orders.PaymentStatus(v)
		if !st.Valid() {
			badRequest(c, "unknown paymentStatus "+v)
			return
		}
		preds = append(preds, orders.ByPaymentStatus(st))
	}
	if v := c.Query("paymentMethod"); v != "" {
		m := orders.PaymentMethod(v)
		if !m.Valid() {
			badRequest(c, "unknown paymentMethod "+v)
			return
		}
		preds = append(preds, orders.ByPaymentMethod(m))
	}
	if v := c.Query("deliveryStatus"); v != "" {
		st := orders.DeliveryStatus(v)
		if !st.Valid() {
			badRequest(c, "unknown deliveryStatus "+v)
			return
		}
		preds = append(preds, orders.ByDeliveryStatus(st))
	}
	if v := c.Query("deliveryPersonId"); v != "" {
		preds = append(preds, orders.ByDeliveryPerson(v))
	}

	list, err := h.Store.List(c.Request.Context(), preds...)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

func (h *api) nextID(c *gin.Context) {
	id, err := h.Store.NextID(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nextId": id})
}

func (h *api) getOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) deleteOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	if err := h.Store.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *api) updatePaymentStatus(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req validation.PaymentStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.Payments.UpdatePaymentStatus(c.Request.Context(), id, orders.PaymentStatus(req.PaymentStatus), paymentResult(req.PaymentResult))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) verifyPayment(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req validation.VerifyPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.Payments.VerifyOrderPayment(c.Request.Context(), id, gateway.Evidence{
		Amount:   req.Amount,
		ProofRef: req.ProofRef,
		Notes:    req.Notes,
		Details:  req.Details,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) retryPayment(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req validation.RetryPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.Payments.RetryPayment(c.Request.Context(), id, payment.RetryInput{
		PaymentMethod: orders.PaymentMethod(req.PaymentMethod),
		PaymentResult: paymentResult(req.PaymentResult),
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) requestRefund(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req validation.RefundRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.Refunds.ProcessRefund(c.Request.Context(), id, req.Amount, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) assignCourier(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req validation.AssignCourierRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.Delivery.AssignCourier(c.Request.Context(), id, req.DeliveryPersonID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) updateDeliveryStatus(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req validation.DeliveryStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.Delivery.UpdateStatus(c.Request.Context(), id, orders.DeliveryStatus(req.DeliveryStatus), req.ActualDelivery)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func createInput(req validation.CreateOrderRequest) payment.CreateInput {
	items := make([]orders.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}
	in := payment.CreateInput{
		CustomerID: req.CustomerID,
		Address: orders.Address{
			Name:    req.DeliveryAddress.Name,
			Phone:   req.DeliveryAddress.Phone,
			Street:  req.DeliveryAddress.Street,
			City:    req.DeliveryAddress.City,
			ZipCode: req.DeliveryAddress.ZipCode,
		},
		Items:                 items,
		DeliveryCharge:        req.DeliveryCharge,
		Total:                 req.Total,
		TotalAmount:           req.TotalAmount,
		PaymentMethod:         orders.PaymentMethod(req.PaymentMethod),
		PaymentResult:         paymentResult(req.PaymentResult),
		TransactionID:         req.TransactionID,
		PriceApprovalRequired: req.PriceApprovalRequired,
		ApprovalRequestID:     req.ApprovalRequestID,
	}
	if p := req.PaymentProof; p != nil {
		in.PaymentProof = &orders.PaymentProof{
			FileName:    p.FileName,
			FileSize:    p.FileSize,
			DataURL:     p.DataURL,
			ExternalRef: p.ExternalRef,
			MimeType:    p.MimeType,
		}
		if p.UploadedAt != nil {
			in.PaymentProof.UploadedAt = p.UploadedAt.UTC()
		}
	}
	return in
}

func paymentResult(r *validation.PaymentResult) *orders.PaymentResult {
	if r == nil {
		return nil
	}
	return &orders.PaymentResult{
		TransactionID:        r.TransactionID,
		RequiresVerification: r.RequiresVerification,
		Provider:             r.Provider,
		Status:               r.Status,
		Amount:               r.Amount,
		Currency:             r.Currency,
		ProcessedAt:          r.ProcessedAt,
		Details:              r.Details,
	}
}
