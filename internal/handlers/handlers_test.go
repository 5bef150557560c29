package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-order-lifecycle/internal/delivery"
	"github.com/imrishuroy/go-order-lifecycle/internal/gateway"
	"github.com/imrishuroy/go-order-lifecycle/internal/idempotency"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/payment"
	"github.com/imrishuroy/go-order-lifecycle/internal/refund"
	"github.com/imrishuroy/go-order-lifecycle/internal/revenue"
	"github.com/imrishuroy/go-order-lifecycle/internal/tasks"
	"github.com/imrishuroy/go-order-lifecycle/internal/verification"
)

var testNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type server struct {
	router *gin.Engine
	store  *orders.Store
}

func newServer(t *testing.T, seed ...orders.Order) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clock := func() time.Time { return testNow }

	store := orders.NewStore(orders.NewMemoryBackend(seed...), orders.WithClock(clock))
	gw := gateway.NewSimulated(gateway.WithBalance("cust-rich", 10000), gateway.WithSimulatedClock(clock))

	r := gin.New()
	Register(r, Deps{
		Store:        store,
		Payments:     payment.New(store, gw, payment.WithClock(clock)),
		Verification: verification.New(store, verification.WithClock(clock), verification.WithQueue(&tasks.Memory{})),
		Refunds:      refund.New(store, refund.WithClock(clock)),
		Delivery:     delivery.New(store, delivery.WithClock(clock)),
		Revenue:      revenue.New(store, revenue.WithClock(clock)),
		Idempotency:  idempotency.NewMemory(time.Hour),
	})
	return &server{router: r, store: store}
}

func (s *server) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateOrder(t *testing.T) {
	s := newServer(t)
	body := `{
		"customerId": "cust-1",
		"deliveryAddress": {"name": "Sana", "city": "Lahore"},
		"items": [{"name": "Biryani", "price": 450, "quantity": 2}],
		"deliveryCharge": 100,
		"paymentMethod": "cash"
	}`

	w := s.do(http.MethodPost, "/orders", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/orders/1", w.Header().Get("Location"))

	var o orders.Order
	decode(t, w, &o)
	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	assert.Equal(t, 1000.0, o.Total)
	assert.Equal(t, 1000.0, o.TotalAmount)
}

func TestCreateOrder_ProofDefaults(t *testing.T) {
	s := newServer(t)
	body := `{
		"paymentMethod": "jazzcash",
		"paymentResult": {"transactionId": "JC-77"},
		"total": 500,
		"paymentProof": {"dataUrl": "data:image/png;base64,iVBORw0KGgo="}
	}`

	w := s.do(http.MethodPost, "/orders", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var o orders.Order
	decode(t, w, &o)
	require.NotNil(t, o.PaymentProof)
	assert.Equal(t, "default.jpg", o.PaymentProof.FileName)
	assert.Equal(t, orders.VerificationPending, o.VerificationStatus)
	assert.True(t, testNow.Equal(o.PaymentProof.UploadedAt))
}

func TestCreateOrder_Idempotent(t *testing.T) {
	s := newServer(t)
	body := `{"paymentMethod": "cash", "total": 250}`

	first := s.do(http.MethodPost, "/orders", body, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, first.Code)

	replay := s.do(http.MethodPost, "/orders", body, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	other := s.do(http.MethodPost, "/orders", `{"paymentMethod": "cash", "total": 300}`, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusConflict, other.Code)

	list, err := s.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateOrder_FailedAttemptCanRetry(t *testing.T) {
	s := newServer(t)
	body := `{"customerId": "cust-poor", "paymentMethod": "wallet", "total": 500}`

	w := s.do(http.MethodPost, "/orders", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	var errBody map[string]string
	decode(t, w, &errBody)
	assert.Equal(t, "wallet_payment_failed", errBody["error"])
	assert.Equal(t, gateway.CodeInsufficientFunds, errBody["code"])

	w = s.do(http.MethodPost, "/orders", body, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusPaymentRequired, w.Code, "failed key is claimed again, not replayed")
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"bad json", `{"paymentMethod":`, http.StatusBadRequest, "validation_error"},
		{"unknown method", `{"paymentMethod": "paypal"}`, http.StatusBadRequest, "validation_error"},
		{"missing payment result", `{"paymentMethod": "bank", "total": 10}`, http.StatusBadRequest, "payment_result_missing"},
		{"missing transaction id", `{"paymentMethod": "jazzcash", "total": 10, "paymentResult": {}}`, http.StatusBadRequest, "transaction_id_missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)
			w := s.do(http.MethodPost, "/orders", tt.body)
			assert.Equal(t, tt.status, w.Code)
			var body map[string]interface{}
			decode(t, w, &body)
			assert.Equal(t, tt.kind, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestOrderQueries(t *testing.T) {
	s := newServer(t,
		orders.Order{ID: 1, PaymentMethod: orders.MethodCash, PaymentStatus: orders.PaymentPending, DeliveryStatus: orders.DeliveryPending},
		orders.Order{ID: 2, PaymentMethod: orders.MethodWallet, PaymentStatus: orders.PaymentCompleted, DeliveryStatus: orders.DeliveryAssigned, DeliveryPersonID: "rider-1"},
	)

	var list struct {
		Orders []orders.Order `json:"orders"`
		Count  int            `json:"count"`
	}
	w := s.do(http.MethodGet, "/orders?paymentStatus=completed&deliveryPersonId=rider-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, int64(2), list.Orders[0].ID)

	w = s.do(http.MethodGet, "/orders?deliveryStatus=lost", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/orders/next-id", "")
	assert.JSONEq(t, `{"nextId":3}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/orders/9", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders/abc", "").Code)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/orders/1", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/orders/1", "").Code)
}

func TestPaymentRoutes(t *testing.T) {
	s := newServer(t,
		orders.Order{ID: 1, PaymentMethod: orders.MethodCash, PaymentStatus: orders.PaymentPending, Status: orders.StatusPending, Total: 100},
		orders.Order{ID: 2, PaymentMethod: orders.MethodJazzCash, PaymentStatus: orders.PaymentCompleted, Status: orders.StatusConfirmed, Total: 100},
	)

	w := s.do(http.MethodPut, "/orders/1/payment-status", `{"paymentStatus": "completed"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var o orders.Order
	decode(t, w, &o)
	assert.Equal(t, orders.PaymentCompleted, o.PaymentStatus)
	assert.NotNil(t, o.PaidAt)

	w = s.do(http.MethodPost, "/orders/2/payment/retry", `{"paymentMethod": "jazzcash", "paymentResult": {"transactionId": "JC-9"}}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/orders/1/payment/verify", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "not_pending_verification", body["error"])
}

func TestRetryPayment_KeepsStoredMethod(t *testing.T) {
	s := newServer(t, orders.Order{
		ID: 4, PaymentMethod: orders.MethodEasyPaisa, PaymentStatus: orders.PaymentVerificationFailed,
		Status: orders.StatusPaymentRejected, Total: 300,
	})

	w := s.do(http.MethodPost, "/orders/4/payment/retry", `{"paymentResult": {"transactionId": "EP-4"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var o orders.Order
	decode(t, w, &o)
	assert.Equal(t, orders.MethodEasyPaisa, o.PaymentMethod)
	assert.Equal(t, orders.PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.Equal(t, "EP-4", o.TransactionID)
}

func TestVerificationRoutes(t *testing.T) {
	s := newServer(t, orders.Order{
		ID: 5, PaymentMethod: orders.MethodBank, TransactionID: "BANK-5",
		PaymentStatus: orders.PaymentPendingVerification, Status: orders.StatusPaymentPending,
		VerificationStatus: orders.VerificationPending, Total: 800,
		PaymentProof: &orders.PaymentProof{FileName: "slip.png", BackupRef: "/api/uploads/slip.png"},
	})

	var pending struct {
		Verifications []verification.PendingReview `json:"verifications"`
	}
	w := s.do(http.MethodGet, "/verifications/pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &pending)
	require.Len(t, pending.Verifications, 1)
	assert.Equal(t, "BANK-5", pending.Verifications[0].TransactionID)

	w = s.do(http.MethodPost, "/verifications/5/decision", `{"status": "approved"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/verifications/5/decision", `{"status": "verified", "notes": "ok", "verifiedBy": "ops-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res verification.Result
	decode(t, w, &res)
	assert.Equal(t, orders.StatusConfirmed, res.Order.Status)
	assert.Equal(t, orders.StatusPending, res.Placed.Status)
	assert.False(t, res.ConfirmPending)

	w = s.do(http.MethodPost, "/verifications/5/decision", `{"status": "rejected"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/verifications/5/confirm", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/verifications/5/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec verification.Record
	decode(t, w, &rec)
	assert.Equal(t, orders.VerificationVerified, rec.Status)
	assert.Equal(t, "ops-1", rec.VerifiedBy)
}

func TestVerificationHistory_NoProof(t *testing.T) {
	s := newServer(t, orders.Order{ID: 1, PaymentMethod: orders.MethodCash})
	w := s.do(http.MethodGet, "/verifications/1/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefundAndDeliveryRoutes(t *testing.T) {
	s := newServer(t, orders.Order{ID: 3, PaymentMethod: orders.MethodWallet, Status: orders.StatusConfirmed, Total: 600})

	w := s.do(http.MethodPut, "/orders/3/courier", `{"deliveryPersonId": "rider-2"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPut, "/orders/3/delivery-status", `{"deliveryStatus": "picked_up"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var o orders.Order
	decode(t, w, &o)
	assert.Equal(t, orders.StatusPacked, o.Status)
	assert.Equal(t, "rider-2", o.DeliveryPersonID)

	w = s.do(http.MethodPost, "/orders/3/refund", `{"amount": 700, "reason": "late"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/orders/3/refund", `{"amount": 200, "reason": "late"}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &o)
	assert.Equal(t, orders.StatusRefundRequested, o.Status)
	require.NotNil(t, o.Refund)
	assert.Equal(t, 200.0, o.Refund.Amount)
}

func TestRevenueRoutes(t *testing.T) {
	s := newServer(t,
		orders.Order{ID: 1, PaymentMethod: orders.MethodCash, Total: 1500, CreatedAt: testNow.Add(-time.Hour)},
		orders.Order{ID: 2, PaymentMethod: orders.MethodWallet, Total: 900, CreatedAt: testNow.AddDate(0, -1, 0)},
	)

	w := s.do(http.MethodGet, "/revenue/monthly", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"revenue":1500}`, w.Body.String())

	w = s.do(http.MethodGet, "/revenue/by-payment-method", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"revenue":{"cash":1500,"wallet":900}}`, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(orders.KindNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(orders.KindTransactionIDMissing))
	assert.Equal(t, http.StatusPaymentRequired, statusFor(orders.KindWalletPaymentFailed))
	assert.Equal(t, http.StatusConflict, statusFor(orders.KindAlreadyPaid))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(orders.KindVerificationFailed))
	assert.Equal(t, http.StatusBadGateway, statusFor(orders.KindFollowUpFailed))
	assert.Equal(t, http.StatusInternalServerError, statusFor(orders.KindUnknown))
}
