// Package payment validates payment input, creates orders and drives the
// payment-status axis.
package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/events"
	"github.com/imrishuroy/go-order-lifecycle/internal/gateway"
	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/proof"
)

const defaultGatewayTimeout = 10 * time.Second

// Workflow is the payment workflow. All writes go through the order store.
type Workflow struct {
	store   *orders.Store
	gateway gateway.Gateway
	events  events.Publisher
	metrics metrics.Recorder
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

// Option configures a Workflow.
type Option func(*Workflow)

func WithEvents(p events.Publisher) Option { return func(w *Workflow) { w.events = p } }

func WithMetrics(m metrics.Recorder) Option { return func(w *Workflow) { w.metrics = m } }

func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }

// WithGatewayTimeout bounds every gateway call.
func WithGatewayTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// New returns a payment Workflow.
func New(store *orders.Store, gw gateway.Gateway, opts ...Option) *Workflow {
	w := &Workflow{
		store:   store,
		gateway: gw,
		events:  events.Nop{},
		metrics: metrics.Nop{},
		logger:  zap.NewNop(),
		now:     time.Now,
		timeout: defaultGatewayTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CreateInput is everything a caller supplies when placing an order.
type CreateInput struct {
	CustomerID            string
	Address               orders.Address
	Items                 []orders.LineItem
	DeliveryCharge        float64
	Total                 float64
	TotalAmount           float64
	PaymentMethod         orders.PaymentMethod
	PaymentResult         *orders.PaymentResult
	TransactionID         string
	PaymentProof          *orders.PaymentProof
	PriceApprovalRequired bool
	ApprovalRequestID     string
}

func validateCreate(in CreateInput) error {
	const op = "payment.Create"
	if !in.PaymentMethod.Valid() {
		return orders.E(orders.KindValidation, op, 0, "unknown payment method "+quote(string(in.PaymentMethod)))
	}
	if in.DeliveryCharge < 0 {
		return orders.E(orders.KindValidation, op, 0, "delivery charge must not be negative")
	}
	if in.Total < 0 || in.TotalAmount < 0 {
		return orders.E(orders.KindValidation, op, 0, "total must not be negative")
	}
	for _, it := range in.Items {
		if it.Price < 0 || it.Quantity < 0 {
			return orders.E(orders.KindValidation, op, 0, "item "+quote(it.Name)+" has a negative price or quantity")
		}
	}

	switch in.PaymentMethod {
	case orders.MethodCash, orders.MethodWallet:
	default:
		if in.PaymentResult == nil {
			return orders.E(orders.KindPaymentResultMissing, op, 0, "payment result is required for "+string(in.PaymentMethod)+" payments")
		}
	}
	if in.PaymentMethod == orders.MethodJazzCash || in.PaymentMethod == orders.MethodEasyPaisa {
		if strings.TrimSpace(in.PaymentResult.TransactionID) == "" {
			return orders.E(orders.KindTransactionIDMissing, op, 0, "transaction id is required for "+string(in.PaymentMethod)+" payments")
		}
	}
	if in.PaymentMethod == orders.MethodBank && in.PaymentResult.RequiresVerification && in.PaymentProof == nil {
		return orders.E(orders.KindValidation, op, 0, "bank transfers awaiting verification need a payment proof")
	}
	return nil
}

// Create validates in, settles wallet payments with the gateway and stores the
// fully assembled order once. On any failure nothing is stored.
func (w *Workflow) Create(ctx context.Context, in CreateInput) (orders.Order, error) {
	if err := validateCreate(in); err != nil {
		return orders.Order{}, err
	}

	id, release, err := w.store.Reserve(ctx)
	if err != nil {
		return orders.Order{}, err
	}
	defer release()

	now := w.now().UTC()
	o := orders.Order{
		ID:                    id,
		CustomerID:            in.CustomerID,
		Address:               in.Address,
		Items:                 append([]orders.LineItem(nil), in.Items...),
		DeliveryCharge:        in.DeliveryCharge,
		Total:                 in.Total,
		TotalAmount:           in.TotalAmount,
		PaymentMethod:         in.PaymentMethod,
		PaymentStatus:         orders.PaymentCompleted,
		TransactionID:         strings.TrimSpace(in.TransactionID),
		DeliveryStatus:        orders.DeliveryPending,
		Status:                orders.StatusPending,
		ApprovalStatus:        orders.ApprovalPending,
		ApprovalRequestID:     in.ApprovalRequestID,
		PriceApprovalRequired: in.PriceApprovalRequired,
	}
	orders.ReconcileTotals(&o)

	if in.PaymentResult != nil {
		pr := *in.PaymentResult
		o.PaymentResult = &pr
		if o.TransactionID == "" {
			o.TransactionID = pr.TransactionID
		}
	}

	switch {
	case o.PaymentMethod == orders.MethodCash:
		o.PaymentStatus = orders.PaymentPending
	case o.PaymentMethod == orders.MethodWallet:
		tx, err := w.debitWallet(ctx, o)
		if err != nil {
			return orders.Order{}, err
		}
		o.PaymentResult = tx.PaymentResult()
		if o.TransactionID == "" {
			o.TransactionID = tx.ID
		}
	case o.PaymentMethod == orders.MethodBank && o.PaymentResult.RequiresVerification:
		o.PaymentStatus = orders.PaymentPendingVerification
		o.Status = orders.StatusPaymentPending
	}
	if o.PaymentStatus == orders.PaymentCompleted {
		o.PaidAt = orders.TimePtr(now)
	}

	if in.PaymentProof != nil && o.PaymentMethod.RequiresProof() {
		p := proof.Normalize(*in.PaymentProof, now)
		o.PaymentProof = &p
		o.VerificationStatus = orders.VerificationPending
		o.PaymentProofSubmittedAt = orders.TimePtr(now)
	}

	created, err := w.store.Create(ctx, o)
	if err != nil {
		if o.PaymentMethod == orders.MethodWallet {
			w.logger.Error("wallet debited but order was not stored",
				zap.Int64("order_id", o.ID),
				zap.String("transaction_id", o.TransactionID),
				zap.Error(err),
			)
		}
		return orders.Order{}, err
	}

	w.logger.Info("order created",
		zap.Int64("order_id", created.ID),
		zap.String("payment_method", string(created.PaymentMethod)),
		zap.String("payment_status", string(created.PaymentStatus)),
		zap.Float64("total", created.Total),
	)
	w.metrics.Count(ctx, metrics.OrderCreated, map[string]string{"method": string(created.PaymentMethod)})
	events.Emit(ctx, w.events, w.logger, events.New(events.TypeOrderCreated, "", created, now))
	return created, nil
}

func (w *Workflow) debitWallet(ctx context.Context, o orders.Order) (gateway.Transaction, error) {
	const op = "payment.Create"
	gctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	tx, err := w.gateway.DebitWallet(gctx, gateway.WalletDebit{
		Amount:     o.Amount(),
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
	})
	if err == nil {
		return tx, nil
	}

	werr := orders.Wrap(orders.KindWalletPaymentFailed, op, o.ID, err, "wallet payment failed")
	var gwErr *gateway.WalletError
	if errors.As(err, &gwErr) {
		werr.Code = gwErr.Code
		werr.Msg = "wallet payment failed: " + gwErr.Message
	} else if errors.Is(err, context.DeadlineExceeded) {
		werr.Code = gateway.CodeUnavailable
	}
	w.logger.Warn("wallet debit failed",
		zap.Int64("order_id", o.ID),
		zap.String("code", werr.Code),
		zap.Error(err),
	)
	w.metrics.Count(ctx, metrics.WalletDebitFailed, map[string]string{"code": werr.Code})
	return gateway.Transaction{}, werr
}

// UpdatePaymentStatus moves the payment axis to status. Completing a payment
// stamps paidAt and, for an order still in payment_pending, confirms it in the
// same write.
func (w *Workflow) UpdatePaymentStatus(ctx context.Context, id int64, status orders.PaymentStatus, result *orders.PaymentResult) (orders.Order, error) {
	const op = "payment.UpdatePaymentStatus"
	if !status.Valid() {
		return orders.Order{}, orders.E(orders.KindValidation, op, id, "unknown payment status "+quote(string(status)))
	}

	var previous orders.Status
	updated, err := w.store.Update(ctx, id, func(o *orders.Order) error {
		previous = o.Status
		if status == orders.PaymentPendingVerification {
			if !o.HasProof() {
				return orders.E(orders.KindValidation, op, id, "pending verification requires a payment proof")
			}
			switch o.VerificationStatus {
			case "":
				o.VerificationStatus = orders.VerificationPending
			case orders.VerificationPending:
			default:
				return orders.E(orders.KindVerificationNotPending, op, id, "payment proof was already "+string(o.VerificationStatus))
			}
		}
		w.applyPaymentStatus(o, status, result)
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	events.Emit(ctx, w.events, w.logger, events.New(events.TypePaymentUpdated, previous, updated, w.now()))
	return updated, nil
}

func (w *Workflow) applyPaymentStatus(o *orders.Order, status orders.PaymentStatus, result *orders.PaymentResult) {
	o.PaymentStatus = status
	if result != nil {
		pr := *result
		o.PaymentResult = &pr
		if o.TransactionID == "" {
			o.TransactionID = pr.TransactionID
		}
	}
	if status != orders.PaymentCompleted {
		o.PaidAt = nil
		return
	}
	o.PaidAt = orders.TimePtr(w.now().UTC())
	if o.Status == orders.StatusPaymentPending {
		o.Status = orders.StatusConfirmed
	}
}

// VerifyOrderPayment asks the gateway to confirm the stored transaction of an
// order awaiting verification and completes the payment when it does.
func (w *Workflow) VerifyOrderPayment(ctx context.Context, id int64, ev gateway.Evidence) (orders.Order, error) {
	const op = "payment.VerifyOrderPayment"
	current, err := w.store.Get(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	if current.PaymentStatus != orders.PaymentPendingVerification {
		return orders.Order{}, orders.E(orders.KindNotPendingVerification, op, id, "payment status is "+string(current.PaymentStatus))
	}

	txID := current.TransactionID
	if current.PaymentResult != nil && current.PaymentResult.TransactionID != "" {
		txID = current.PaymentResult.TransactionID
	}
	if txID == "" {
		return orders.Order{}, orders.E(orders.KindVerificationFailed, op, id, "order has no transaction id to verify")
	}
	if ev.ProofRef == "" && current.PaymentProof != nil {
		ev.ProofRef = current.PaymentProof.Ref()
	}
	if ev.Amount == 0 {
		ev.Amount = current.Amount()
	}

	gctx, cancel := context.WithTimeout(ctx, w.timeout)
	res, err := w.gateway.Verify(gctx, txID, ev)
	cancel()
	if err != nil {
		w.metrics.Count(ctx, metrics.PaymentVerifyFailed, map[string]string{"reason": "gateway_error"})
		return orders.Order{}, orders.Wrap(orders.KindVerificationFailed, op, id, err, "payment verification error")
	}
	if !res.Verified {
		w.metrics.Count(ctx, metrics.PaymentVerifyFailed, map[string]string{"reason": "not_verified"})
		return orders.Order{}, orders.E(orders.KindVerificationFailed, op, id, "gateway did not verify transaction "+txID)
	}

	var previous orders.Status
	updated, err := w.store.Update(ctx, id, func(o *orders.Order) error {
		if o.PaymentStatus != orders.PaymentPendingVerification {
			return orders.E(orders.KindNotPendingVerification, op, id, "payment status changed to "+string(o.PaymentStatus))
		}
		previous = o.Status
		w.applyPaymentStatus(o, orders.PaymentCompleted, res.Transaction.PaymentResult())
		if o.VerificationStatus == orders.VerificationPending || o.VerificationStatus == "" {
			now := w.now().UTC()
			o.VerificationStatus = orders.VerificationVerified
			o.ApprovalStatus = orders.ApprovalApproved
			o.VerifiedAt = orders.TimePtr(now)
			o.VerifiedBy = "gateway"
			o.PaymentVerifiedAt = orders.TimePtr(now)
		}
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	w.metrics.Count(ctx, metrics.PaymentVerified, nil)
	events.Emit(ctx, w.events, w.logger, events.New(events.TypePaymentUpdated, previous, updated, w.now()).With("verifiedBy", "gateway"))
	return updated, nil
}

// RetryInput carries the replacement payment of a retry.
type RetryInput struct {
	PaymentMethod orders.PaymentMethod
	PaymentResult *orders.PaymentResult
	TransactionID string
}

// RetryPayment overlays a new payment on an unpaid order and completes it.
func (w *Workflow) RetryPayment(ctx context.Context, id int64, in RetryInput) (orders.Order, error) {
	const op = "payment.RetryPayment"
	if in.PaymentResult == nil {
		return orders.Order{}, orders.E(orders.KindPaymentResultMissing, op, id, "retry needs a payment result")
	}
	if in.PaymentMethod != "" && !in.PaymentMethod.Valid() {
		return orders.Order{}, orders.E(orders.KindValidation, op, id, "unknown payment method "+quote(string(in.PaymentMethod)))
	}

	var previous orders.Status
	updated, err := w.store.Update(ctx, id, func(o *orders.Order) error {
		if o.PaymentStatus == orders.PaymentCompleted {
			return orders.E(orders.KindAlreadyPaid, op, id, "payment already completed for this order")
		}
		previous = o.Status
		if in.PaymentMethod != "" {
			o.PaymentMethod = in.PaymentMethod
		}
		if tx := strings.TrimSpace(in.TransactionID); tx != "" {
			o.TransactionID = tx
		} else if in.PaymentResult.TransactionID != "" {
			o.TransactionID = in.PaymentResult.TransactionID
		}
		o.RetryCount++
		w.applyPaymentStatus(o, orders.PaymentCompleted, in.PaymentResult)
		if o.Status == orders.StatusPaymentRejected {
			o.Status = orders.StatusConfirmed
		}
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	events.Emit(ctx, w.events, w.logger, events.New(events.TypePaymentUpdated, previous, updated, w.now()).With("retry", "true"))
	return updated, nil
}

func quote(s string) string { return "\"" + s + "\"" }
