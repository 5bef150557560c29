// Package verification implements the back-office review of uploaded payment
// proofs.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/events"
	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/proof"
	"github.com/imrishuroy/go-order-lifecycle/internal/tasks"
)

const defaultReviewer = "admin"

var errNothingToConfirm = errors.New("verification: nothing to confirm")

// Workflow runs proof verification decisions and the confirm follow-up.
type Workflow struct {
	store   *orders.Store
	queue   tasks.Queue
	events  events.Publisher
	metrics metrics.Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithQueue sets where failed confirm steps are deferred to.
func WithQueue(q tasks.Queue) Option { return func(w *Workflow) { w.queue = q } }

func WithEvents(p events.Publisher) Option { return func(w *Workflow) { w.events = p } }

func WithMetrics(m metrics.Recorder) Option { return func(w *Workflow) { w.metrics = m } }

func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }

func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// New returns a verification Workflow.
func New(store *orders.Store, opts ...Option) *Workflow {
	w := &Workflow{
		store:   store,
		events:  events.Nop{},
		metrics: metrics.Nop{},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Result reports a verification decision. Placed is the order as committed by
// the decision itself; Order is the latest state. ConfirmPending is set when
// the confirm step did not run and was queued instead.
type Result struct {
	Order          orders.Order `json:"order"`
	Placed         orders.Order `json:"placed"`
	ConfirmPending bool         `json:"confirmPending"`
}

// UpdateVerificationStatus records the reviewer's decision on a pending proof.
// A verified decision commits the "placed" state first and then confirms the
// order; if confirming fails the step is queued for the worker.
func (w *Workflow) UpdateVerificationStatus(ctx context.Context, id int64, decision orders.VerificationStatus, notes, reviewer string) (Result, error) {
	const op = "verification.UpdateVerificationStatus"
	if decision != orders.VerificationVerified && decision != orders.VerificationRejected {
		return Result{}, orders.E(orders.KindValidation, op, id, "decision must be verified or rejected, got \""+string(decision)+"\"")
	}
	if reviewer == "" {
		reviewer = defaultReviewer
	}

	var previous orders.Status
	decided, err := w.store.Update(ctx, id, func(o *orders.Order) error {
		switch {
		case o.VerificationStatus == orders.VerificationPending:
		case o.VerificationStatus == "" && o.HasProof():
		default:
			msg := "no payment proof awaiting review"
			if o.VerificationStatus != "" {
				msg = "verification already " + string(o.VerificationStatus)
			}
			return orders.E(orders.KindVerificationNotPending, op, id, msg)
		}

		previous = o.Status
		now := w.now().UTC()
		o.VerificationStatus = decision
		o.VerificationNotes = notes
		o.VerifiedAt = orders.TimePtr(now)
		o.VerifiedBy = reviewer

		if decision == orders.VerificationVerified {
			o.PaymentStatus = orders.PaymentCompleted
			o.ApprovalStatus = orders.ApprovalApproved
			o.Status = orders.StatusPending
			o.PaymentVerifiedAt = orders.TimePtr(now)
			o.PaidAt = orders.TimePtr(now)
			return nil
		}
		o.PaymentStatus = orders.PaymentVerificationFailed
		o.ApprovalStatus = orders.ApprovalRejected
		o.Status = orders.StatusPaymentRejected
		o.PaymentRejectedAt = orders.TimePtr(now)
		o.PaidAt = nil
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	w.logger.Info("verification decided",
		zap.Int64("order_id", id),
		zap.String("decision", string(decision)),
		zap.String("reviewer", reviewer),
	)
	w.metrics.Count(ctx, metrics.VerificationDecided, map[string]string{"decision": string(decision)})

	if decision == orders.VerificationRejected {
		events.Emit(ctx, w.events, w.logger, events.New(events.TypeVerificationRejected, previous, decided, w.now()).With("reviewer", reviewer))
		return Result{Order: decided, Placed: decided}, nil
	}

	events.Emit(ctx, w.events, w.logger, events.New(events.TypeVerificationPlaced, previous, decided, w.now()).With("reviewer", reviewer))

	confirmed, err := w.Confirm(ctx, id)
	if err == nil {
		return Result{Order: confirmed, Placed: decided}, nil
	}

	res := Result{Order: decided, Placed: decided, ConfirmPending: true}
	if qerr := w.deferConfirm(ctx, id, err); qerr != nil {
		return res, qerr
	}
	return res, nil
}

func (w *Workflow) deferConfirm(ctx context.Context, id int64, cause error) error {
	const op = "verification.Confirm"
	w.logger.Warn("confirm after verification failed", zap.Int64("order_id", id), zap.Error(cause))

	if w.queue == nil {
		w.metrics.Count(ctx, metrics.FollowUpFailed, map[string]string{"reason": "no_queue"})
		return orders.Wrap(orders.KindFollowUpFailed, op, id, cause, "confirm failed and no follow-up queue is configured")
	}
	task := tasks.NewConfirmTask(id, cause.Error(), w.now())
	if err := w.queue.Enqueue(ctx, task); err != nil {
		w.logger.Error("confirm follow-up could not be queued",
			zap.Int64("order_id", id),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		w.metrics.Count(ctx, metrics.FollowUpFailed, map[string]string{"reason": "enqueue"})
		return orders.Wrap(orders.KindFollowUpFailed, op, id, errors.Join(cause, err), "confirm failed and could not be queued")
	}
	w.logger.Info("confirm follow-up queued", zap.Int64("order_id", id), zap.String("correlation_id", task.CorrelationID))
	w.metrics.Count(ctx, metrics.FollowUpEnqueued, nil)
	return nil
}

// Confirm advances a verified order from the placed state to confirmed. It is
// idempotent: an order already confirmed, or moved on by delivery, is returned
// unchanged.
func (w *Workflow) Confirm(ctx context.Context, id int64) (orders.Order, error) {
	const op = "verification.Confirm"
	var previous orders.Status
	updated, err := w.store.Update(ctx, id, func(o *orders.Order) error {
		if o.VerificationStatus != orders.VerificationVerified {
			return orders.E(orders.KindValidation, op, id, "payment proof is not verified")
		}
		if o.Status != orders.StatusPending {
			return errNothingToConfirm
		}
		previous = o.Status
		o.Status = orders.StatusConfirmed
		return nil
	})
	if errors.Is(err, errNothingToConfirm) {
		return w.store.Get(ctx, id)
	}
	if err != nil {
		return orders.Order{}, err
	}
	events.Emit(ctx, w.events, w.logger, events.New(events.TypeVerificationConfirmed, previous, updated, w.now()))
	return updated, nil
}

// PendingReview is the compact record shown to reviewers.
type PendingReview struct {
	OrderID              int64                     `json:"orderId"`
	TransactionID        string                    `json:"transactionId"`
	CustomerName         string                    `json:"customerName"`
	PaymentMethod        orders.PaymentMethod      `json:"paymentMethod"`
	Amount               float64                   `json:"amount"`
	PaymentProof         string                    `json:"paymentProof"`
	PaymentProofFileName string                    `json:"paymentProofFileName"`
	SubmittedAt          time.Time                 `json:"submittedAt"`
	VerificationStatus   orders.VerificationStatus `json:"verificationStatus"`
	PaymentStatus        orders.PaymentStatus      `json:"paymentStatus"`
	Status               orders.Status             `json:"status"`
}

func awaitingReview(o orders.Order) bool {
	if !o.HasProof() {
		return false
	}
	return o.VerificationStatus == orders.VerificationPending ||
		(o.VerificationStatus == "" && o.PaymentMethod.RequiresProof())
}

// GetPendingVerifications lists orders whose payment proof awaits a decision.
func (w *Workflow) GetPendingVerifications(ctx context.Context) ([]PendingReview, error) {
	list, err := w.store.List(ctx, awaitingReview)
	if err != nil {
		return nil, err
	}
	now := w.now()
	out := make([]PendingReview, 0, len(list))
	for _, o := range list {
		out = append(out, w.review(o, now))
	}
	return out, nil
}

func (w *Workflow) review(o orders.Order, now time.Time) PendingReview {
	txID := o.TransactionID
	if txID == "" {
		txID = fmt.Sprintf("TXN%d%04d", o.ID, now.UnixMilli()%10000)
	}
	name := o.Address.Name
	if name == "" {
		name = "Unknown"
	}
	ref := o.PaymentProof.Ref()
	if ref == "" {
		ref = proof.BackupRef(o.PaymentProof.FileName)
	}
	submitted := o.PaymentProof.UploadedAt
	if submitted.IsZero() && o.PaymentProofSubmittedAt != nil {
		submitted = *o.PaymentProofSubmittedAt
	}
	if submitted.IsZero() {
		submitted = o.CreatedAt
	}
	status := o.VerificationStatus
	if status == "" {
		status = orders.VerificationPending
	}
	return PendingReview{
		OrderID:              o.ID,
		TransactionID:        txID,
		CustomerName:         name,
		PaymentMethod:        o.PaymentMethod,
		Amount:               o.Amount(),
		PaymentProof:         ref,
		PaymentProofFileName: o.PaymentProof.FileName,
		SubmittedAt:          submitted,
		VerificationStatus:   status,
		PaymentStatus:        o.PaymentStatus,
		Status:               o.Status,
	}
}

// Record is the verification history of one order.
type Record struct {
	OrderID              int64                     `json:"orderId"`
	SubmittedAt          *time.Time                `json:"submittedAt,omitempty"`
	VerifiedAt           *time.Time                `json:"verifiedAt,omitempty"`
	VerifiedBy           string                    `json:"verifiedBy,omitempty"`
	Status               orders.VerificationStatus `json:"status"`
	Notes                string                    `json:"notes"`
	PaymentProof         *orders.PaymentProof      `json:"paymentProof"`
	PaymentProofFileName string                    `json:"paymentProofFileName"`
}

// GetVerificationHistory returns the verification record of an order, or nil
// when no proof was ever submitted.
func (w *Workflow) GetVerificationHistory(ctx context.Context, id int64) (*Record, error) {
	o, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.PaymentProof == nil {
		return nil, nil
	}
	rec := &Record{
		OrderID:              o.ID,
		SubmittedAt:          o.PaymentProofSubmittedAt,
		VerifiedAt:           o.VerifiedAt,
		VerifiedBy:           o.VerifiedBy,
		Status:               o.VerificationStatus,
		Notes:                o.VerificationNotes,
		PaymentProof:         o.PaymentProof,
		PaymentProofFileName: o.PaymentProof.FileName,
	}
	if rec.Status == "" {
		rec.Status = orders.VerificationPending
	}
	if rec.PaymentProofFileName == "" {
		rec.PaymentProofFileName = "unknown"
	}
	return rec, nil
}
