package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-order-lifecycle/internal/events"
	"github.com/imrishuroy/go-order-lifecycle/internal/gateway"
	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/payment"
	"github.com/imrishuroy/go-order-lifecycle/internal/tasks"
)

var testNow = time.Date(2026, 5, 5, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return testNow }

// flakyBackend fails every Replace from the failFrom-th call on.
type flakyBackend struct {
	*orders.MemoryBackend
	mu       sync.Mutex
	replaces int
	failFrom int
}

func (f *flakyBackend) Replace(ctx context.Context, o orders.Order, prev int64) error {
	f.mu.Lock()
	f.replaces++
	n := f.replaces
	f.mu.Unlock()
	if f.failFrom > 0 && n >= f.failFrom {
		return errors.New("store unavailable")
	}
	return f.MemoryBackend.Replace(ctx, o, prev)
}

func awaitingOrder(id int64) orders.Order {
	return orders.Order{
		ID:                 id,
		PaymentMethod:      orders.MethodBank,
		PaymentStatus:      orders.PaymentPendingVerification,
		Status:             orders.StatusPaymentPending,
		ApprovalStatus:     orders.ApprovalPending,
		VerificationStatus: orders.VerificationPending,
		PaymentProof:       &orders.PaymentProof{FileName: "slip.jpg", BackupRef: "/api/uploads/slip.jpg"},
		Total:              1500,
		Version:            1,
	}
}

type fixture struct {
	store   *orders.Store
	queue   *tasks.Memory
	events  *events.Recorder
	metrics *metrics.Memory
	wf      *Workflow
}

func newFixture(t *testing.T, backend orders.Backend) *fixture {
	t.Helper()
	f := &fixture{
		store:   orders.NewStore(backend, orders.WithClock(clock)),
		queue:   &tasks.Memory{},
		events:  &events.Recorder{},
		metrics: &metrics.Memory{},
	}
	f.wf = New(f.store, WithQueue(f.queue), WithEvents(f.events), WithMetrics(f.metrics), WithClock(clock))
	return f
}

func TestUpdateVerificationStatus_Verified(t *testing.T) {
	f := newFixture(t, orders.NewMemoryBackend(awaitingOrder(1)))

	res, err := f.wf.UpdateVerificationStatus(context.Background(), 1, orders.VerificationVerified, "matches statement", "")
	require.NoError(t, err)
	assert.False(t, res.ConfirmPending)

	assert.Equal(t, orders.StatusPending, res.Placed.Status)
	assert.Equal(t, orders.StatusConfirmed, res.Order.Status)
	assert.Equal(t, orders.PaymentCompleted, res.Order.PaymentStatus)
	assert.Equal(t, orders.ApprovalApproved, res.Order.ApprovalStatus)
	assert.Equal(t, orders.VerificationVerified, res.Order.VerificationStatus)
	assert.Equal(t, "admin", res.Order.VerifiedBy)
	assert.Equal(t, "matches statement", res.Order.VerificationNotes)
	require.NotNil(t, res.Order.PaymentVerifiedAt)
	assert.True(t, res.Order.PaymentVerifiedAt.Equal(testNow))
	require.NotNil(t, res.Order.PaidAt)

	assert.Equal(t, []events.Type{events.TypeVerificationPlaced, events.TypeVerificationConfirmed}, f.events.Types())

	stored, err := f.store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, stored.Status)
}

func TestUpdateVerificationStatus_SecondCallIsRejected(t *testing.T) {
	f := newFixture(t, orders.NewMemoryBackend(awaitingOrder(1)))
	ctx := context.Background()

	_, err := f.wf.UpdateVerificationStatus(ctx, 1, orders.VerificationVerified, "", "ops")
	require.NoError(t, err)

	_, err = f.wf.UpdateVerificationStatus(ctx, 1, orders.VerificationRejected, "", "ops")
	require.Error(t, err)
	assert.True(t, errors.Is(err, orders.ErrVerificationNotPending))

	stored, _ := f.store.Get(ctx, 1)
	assert.Equal(t, orders.VerificationVerified, stored.VerificationStatus)
}

func TestUpdateVerificationStatus_Rejected(t *testing.T) {
	f := newFixture(t, orders.NewMemoryBackend(awaitingOrder(1)))

	res, err := f.wf.UpdateVerificationStatus(context.Background(), 1, orders.VerificationRejected, "amount mismatch", "reviewer-7")
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, orders.StatusPaymentRejected, o.Status)
	assert.Equal(t, orders.PaymentVerificationFailed, o.PaymentStatus)
	assert.Equal(t, orders.ApprovalRejected, o.ApprovalStatus)
	assert.Equal(t, orders.VerificationRejected, o.VerificationStatus)
	assert.Equal(t, "reviewer-7", o.VerifiedBy)
	require.NotNil(t, o.PaymentRejectedAt)
	assert.Nil(t, o.PaidAt)
	assert.Nil(t, o.PaymentVerifiedAt)
	assert.Equal(t, []events.Type{events.TypeVerificationRejected}, f.events.Types())
	assert.Equal(t, 1, f.metrics.Get(metrics.VerificationDecided, "decision=rejected"))
}

func TestUpdateVerificationStatus_Preconditions(t *testing.T) {
	f := newFixture(t, orders.NewMemoryBackend(
		orders.Order{ID: 1, PaymentMethod: orders.MethodCash, Version: 1},
		orders.Order{ID: 2, PaymentMethod: orders.MethodJazzCash, PaymentProof: &orders.PaymentProof{FileName: "jc.png"}, Version: 1},
	))
	ctx := context.Background()

	_, err := f.wf.UpdateVerificationStatus(ctx, 1, orders.VerificationVerified, "", "")
	assert.True(t, errors.Is(err, orders.ErrVerificationNotPending), "no proof means nothing to verify")

	_, err = f.wf.UpdateVerificationStatus(ctx, 2, "approved", "", "")
	assert.True(t, errors.Is(err, orders.ErrValidation))

	_, err = f.wf.UpdateVerificationStatus(ctx, 2, orders.VerificationVerified, "", "")
	assert.NoError(t, err, "proof without an explicit status is implicitly pending")

	_, err = f.wf.UpdateVerificationStatus(ctx, 9, orders.VerificationVerified, "", "")
	assert.True(t, errors.Is(err, orders.ErrNotFound))
}

func TestUpdateVerificationStatus_ConfirmFailureIsQueued(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: orders.NewMemoryBackend(awaitingOrder(1)), failFrom: 2}
	f := newFixture(t, backend)

	res, err := f.wf.UpdateVerificationStatus(context.Background(), 1, orders.VerificationVerified, "", "")
	require.NoError(t, err)
	assert.True(t, res.ConfirmPending)
	assert.Equal(t, orders.StatusPending, res.Order.Status)
	assert.Equal(t, orders.PaymentCompleted, res.Order.PaymentStatus)

	queued := f.queue.Tasks()
	require.Len(t, queued, 1)
	assert.Equal(t, tasks.KindConfirmVerification, queued[0].Kind)
	assert.Equal(t, int64(1), queued[0].OrderID)
	assert.Contains(t, queued[0].Reason, "store unavailable")
	assert.Equal(t, 1, f.metrics.Get(metrics.FollowUpEnqueued))

	// The worker re-runs Confirm once the store recovers.
	backend.failFrom = 0
	o, err := f.wf.Confirm(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
}

func TestUpdateVerificationStatus_FollowUpFailed(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: orders.NewMemoryBackend(awaitingOrder(1)), failFrom: 2}
	f := newFixture(t, backend)
	f.queue.Err = errors.New("queue down")

	res, err := f.wf.UpdateVerificationStatus(context.Background(), 1, orders.VerificationVerified, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, orders.ErrFollowUpFailed))
	assert.True(t, res.ConfirmPending)
	assert.Equal(t, 1, f.metrics.Get(metrics.FollowUpFailed, "reason=enqueue"))

	stored, _ := f.store.Get(context.Background(), 1)
	assert.Equal(t, orders.VerificationVerified, stored.VerificationStatus, "decision stays committed")
}

func TestConfirm_Idempotent(t *testing.T) {
	f := newFixture(t, orders.NewMemoryBackend(
		orders.Order{ID: 1, VerificationStatus: orders.VerificationVerified, PaymentStatus: orders.PaymentCompleted, Status: orders.StatusPending, Version: 1},
		orders.Order{ID: 2, VerificationStatus: orders.VerificationVerified, PaymentStatus: orders.PaymentCompleted, Status: orders.StatusShipped, Version: 1},
		orders.Order{ID: 3, VerificationStatus: orders.VerificationRejected, Status: orders.StatusPaymentRejected, Version: 1},
	))
	ctx := context.Background()

	first, err := f.wf.Confirm(ctx, 1)
	require.NoError(t, err)
	second, err := f.wf.Confirm(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, second.Status)
	assert.Equal(t, first.Version, second.Version)

	moved, err := f.wf.Confirm(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, moved.Status)
	assert.Equal(t, int64(1), moved.Version)

	_, err = f.wf.Confirm(ctx, 3)
	assert.True(t, errors.Is(err, orders.ErrValidation))

	assert.Equal(t, []events.Type{events.TypeVerificationConfirmed}, f.events.Types())
}

func TestGetPendingVerifications(t *testing.T) {
	created := testNow.Add(-48 * time.Hour)
	uploaded := testNow.Add(-2 * time.Hour)
	f := newFixture(t, orders.NewMemoryBackend(
		orders.Order{ID: 1, PaymentMethod: orders.MethodBank, TransactionID: "BANK-1", VerificationStatus: orders.VerificationPending,
			Address: orders.Address{Name: "Ayesha"}, Total: 900,
			PaymentProof: &orders.PaymentProof{FileName: "a.png", DataURL: "data:image/png;base64,AAAA", UploadedAt: uploaded}},
		orders.Order{ID: 2, PaymentMethod: orders.MethodEasyPaisa, CreatedAt: created,
			PaymentProof: &orders.PaymentProof{FileName: "b.png"}},
		orders.Order{ID: 3, PaymentMethod: orders.MethodBank, VerificationStatus: orders.VerificationVerified,
			PaymentProof: &orders.PaymentProof{FileName: "c.png"}},
		orders.Order{ID: 4, PaymentMethod: orders.MethodCash, PaymentProof: &orders.PaymentProof{FileName: "d.png"}},
		orders.Order{ID: 5, PaymentMethod: orders.MethodBank, VerificationStatus: orders.VerificationPending},
	))

	list, err := f.wf.GetPendingVerifications(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	first := list[0]
	assert.Equal(t, int64(1), first.OrderID)
	assert.Equal(t, "BANK-1", first.TransactionID)
	assert.Equal(t, "Ayesha", first.CustomerName)
	assert.Equal(t, "data:image/png;base64,AAAA", first.PaymentProof)
	assert.True(t, first.SubmittedAt.Equal(uploaded))
	assert.Equal(t, 900.0, first.Amount)

	second := list[1]
	assert.Equal(t, int64(2), second.OrderID)
	assert.Equal(t, fmt.Sprintf("TXN2%04d", testNow.UnixMilli()%10000), second.TransactionID)
	assert.Equal(t, "Unknown", second.CustomerName)
	assert.Equal(t, "/api/uploads/b.png", second.PaymentProof)
	assert.Equal(t, "b.png", second.PaymentProofFileName)
	assert.True(t, second.SubmittedAt.Equal(created))
	assert.Equal(t, orders.VerificationPending, second.VerificationStatus)
}

func TestGetVerificationHistory(t *testing.T) {
	submitted := testNow.Add(-time.Hour)
	f := newFixture(t, orders.NewMemoryBackend(
		orders.Order{ID: 1, PaymentMethod: orders.MethodCash},
		orders.Order{ID: 2, PaymentMethod: orders.MethodBank, PaymentProof: &orders.PaymentProof{}, PaymentProofSubmittedAt: &submitted},
	))
	ctx := context.Background()

	rec, err := f.wf.GetVerificationHistory(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = f.wf.GetVerificationHistory(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, orders.VerificationPending, rec.Status)
	assert.Equal(t, "unknown", rec.PaymentProofFileName)
	require.NotNil(t, rec.SubmittedAt)
	assert.True(t, rec.SubmittedAt.Equal(submitted))

	_, err = f.wf.GetVerificationHistory(ctx, 42)
	assert.True(t, errors.Is(err, orders.ErrNotFound))
}

func TestBankTransferScenario(t *testing.T) {
	store := orders.NewStore(orders.NewMemoryBackend(), orders.WithClock(clock))
	pay := payment.New(store, gateway.NewSimulated(), payment.WithClock(clock))
	verify := New(store, WithClock(clock))
	ctx := context.Background()

	created, err := pay.Create(ctx, payment.CreateInput{
		PaymentMethod: orders.MethodBank,
		Total:         1500,
		Address:       orders.Address{Name: "Bilal"},
		PaymentResult: &orders.PaymentResult{TransactionID: "BANK-42", RequiresVerification: true},
		PaymentProof:  &orders.PaymentProof{FileName: "transfer.jpg", ExternalRef: "s3://proofs/transfer.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPendingVerification, created.PaymentStatus)
	assert.Equal(t, orders.StatusPaymentPending, created.Status)
	assert.Equal(t, orders.VerificationPending, created.VerificationStatus)

	pending, err := verify.GetPendingVerifications(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "s3://proofs/transfer.jpg", pending[0].PaymentProof)

	res, err := verify.UpdateVerificationStatus(ctx, created.ID, orders.VerificationVerified, "", "")
	require.NoError(t, err)

	final, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, final.Status)
	assert.Equal(t, orders.PaymentCompleted, final.PaymentStatus)
	assert.NotNil(t, final.PaymentVerifiedAt)
	assert.Equal(t, final.Total, final.TotalAmount)
	assert.Equal(t, final.Version, res.Order.Version)

	pending, err = verify.GetPendingVerifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
