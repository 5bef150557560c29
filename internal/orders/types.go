package orders

import "time"

// Status is the order-level lifecycle status.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPaymentPending  Status = "payment_pending"
	StatusConfirmed       Status = "confirmed"
	StatusPacked          Status = "packed"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusPaymentRejected Status = "payment_rejected"
	StatusCancelled       Status = "cancelled"
	StatusRefundRequested Status = "refund_requested"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaymentPending, StatusConfirmed, StatusPacked, StatusShipped,
		StatusDelivered, StatusPaymentRejected, StatusCancelled, StatusRefundRequested:
		return true
	}
	return false
}

// PaymentStatus tracks settlement of the order's payment.
type PaymentStatus string

const (
	PaymentPending             PaymentStatus = "pending"
	PaymentPendingVerification PaymentStatus = "pending_verification"
	PaymentCompleted           PaymentStatus = "completed"
	PaymentVerificationFailed  PaymentStatus = "verification_failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPendingVerification, PaymentCompleted, PaymentVerificationFailed:
		return true
	}
	return false
}

// DeliveryStatus is reported by the courier side.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryAssigned  DeliveryStatus = "assigned"
	DeliveryPickedUp  DeliveryStatus = "picked_up"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliveryAssigned, DeliveryPickedUp, DeliveryInTransit, DeliveryDelivered, DeliveryFailed:
		return true
	}
	return false
}

// VerificationStatus is the back-office decision on an uploaded payment proof.
// The zero value means no decision was ever requested.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// ApprovalStatus mirrors verification and price-approval outcomes for reporting.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// PaymentMethod identifies how the customer pays.
type PaymentMethod string

const (
	MethodCash      PaymentMethod = "cash"
	MethodWallet    PaymentMethod = "wallet"
	MethodBank      PaymentMethod = "bank"
	MethodJazzCash  PaymentMethod = "jazzcash"
	MethodEasyPaisa PaymentMethod = "easypaisa"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodWallet, MethodBank, MethodJazzCash, MethodEasyPaisa:
		return true
	}
	return false
}

// RequiresProof reports whether payments with this method are settled out of band
// and are accepted only after a payment proof has been reviewed.
func (m PaymentMethod) RequiresProof() bool {
	switch m {
	case MethodBank, MethodJazzCash, MethodEasyPaisa:
		return true
	}
	return false
}

// RefundStatus of an embedded refund request.
type RefundStatus string

const RefundPending RefundStatus = "pending"

// LineItem is one purchased product line.
type LineItem struct {
	ProductID string  `json:"productId,omitempty" dynamodbav:"product_id,omitempty"`
	Name      string  `json:"name" dynamodbav:"name"`
	Price     float64 `json:"price" dynamodbav:"price"`
	Quantity  int     `json:"quantity" dynamodbav:"quantity"`
}

// Address is the delivery destination; Name doubles as the customer display name.
type Address struct {
	Name    string `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Phone   string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	Street  string `json:"street,omitempty" dynamodbav:"street,omitempty"`
	City    string `json:"city,omitempty" dynamodbav:"city,omitempty"`
	ZipCode string `json:"zipCode,omitempty" dynamodbav:"zip_code,omitempty"`
}

// PaymentResult is the receipt attached to a payment. Which fields are set depends
// on the method: gateway transactions fill Provider/Amount/ProcessedAt, manual
// transfers usually carry only TransactionID and RequiresVerification.
type PaymentResult struct {
	TransactionID        string            `json:"transactionId,omitempty" dynamodbav:"transaction_id,omitempty"`
	RequiresVerification bool              `json:"requiresVerification,omitempty" dynamodbav:"requires_verification,omitempty"`
	Provider             string            `json:"provider,omitempty" dynamodbav:"provider,omitempty"`
	Status               string            `json:"status,omitempty" dynamodbav:"status,omitempty"`
	Amount               float64           `json:"amount,omitempty" dynamodbav:"amount,omitempty"`
	Currency             string            `json:"currency,omitempty" dynamodbav:"currency,omitempty"`
	ProcessedAt          *time.Time        `json:"processedAt,omitempty" dynamodbav:"processed_at,omitempty"`
	Details              map[string]string `json:"details,omitempty" dynamodbav:"details,omitempty"`
}

// PaymentProof is customer-uploaded evidence of an out-of-band payment.
type PaymentProof struct {
	FileName    string    `json:"fileName" dynamodbav:"file_name"`
	FileSize    int64     `json:"fileSize" dynamodbav:"file_size"`
	UploadedAt  time.Time `json:"uploadedAt" dynamodbav:"uploaded_at"`
	DataURL     string    `json:"dataUrl,omitempty" dynamodbav:"data_url,omitempty"`
	ExternalRef string    `json:"externalRef,omitempty" dynamodbav:"external_ref,omitempty"`
	MimeType    string    `json:"mimeType,omitempty" dynamodbav:"mime_type,omitempty"`
	Validated   bool      `json:"validated" dynamodbav:"validated"`
	BackupRef   string    `json:"backupRef" dynamodbav:"backup_ref"`
	StoredAt    time.Time `json:"storedAt" dynamodbav:"stored_at"`
}

// Ref returns the reference a reviewer should open: the inline payload when present,
// otherwise the external reference, otherwise the backup path.
func (p PaymentProof) Ref() string {
	switch {
	case p.DataURL != "":
		return p.DataURL
	case p.ExternalRef != "":
		return p.ExternalRef
	default:
		return p.BackupRef
	}
}

// Refund is a refund request owned by one order.
type Refund struct {
	ID          string       `json:"id" dynamodbav:"id"`
	OrderID     int64        `json:"orderId" dynamodbav:"order_id"`
	Amount      float64      `json:"amount" dynamodbav:"amount"`
	Reason      string       `json:"reason" dynamodbav:"reason"`
	Status      RefundStatus `json:"status" dynamodbav:"status"`
	RequestedAt time.Time    `json:"requestedAt" dynamodbav:"requested_at"`
}

// Order is the aggregate root persisted by the Store.
type Order struct {
	ID         int64   `json:"id" dynamodbav:"order_id"` // PK
	CustomerID string  `json:"customerId,omitempty" dynamodbav:"customer_id,omitempty"`
	Address    Address `json:"deliveryAddress" dynamodbav:"delivery_address"`

	Items          []LineItem `json:"items" dynamodbav:"items"`
	DeliveryCharge float64    `json:"deliveryCharge" dynamodbav:"delivery_charge"`
	Subtotal       float64    `json:"subtotal" dynamodbav:"subtotal"`
	Total          float64    `json:"total" dynamodbav:"total"`
	TotalAmount    float64    `json:"totalAmount" dynamodbav:"total_amount"`

	PaymentMethod PaymentMethod  `json:"paymentMethod" dynamodbav:"payment_method"`
	PaymentStatus PaymentStatus  `json:"paymentStatus" dynamodbav:"payment_status"`
	PaymentResult *PaymentResult `json:"paymentResult,omitempty" dynamodbav:"payment_result,omitempty"`
	TransactionID string         `json:"transactionId,omitempty" dynamodbav:"transaction_id,omitempty"`
	PaidAt        *time.Time     `json:"paidAt,omitempty" dynamodbav:"paid_at,omitempty"`
	RetryCount    int            `json:"retryCount,omitempty" dynamodbav:"retry_count,omitempty"`

	DeliveryStatus   DeliveryStatus `json:"deliveryStatus" dynamodbav:"delivery_status"`
	DeliveryPersonID string         `json:"deliveryPersonId,omitempty" dynamodbav:"delivery_person_id,omitempty"`
	ActualDelivery   *time.Time     `json:"actualDelivery,omitempty" dynamodbav:"actual_delivery,omitempty"`

	Status Status `json:"status" dynamodbav:"status"`

	VerificationStatus      VerificationStatus `json:"verificationStatus,omitempty" dynamodbav:"verification_status,omitempty"`
	VerificationNotes       string             `json:"verificationNotes,omitempty" dynamodbav:"verification_notes,omitempty"`
	VerifiedAt              *time.Time         `json:"verifiedAt,omitempty" dynamodbav:"verified_at,omitempty"`
	VerifiedBy              string             `json:"verifiedBy,omitempty" dynamodbav:"verified_by,omitempty"`
	PaymentProof            *PaymentProof      `json:"paymentProof,omitempty" dynamodbav:"payment_proof,omitempty"`
	PaymentProofSubmittedAt *time.Time         `json:"paymentProofSubmittedAt,omitempty" dynamodbav:"payment_proof_submitted_at,omitempty"`
	PaymentVerifiedAt       *time.Time         `json:"paymentVerifiedAt,omitempty" dynamodbav:"payment_verified_at,omitempty"`
	PaymentRejectedAt       *time.Time         `json:"paymentRejectedAt,omitempty" dynamodbav:"payment_rejected_at,omitempty"`

	ApprovalStatus        ApprovalStatus `json:"approvalStatus" dynamodbav:"approval_status"`
	ApprovalRequestID     string         `json:"approvalRequestId,omitempty" dynamodbav:"approval_request_id,omitempty"`
	PriceApprovalRequired bool           `json:"priceApprovalRequired,omitempty" dynamodbav:"price_approval_required,omitempty"`

	RefundRequested bool    `json:"refundRequested,omitempty" dynamodbav:"refund_requested,omitempty"`
	Refund          *Refund `json:"refund,omitempty" dynamodbav:"refund,omitempty"`

	CreatedAt               time.Time  `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt               time.Time  `json:"updatedAt" dynamodbav:"updated_at"`
	DeliveryStatusUpdatedAt *time.Time `json:"deliveryStatusUpdatedAt,omitempty" dynamodbav:"delivery_status_updated_at,omitempty"`

	// Version increases on every write; backends use it for compare-and-swap.
	Version int64 `json:"version" dynamodbav:"version"`
}

// Amount is the revenue-relevant amount: total, falling back to totalAmount.
func (o Order) Amount() float64 {
	if o.Total != 0 {
		return o.Total
	}
	return o.TotalAmount
}

// HasProof reports whether a payment proof with a file name was submitted.
func (o Order) HasProof() bool {
	return o.PaymentProof != nil && o.PaymentProof.FileName != ""
}

// Clone returns a deep copy so callers never share nested state with the store.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]LineItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	if o.PaymentResult != nil {
		pr := *o.PaymentResult
		pr.ProcessedAt = cloneTime(pr.ProcessedAt)
		if pr.Details != nil {
			pr.Details = make(map[string]string, len(o.PaymentResult.Details))
			for k, v := range o.PaymentResult.Details {
				pr.Details[k] = v
			}
		}
		c.PaymentResult = &pr
	}
	if o.PaymentProof != nil {
		p := *o.PaymentProof
		c.PaymentProof = &p
	}
	if o.Refund != nil {
		r := *o.Refund
		c.Refund = &r
	}
	c.PaidAt = cloneTime(o.PaidAt)
	c.ActualDelivery = cloneTime(o.ActualDelivery)
	c.VerifiedAt = cloneTime(o.VerifiedAt)
	c.PaymentProofSubmittedAt = cloneTime(o.PaymentProofSubmittedAt)
	c.PaymentVerifiedAt = cloneTime(o.PaymentVerifiedAt)
	c.PaymentRejectedAt = cloneTime(o.PaymentRejectedAt)
	c.DeliveryStatusUpdatedAt = cloneTime(o.DeliveryStatusUpdatedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }
