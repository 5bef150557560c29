package validation

import "time"

// LineItem is one product line of a new order.
type LineItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"gte=0"`
}

type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Street  string `json:"street"`
	City    string `json:"city"`
	ZipCode string `json:"zipCode"`
}

// PaymentResult is the receipt a client attaches to a payment.
type PaymentResult struct {
	TransactionID        string            `json:"transactionId"`
	RequiresVerification bool              `json:"requiresVerification"`
	Provider             string            `json:"provider"`
	Status               string            `json:"status"`
	Amount               float64           `json:"amount" validate:"gte=0"`
	Currency             string            `json:"currency"`
	ProcessedAt          *time.Time        `json:"processedAt"`
	Details              map[string]string `json:"details"`
}

// PaymentProof is an uploaded transfer receipt. DataURL carries the image inline;
// ExternalRef points at a copy stored elsewhere.
type PaymentProof struct {
	FileName    string     `json:"fileName" validate:"omitempty,max=255"`
	FileSize    int64      `json:"fileSize" validate:"gte=0"`
	DataURL     string     `json:"dataUrl"`
	ExternalRef string     `json:"externalRef" validate:"omitempty,max=2048"`
	MimeType    string     `json:"mimeType"`
	UploadedAt  *time.Time `json:"uploadedAt"`
}

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	CustomerID            string         `json:"customerId"`
	DeliveryAddress       Address        `json:"deliveryAddress"`
	Items                 []LineItem     `json:"items" validate:"dive"`
	DeliveryCharge        float64        `json:"deliveryCharge" validate:"gte=0"`
	Total                 float64        `json:"total" validate:"gte=0"`
	TotalAmount           float64        `json:"totalAmount" validate:"gte=0"`
	PaymentMethod         string         `json:"paymentMethod" validate:"required,payment_method"`
	PaymentResult         *PaymentResult `json:"paymentResult"`
	TransactionID         string         `json:"transactionId"`
	PaymentProof          *PaymentProof  `json:"paymentProof"`
	PriceApprovalRequired bool           `json:"priceApprovalRequired"`
	ApprovalRequestID     string         `json:"approvalRequestId"`
}

// PaymentStatusRequest is the payload for PUT /orders/:id/payment-status.
type PaymentStatusRequest struct {
	PaymentStatus string         `json:"paymentStatus" validate:"required,payment_status"`
	PaymentResult *PaymentResult `json:"paymentResult"`
}

// VerifyPaymentRequest is the evidence posted to /orders/:id/payment/verify.
type VerifyPaymentRequest struct {
	Amount   float64           `json:"amount" validate:"gte=0"`
	ProofRef string            `json:"proofRef"`
	Notes    string            `json:"notes" validate:"max=1000"`
	Details  map[string]string `json:"details"`
}

// RetryPaymentRequest is the payload for POST /orders/:id/payment/retry.
type RetryPaymentRequest struct {
	PaymentMethod string         `json:"paymentMethod" validate:"omitempty,payment_method"`
	PaymentResult *PaymentResult `json:"paymentResult"`
	TransactionID string         `json:"transactionId"`
}

type RefundRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Reason string  `json:"reason" validate:"required,max=500"`
}

type AssignCourierRequest struct {
	DeliveryPersonID string `json:"deliveryPersonId" validate:"required"`
}

type DeliveryStatusRequest struct {
	DeliveryStatus string     `json:"deliveryStatus" validate:"required,delivery_status"`
	ActualDelivery *time.Time `json:"actualDelivery"`
}

// VerificationDecisionRequest is the reviewer's decision on a payment proof.
type VerificationDecisionRequest struct {
	Status     string `json:"status" validate:"required,oneof=verified rejected"`
	Notes      string `json:"notes" validate:"max=1000"`
	VerifiedBy string `json:"verifiedBy"`
}
