// Package gateway defines the external payment gateway used for wallet debits
// and transaction verification, with a simulated and a Stripe-backed implementation.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// Wallet error codes.
const (
	CodeInsufficientFunds = "insufficient_funds"
	CodeInvalidAmount     = "invalid_amount"
	CodeUnknownCustomer   = "unknown_customer"
	CodeUnavailable       = "gateway_unavailable"
)

// Gateway is the payment collaborator used by the payment workflow.
type Gateway interface {
	DebitWallet(ctx context.Context, req WalletDebit) (Transaction, error)
	Verify(ctx context.Context, transactionID string, ev Evidence) (VerifyResult, error)
}

// WalletDebit asks the gateway to charge a customer's stored-value balance.
type WalletDebit struct {
	Amount     float64
	OrderID    int64
	CustomerID string
	Currency   string
}

// Evidence accompanies a verification request.
type Evidence struct {
	Amount   float64           `json:"amount,omitempty"`
	ProofRef string            `json:"proofRef,omitempty"`
	Notes    string            `json:"notes,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// Transaction is a settled gateway transaction.
type Transaction struct {
	ID          string
	Provider    string
	Status      string
	Amount      float64
	Currency    string
	ProcessedAt time.Time
	Details     map[string]string
}

// PaymentResult converts t into the receipt stored on an order.
func (t Transaction) PaymentResult() *orders.PaymentResult {
	var details map[string]string
	if len(t.Details) > 0 {
		details = make(map[string]string, len(t.Details))
		for k, v := range t.Details {
			details[k] = v
		}
	}
	return &orders.PaymentResult{
		TransactionID: t.ID,
		Provider:      t.Provider,
		Status:        t.Status,
		Amount:        t.Amount,
		Currency:      t.Currency,
		ProcessedAt:   orders.TimePtr(t.ProcessedAt),
		Details:       details,
	}
}

// VerifyResult is the gateway's verdict on a transaction.
type VerifyResult struct {
	Verified    bool
	Transaction Transaction
}

// WalletError is returned when a wallet debit is refused. Code is the gateway's
// own error code.
type WalletError struct {
	Code    string
	Message string
	Err     error
}

func (e *WalletError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wallet debit refused: %s", e.Code)
	}
	return fmt.Sprintf("wallet debit refused: %s: %s", e.Code, e.Message)
}

func (e *WalletError) Unwrap() error { return e.Err }
