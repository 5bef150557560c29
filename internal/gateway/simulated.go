package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const simulatedProvider = "simulated"

// Simulated is an in-process gateway keeping wallet balances in memory. It backs
// local runs and tests.
type Simulated struct {
	mu             sync.Mutex
	balances       map[string]decimal.Decimal
	defaultBalance decimal.Decimal
	transactions   map[string]Transaction
	currency       string
	now            func() time.Time
}

// SimulatedOption configures a Simulated gateway.
type SimulatedOption func(*Simulated)

// WithBalance seeds the wallet balance of one customer.
func WithBalance(customerID string, amount float64) SimulatedOption {
	return func(s *Simulated) { s.balances[customerID] = decimal.NewFromFloat(amount) }
}

// WithDefaultBalance sets the balance assumed for customers that were never seeded.
func WithDefaultBalance(amount float64) SimulatedOption {
	return func(s *Simulated) { s.defaultBalance = decimal.NewFromFloat(amount) }
}

// WithCurrency sets the currency reported on transactions.
func WithCurrency(currency string) SimulatedOption {
	return func(s *Simulated) {
		if c := strings.TrimSpace(currency); c != "" {
			s.currency = strings.ToUpper(c)
		}
	}
}

// WithSimulatedClock overrides the transaction timestamp source.
func WithSimulatedClock(now func() time.Time) SimulatedOption {
	return func(s *Simulated) { s.now = now }
}

// NewSimulated returns a Simulated gateway.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		balances:     map[string]decimal.Decimal{},
		transactions: map[string]Transaction{},
		currency:     "PKR",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DebitWallet charges the customer's balance and records the transaction.
func (s *Simulated) DebitWallet(ctx context.Context, req WalletDebit) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return Transaction{}, &WalletError{Code: CodeUnavailable, Message: "request cancelled", Err: err}
	}
	amount := decimal.NewFromFloat(req.Amount)
	if !amount.IsPositive() {
		return Transaction{}, &WalletError{Code: CodeInvalidAmount, Message: "amount must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[req.CustomerID]
	if !ok {
		balance = s.defaultBalance
	}
	if balance.LessThan(amount) {
		return Transaction{}, &WalletError{
			Code:    CodeInsufficientFunds,
			Message: "wallet balance " + balance.StringFixed(2) + " is below " + amount.StringFixed(2),
		}
	}
	s.balances[req.CustomerID] = balance.Sub(amount)

	currency := s.currency
	if req.Currency != "" {
		currency = strings.ToUpper(req.Currency)
	}
	tx := Transaction{
		ID:          "WAL-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
		Provider:    simulatedProvider,
		Status:      "completed",
		Amount:      amount.InexactFloat64(),
		Currency:    currency,
		ProcessedAt: s.now().UTC(),
		Details:     map[string]string{"method": "wallet"},
	}
	s.transactions[tx.ID] = tx
	return tx, nil
}

// Verify confirms a known transaction. Unknown transaction ids are treated as
// out-of-band transfers and verified only when proof evidence is supplied.
func (s *Simulated) Verify(ctx context.Context, transactionID string, ev Evidence) (VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return VerifyResult{}, err
	}
	if strings.TrimSpace(transactionID) == "" {
		return VerifyResult{}, errors.New("gateway: transaction id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx, ok := s.transactions[transactionID]; ok {
		return VerifyResult{Verified: true, Transaction: tx}, nil
	}
	if ev.ProofRef == "" {
		return VerifyResult{Verified: false, Transaction: Transaction{ID: transactionID, Provider: simulatedProvider, Status: "unverified"}}, nil
	}
	tx := Transaction{
		ID:          transactionID,
		Provider:    simulatedProvider,
		Status:      "verified",
		Amount:      ev.Amount,
		Currency:    s.currency,
		ProcessedAt: s.now().UTC(),
		Details:     map[string]string{"proofRef": ev.ProofRef},
	}
	s.transactions[tx.ID] = tx
	return VerifyResult{Verified: true, Transaction: tx}, nil
}

// Balance returns the current wallet balance of a customer.
func (s *Simulated) Balance(customerID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[customerID]; ok {
		return b.InexactFloat64()
	}
	return s.defaultBalance.InexactFloat64()
}
