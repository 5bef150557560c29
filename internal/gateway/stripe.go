package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const stripeProvider = "stripe"

type stripeBalanceAPI interface {
	New(params *stripe.CustomerBalanceTransactionParams) (*stripe.CustomerBalanceTransaction, error)
}

type stripeCustomerAPI interface {
	Get(id string, params *stripe.CustomerParams) (*stripe.Customer, error)
}

type stripeIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeClients struct {
	balances  stripeBalanceAPI
	customers stripeCustomerAPI
	intents   stripeIntentAPI
}

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	APIKey   string
	Currency string
	Backends *stripe.Backends
	Clock    func() time.Time
	clients  *stripeClients
}

// Stripe debits wallets through Stripe customer balances and verifies
// transactions by looking up PaymentIntents.
type Stripe struct {
	api      stripeClients
	currency string
	clock    func() time.Time
}

// NewStripe constructs a Stripe gateway.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.clients != nil {
		clients = *cfg.clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			balances:  sc.CustomerBalanceTransactions,
			customers: sc.Customers,
			intents:   sc.PaymentIntents,
		}
	}
	if clients.balances == nil || clients.customers == nil || clients.intents == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "pkr"
	}
	return &Stripe{
		api:      clients,
		currency: currency,
		clock:    func() time.Time { return clock().UTC() },
	}, nil
}

// DebitWallet applies a positive balance transaction against the customer's
// credit balance. Stripe keeps credit as a negative balance.
func (s *Stripe) DebitWallet(ctx context.Context, req WalletDebit) (Transaction, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return Transaction{}, &WalletError{Code: CodeUnknownCustomer, Message: "customer id is required"}
	}
	minor := toMinorUnits(req.Amount)
	if minor <= 0 {
		return Transaction{}, &WalletError{Code: CodeInvalidAmount, Message: "amount must be positive"}
	}
	currency := s.currency
	if req.Currency != "" {
		currency = strings.ToLower(req.Currency)
	}

	custParams := &stripe.CustomerParams{}
	custParams.Context = ctx
	customer, err := s.api.customers.Get(req.CustomerID, custParams)
	if err != nil {
		return Transaction{}, walletErrorFrom(err)
	}
	if -customer.Balance < minor {
		return Transaction{}, &WalletError{
			Code:    CodeInsufficientFunds,
			Message: fmt.Sprintf("available credit %d is below %d", -customer.Balance, minor),
		}
	}

	params := &stripe.CustomerBalanceTransactionParams{
		Customer:    stripe.String(req.CustomerID),
		Amount:      stripe.Int64(minor),
		Currency:    stripe.String(currency),
		Description: stripe.String(fmt.Sprintf("Order %d", req.OrderID)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(fmt.Sprintf("order-%d-wallet-debit", req.OrderID))
	params.AddMetadata("order_id", strconv.FormatInt(req.OrderID, 10))

	bt, err := s.api.balances.New(params)
	if err != nil {
		return Transaction{}, walletErrorFrom(err)
	}
	return Transaction{
		ID:          bt.ID,
		Provider:    stripeProvider,
		Status:      "completed",
		Amount:      fromMinorUnits(bt.Amount),
		Currency:    strings.ToUpper(string(bt.Currency)),
		ProcessedAt: s.processedAt(bt.Created),
		Details: map[string]string{
			"method":        "wallet",
			"endingBalance": strconv.FormatInt(bt.EndingBalance, 10),
		},
	}, nil
}

// Verify looks up the PaymentIntent named by transactionID and reports it as
// verified once it has succeeded.
func (s *Stripe) Verify(ctx context.Context, transactionID string, ev Evidence) (VerifyResult, error) {
	if strings.TrimSpace(transactionID) == "" {
		return VerifyResult{}, errors.New("stripe: transaction id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := s.api.intents.Get(transactionID, params)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("stripe: get payment intent: %w", err)
	}

	tx := Transaction{
		ID:          intent.ID,
		Provider:    stripeProvider,
		Status:      string(intent.Status),
		Amount:      fromMinorUnits(intent.AmountReceived),
		Currency:    strings.ToUpper(string(intent.Currency)),
		ProcessedAt: s.processedAt(intent.Created),
	}
	if ev.ProofRef != "" {
		tx.Details = map[string]string{"proofRef": ev.ProofRef}
	}
	verified := intent.Status == stripe.PaymentIntentStatusSucceeded
	if verified && ev.Amount > 0 && toMinorUnits(ev.Amount) != intent.AmountReceived {
		verified = false
	}
	return VerifyResult{Verified: verified, Transaction: tx}, nil
}

func (s *Stripe) processedAt(created int64) time.Time {
	if created > 0 {
		return time.Unix(created, 0).UTC()
	}
	return s.clock()
}

func walletErrorFrom(err error) *WalletError {
	var se *stripe.Error
	if errors.As(err, &se) {
		code := string(se.Code)
		if code == "" {
			code = string(se.Type)
		}
		return &WalletError{Code: code, Message: se.Msg, Err: err}
	}
	return &WalletError{Code: CodeUnavailable, Message: err.Error(), Err: err}
}

func toMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

func fromMinorUnits(minor int64) float64 {
	return decimal.New(minor, -2).InexactFloat64()
}
