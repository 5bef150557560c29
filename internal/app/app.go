// Package app wires configuration into the order lifecycle services shared by
// the API and the worker.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/config"
	"github.com/imrishuroy/go-order-lifecycle/internal/delivery"
	"github.com/imrishuroy/go-order-lifecycle/internal/events"
	"github.com/imrishuroy/go-order-lifecycle/internal/gateway"
	"github.com/imrishuroy/go-order-lifecycle/internal/handlers"
	"github.com/imrishuroy/go-order-lifecycle/internal/idempotency"
	"github.com/imrishuroy/go-order-lifecycle/internal/metrics"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/payment"
	"github.com/imrishuroy/go-order-lifecycle/internal/refund"
	"github.com/imrishuroy/go-order-lifecycle/internal/revenue"
	"github.com/imrishuroy/go-order-lifecycle/internal/tasks"
	"github.com/imrishuroy/go-order-lifecycle/internal/verification"
)

// App holds the constructed services.
type App struct {
	Store        *orders.Store
	Payments     *payment.Workflow
	Verification *verification.Workflow
	Refunds      *refund.Workflow
	Delivery     *delivery.Service
	Revenue      *revenue.Reporter
	Idempotency  idempotency.Keeper
	Logger       *zap.Logger
}

// Handlers returns the HTTP dependencies for handlers.Register.
func (a *App) Handlers() handlers.Deps {
	return handlers.Deps{
		Store:        a.Store,
		Payments:     a.Payments,
		Verification: a.Verification,
		Refunds:      a.Refunds,
		Delivery:     a.Delivery,
		Revenue:      a.Revenue,
		Idempotency:  a.Idempotency,
		Logger:       a.Logger,
	}
}

// Build constructs every service from cfg. AWS clients are created only when a
// configured component needs them.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var clients *aws.Clients
	if cfg.UsesAWS() {
		var err error
		clients, err = aws.NewClients(ctx, aws.Settings{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint})
		if err != nil {
			return nil, err
		}
	}

	backend, err := openBackend(cfg.Orders, clients)
	if err != nil {
		return nil, err
	}
	store := orders.NewStore(backend, orders.WithLogger(logger))

	gw, err := newGateway(cfg.Gateway, logger)
	if err != nil {
		return nil, err
	}

	var pub events.Publisher = events.Nop{}
	if cfg.Queues.EventsURL != "" {
		pub = events.NewSQSPublisher(clients.SQS, cfg.Queues.EventsURL)
	}
	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Namespace != "" {
		rec = metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, logger)
	}
	verifyOpts := []verification.Option{
		verification.WithEvents(pub),
		verification.WithMetrics(rec),
		verification.WithLogger(logger),
	}
	if cfg.Queues.TasksURL != "" {
		verifyOpts = append(verifyOpts, verification.WithQueue(tasks.NewSQSQueue(clients.SQS, cfg.Queues.TasksURL)))
	} else {
		logger.Warn("no tasks queue configured; failed confirm steps will be reported, not retried")
	}

	var keeper idempotency.Keeper
	if cfg.Idempotency.Table != "" {
		keeper = idempotency.NewDynamoStore(clients.DynamoDB, cfg.Idempotency.Table, cfg.Idempotency.TTL)
	} else {
		keeper = idempotency.NewMemory(cfg.Idempotency.TTL)
	}

	return &App{
		Store: store,
		Payments: payment.New(store, gw,
			payment.WithEvents(pub),
			payment.WithMetrics(rec),
			payment.WithGatewayTimeout(cfg.Gateway.Timeout),
			payment.WithLogger(logger),
		),
		Verification: verification.New(store, verifyOpts...),
		Refunds:      refund.New(store, refund.WithEvents(pub), refund.WithMetrics(rec), refund.WithLogger(logger)),
		Delivery:     delivery.New(store, delivery.WithEvents(pub), delivery.WithLogger(logger)),
		Revenue:      revenue.New(store, revenue.WithLocation(cfg.Revenue.Location)),
		Idempotency:  keeper,
		Logger:       logger,
	}, nil
}

func openBackend(cfg config.Orders, clients *aws.Clients) (orders.Backend, error) {
	switch cfg.Backend {
	case config.BackendDynamoDB:
		return orders.NewDynamoBackend(clients.DynamoDB, cfg.Table), nil
	case config.BackendSQLite:
		b, err := orders.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return b, nil
	case config.BackendMemory, "":
		return orders.NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown order backend %q", cfg.Backend)
}

func newGateway(cfg config.Gateway, logger *zap.Logger) (gateway.Gateway, error) {
	switch cfg.Kind {
	case config.GatewayStripe:
		return gateway.NewStripe(gateway.StripeConfig{APIKey: cfg.StripeAPIKey, Currency: cfg.Currency})
	case config.GatewaySimulated, "":
		if cfg.WalletDefaultBalance == 0 {
			logger.Warn("simulated gateway wallets are empty; wallet orders will fail until WALLET_DEFAULT_BALANCE is set")
		}
		return gateway.NewSimulated(
			gateway.WithCurrency(cfg.Currency),
			gateway.WithDefaultBalance(cfg.WalletDefaultBalance),
		), nil
	}
	return nil, fmt.Errorf("unknown gateway %q", cfg.Kind)
}
