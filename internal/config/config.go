// Package config loads the order service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"

	GatewaySimulated = "simulated"
	GatewayStripe    = "stripe"
)

const (
	defaultHTTPAddr         = ":8080"
	defaultCurrency         = "pkr"
	defaultGatewayTimeout   = 10 * time.Second
	defaultIdempotencyTTL   = 48 * time.Hour
	defaultMetricsNamespace = "OrderLifecycle"
	defaultSQLitePath       = "orders.db"
	defaultRevenueTZ        = "UTC"
)

// Config is the resolved service configuration.
type Config struct {
	HTTPAddr string
	RunLocal bool
	LogLevel string

	AWS AWS

	Orders      Orders
	Idempotency Idempotency
	Queues      Queues
	Metrics     Metrics
	Gateway     Gateway
	Revenue     Revenue
}

type AWS struct {
	Region   string
	Endpoint string
}

// Orders selects where orders are persisted.
type Orders struct {
	Backend    string
	Table      string
	SQLitePath string
}

// Idempotency configures the Idempotency-Key guard on order creation. An
// empty Table keeps records in memory.
type Idempotency struct {
	Table string
	TTL   time.Duration
}

// Queues holds SQS queue URLs. Empty URLs disable the queue.
type Queues struct {
	EventsURL string
	TasksURL  string
}

// Metrics configures CloudWatch counters. An empty Namespace disables them.
type Metrics struct {
	Namespace string
}

// Gateway selects the payment gateway. WalletDefaultBalance seeds every
// customer wallet of the simulated gateway.
type Gateway struct {
	Kind                 string
	StripeAPIKey         string
	Currency             string
	Timeout              time.Duration
	WalletDefaultBalance float64
}

// Revenue sets the time zone that decides which calendar month an order falls in.
type Revenue struct {
	TimeZone string
	Location *time.Location
}

// ValidationError lists configuration keys that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending keys.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// FromEnv loads configuration from the process environment.
func FromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

// Load resolves configuration through lookup, applying defaults for unset keys.
func Load(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}

	cfg := Config{
		HTTPAddr: stringWithDefault(lookup, "HTTP_ADDR", defaultHTTPAddr),
		RunLocal: boolWithDefault(lookup, "RUN_LOCAL", false),
		LogLevel: strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", "info")),
		AWS: AWS{
			Region:   stringWithDefault(lookup, "AWS_REGION", ""),
			Endpoint: stringWithDefault(lookup, "AWS_ENDPOINT_OVERRIDE", ""),
		},
		Orders: Orders{
			Backend:    strings.ToLower(stringWithDefault(lookup, "ORDER_BACKEND", BackendMemory)),
			Table:      stringWithDefault(lookup, "ORDERS_TABLE", ""),
			SQLitePath: stringWithDefault(lookup, "SQLITE_PATH", defaultSQLitePath),
		},
		Idempotency: Idempotency{
			Table: stringWithDefault(lookup, "IDEMPOTENCY_TABLE", ""),
			TTL:   durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Queues: Queues{
			EventsURL: stringWithDefault(lookup, "EVENTS_QUEUE_URL", ""),
			TasksURL:  stringWithDefault(lookup, "TASKS_QUEUE_URL", ""),
		},
		Metrics: Metrics{
			Namespace: stringWithDefault(lookup, "METRICS_NAMESPACE", ""),
		},
		Gateway: Gateway{
			Kind:         strings.ToLower(stringWithDefault(lookup, "GATEWAY", GatewaySimulated)),
			StripeAPIKey: stringWithDefault(lookup, "STRIPE_API_KEY", ""),
			Currency:     strings.ToLower(stringWithDefault(lookup, "CURRENCY", defaultCurrency)),
			Timeout:      durationWithDefault(lookup, "GATEWAY_TIMEOUT", defaultGatewayTimeout),

			WalletDefaultBalance: floatWithDefault(lookup, "WALLET_DEFAULT_BALANCE", 0),
		},
		Revenue: Revenue{
			TimeZone: stringWithDefault(lookup, "REVENUE_TZ", defaultRevenueTZ),
		},
	}
	if loc, err := time.LoadLocation(cfg.Revenue.TimeZone); err == nil {
		cfg.Revenue.Location = loc
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UsesAWS reports whether any configured component needs AWS clients.
func (c Config) UsesAWS() bool {
	return c.Orders.Backend == BackendDynamoDB ||
		c.Idempotency.Table != "" ||
		c.Queues.EventsURL != "" ||
		c.Queues.TasksURL != "" ||
		c.Metrics.Namespace != ""
}

func validate(cfg Config) error {
	var invalid []string

	switch cfg.Orders.Backend {
	case BackendMemory:
	case BackendDynamoDB:
		if cfg.Orders.Table == "" {
			invalid = append(invalid, "ORDERS_TABLE")
		}
	case BackendSQLite:
		if cfg.Orders.SQLitePath == "" {
			invalid = append(invalid, "SQLITE_PATH")
		}
	default:
		invalid = append(invalid, "ORDER_BACKEND")
	}

	switch cfg.Gateway.Kind {
	case GatewaySimulated:
	case GatewayStripe:
		if cfg.Gateway.StripeAPIKey == "" {
			invalid = append(invalid, "STRIPE_API_KEY")
		}
	default:
		invalid = append(invalid, "GATEWAY")
	}
	if cfg.Gateway.Timeout <= 0 {
		invalid = append(invalid, "GATEWAY_TIMEOUT")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "IDEMPOTENCY_TTL")
	}
	if cfg.Gateway.WalletDefaultBalance < 0 {
		invalid = append(invalid, "WALLET_DEFAULT_BALANCE")
	}
	if cfg.Revenue.Location == nil {
		invalid = append(invalid, "REVENUE_TZ")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
