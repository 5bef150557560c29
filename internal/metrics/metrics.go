// Package metrics records workflow outcome counters.
package metrics

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

// Metric names.
const (
	OrderCreated        = "OrderCreated"
	WalletDebitFailed   = "WalletDebitFailed"
	PaymentVerified     = "PaymentVerified"
	PaymentVerifyFailed = "PaymentVerifyFailed"
	VerificationDecided = "VerificationDecided"
	FollowUpEnqueued    = "ConfirmFollowUpEnqueued"
	FollowUpFailed      = "ConfirmFollowUpFailed"
	RefundRequested     = "RefundRequested"
)

// Recorder counts occurrences of named events with optional dimensions.
type Recorder interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

// CloudWatch puts one Count datum per call. Failures are logged and dropped.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *zap.Logger
	now       func() time.Time
}

// NewCloudWatch returns a recorder writing into namespace.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *CloudWatch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudWatch{client: client, namespace: namespace, logger: logger, now: time.Now}
}

func (c *CloudWatch) Count(ctx context.Context, name string, dims map[string]string) {
	ts := c.now().UTC()
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      float64Ptr(1),
		Timestamp:  &ts,
	}
	for _, k := range sortedKeys(dims) {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  aws.String(k),
			Value: aws.String(dims[k]),
		})
	}
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		c.logger.Warn("put metric failed", zap.String("metric", name), zap.Error(err))
	}
}

// Nop discards metrics.
type Nop struct{}

func (Nop) Count(context.Context, string, map[string]string) {}

// Memory tallies counts in process.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *Memory) Count(_ context.Context, name string, dims map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[name]++
	for _, k := range sortedKeys(dims) {
		m.counts[name+"|"+k+"="+dims[k]]++
	}
}

// Get returns the tally for name, or for name narrowed to one dimension
// given as "key=value".
func (m *Memory) Get(name string, dim ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := name
	if len(dim) > 0 {
		key = name + "|" + strings.Join(dim, "|")
	}
	return m.counts[key]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func float64Ptr(v float64) *float64 { return &v }
