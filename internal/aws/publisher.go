package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Message is one SQS message. GroupID and DedupID only apply to FIFO queues
// and are dropped for standard queues.
type Message struct {
	Body       string
	Attributes map[string]string
	GroupID    string
	DedupID    string
}

// Publisher sends messages to a single queue.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	fifo     bool
}

// NewPublisher returns a Publisher bound to a queue URL. Queues whose URL ends
// in ".fifo" get group and deduplication ids.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Send delivers m. Empty attribute values are skipped.
func (p *Publisher) Send(ctx context.Context, m Message) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    String(p.QueueURL),
		MessageBody: String(m.Body),
	}
	for k, v := range m.Attributes {
		if v == "" {
			continue
		}
		if input.MessageAttributes == nil {
			input.MessageAttributes = map[string]sqstypes.MessageAttributeValue{}
		}
		input.MessageAttributes[k] = sqstypes.MessageAttributeValue{
			DataType:    String("String"),
			StringValue: String(v),
		}
	}
	if p.fifo {
		if m.GroupID == "" {
			return fmt.Errorf("send to %s: fifo message without group id", p.QueueURL)
		}
		input.MessageGroupId = String(m.GroupID)
		if m.DedupID != "" {
			input.MessageDeduplicationId = String(m.DedupID)
		}
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// String returns a pointer to s.
func String(s string) *string { return &s }
