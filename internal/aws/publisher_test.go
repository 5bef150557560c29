package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{}, nil
}

func TestPublisherSend_SkipsEmptyAttributes(t *testing.T) {
	f := &fakeSQS{}
	p := NewPublisher(f, "https://sqs.local/queue")

	err := p.Send(context.Background(), Message{
		Body:       `{"orderId":1}`,
		Attributes: map[string]string{"order_id": "1", "correlation_id": ""},
		GroupID:    "1",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(f.inputs) != 1 {
		t.Fatalf("expected one message, got %d", len(f.inputs))
	}
	in := f.inputs[0]
	if *in.QueueUrl != "https://sqs.local/queue" {
		t.Fatalf("queue url mismatch: %s", *in.QueueUrl)
	}
	if _, ok := in.MessageAttributes["correlation_id"]; ok {
		t.Fatalf("empty attribute should be skipped")
	}
	if got := *in.MessageAttributes["order_id"].StringValue; got != "1" {
		t.Fatalf("order_id attribute = %q", got)
	}
	if in.MessageGroupId != nil {
		t.Fatalf("standard queue should not get a group id")
	}
}

func TestPublisherSend_FIFOQueue(t *testing.T) {
	f := &fakeSQS{}
	p := NewPublisher(f, "https://sqs.local/events.fifo")

	if err := p.Send(context.Background(), Message{Body: "{}", GroupID: "42", DedupID: "ev-1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	in := f.inputs[0]
	if in.MessageGroupId == nil || *in.MessageGroupId != "42" {
		t.Fatalf("group id = %v", in.MessageGroupId)
	}
	if in.MessageDeduplicationId == nil || *in.MessageDeduplicationId != "ev-1" {
		t.Fatalf("dedup id = %v", in.MessageDeduplicationId)
	}

	if err := p.Send(context.Background(), Message{Body: "{}"}); err == nil {
		t.Fatalf("expected error for fifo message without group id")
	}
	if len(f.inputs) != 1 {
		t.Fatalf("rejected message must not be sent")
	}
}

func TestPublisherSend_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPublisher(&fakeSQS{err: boom}, "q")
	if err := p.Send(context.Background(), Message{Body: "{}"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
