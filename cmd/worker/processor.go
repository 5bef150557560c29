package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/tasks"
)

// Confirmer runs the post-verification confirm step.
type Confirmer interface {
	Confirm(ctx context.Context, id int64) (orders.Order, error)
}

// Processor handles batches of follow-up tasks from SQS.
type Processor struct {
	confirmer Confirmer
	logger    *zap.Logger
}

// NewProcessor returns a processor that confirms verified orders.
func NewProcessor(confirmer Confirmer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{confirmer: confirmer, logger: logger}
}

// Handle processes every record in the batch and reports the ones that should
// be redelivered. Messages that can never succeed are logged and dropped.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.process(ctx, rec); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) process(ctx context.Context, rec events.SQSMessage) error {
	logger := p.logger.With(zap.String("message_id", rec.MessageId))

	task, err := tasks.Decode(rec.Body)
	if err != nil {
		logger.Error("undecodable task", zap.Error(err), zap.String("body", rec.Body))
		return err
	}
	logger = logger.With(
		zap.Int64("order_id", task.OrderID),
		zap.String("correlation_id", task.CorrelationID),
	)

	o, err := p.confirmer.Confirm(ctx, task.OrderID)
	if err == nil {
		logger.Info("verification confirmed", zap.String("status", string(o.Status)))
		return nil
	}
	switch orders.KindOf(err) {
	case orders.KindNotFound, orders.KindValidation:
		// retrying cannot change the outcome
		logger.Warn("confirm task dropped", zap.Error(err))
		return nil
	default:
		logger.Error("confirm task failed", zap.Error(err))
		return err
	}
}
