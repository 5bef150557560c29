package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/app"
	"github.com/imrishuroy/go-order-lifecycle/internal/config"
	"github.com/imrishuroy/go-order-lifecycle/internal/observability"
)

const defaultLocalBody = `{"kind":"verification.confirm","orderId":1,"correlationId":"local-1"}`

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire services", zap.Error(err))
	}
	p := NewProcessor(a.Verification, logger.Named("worker"))

	// RUN_LOCAL simulates a single SQS delivery, body from LOCAL_SQS_BODY.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = defaultLocalBody
		}
		resp, err := p.Handle(ctx, events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil {
			logger.Fatal("local handler error", zap.Error(err))
		}
		logger.Info("local batch processed", zap.Int("failures", len(resp.BatchItemFailures)))
		return
	}

	lambda.Start(p.Handle)
}
