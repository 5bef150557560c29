package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/app"
	"github.com/imrishuroy/go-order-lifecycle/internal/config"
	"github.com/imrishuroy/go-order-lifecycle/internal/handlers"
	"github.com/imrishuroy/go-order-lifecycle/internal/observability"
)

func setupRouter(deps handlers.Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(deps.Logger))

	handlers.Register(r, deps)

	return r
}

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

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire services", zap.Error(err))
	}

	r := setupRouter(a.Handlers())

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.RunLocal {
		logger.Info("running local server", zap.String("addr", cfg.HTTPAddr))
		if err := r.Run(cfg.HTTPAddr); err != nil {
			logger.Fatal("local server stopped", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
