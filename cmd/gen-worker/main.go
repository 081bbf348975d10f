// Package main 生成会话执行器入口（gen-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/infrastructure/llm"
	"namesmith-ai-api/internal/infrastructure/messaging"
	"namesmith-ai-api/internal/wire"
	"namesmith-ai-api/pkg/logger"
	"namesmith-ai-api/pkg/tracer"

	"github.com/joho/godotenv"
)

const (
	monitorInterval = 30 * time.Second
	dlqThreshold    = 100
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "gen-worker",
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	llm.InitCallbacks()

	mgr := config.NewManager(config.DefaultDir, cfg)
	name := hostnameConsumerName()

	worker, cleanup, err := wire.InitializeWorker(ctx, mgr, wire.ConsumerName(name))
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	if err := mgr.Watch(ctx); err != nil {
		logger.Warn(ctx, "config watch disabled", "error", err.Error())
	}

	svc := worker.Core.Service

	cancelSub, err := worker.Core.CancelBus.Subscribe(ctx, func(ctx context.Context, sessionID string) {
		if svc.CancelLocal(ctx, sessionID) {
			logger.Info(ctx, "session cancelled by broadcast", "session_id", sessionID)
		}
	})
	if err != nil {
		logger.Fatal(ctx, "failed to subscribe cancel broadcast", err)
	}
	defer func() { _ = cancelSub.Close() }()

	consumer := worker.Consumer
	consumer.RegisterHandler(messaging.TypeSessionDispatch, func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.DispatchMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		ctx = logger.WithContext(ctx, logger.SessionIDKey, payload.SessionID)
		if payload.RequestID != "" {
			ctx = logger.WithContext(ctx, logger.RequestIDKey, payload.RequestID)
		}
		return svc.RunDispatched(ctx, payload.SessionID)
	})

	alerts := wire.NewAlertConsumer(worker.Core.Redis, cfg, wire.ConsumerName(name))
	alerts.RegisterHandler(messaging.TypeBudgetAlert, func(ctx context.Context, msg *messaging.Message) error {
		var alert messaging.BudgetAlertMessage
		if err := msg.UnmarshalPayload(&alert); err != nil {
			return err
		}
		logger.Warn(ctx, "budget threshold crossed",
			"window", alert.Window,
			"period", alert.Period,
			"spent_cents", alert.SpentCents,
			"limit_cents", alert.LimitCents,
			"ratio", alert.Ratio,
		)
		return nil
	})

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	if err := alerts.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start alert consumer", err)
	}
	go consumer.Monitor(ctx, monitorInterval, dlqThreshold)

	log := logger.FromContext(ctx)
	log.Info("gen-worker started", "consumer", name)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("gen-worker shutting down")
	consumer.Stop()
	alerts.Stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.Drain(drainCtx); err != nil {
		log.Warn("sessions still running at shutdown", "error", err.Error())
	}
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
