// Package main API Gateway 服务入口
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"namesmith-ai-api/internal/application/monitoring"
	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/infrastructure/llm"
	"namesmith-ai-api/internal/wire"
	"namesmith-ai-api/pkg/logger"
	"namesmith-ai-api/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	defaultRefreshCron = "@every 1m"
	shutdownTimeout    = 30 * time.Second
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

	log := logger.FromContext(ctx)
	log.Info("starting api-gateway",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
		"dispatch_mode", cfg.Generation.DispatchMode,
		"async_dispatch", cfg.Generation.AsyncDispatch,
	)

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	llm.InitCallbacks()

	mgr := config.NewManager(config.DefaultDir, cfg)
	app, cleanupApp, err := wire.InitializeApp(ctx, mgr)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize app", err)
	}
	defer cleanupApp()

	stopBackground := startBackground(ctx, app, mgr)
	defer stopBackground()

	srv := newHTTPServer(cfg, app.Router.Engine())
	go func() {
		log.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "http server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 先停止接收请求，再等待进程内会话收尾
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	if err := app.Core.Service.Drain(shutdownCtx); err != nil {
		log.Warn("sessions still running at shutdown", "error", err.Error())
	}

	log.Info("server exited")
}

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}
}

// startBackground 启动配置监听、取消广播订阅与统计预热，返回停止函数
func startBackground(ctx context.Context, app *wire.App, mgr *config.Manager) func() {
	log := logger.FromContext(ctx)

	mgr.OnChange(func(next *config.Config) {
		logger.Init(next.Observability.Logging.Level, next.Observability.Logging.Format)
		log.Info("config reloaded", "models", len(next.Models))
	})
	if err := mgr.Watch(ctx); err != nil {
		log.Warn("config watch disabled", "error", err.Error())
	}

	var stops []func()

	// 多实例部署时，取消请求可能落在未执行该会话的实例上
	sub, err := app.Core.CancelBus.Subscribe(ctx, func(ctx context.Context, sessionID string) {
		app.Core.Service.CancelLocal(ctx, sessionID)
	})
	if err != nil {
		log.Warn("cancel subscription failed", "error", err.Error())
	} else {
		stops = append(stops, func() { _ = sub.Close() })
	}

	expr := mgr.Current().Monitoring.RefreshCron
	if expr == "" {
		expr = defaultRefreshCron
	}
	scheduler, err := monitoring.NewScheduler(ctx, app.Core.Reporter, expr)
	if err != nil {
		log.Warn("stats warm-up disabled", "error", err.Error())
	} else {
		scheduler.Start()
		stops = append(stops, scheduler.Stop)
	}

	return func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
}
