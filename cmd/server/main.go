package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulsewave/internal/advisor"
	"pulsewave/internal/bot"
	"pulsewave/internal/cache"
	"pulsewave/internal/config"
	"pulsewave/internal/db"
	"pulsewave/internal/handler"
	"pulsewave/internal/job"
	"pulsewave/internal/provider"
	"pulsewave/internal/repository"
	"pulsewave/internal/service"
	"pulsewave/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "pulsewave/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newCandleRepoFunc      = repository.NewCandleRepository
	newBinanceProviderFunc = func(tracer trace.Tracer) service.MarketProvider {
		return provider.NewBinanceProvider(tracer)
	}
	newMarketServiceFunc   = service.NewMarketService
	newAnalysisServiceFunc = service.NewAnalysisService
	newMarketPollerFunc    = job.NewMarketPoller
	startPollerFunc        = func(p *job.MarketPoller, ctx context.Context) { go p.Start(ctx) }
	newSignalMonitorFunc   = job.NewSignalMonitor
	startMonitorFunc       = func(m *job.SignalMonitor, ctx context.Context) { go m.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Pulsewave API
// @version         1.0
// @description     OHLCV signal engine: S/R levels, regime classification, confluence signals, and backtesting.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Create repository and run migrations
	candleRepo := newCandleRepoFunc(db.Pool, tracer)
	if db.Pool != nil {
		if err := candleRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	// Create provider and services
	binance := newBinanceProviderFunc(tracer)
	marketService := newMarketServiceFunc(tracer, binance, candleRepo, cache.Client)
	analysisService := newAnalysisServiceFunc(tracer, marketService, marketService, cfg.CandleHistoryBars)

	// Start market poller (background goroutines, stopped by ctx cancel)
	poller := newMarketPollerFunc(tracer, marketService, cfg.BinancePollSecs)
	startPollerFunc(poller, ctx)

	// Advisor (optional)
	var briefer bot.Briefer
	if cfg.OpenAIAPIKey != "" {
		llmClient := advisor.NewOpenAIClient(cfg.OpenAIAPIKey)
		briefer = advisor.NewAdvisorService(tracer, llmClient, marketService, analysisService, cfg.OpenAIModel)
		log.Println("Briefing advisor enabled")
	}

	// Start Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	tgBot := startTelegramBotFunc(marketService, analysisService, briefer)

	// Start signal monitor
	if cfg.MonitorEnabled {
		var notifier job.Notifier
		if tgBot != nil {
			notifier = tgBot
		}
		monitor := newSignalMonitorFunc(tracer, analysisService, notifier, cfg.MonitorTimeframes, cfg.MonitorPollSecs)
		startMonitorFunc(monitor, ctx)
	}

	// Create handlers and routes
	h := newHandlerFunc(tracer, marketService, analysisService)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("pulsewave"))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
