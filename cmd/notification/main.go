// NotificationService 主程序
// 功能：消费全部业务事件生成用户与运营通知，按自然键幂等落库后投递
// 架构：基于 DDD + Kafka + MySQL + Redis 旁路缓存
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/evservicecenter/internal/event"
	"github.com/wyfcoding/evservicecenter/internal/notification/application"
	"github.com/wyfcoding/evservicecenter/internal/notification/domain"
	"github.com/wyfcoding/evservicecenter/internal/notification/infrastructure/persistence/mysql"
	"github.com/wyfcoding/evservicecenter/internal/notification/infrastructure/sender"
	"github.com/wyfcoding/evservicecenter/internal/notification/interfaces/consumer"
	httphandler "github.com/wyfcoding/evservicecenter/internal/notification/interfaces/http"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
	"github.com/wyfcoding/evservicecenter/pkg/config"
	"github.com/wyfcoding/evservicecenter/pkg/db"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/metrics"
	"github.com/wyfcoding/evservicecenter/pkg/middleware"
	"github.com/wyfcoding/evservicecenter/pkg/mq"
	"github.com/wyfcoding/evservicecenter/pkg/ratelimit"
)

func main() {
	// 1. 加载配置
	configPath := "configs/notification/config.toml"
	if v := os.Getenv("APP_CONFIG"); v != "" {
		configPath = v
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger.Info(ctx, "Starting NotificationService",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	// 3. 初始化数据库
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize database", "error", err)
	}
	defer database.Close()

	// 4. 初始化 Redis
	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize Redis", "error", err)
	}
	defer redisCache.Close()

	// 5. 初始化限流器
	rateLimiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())

	// 6. 初始化 Kafka
	mqCfg := mq.Config{
		Brokers:           cfg.Kafka.Brokers,
		GroupID:           cfg.Kafka.GroupID,
		SessionTimeout:    cfg.Kafka.SessionTimeout,
		MaxRetries:        cfg.Kafka.MaxRetries,
		RetryBackoff:      cfg.Kafka.RetryBackoff,
		ReconnectInterval: cfg.Kafka.ReconnectInterval,
		FailurePolicy:     mq.FailurePolicy(cfg.Kafka.FailurePolicy),
		HandlerRetries:    cfg.Kafka.HandlerRetries,
	}
	producer, err := mq.NewProducer(mqCfg)
	if err != nil {
		logger.Fatal(ctx, "Failed to create Kafka producer", "error", err)
	}
	defer producer.Close()

	subscriber, err := mq.NewSubscriber(mqCfg, producer)
	if err != nil {
		logger.Fatal(ctx, "Failed to create Kafka subscriber", "error", err)
	}

	// 7. 初始化指标
	metricsInstance := metrics.New(cfg.ServiceName)
	if err := metricsInstance.Register(); err != nil {
		logger.Fatal(ctx, "Failed to register metrics", "error", err)
	}
	if cfg.Metrics.Enabled {
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Fatal(ctx, "Failed to start metrics HTTP server", "error", err)
		}
	}

	// 8. 初始化仓储、发送器与应用服务
	repo := mysql.NewNotificationRepository(database)
	svc := application.NewNotificationService(repo, buildSender(cfg), redisCache,
		time.Duration(cfg.CacheTTL.ListSeconds)*time.Second,
		metricsInstance)

	// 9. 订阅全部业务事件主题
	eventHandler := consumer.NewEventHandler(svc, cfg.Notification.OpsEmail, metricsInstance)
	topics := []string{
		event.TopicWorkOrder,
		event.TopicInventory,
		event.TopicBooking,
		event.TopicPayment,
	}
	for _, topic := range topics {
		if err := subscriber.Subscribe(ctx, topic, eventHandler.Handle); err != nil {
			logger.Fatal(ctx, "Failed to subscribe to topic", "topic", topic, "error", err)
		}
	}

	// 10. 启动 HTTP 服务器
	httpServer := createHTTPServer(cfg, svc, rateLimiter)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		logger.Info(ctx, "Starting HTTP server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "HTTP server error", "error", err)
		}
	}()

	// 11. 优雅关停
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "Shutting down NotificationService")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown error", "error", err)
	}
	if err := subscriber.Close(); err != nil {
		logger.Error(ctx, "Subscriber shutdown error", "error", err)
	}

	logger.Info(context.Background(), "NotificationService stopped")
}

// buildSender 按配置选择通知发送通道
func buildSender(cfg *config.Config) domain.Sender {
	switch cfg.Notification.Sender {
	case "smtp":
		return sender.NewSMTPSender(
			cfg.Notification.SMTPHost,
			cfg.Notification.SMTPPort,
			cfg.Notification.SMTPUsername,
			cfg.Notification.SMTPPassword,
			cfg.Notification.SMTPFrom,
		)
	case "webhook":
		return sender.NewWebhookSender(time.Duration(cfg.Notification.WebhookTimeout) * time.Second)
	default:
		return sender.NewMockSender()
	}
}

// createHTTPServer 创建 HTTP 服务器
func createHTTPServer(cfg *config.Config, svc *application.NotificationService, rateLimiter ratelimit.RateLimiter) *http.Server {
	router := gin.New()

	// 添加中间件
	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.RateLimitMiddleware(rateLimiter, cfg.ServiceName, cfg.RateLimit))

	// 注册路由
	httpHandler := httphandler.NewNotificationHandler(svc)
	httpHandler.RegisterRoutes(&router.RouterGroup)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   cfg.ServiceName,
			"timestamp": time.Now().Unix(),
		})
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
}
