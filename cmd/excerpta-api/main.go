package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shaiso/Excerpta/internal/api"
	"github.com/shaiso/Excerpta/internal/config"
	"github.com/shaiso/Excerpta/internal/conversion"
	"github.com/shaiso/Excerpta/internal/harvester"
	"github.com/shaiso/Excerpta/internal/jobqueue"
	"github.com/shaiso/Excerpta/internal/materializer"
	"github.com/shaiso/Excerpta/internal/mq"
	"github.com/shaiso/Excerpta/internal/notify"
	"github.com/shaiso/Excerpta/internal/repo"
	"github.com/shaiso/Excerpta/internal/storage"
	"github.com/shaiso/Excerpta/internal/submitter"
	"github.com/shaiso/Excerpta/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "excerpta_api_http_requests_total",
		Help: "Total HTTP requests handled by excerpta_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting excerpta-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load("8080")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Создаём репозитории
	orderRepo := repo.NewOrderRepo(pool)
	ordererRepo := repo.NewOrdererRepo(pool)
	fileRepo := repo.NewOutputFileRepo(pool)
	notificationRepo := repo.NewNotificationRepo(pool)

	// Файловое хранилище результатов
	fileStorage, err := storage.NewFileStorage(cfg.StorageRoot)
	if err != nil {
		logger.Error("failed to init file storage", "error", err)
		os.Exit(1)
	}

	// Клиент конвертационного сервиса
	convClient := conversion.NewClient(conversion.Config{
		BaseURL:     cfg.ConversionServiceURL,
		Username:    cfg.ConversionServiceUsername,
		Password:    cfg.ConversionServicePassword,
		HTTPTimeout: cfg.HTTPClientTimeout,
	}, logger)

	// Redis backing queues
	rdb, err := jobqueue.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	queues := jobqueue.NewRedisQueues(rdb, cfg.QueueNames)

	// RabbitMQ: если доступен — заказы отправляются асинхронно,
	// иначе прямо в обработчике запроса.
	var publisher *mq.Publisher
	if cfg.AMQPURL != "" {
		mqConn, err := mq.NewConnection(cfg.AMQPURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, orders will be submitted synchronously", "error", err)
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
			logger.Info("RabbitMQ connected")
		}
	}

	var syncSubmitter api.SyncSubmitter
	if publisher == nil {
		syncSubmitter = submitter.New(submitter.Config{
			Orders:          orderRepo,
			Orderers:        ordererRepo,
			Client:          convClient,
			Queues:          queues,
			CallbackBaseURL: cfg.CallbackBaseURL,
			ExclusiveGroup:  cfg.ExclusiveGroup,
			Logger:          logger,
		})
	}

	// Notifier: durable-уведомления + email при настроенном SMTP
	var mail notify.MailSender
	if cfg.SMTPHost != "" {
		mail = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.MailFrom)
	}
	notifier := notify.NewNotifier(notificationRepo, mail, logger)

	// Реконсилиатор для progress callback'а
	harv := harvester.New(harvester.Config{
		Orders:   orderRepo,
		Orderers: ordererRepo,
		Queues:   queues,
		Client:   convClient,
		Materializer: materializer.New(materializer.Config{
			Orders:     orderRepo,
			Files:      fileRepo,
			Downloader: convClient,
			Storage:    fileStorage,
			Logger:     logger,
		}),
		Notifier: notifier,
		Logger:   logger,
	})

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Orders:        orderRepo,
		Orderers:      ordererRepo,
		Files:         fileRepo,
		Notifications: notificationRepo,
		Storage:       fileStorage,
		Publisher:     publisher,
		SyncSubmitter: syncSubmitter,
		Reconciler:    harv,
		Estimator:     convClient,
		Logger:        logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.Port

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
