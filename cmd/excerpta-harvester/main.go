// Excerpta Harvester — фоновый демон ядра.
//
// Запускает два процесса:
//   - Submitter: отправка новых заказов в конвертационный сервис
//     (consumer orders.created + polling fallback)
//   - Harvester: периодическая сверка незавершённых заказов
//     с конвертационным сервисом по cron-расписанию
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
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

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting excerpta-harvester")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load("8082")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

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

	// Redis backing queues
	rdb, err := jobqueue.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	queues := jobqueue.NewRedisQueues(rdb, cfg.QueueNames)

	// Клиент конвертационного сервиса
	convClient := conversion.NewClient(conversion.Config{
		BaseURL:     cfg.ConversionServiceURL,
		Username:    cfg.ConversionServiceUsername,
		Password:    cfg.ConversionServicePassword,
		HTTPTimeout: cfg.HTTPClientTimeout,
	}, logger)

	// RabbitMQ (опционально — без него submitter работает только polling'ом)
	var mqConn *mq.Connection
	if cfg.AMQPURL != "" {
		mqConn, err = mq.NewConnection(cfg.AMQPURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
			mqConn = nil
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			logger.Info("RabbitMQ connected")
		}
	}

	// Notifier
	var mail notify.MailSender
	if cfg.SMTPHost != "" {
		mail = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.MailFrom)
	}
	notifier := notify.NewNotifier(notificationRepo, mail, logger)

	// Submitter
	sub := submitter.New(submitter.Config{
		Orders:          orderRepo,
		Orderers:        ordererRepo,
		Client:          convClient,
		Queues:          queues,
		Conn:            mqConn,
		CallbackBaseURL: cfg.CallbackBaseURL,
		ExclusiveGroup:  cfg.ExclusiveGroup,
		Logger:          logger,
	})
	if err := sub.Start(ctx); err != nil {
		logger.Error("failed to start submitter", "error", err)
		os.Exit(1)
	}

	// Harvester
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

	// Cron-цикл сверки
	c := cron.New()
	if _, err := c.AddFunc(cfg.HarvestSchedule, func() {
		if err := harv.Tick(ctx); err != nil && ctx.Err() == nil {
			logger.Error("harvest tick failed", "error", err)
		}
	}); err != nil {
		logger.Error("invalid harvest schedule", "schedule", cfg.HarvestSchedule, "error", err)
		os.Exit(1)
	}
	c.Start()
	logger.Info("harvest schedule registered", "schedule", cfg.HarvestSchedule)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.Port

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	<-c.Stop().Done()
	sub.Stop()
	logger.Info("excerpta-harvester stopped")
}
