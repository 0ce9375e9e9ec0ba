// Excerpta Worker — выполнение конвертационных jobs.
//
// Worker:
//   - Забирает pending jobs из Redis backing queues
//   - Конвертирует экстент в заказанные форматы внешними GIS-инструментами
//   - Записывает исход и метаданные в запись job
//   - Дёргает progress callback ядра
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shaiso/Excerpta/internal/config"
	"github.com/shaiso/Excerpta/internal/jobqueue"
	"github.com/shaiso/Excerpta/internal/notify"
	"github.com/shaiso/Excerpta/internal/telemetry"
	"github.com/shaiso/Excerpta/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting excerpta-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load("8083")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
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

	workRoot := os.Getenv("WORK_ROOT")
	if workRoot == "" {
		workRoot = "/var/lib/excerpta/work"
	}

	// Создаём worker
	w := worker.New(worker.Config{
		RDB:      rdb,
		Queues:   queues,
		Callback: notify.NewCallbackNotifier(logger),
		WorkRoot: workRoot,
		Logger:   logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

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

	w.Stop()
	logger.Info("excerpta-worker stopped")
}
