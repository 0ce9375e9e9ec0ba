package worker

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shaiso/Excerpta/internal/jobqueue"
)

// Default configuration values.
const (
	defaultClaimTimeout = 5 * time.Second
	defaultConcurrency  = 2
)

// Callback дёргает progress callback ядра после завершения job.
type Callback interface {
	Notify(ctx context.Context, callbackURL string)
}

// Worker выполняет конвертационные jobs из backing queues.
type Worker struct {
	rdb      *goredis.Client
	queues   []jobqueue.Queue
	byName   map[string]jobqueue.Queue
	registry *Registry
	callback Callback

	// Configuration
	workRoot     string
	claimTimeout time.Duration
	concurrency  int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	RDB    *goredis.Client
	Queues []jobqueue.Queue

	// Registry (опционально; если nil — используется NewRegistry())
	Registry *Registry

	// Callback (опционально; если nil — callback не дёргается,
	// ядро узнаёт об исходе через плановый проход harvester'а)
	Callback Callback

	// WorkRoot — корневой каталог рабочих файлов конвертации.
	WorkRoot string

	// ClaimTimeout — таймаут блокирующего ожидания job (default: 5s).
	ClaimTimeout time.Duration

	// Concurrency — количество параллельных конвертаций (default: 2).
	Concurrency int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	claimTimeout := cfg.ClaimTimeout
	if claimTimeout <= 0 {
		claimTimeout = defaultClaimTimeout
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	byName := make(map[string]jobqueue.Queue, len(cfg.Queues))
	for _, q := range cfg.Queues {
		byName[q.Name()] = q
	}

	return &Worker{
		rdb:          cfg.RDB,
		queues:       cfg.Queues,
		byName:       byName,
		registry:     registry,
		callback:     cfg.Callback,
		workRoot:     cfg.WorkRoot,
		claimTimeout: claimTimeout,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// Start запускает claim-горутины.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"concurrency", w.concurrency,
		"queues", len(w.queues),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.claimLoop(ctx)
		}()
	}

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// claimLoop — цикл забора pending jobs. Очереди опрашиваются одним
// блокирующим вызовом: high имеет приоритет над default.
func (w *Worker) claimLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := jobqueue.ClaimPending(ctx, w.rdb, w.queues, w.claimTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to claim pending job", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		if err := w.ProcessJob(ctx, job); err != nil {
			w.logger.Error("job processing failed",
				"job_id", job.ID,
				"error", err,
			)
		}
	}
}

// ProcessJob конвертирует один job во все заказанные форматы.
//
// Исход — done либо error — записывается в запись job, после чего
// ровно один раз дёргается progress callback. Callback уходит и при
// ошибке: ядро должно узнать о провале сразу, а не ждать harvester'а.
func (w *Worker) ProcessJob(ctx context.Context, job *jobqueue.Job) error {
	queue, ok := w.byName[job.Queue]
	if !ok {
		return fmt.Errorf("job %s references unknown queue %s", job.ID, job.Queue)
	}

	if err := queue.SetStatus(ctx, job.ID, jobqueue.StatusStarted); err != nil {
		return fmt.Errorf("mark job started: %w", err)
	}

	start := time.Now()
	unzippedSize, convErr := w.convertAll(ctx, job)

	status := jobqueue.StatusDone
	if convErr != nil {
		status = jobqueue.StatusError
	}

	meta := map[string]string{
		"duration_sec":         strconv.FormatInt(int64(time.Since(start).Seconds()), 10),
		"unzipped_result_size": strconv.FormatInt(unzippedSize, 10),
	}
	if convErr != nil {
		meta["error"] = convErr.Error()
	}

	if err := queue.UpdateMeta(ctx, job.ID, meta); err != nil {
		w.logger.Warn("job meta update failed", "job_id", job.ID, "error", err)
	}
	if err := queue.SetStatus(ctx, job.ID, status); err != nil {
		return fmt.Errorf("mark job %s: %w", status, err)
	}

	w.logger.Info("job processed",
		"job_id", job.ID,
		"status", status,
		"duration", time.Since(start),
	)

	if w.callback != nil {
		w.callback.Notify(ctx, job.Payload["callback_url"])
	}

	return convErr
}

// convertAll конвертирует job во все форматы из payload.
// Ошибка одного формата не прерывает остальные: возвращается первая
// из встреченных, а успешные результаты остаются упакованными.
func (w *Worker) convertAll(ctx context.Context, job *jobqueue.Job) (int64, error) {
	formats := splitFormats(job.Payload["formats"])
	if len(formats) == 0 {
		return 0, ErrNoFormats
	}

	workDir := filepath.Join(w.workRoot, job.ID)
	if err := os.MkdirAll(workDir, 0750); err != nil {
		return 0, fmt.Errorf("create work dir: %w", err)
	}

	req := &Request{
		JobID:    job.ID,
		Polyfile: job.Payload["polyfile"],
		WorkDir:  workDir,
	}
	req.West = parseCoord(job.Payload["west"])
	req.South = parseCoord(job.Payload["south"])
	req.East = parseCoord(job.Payload["east"])
	req.North = parseCoord(job.Payload["north"])

	var total int64
	var firstErr error
	for _, format := range formats {
		req.Format = format

		converter, err := w.registry.Get(format)
		if err == nil {
			var result *Result
			result, err = converter.Convert(ctx, req)
			if err == nil {
				total += result.SizeBytes
				err = zipResult(result.Path)
			}
		}
		if err != nil {
			w.logger.Warn("format conversion failed",
				"job_id", job.ID,
				"format", format,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return total, firstErr
}

// splitFormats разбирает CSV-список форматов из payload.
func splitFormats(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	formats := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			formats = append(formats, p)
		}
	}
	return formats
}

// parseCoord разбирает координату payload; пустая строка — 0.
func parseCoord(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// zipResult упаковывает файл или каталог результата в <path>.zip.
func zipResult(path string) error {
	out, err := os.Create(path + ".zip")
	if err != nil {
		return fmt.Errorf("create result archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	base := filepath.Dir(path)
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}

		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}

		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("pack result archive: %w", err)
	}

	return zw.Close()
}
