package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Ключи Redis:
//
//	excerpta:queue:<name>:registry — set идентификаторов jobs «в полёте»
//	excerpta:queue:<name>:pending  — list идентификаторов для worker'ов
//	excerpta:job:<id>              — hash с полями job
const (
	registryKeyFmt = "excerpta:queue:%s:registry"
	pendingKeyFmt  = "excerpta:queue:%s:pending"
	jobKeyFmt      = "excerpta:job:%s"
)

// NewRedisClient создаёт клиент Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisQueue — реализация Queue поверх Redis.
type RedisQueue struct {
	rdb  *goredis.Client
	name string
}

// NewRedisQueue создаёт очередь с указанным именем.
func NewRedisQueue(rdb *goredis.Client, name string) *RedisQueue {
	return &RedisQueue{rdb: rdb, name: name}
}

// NewRedisQueues создаёт очереди для списка имён (в порядке приоритета).
func NewRedisQueues(rdb *goredis.Client, names []string) []Queue {
	queues := make([]Queue, 0, len(names))
	for _, name := range names {
		queues = append(queues, NewRedisQueue(rdb, name))
	}
	return queues
}

// Name возвращает имя очереди.
func (q *RedisQueue) Name() string {
	return q.name
}

// Enqueue регистрирует job и кладёт его в pending-список.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	job.Queue = q.name
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	fields, err := jobFields(job)
	if err != nil {
		return err
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, fmt.Sprintf(jobKeyFmt, job.ID), fields)
	pipe.SAdd(ctx, fmt.Sprintf(registryKeyFmt, q.name), job.ID)
	pipe.LPush(ctx, fmt.Sprintf(pendingKeyFmt, q.name), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// JobIDs возвращает идентификаторы всех jobs очереди.
func (q *RedisQueue) JobIDs(ctx context.Context) ([]string, error) {
	ids, err := q.rdb.SMembers(ctx, fmt.Sprintf(registryKeyFmt, q.name)).Result()
	if err != nil {
		return nil, fmt.Errorf("list job ids for %s: %w", q.name, err)
	}
	return ids, nil
}

// FetchJob возвращает job по id или (nil, nil), если job не числится за очередью.
func (q *RedisQueue) FetchJob(ctx context.Context, id string) (*Job, error) {
	member, err := q.rdb.SIsMember(ctx, fmt.Sprintf(registryKeyFmt, q.name), id).Result()
	if err != nil {
		return nil, fmt.Errorf("check job registry: %w", err)
	}
	if !member {
		return nil, nil
	}

	values, err := q.rdb.HGetAll(ctx, fmt.Sprintf(jobKeyFmt, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch job %s: %w", id, err)
	}
	if len(values) == 0 {
		// Числится в реестре, но hash истёк/удалён — считаем исчезнувшим.
		return nil, nil
	}
	return jobFromFields(id, values)
}

// SetStatus выставляет статус job.
func (q *RedisQueue) SetStatus(ctx context.Context, id, status string) error {
	if err := q.rdb.HSet(ctx, fmt.Sprintf(jobKeyFmt, id), "status", status).Err(); err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// UpdateMeta дописывает метаданные job.
func (q *RedisQueue) UpdateMeta(ctx context.Context, id string, meta map[string]string) error {
	if len(meta) == 0 {
		return nil
	}

	key := fmt.Sprintf(jobKeyFmt, id)
	current, err := q.rdb.HGet(ctx, key, "meta").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("read job meta: %w", err)
	}

	merged := map[string]string{}
	if current != "" {
		if err := json.Unmarshal([]byte(current), &merged); err != nil {
			return fmt.Errorf("unmarshal job meta: %w", err)
		}
	}
	for k, v := range meta {
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal job meta: %w", err)
	}
	if err := q.rdb.HSet(ctx, key, "meta", string(data)).Err(); err != nil {
		return fmt.Errorf("write job meta: %w", err)
	}
	return nil
}

// Remove снимает job с учёта очереди.
func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.SRem(ctx, fmt.Sprintf(registryKeyFmt, q.name), id)
	pipe.LRem(ctx, fmt.Sprintf(pendingKeyFmt, q.name), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove job %s: %w", id, err)
	}
	return nil
}

// ClaimPending блокирующе снимает следующий job с pending-списков очередей
// в порядке приоритета. Возвращает (nil, nil) по таймауту.
func ClaimPending(ctx context.Context, rdb *goredis.Client, queues []Queue, timeout time.Duration) (*Job, error) {
	keys := make([]string, 0, len(queues))
	for _, q := range queues {
		keys = append(keys, fmt.Sprintf(pendingKeyFmt, q.Name()))
	}

	result, err := rdb.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending job: %w", err)
	}

	// BRPop возвращает [key, value].
	id := result[1]
	for _, q := range queues {
		job, err := q.FetchJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
	}
	return nil, fmt.Errorf("claimed job %s not found in any queue registry", id)
}

// jobFields сериализует job в поля hash.
func jobFields(job *Job) (map[string]any, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	meta, err := json.Marshal(job.Meta)
	if err != nil {
		return nil, fmt.Errorf("marshal job meta: %w", err)
	}
	return map[string]any{
		"queue":       job.Queue,
		"status":      job.Status,
		"payload":     string(payload),
		"meta":        string(meta),
		"enqueued_at": job.EnqueuedAt.Format(time.RFC3339Nano),
	}, nil
}

// jobFromFields восстанавливает job из полей hash.
func jobFromFields(id string, values map[string]string) (*Job, error) {
	job := &Job{
		ID:     id,
		Queue:  values["queue"],
		Status: values["status"],
	}
	if v := values["payload"]; v != "" {
		if err := json.Unmarshal([]byte(v), &job.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal job payload: %w", err)
		}
	}
	if v := values["meta"]; v != "" {
		if err := json.Unmarshal([]byte(v), &job.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal job meta: %w", err)
		}
	}
	if v := values["enqueued_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse enqueued_at: %w", err)
		}
		job.EnqueuedAt = t
	}
	return job, nil
}
