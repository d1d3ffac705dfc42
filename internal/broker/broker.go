// Package broker implements the Cache/Broker component: short-lived keyed
// storage plus a durable job queue, backed by Redis and Kafka.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/config"
	"doccatalog-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Job is one queued unit of work, delivered at-most-once within its
// visibility window.
type Job struct {
	ID       string
	Queue    string
	Payload  []byte
	Attempts int

	kafkaMsg *kafka.Message
}

// Broker is the Cache/Broker component's public surface.
type Broker interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error

	Enqueue(ctx context.Context, queue string, payload []byte, eta *time.Time) (string, error)
	Reserve(ctx context.Context, queue string, visibilityTimeout time.Duration) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	Nack(ctx context.Context, job *Job, reason string, retryAfter time.Duration) error

	// PumpDelayed moves due delayed jobs (scheduled via Enqueue's eta or via
	// Nack's backoff) back onto the live queue. Called periodically by the
	// Ingestion Pipeline's Scheduler.
	PumpDelayed(ctx context.Context, queue string) (int, error)

	QueueDepth(ctx context.Context, queue string) (int64, error)
	Health(ctx context.Context) (ok bool, latencyMs int64)

	Close() error
}

type redisKafkaBroker struct {
	rdb     *redis.Client
	brokers string
	writers map[string]*kafka.Writer
	readers map[string]*kafka.Reader
}

// New builds a Broker over an existing Redis client and the configured Kafka
// brokers string.
func New(rdb *redis.Client, kafkaCfg config.KafkaConfig) Broker {
	return &redisKafkaBroker{
		rdb:     rdb,
		brokers: kafkaCfg.Brokers,
		writers: make(map[string]*kafka.Writer),
		readers: make(map[string]*kafka.Reader),
	}
}

func (b *redisKafkaBroker) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindCacheUnavailable, "cache get failed", err)
	}
	return val, true, nil
}

func (b *redisKafkaBroker) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperr.Wrap(apperr.KindCacheUnavailable, "cache set failed", err)
	}
	return nil
}

func (b *redisKafkaBroker) Delete(ctx context.Context, key string) error {
	if err := b.rdb.Del(ctx, key).Err(); err != nil {
		return apperr.Wrap(apperr.KindCacheUnavailable, "cache delete failed", err)
	}
	return nil
}

// DeletePrefix scans and deletes all keys under prefix. Redis has no native
// prefix delete; SCAN+DEL is the idiomatic approach for clearing a group of
// related cache keys.
func (b *redisKafkaBroker) DeletePrefix(ctx context.Context, prefix string) error {
	iter := b.rdb.Scan(ctx, 0, prefix+"*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
				return apperr.Wrap(apperr.KindCacheUnavailable, "cache delete-prefix failed", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return apperr.Wrap(apperr.KindCacheUnavailable, "cache scan failed", err)
	}
	if len(keys) > 0 {
		if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
			return apperr.Wrap(apperr.KindCacheUnavailable, "cache delete-prefix failed", err)
		}
	}
	return nil
}

func (b *redisKafkaBroker) writer(queue string) *kafka.Writer {
	if w, ok := b.writers[queue]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(b.brokers),
		Topic:    queue,
		Balancer: &kafka.LeastBytes{},
	}
	b.writers[queue] = w
	return w
}

func (b *redisKafkaBroker) reader(queue string) *kafka.Reader {
	if r, ok := b.readers[queue]; ok {
		return r
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{b.brokers},
		Topic:    queue,
		GroupID:  "doccatalog-consumer",
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	b.readers[queue] = r
	return r
}

type envelope struct {
	JobID    string          `json:"job_id"`
	Attempts int             `json:"attempts"`
	Payload  json.RawMessage `json:"payload"`
}

// Enqueue publishes payload to queue. A non-nil eta defers delivery by
// parking the job in a Redis sorted set keyed by due time, drained by
// PumpDelayed — Kafka itself has no native delayed-delivery primitive.
func (b *redisKafkaBroker) Enqueue(ctx context.Context, queue string, payload []byte, eta *time.Time) (string, error) {
	jobID := uuid.NewString()
	env := envelope{JobID: jobID, Attempts: 0, Payload: payload}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to marshal job envelope", err)
	}

	if eta != nil && eta.After(time.Now()) {
		if err := b.rdb.ZAdd(ctx, delayedKey(queue), &redis.Z{Score: float64(eta.Unix()), Member: envBytes}).Err(); err != nil {
			return "", apperr.Wrap(apperr.KindCacheUnavailable, "failed to schedule delayed job", err)
		}
		return jobID, nil
	}

	if err := b.writer(queue).WriteMessages(ctx, kafka.Message{Value: envBytes}); err != nil {
		return "", apperr.Wrap(apperr.KindTransient, "failed to enqueue job", err)
	}
	return jobID, nil
}

// Reserve fetches the next message from queue and claims an exclusive lease
// on it for visibilityTimeout, enforcing the at-most-one-worker invariant
// via a Redis SETNX lease key.
func (b *redisKafkaBroker) Reserve(ctx context.Context, queue string, visibilityTimeout time.Duration) (*Job, error) {
	r := b.reader(queue)
	msg, err := r.FetchMessage(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to fetch job", err)
	}

	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		log.Errorf("[Broker] malformed job envelope on queue %s, discarding: %v", queue, err)
		_ = r.CommitMessages(ctx, msg)
		return nil, nil
	}

	leaseKey := fmt.Sprintf("lease:%s:%s", queue, env.JobID)
	acquired, err := b.rdb.SetNX(ctx, leaseKey, "1", visibilityTimeout).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCacheUnavailable, "failed to acquire lease", err)
	}
	if !acquired {
		// Another worker already holds the lease for this job id; skip it
		// without committing so it can be retried once the lease expires.
		return nil, nil
	}

	return &Job{ID: env.JobID, Queue: queue, Payload: env.Payload, Attempts: env.Attempts, kafkaMsg: &msg}, nil
}

func (b *redisKafkaBroker) Ack(ctx context.Context, job *Job) error {
	if job.kafkaMsg != nil {
		if err := b.reader(job.Queue).CommitMessages(ctx, *job.kafkaMsg); err != nil {
			return apperr.Wrap(apperr.KindTransient, "failed to commit job offset", err)
		}
	}
	_ = b.rdb.Del(ctx, fmt.Sprintf("lease:%s:%s", job.Queue, job.ID)).Err()
	return nil
}

// Nack reschedules the job after retryAfter, capped by max_attempts; once
// exceeded the caller is expected to mark the owning Document FAILED and
// still Ack the message so it is not redelivered forever.
func (b *redisKafkaBroker) Nack(ctx context.Context, job *Job, reason string, retryAfter time.Duration) error {
	log.Warnf("[Broker] job %s on queue %s nacked: %s, retry after %s", job.ID, job.Queue, reason, retryAfter)
	due := time.Now().Add(retryAfter)
	env := envelope{JobID: job.ID, Attempts: job.Attempts + 1, Payload: job.Payload}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to marshal nacked job", err)
	}
	if err := b.rdb.ZAdd(ctx, delayedKey(job.Queue), &redis.Z{Score: float64(due.Unix()), Member: envBytes}).Err(); err != nil {
		return apperr.Wrap(apperr.KindCacheUnavailable, "failed to reschedule nacked job", err)
	}
	return b.Ack(ctx, job)
}

// PumpDelayed moves due entries from the delayed sorted set back onto the
// live Kafka topic. It is safe to call concurrently and frequently; each
// entry is removed atomically before republishing.
func (b *redisKafkaBroker) PumpDelayed(ctx context.Context, queue string) (int, error) {
	now := float64(time.Now().Unix())
	entries, err := b.rdb.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{Min: "0", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindCacheUnavailable, "failed to scan delayed jobs", err)
	}
	moved := 0
	for _, entry := range entries {
		removed, err := b.rdb.ZRem(ctx, delayedKey(queue), entry).Result()
		if err != nil || removed == 0 {
			continue // another pumper already claimed it
		}
		if err := b.writer(queue).WriteMessages(ctx, kafka.Message{Value: []byte(entry)}); err != nil {
			log.Errorf("[Broker] failed to republish delayed job on queue %s: %v", queue, err)
			continue
		}
		moved++
	}
	return moved, nil
}

// QueueDepth reports the number of jobs parked in queue's Redis delayed set
// (eta-deferred uploads and nacked retries). Messages already published to
// the Kafka topic and not yet consumed are not counted.
func (b *redisKafkaBroker) QueueDepth(ctx context.Context, queue string) (int64, error) {
	n, err := b.rdb.ZCard(ctx, delayedKey(queue)).Result()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindCacheUnavailable, "failed to read queue depth", err)
	}
	return n, nil
}

func (b *redisKafkaBroker) Health(ctx context.Context) (bool, int64) {
	start := time.Now()
	err := b.rdb.Ping(ctx).Err()
	latency := time.Since(start).Milliseconds()
	return err == nil, latency
}

func (b *redisKafkaBroker) Close() error {
	for _, w := range b.writers {
		_ = w.Close()
	}
	for _, r := range b.readers {
		_ = r.Close()
	}
	return nil
}

func delayedKey(queue string) string {
	return fmt.Sprintf("queue:delayed:%s", queue)
}
