package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/archivekit/vaultline/log"
	"github.com/redis/go-redis/v9"
)

// RedisQueueConfig configures the Redis Streams backed Queue (spec §4.2,
// §6 REDIS_URL). Group/Consumer naming and the create-group-if-absent
// posture are modeled on BitRiver's RedisQueueConfig/ensureGroup.
type RedisQueueConfig struct {
	URL          string
	Stream       string
	Group        string
	BlockTimeout time.Duration
	Prefetch     int64
}

type redisQueue struct {
	client   *redis.Client
	stream   string
	group    string
	block    time.Duration
	prefetch int64
	consumer string
}

// NewRedisQueue builds a Queue backed by Redis Streams with a consumer
// group, giving the late-ack, one-job-per-consumer semantics the worker
// pool needs (spec §4.2 "prefetch=1, late ack"). Entries left pending by a
// consumer that never acks or nacks them are not reclaimed.
func NewRedisQueue(cfg RedisQueueConfig) (Queue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	stream := cfg.Stream
	if stream == "" {
		stream = "vaultline:jobs"
	}
	group := cfg.Group
	if group == "" {
		group = "vaultline-workers"
	}
	block := cfg.BlockTimeout
	if block <= 0 {
		block = 5 * time.Second
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	q := &redisQueue{
		client:   client,
		stream:   stream,
		group:    group,
		block:    block,
		prefetch: prefetch,
		consumer: "worker-" + randomID(8),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *redisQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (q *redisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := marshalJob(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Err()
}

func (q *redisQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    q.group,
				Consumer: q.consumer,
				Streams:  []string{q.stream, ">"},
				Count:    q.prefetch,
				Block:    q.block,
			}).Result()
			if err != nil {
				if err == redis.Nil || ctx.Err() != nil {
					continue
				}
				log.LogNoRequestID("queue read failed", "err", err.Error())
				time.Sleep(200 * time.Millisecond)
				continue
			}

			for _, stream := range res {
				for _, msg := range stream.Messages {
					delivery, ok := q.toDelivery(msg)
					if !ok {
						q.ack(ctx, msg.ID)
						continue
					}
					select {
					case out <- delivery:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func (q *redisQueue) toDelivery(msg redis.XMessage) (Delivery, bool) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return Delivery{}, false
	}
	job, err := unmarshalJob([]byte(raw))
	if err != nil {
		log.LogNoRequestID("queue decode failed", "id", msg.ID, "err", err.Error())
		return Delivery{}, false
	}
	id := msg.ID
	return Delivery{
		Job:  job,
		Ack:  func(ctx context.Context) error { return q.ack(ctx, id) },
		Nack: func(ctx context.Context) error { return q.nack(ctx, id, job) },
	}, true
}

func (q *redisQueue) ack(ctx context.Context, id string) error {
	return q.client.XAck(ctx, q.stream, q.group, id).Err()
}

// nack acks the original delivery (so it stops counting against the
// consumer's pending-entries list) and re-enqueues the job with a bumped
// attempt count, the redelivery path the Job Coordinator's retry logic
// expects (spec §4.2 retry/backoff).
func (q *redisQueue) nack(ctx context.Context, id string, job Job) error {
	if err := q.ack(ctx, id); err != nil {
		return err
	}
	job.Attempt++
	return q.Enqueue(ctx, job)
}

func (q *redisQueue) Close() error {
	return q.client.Close()
}
