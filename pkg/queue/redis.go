package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// redisWakeChannel is the pub/sub channel task admission publishes to when
// the redis queue backend is configured.
const redisWakeChannel = "triage:queue:wake"

// RedisWaker is the optional Redis-backed low-latency dequeue notifier:
// task admission publishes on redisWakeChannel, and every worker in every
// pod subscribed to it wakes immediately instead of waiting out its poll
// interval. Claim atomicity itself stays on the SQL store's
// SELECT ... FOR UPDATE SKIP LOCKED — Redis here only shortens the average
// time-to-claim, it never becomes a second source of truth for task state,
// so a missed or duplicate pub/sub message never causes a correctness
// problem, only a worker falling back to its normal poll cadence.
type RedisWaker struct {
	client *redis.Client
	wake   chan struct{}
	log    *slog.Logger
}

// NewRedisWaker connects to addr and starts the background subscription
// loop. The returned channel (via Channel) should be wired into every
// WorkerPool via WorkerPool.SetWake.
func NewRedisWaker(ctx context.Context, addr string, log *slog.Logger) (*RedisWaker, error) {
	if log == nil {
		log = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	w := &RedisWaker{
		client: client,
		wake:   make(chan struct{}, 1),
		log:    log.With("component", "redis_waker"),
	}
	go w.subscribeLoop(ctx)
	return w, nil
}

// Channel returns the wake signal to pass to WorkerPool.SetWake.
func (w *RedisWaker) Channel() <-chan struct{} {
	return w.wake
}

// Notify publishes a wake signal, called on Task admission when the redis
// backend is configured. Best-effort: a publish failure is logged, never
// returned, since admission must succeed independent of dequeue latency.
func (w *RedisWaker) Notify(ctx context.Context) {
	if err := w.client.Publish(ctx, redisWakeChannel, "1").Err(); err != nil {
		w.log.Warn("failed to publish dequeue wake signal", "error", err)
	}
}

// Close releases the underlying Redis client.
func (w *RedisWaker) Close() error {
	return w.client.Close()
}

func (w *RedisWaker) subscribeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !w.runOneSubscription(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// runOneSubscription drains one subscription's messages until it closes or
// ctx is cancelled, forwarding each into the wake channel. Returns false
// when ctx was cancelled (caller should stop entirely), true when the
// subscription itself closed and should be re-established.
func (w *RedisWaker) runOneSubscription(ctx context.Context) bool {
	sub := w.client.Subscribe(ctx, redisWakeChannel)
	defer sub.Close()
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-ch:
			if !ok {
				return true
			}
			select {
			case w.wake <- struct{}{}:
			default: // a pending wake already covers this signal
			}
		}
	}
}
