package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultRedisKey is the list tasks are pushed onto.
const DefaultRedisKey = "assessments:analysis"

// RedisQueue stores tasks in a Redis list so separate worker processes can
// consume them.
type RedisQueue struct {
	client  *redis.Client
	key     string
	workers int
	poll    time.Duration
	drain   time.Duration
	onError ErrorHook
}

// RedisConfig holds connection and consumer settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Workers  int
}

// NewRedisClient opens a client with the pool settings used by the workers.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, key string, workers int, onError ErrorHook) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	if workers <= 0 {
		workers = 1
	}
	return &RedisQueue{client: client, key: key, workers: workers, poll: 2 * time.Second, drain: DefaultDrain, onError: onError}
}

// SetDrain sets how long running tasks may finish after Consume's context
// is cancelled.
func (q *RedisQueue) SetDrain(d time.Duration) {
	q.drain = d
}

// Ping checks the connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return eris.Wrap(q.client.Ping(ctx).Err(), "queue: redis ping")
}

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "queue: marshal task")
	}
	return eris.Wrapf(q.client.LPush(ctx, q.key, raw).Err(), "queue: push %s", t.AssessmentID)
}

// Consume pops tasks with BRPOP until ctx is cancelled, then waits for
// running tasks within the drain period.
func (q *RedisQueue) Consume(ctx context.Context, h Handler) error {
	hctx, cancel := drainContext(ctx, q.drain)
	defer cancel()

	var g errgroup.Group
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for ctx.Err() == nil {
				t, ok, err := q.pop(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					if errors.Is(err, redis.ErrClosed) {
						return nil
					}
					zap.L().Warn("queue: redis pop failed", zap.Error(err))
					sleepCtx(ctx, time.Second)
					continue
				}
				if !ok {
					continue
				}
				if err := safeHandle(hctx, h, t); err != nil {
					reportFailure(q.onError, "redis", t, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (q *RedisQueue) pop(ctx context.Context) (Task, bool, error) {
	res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Task{}, false, nil
		}
		return Task{}, false, err
	}
	// res is [key, value].
	if len(res) != 2 {
		return Task{}, false, nil
	}
	var t Task
	if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
		zap.L().Error("queue: dropping malformed task", zap.String("raw", res[1]), zap.Error(err))
		return Task{}, false, nil
	}
	return t, true, nil
}

// Len reports the number of waiting tasks.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return n, eris.Wrap(err, "queue: redis llen")
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
