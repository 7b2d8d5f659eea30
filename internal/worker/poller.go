package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/workshoplabs/webhook-engine/internal/engine"
)

// Poller continuously polls the Redis delivery queue for jobs whose ready
// time has passed and sends them to the worker pool.
type Poller struct {
	redisClient  *redis.Client
	pool         *Pool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64
	done         chan struct{}
}

// NewPoller creates a poller that pulls from the Redis sorted set.
func NewPoller(redisClient *redis.Client, pool *Pool, logger *slog.Logger) *Poller {
	return &Poller{
		redisClient:  redisClient,
		pool:         pool,
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		batchSize:    10,
		done:         make(chan struct{}),
	}
}

// Start begins the polling loop. It runs until the context is cancelled,
// then closes Done once any in-flight poll has finished.
func (p *Poller) Start(ctx context.Context) {
	defer close(p.done)

	p.logger.Info("queue poller started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("queue poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Done is closed when the polling loop has exited. The worker pool must not
// be stopped before then: a poll that already claimed a job still needs to
// submit it.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// poll fetches a batch of ready jobs from Redis and sends them to workers.
func (p *Poller) poll(ctx context.Context) {
	now := float64(time.Now().UnixMicro())

	// Fetch jobs with score <= now (ready for delivery)
	results, err := p.redisClient.ZRangeByScoreWithScores(ctx, engine.DeliveryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatFloat(now),
		Count: p.batchSize,
	}).Result()
	if err != nil {
		p.logger.Error("failed to poll delivery queue", "error", err)
		return
	}

	if len(results) == 0 {
		return
	}

	// Remove fetched jobs atomically and dispatch them
	for _, z := range results {
		member := z.Member.(string)

		// Remove from queue — if another instance already took it, ZRem returns 0
		removed, err := p.redisClient.ZRem(ctx, engine.DeliveryQueueKey, member).Result()
		if err != nil {
			p.logger.Error("failed to remove job from queue", "error", err)
			continue
		}
		if removed == 0 {
			// Another poller instance already claimed this job
			continue
		}

		var job engine.DeliveryJob
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			p.logger.Error("failed to unmarshal job", "error", err)
			continue
		}

		p.pool.Submit(job)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
