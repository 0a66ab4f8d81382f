// Package ticketqueue is the post-confirmation dispatcher: a small durable job
// queue on the fast store, one job per confirmed line item. Jobs are retried
// with exponential backoff and retained on a failed list once attempts are
// exhausted, so a bad job never affects inventory correctness and can still be
// inspected by hand.
package ticketqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Job is the payload enqueued per confirmed line item.
type Job struct {
	ID             string    `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	TicketID       uuid.UUID `json:"ticket_id"`
	Quantity       int       `json:"quantity"`
	PurchaserEmail string    `json:"purchaser_email"`
	Attempts       int       `json:"attempts"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

type Queue struct {
	rdb         *redis.Client
	name        string
	maxAttempts int
	backoffBase time.Duration
	log         zerolog.Logger
}

func NewQueue(rdb *redis.Client, name string, maxAttempts int, backoffBase time.Duration, log zerolog.Logger) *Queue {
	return &Queue{
		rdb:         rdb,
		name:        name,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		log:         log.With().Str("component", "ticketqueue").Str("queue", name).Logger(),
	}
}

func (q *Queue) waitingKey() string { return "queue:" + q.name + ":waiting" }
func (q *Queue) delayedKey() string { return "queue:" + q.name + ":delayed" }
func (q *Queue) failedKey() string  { return "queue:" + q.name + ":failed" }

// Enqueue pushes a job onto the waiting list. Jobs get an id on first
// enqueue so retries and the failed list stay correlatable.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := q.rdb.LPush(ctx, q.waitingKey(), payload).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next waiting job. Returns (nil, nil)
// when the timeout elapses with nothing to do.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.waitingKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// Retry reschedules a failed job with exponential backoff, or moves it to the
// failed list once attempts are exhausted. The failed list is retained for
// manual inspection, never drained automatically.
func (q *Queue) Retry(ctx context.Context, job Job, cause error) error {
	job.Attempts++
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	if job.Attempts >= q.maxAttempts {
		q.log.Error().Err(cause).Str("job_id", job.ID).Int("attempts", job.Attempts).
			Msg("job exhausted all attempts, parking on failed list")
		if err := q.rdb.LPush(ctx, q.failedKey(), payload).Err(); err != nil {
			return fmt.Errorf("park job %s: %w", job.ID, err)
		}
		return nil
	}

	readyAt := time.Now().UTC().Add(q.backoff(job.Attempts))
	q.log.Warn().Err(cause).Str("job_id", job.ID).Int("attempts", job.Attempts).
		Time("ready_at", readyAt).Msg("job failed, scheduling retry")
	if err := q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("schedule retry for job %s: %w", job.ID, err)
	}
	return nil
}

func (q *Queue) backoff(attempts int) time.Duration {
	d := q.backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

// PromoteDue moves delayed jobs whose backoff has elapsed back onto the
// waiting list and reports how many were promoted.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan delayed jobs: %w", err)
	}
	for _, member := range members {
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, q.delayedKey(), member)
		pipe.LPush(ctx, q.waitingKey(), member)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("promote delayed job: %w", err)
		}
	}
	return len(members), nil
}

// FailedCount reports how many jobs are parked on the failed list.
func (q *Queue) FailedCount(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.failedKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count failed jobs: %w", err)
	}
	return n, nil
}
