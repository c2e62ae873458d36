// Package jobxredis implements jobx.Queue on Redis. Ready jobs live in a
// list per queue, delayed and retrying jobs in a sorted set scored by their
// due time, and job bodies in plain keys with a retention TTL.
package jobxredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/jobx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// jobRetention bounds how long a finished job body stays readable. The TTL
// is refreshed on every state change, so active jobs never expire mid-run.
const jobRetention = 24 * time.Hour

var ErrRegistry = errx.NewRegistry("JOBX_REDIS")

var (
	CodeBackend  = ErrRegistry.Register("BACKEND", errx.TypeExternal, 500, "Redis queue operation failed")
	CodeNotFound = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	CodeCodec    = ErrRegistry.Register("CODEC", errx.TypeInternal, 500, "Failed to encode or decode job data")
)

// RedisQueue implements jobx.Queue backed by Redis.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func queueKey(name string) string     { return fmt.Sprintf("jobs:queue:%s", name) }
func scheduledKey(name string) string { return fmt.Sprintf("jobs:scheduled:%s", name) }
func jobKey(id string) string         { return fmt.Sprintf("jobs:job:%s", id) }

// Enqueue adds a job to the ready queue.
func (q *RedisQueue) Enqueue(ctx context.Context, job jobx.Job) (string, error) {
	if job.Queue == "" {
		job.Queue = "default"
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = 3
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	info := jobx.JobInfo{
		ID:         id,
		Type:       job.Type,
		Queue:      job.Queue,
		Payload:    job.Payload,
		Status:     jobx.StatusPending,
		MaxRetries: job.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	data, err := json.Marshal(info)
	if err != nil {
		return "", ErrRegistry.NewWithCause(CodeCodec, err)
	}

	pipe := q.rdb.Pipeline()
	pipe.Set(ctx, jobKey(id), data, jobRetention)
	pipe.LPush(ctx, queueKey(job.Queue), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", ErrRegistry.NewWithCause(CodeBackend, err).WithDetail("queue", job.Queue)
	}

	return id, nil
}

// GetJob retrieves a job by id.
func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (*jobx.JobInfo, error) {
	data, err := q.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrRegistry.New(CodeNotFound).WithDetail("job_id", jobID)
		}
		return nil, ErrRegistry.NewWithCause(CodeBackend, err).WithDetail("job_id", jobID)
	}

	var info jobx.JobInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, ErrRegistry.NewWithCause(CodeCodec, err).WithDetail("job_id", jobID)
	}
	return &info, nil
}

// Dequeue blocks until a job arrives on one of the queues or the timeout
// expires. A nil job with a nil error means the wait timed out.
func (q *RedisQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobx.JobInfo, error) {
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = queueKey(name)
	}

	result, err := q.rdb.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if err == redis.Nil || ctx.Err() != nil {
			return nil, nil
		}
		return nil, ErrRegistry.NewWithCause(CodeBackend, err)
	}

	jobID := result[1]
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	info.Status = jobx.StatusActive
	info.Attempts++
	info.UpdatedAt = time.Now().UTC()
	if err := q.saveJob(ctx, info); err != nil {
		return nil, err
	}

	return info, nil
}

// Complete marks a job as done.
func (q *RedisQueue) Complete(ctx context.Context, jobID string) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	info.Status = jobx.StatusCompleted
	info.UpdatedAt = time.Now().UTC()
	return q.saveJob(ctx, info)
}

// Fail records a failure and reports whether the job has retries left.
func (q *RedisQueue) Fail(ctx context.Context, jobID string, errMsg string) (bool, error) {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}

	shouldRetry := info.Attempts < info.MaxRetries
	if shouldRetry {
		info.Status = jobx.StatusRetrying
	} else {
		info.Status = jobx.StatusFailed
	}
	info.Error = errMsg
	info.UpdatedAt = time.Now().UTC()

	if err := q.saveJob(ctx, info); err != nil {
		return false, err
	}
	return shouldRetry, nil
}

// Retry schedules a failed job to re-enter its queue after the delay.
func (q *RedisQueue) Retry(ctx context.Context, jobID string, delay time.Duration) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	score := float64(time.Now().UTC().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, scheduledKey(info.Queue), redis.Z{
		Score:  score,
		Member: jobID,
	}).Err(); err != nil {
		return ErrRegistry.NewWithCause(CodeBackend, err).WithDetail("job_id", jobID)
	}
	return nil
}

// promoteScript atomically moves all due job ids from the scheduled set to
// the ready queue.
var promoteScript = redis.NewScript(`
local scheduled_key = KEYS[1]
local queue_key = KEYS[2]
local now = tonumber(ARGV[1])
local ids = redis.call('ZRANGEBYSCORE', scheduled_key, '-inf', now)
if #ids > 0 then
    for _, id in ipairs(ids) do
        redis.call('LPUSH', queue_key, id)
    end
    redis.call('ZREMRANGEBYSCORE', scheduled_key, '-inf', now)
end
return #ids
`)

// PromoteScheduled moves due delayed jobs to the ready queue.
func (q *RedisQueue) PromoteScheduled(ctx context.Context, queues []string) error {
	now := strconv.FormatInt(time.Now().UTC().Unix(), 10)

	for _, name := range queues {
		err := promoteScript.Run(ctx, q.rdb,
			[]string{scheduledKey(name), queueKey(name)},
			now,
		).Err()
		if err != nil && err != redis.Nil {
			return ErrRegistry.NewWithCause(CodeBackend, err).WithDetail("queue", name)
		}
	}
	return nil
}

func (q *RedisQueue) saveJob(ctx context.Context, info *jobx.JobInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return ErrRegistry.NewWithCause(CodeCodec, err).WithDetail("job_id", info.ID)
	}
	if err := q.rdb.Set(ctx, jobKey(info.ID), data, jobRetention).Err(); err != nil {
		return ErrRegistry.NewWithCause(CodeBackend, err).WithDetail("job_id", info.ID)
	}
	return nil
}
