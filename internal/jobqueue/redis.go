package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisPrefix = "jobqueue:"

	redisStatCompleted = "completed"
	redisStatFailed    = "failed"
)

// dequeueScript moves expired active members back to waiting, then claims the
// oldest eligible waiting member and bumps its attempt in the claims hash.
// Scores are unix milliseconds; members are "<zero padded seq>:<job id>" so
// equal scores fall back to enqueue order.
var dequeueScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, member in ipairs(expired) do
	redis.call('ZREM', KEYS[2], member)
	redis.call('ZADD', KEYS[1], ARGV[1], member)
end
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #items == 0 then
	return false
end
local id = string.match(items[1], ':(.*)$') or items[1]
redis.call('ZREM', KEYS[1], items[1])
redis.call('ZADD', KEYS[2], ARGV[2], items[1])
local attempt = redis.call('HINCRBY', KEYS[3], id, 1)
return {items[1], attempt}
`)

// finishScript acknowledges a claim only if it is still the current one, so a
// worker whose visibility timeout lapsed cannot settle the redelivered job.
var finishScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], ARGV[2]) ~= ARGV[3] then
	return 0
end
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HDEL', KEYS[2], ARGV[2])
redis.call('SET', KEYS[3], ARGV[4], 'PX', ARGV[5])
redis.call('HINCRBY', KEYS[4], ARGV[6], 1)
return 1
`)

type RedisOptions struct {
	Prefix            string
	VisibilityTimeout time.Duration
	Now               func() time.Time
}

// RedisQueue stores each queue as two sorted sets (waiting by eligibility,
// active by visibility deadline) plus a stats hash; job bodies live under job:<id>.
type RedisQueue struct {
	client     redis.UniversalClient
	prefix     string
	visibility time.Duration
	now        func() time.Time
}

func NewRedisQueue(client redis.UniversalClient, opts RedisOptions) *RedisQueue {
	if opts.Prefix == "" {
		opts.Prefix = DefaultRedisPrefix
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RedisQueue{
		client:     client,
		prefix:     opts.Prefix,
		visibility: opts.VisibilityTimeout,
		now:        opts.Now,
	}
}

func (q *RedisQueue) jobKey(id string) string        { return q.prefix + "job:" + id }
func (q *RedisQueue) waitingKey(queue string) string { return q.prefix + queue + ":waiting" }
func (q *RedisQueue) activeKey(queue string) string  { return q.prefix + queue + ":active" }
func (q *RedisQueue) statsKey(queue string) string   { return q.prefix + queue + ":stats" }
func (q *RedisQueue) claimsKey(queue string) string  { return q.prefix + queue + ":claims" }
func (q *RedisQueue) seqKey() string                 { return q.prefix + "seq" }

func member(job *Job) string {
	return fmt.Sprintf("%020d:%s", job.Seq, job.ID)
}

func memberJobID(m string) string {
	if i := strings.IndexByte(m, ':'); i >= 0 {
		return m[i+1:]
	}
	return m
}

func (q *RedisQueue) Enqueue(ctx context.Context, queue, jobType string, payload any, opts ...EnqueueOption) (*Job, error) {
	job, err := newJob(queue, jobType, payload, q.now(), opts)
	if err != nil {
		return nil, err
	}

	seq, err := q.client.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue: allocate sequence: %w", err)
	}
	job.Seq = seq

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: marshal job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.jobKey(job.ID), data, 0)
		pipe.ZAdd(ctx, q.waitingKey(queue), redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: member(job)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("jobqueue: enqueue %s on %s: %w", jobType, queue, err)
	}
	return job, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, queue string) (*Job, error) {
	now := q.now()
	deadline := now.Add(q.visibility)

	res, err := dequeueScript.Run(ctx, q.client,
		[]string{q.waitingKey(queue), q.activeKey(queue), q.claimsKey(queue)},
		now.UnixMilli(), deadline.UnixMilli(),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue: dequeue from %s: %w", queue, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("jobqueue: dequeue from %s: unexpected reply %v", queue, res)
	}
	m, _ := res[0].(string)
	attempt, _ := res[1].(int64)

	id := memberJobID(m)
	job, err := q.load(ctx, id)
	if err != nil {
		// body expired or was never written; drop the dangling member
		_ = q.client.ZRem(ctx, q.activeKey(queue), m).Err()
		_ = q.client.HDel(ctx, q.claimsKey(queue), id).Err()
		return nil, err
	}

	job.Attempt = int(attempt)
	job.Status = StatusActive
	job.UpdatedAt = now
	if err := q.save(ctx, job, 0); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	return q.finish(ctx, job, StatusCompleted, redisStatCompleted, nil)
}

func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error) error {
	return q.finish(ctx, job, StatusFailed, redisStatFailed, cause)
}

func (q *RedisQueue) finish(ctx context.Context, job *Job, status JobStatus, stat string, cause error) error {
	done := *job
	done.Status = status
	done.Error = errorText(cause)
	done.UpdatedAt = q.now()

	data, err := json.Marshal(&done)
	if err != nil {
		return fmt.Errorf("jobqueue: marshal job: %w", err)
	}

	released, err := finishScript.Run(ctx, q.client,
		[]string{q.activeKey(job.Queue), q.claimsKey(job.Queue), q.jobKey(job.ID), q.statsKey(job.Queue)},
		member(job), job.ID, job.Attempt, data, JobTTL.Milliseconds(), stat,
	).Int()
	if err != nil {
		return fmt.Errorf("jobqueue: mark job %s %s: %w", job.ID, status, err)
	}
	if released == 0 {
		return ErrJobNotFound
	}

	*job = done
	return nil
}

func (q *RedisQueue) Counts(ctx context.Context, queue string) (Counts, error) {
	now := fmt.Sprintf("%d", q.now().UnixMilli())

	pipe := q.client.Pipeline()
	waiting := pipe.ZCount(ctx, q.waitingKey(queue), "-inf", now)
	delayed := pipe.ZCount(ctx, q.waitingKey(queue), "("+now, "+inf")
	active := pipe.ZCard(ctx, q.activeKey(queue))
	stats := pipe.HMGet(ctx, q.statsKey(queue), redisStatCompleted, redisStatFailed)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Counts{}, fmt.Errorf("jobqueue: counts for %s: %w", queue, err)
	}

	c := Counts{
		Waiting: waiting.Val(),
		Delayed: delayed.Val(),
		Active:  active.Val(),
	}
	vals := stats.Val()
	if len(vals) == 2 {
		c.Completed = parseCount(vals[0])
		c.Failed = parseCount(vals[1])
	}
	return c, nil
}

func (q *RedisQueue) load(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue: load job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("jobqueue: unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (q *RedisQueue) save(ctx context.Context, job *Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobqueue: marshal job: %w", err)
	}
	if err := q.client.Set(ctx, q.jobKey(job.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("jobqueue: save job %s: %w", job.ID, err)
	}
	return nil
}

func parseCount(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	_, _ = fmt.Sscan(s, &n)
	return n
}
