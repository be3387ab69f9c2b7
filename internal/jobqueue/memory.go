package jobqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	job      Job
	deadline time.Time
}

type memQueue struct {
	waiting   []*memEntry
	active    map[string]*memEntry
	completed int64
	failed    int64
}

// MemoryQueue is a process-local Queue. It honours delays, ordering and
// visibility timeouts against an injectable clock, which keeps tests deterministic.
type MemoryQueue struct {
	mu         sync.Mutex
	now        func() time.Time
	visibility time.Duration
	seq        int64
	queues     map[string]*memQueue
}

type MemoryOption func(*MemoryQueue)

func WithClock(now func() time.Time) MemoryOption {
	return func(q *MemoryQueue) {
		q.now = now
	}
}

func WithVisibilityTimeout(d time.Duration) MemoryOption {
	return func(q *MemoryQueue) {
		if d > 0 {
			q.visibility = d
		}
	}
}

func NewMemoryQueue(opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		now:        time.Now,
		visibility: DefaultVisibilityTimeout,
		queues:     make(map[string]*memQueue),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) get(name string) *memQueue {
	mq, ok := q.queues[name]
	if !ok {
		mq = &memQueue{active: make(map[string]*memEntry)}
		q.queues[name] = mq
	}
	return mq
}

func (q *MemoryQueue) Enqueue(_ context.Context, queue, jobType string, payload any, opts ...EnqueueOption) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := newJob(queue, jobType, payload, q.now(), opts)
	if err != nil {
		return nil, err
	}
	q.seq++
	job.Seq = q.seq

	mq := q.get(queue)
	mq.waiting = append(mq.waiting, &memEntry{job: *job})

	out := *job
	return &out, nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, queue string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	mq := q.get(queue)
	q.recoverExpired(mq, now)

	idx := -1
	for i, e := range mq.waiting {
		if e.job.RunAt.After(now) {
			continue
		}
		if idx == -1 || before(e, mq.waiting[idx]) {
			idx = i
		}
	}
	if idx == -1 {
		return nil, ErrNoJob
	}

	entry := mq.waiting[idx]
	mq.waiting = append(mq.waiting[:idx], mq.waiting[idx+1:]...)

	entry.job.Attempt++
	entry.job.Status = StatusActive
	entry.job.UpdatedAt = now
	entry.deadline = now.Add(q.visibility)
	mq.active[entry.job.ID] = entry

	out := entry.job
	return &out, nil
}

// recoverExpired returns jobs whose visibility deadline passed to the waiting set.
func (q *MemoryQueue) recoverExpired(mq *memQueue, now time.Time) {
	for id, e := range mq.active {
		if now.Before(e.deadline) {
			continue
		}
		delete(mq.active, id)
		e.job.Status = StatusWaiting
		mq.waiting = append(mq.waiting, e)
	}
}

func before(a, b *memEntry) bool {
	if !a.job.RunAt.Equal(b.job.RunAt) {
		return a.job.RunAt.Before(b.job.RunAt)
	}
	return a.job.Seq < b.job.Seq
}

func (q *MemoryQueue) Complete(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	mq, err := q.release(job)
	if err != nil {
		return err
	}
	mq.completed++
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, job *Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	mq, err := q.release(job)
	if err != nil {
		return err
	}
	mq.failed++
	job.Status = StatusFailed
	job.Error = errorText(cause)
	return nil
}

// release drops job from the active set if job is still its current claim.
func (q *MemoryQueue) release(job *Job) (*memQueue, error) {
	mq := q.get(job.Queue)
	e, ok := mq.active[job.ID]
	if !ok || e.job.Attempt != job.Attempt {
		return nil, ErrJobNotFound
	}
	delete(mq.active, job.ID)
	return mq, nil
}

func (q *MemoryQueue) Counts(_ context.Context, queue string) (Counts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	mq := q.get(queue)

	c := Counts{
		Active:    int64(len(mq.active)),
		Completed: mq.completed,
		Failed:    mq.failed,
	}
	for _, e := range mq.waiting {
		if e.job.RunAt.After(now) {
			c.Delayed++
		} else {
			c.Waiting++
		}
	}
	return c, nil
}

// Jobs returns a snapshot of the jobs not yet handed to a worker, in delivery order.
func (q *MemoryQueue) Jobs(queue string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	mq := q.get(queue)
	entries := make([]*memEntry, len(mq.waiting))
	copy(entries, mq.waiting)
	sort.Slice(entries, func(i, j int) bool { return before(entries[i], entries[j]) })

	jobs := make([]Job, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}
