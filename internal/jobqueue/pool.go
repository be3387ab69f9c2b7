package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type PoolConfig struct {
	Queue        string
	Concurrency  int
	PollInterval time.Duration
}

type Worker struct {
	ID         int
	WorkerPool chan chan *Job
	JobChannel chan *Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan *Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan *Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(*Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "job_id", job.ID, "attempt", job.Attempt)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Pool drains one queue with a fixed number of workers. A job is only pulled
// from the backend once a worker is idle, so nothing is buffered in memory.
type Pool struct {
	queue   Queue
	handler Handler
	config  PoolConfig
	logger  *slog.Logger

	workerPool chan chan *Job

	// fetchCtx stops the dispatcher and idle workers; jobCtx is handed to handlers
	// and only cancelled when Shutdown runs out of time.
	fetchCtx    context.Context
	fetchCancel context.CancelFunc
	jobCtx      context.Context
	jobCancel   context.CancelFunc

	wg       sync.WaitGroup
	inflight sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	stopping chan struct{}
}

func NewPool(queue Queue, handler Handler, config PoolConfig, logger *slog.Logger) *Pool {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		queue:      queue,
		handler:    handler,
		config:     config,
		logger:     logger.With("queue", config.Queue),
		workerPool: make(chan chan *Job, config.Concurrency),
		stopping:   make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.once.Do(func() {
		p.fetchCtx, p.fetchCancel = context.WithCancel(ctx)
		p.jobCtx, p.jobCancel = context.WithCancel(context.WithoutCancel(ctx))

		for i := 0; i < p.config.Concurrency; i++ {
			worker := NewWorker(i, p.workerPool, p.logger)
			worker.Start(p.fetchCtx, &p.wg, p.process)
		}

		p.wg.Add(1)
		go p.dispatch()

		p.logger.Info("worker pool started",
			"concurrency", p.config.Concurrency,
			"poll_interval", p.config.PollInterval)
	})
}

func (p *Pool) dispatch() {
	defer p.wg.Done()

	for {
		var jobChannel chan *Job
		select {
		case jobChannel = <-p.workerPool:
		case <-p.fetchCtx.Done():
			p.logger.Info("dispatcher shutting down")
			return
		}

		job, err := p.next()
		if err != nil {
			p.logger.Info("dispatcher shutting down")
			return
		}

		p.inflight.Add(1)
		select {
		case jobChannel <- job:
		case <-p.fetchCtx.Done():
			// worker left; the job stays active and is redelivered after the visibility timeout
			p.inflight.Done()
			p.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// next blocks until a job is claimed or the pool stops fetching.
func (p *Pool) next() (*Job, error) {
	for {
		job, err := p.queue.Dequeue(p.fetchCtx, p.config.Queue)
		if err == nil {
			return job, nil
		}
		if p.fetchCtx.Err() != nil {
			return nil, p.fetchCtx.Err()
		}
		if !errors.Is(err, ErrNoJob) {
			p.logger.Error("failed to dequeue job", "error", err)
		}

		select {
		case <-time.After(p.config.PollInterval):
		case <-p.fetchCtx.Done():
			return nil, p.fetchCtx.Err()
		}
	}
}

func (p *Pool) process(job *Job) {
	defer p.inflight.Done()

	log := p.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempt)
	err := p.run(job)

	if err != nil && errors.Is(err, context.Canceled) && p.isStopping() {
		log.Warn("job interrupted by shutdown, leaving for redelivery")
		return
	}

	if errors.Is(err, ErrRedeliver) {
		log.Warn("job deferred, leaving for redelivery", "error", err)
		return
	}

	// acknowledgement must outlive a cancelled job context
	ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err != nil {
		log.Error("job failed", "error", err)
		if ferr := p.queue.Fail(ackCtx, job, err); ferr != nil {
			log.Error("failed to mark job failed", "error", ferr)
		}
		return
	}

	if cerr := p.queue.Complete(ackCtx, job); cerr != nil {
		log.Error("failed to mark job completed", "error", cerr)
		return
	}
	log.Debug("job completed")
}

func (p *Pool) run(job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler(p.jobCtx, job)
}

func (p *Pool) isStopping() bool {
	select {
	case <-p.stopping:
		return true
	default:
		return false
	}
}

// Shutdown stops fetching and waits for in-flight jobs. When ctx expires first,
// running handlers are cancelled and Shutdown returns ctx's error.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.fetchCancel == nil {
		return nil
	}

	p.logger.Info("shutting down worker pool")
	p.stopOnce.Do(func() { close(p.stopping) })
	p.fetchCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.jobCancel()
		p.logger.Info("worker pool shutdown complete")
		return nil
	case <-ctx.Done():
		p.jobCancel()
		<-done
		p.logger.Warn("worker pool shutdown timed out, in-flight jobs cancelled")
		return ctx.Err()
	}
}
