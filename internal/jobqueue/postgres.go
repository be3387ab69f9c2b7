package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLQueue keeps jobs in the jobs table. Workers claim rows with
// FOR UPDATE SKIP LOCKED so concurrent dequeues never hand out the same row.
type SQLQueue struct {
	db         *sqlx.DB
	visibility time.Duration
	now        func() time.Time
}

type SQLOptions struct {
	VisibilityTimeout time.Duration
	Now               func() time.Time
}

func NewSQLQueue(db *sqlx.DB, opts SQLOptions) *SQLQueue {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SQLQueue{db: db, visibility: opts.VisibilityTimeout, now: opts.Now}
}

type jobRow struct {
	Seq       int64          `db:"seq"`
	ID        string         `db:"id"`
	Queue     string         `db:"queue"`
	JobType   string         `db:"job_type"`
	Payload   string         `db:"payload"`
	Status    string         `db:"status"`
	Attempt   int            `db:"attempt"`
	RunAt     time.Time      `db:"run_at"`
	LastError sql.NullString `db:"last_error"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r jobRow) toJob() *Job {
	return &Job{
		ID:        r.ID,
		Seq:       r.Seq,
		Queue:     r.Queue,
		Type:      r.JobType,
		Payload:   []byte(r.Payload),
		Attempt:   r.Attempt,
		Status:    JobStatus(r.Status),
		RunAt:     r.RunAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Error:     r.LastError.String,
	}
}

const jobColumns = `seq, id, queue, job_type, payload, status, attempt, run_at, last_error, created_at, updated_at`

func (q *SQLQueue) Enqueue(ctx context.Context, queue, jobType string, payload any, opts ...EnqueueOption) (*Job, error) {
	job, err := newJob(queue, jobType, payload, q.now(), opts)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO jobs (id, queue, job_type, payload, status, attempt, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'waiting', 0, $5, $6, $6)
		RETURNING seq`
	if err := q.db.QueryRowxContext(ctx, query,
		job.ID, job.Queue, job.Type, string(job.Payload), job.RunAt, job.CreatedAt,
	).Scan(&job.Seq); err != nil {
		return nil, fmt.Errorf("jobqueue: enqueue %s on %s: %w", jobType, queue, err)
	}
	return job, nil
}

func (q *SQLQueue) Dequeue(ctx context.Context, queue string) (*Job, error) {
	now := q.now()

	query := `WITH next AS (
			SELECT seq FROM jobs
			WHERE queue = $1
			  AND ((status = 'waiting' AND run_at <= $2)
			    OR (status = 'active' AND locked_until <= $2))
			ORDER BY run_at, seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j
		SET status = 'active', attempt = j.attempt + 1, locked_until = $3, updated_at = $2
		FROM next
		WHERE j.seq = next.seq
		RETURNING j.seq, j.id, j.queue, j.job_type, j.payload, j.status, j.attempt, j.run_at, j.last_error, j.created_at, j.updated_at`

	var row jobRow
	err := q.db.GetContext(ctx, &row, query, queue, now, now.Add(q.visibility))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue: dequeue from %s: %w", queue, err)
	}
	return row.toJob(), nil
}

func (q *SQLQueue) Complete(ctx context.Context, job *Job) error {
	return q.finish(ctx, job, StatusCompleted, nil)
}

func (q *SQLQueue) Fail(ctx context.Context, job *Job, cause error) error {
	return q.finish(ctx, job, StatusFailed, cause)
}

func (q *SQLQueue) finish(ctx context.Context, job *Job, status JobStatus, cause error) error {
	var lastErr sql.NullString
	if cause != nil {
		lastErr = sql.NullString{String: cause.Error(), Valid: true}
	}

	// attempt guards against finishing a delivery that already timed out and was re-claimed
	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, last_error = $2, locked_until = NULL, updated_at = $3
		 WHERE id = $4 AND status = 'active' AND attempt = $5`,
		string(status), lastErr, q.now(), job.ID, job.Attempt,
	)
	if err != nil {
		return fmt.Errorf("jobqueue: mark job %s %s: %w", job.ID, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobqueue: mark job %s %s: %w", job.ID, status, err)
	}
	if n == 0 {
		return ErrJobNotFound
	}

	job.Status = status
	job.Error = lastErr.String
	return nil
}

func (q *SQLQueue) Counts(ctx context.Context, queue string) (Counts, error) {
	query := `SELECT
			COUNT(*) FILTER (WHERE status = 'waiting' AND run_at <= $2) AS waiting,
			COUNT(*) FILTER (WHERE status = 'waiting' AND run_at > $2) AS delayed,
			COUNT(*) FILTER (WHERE status = 'active') AS active,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM jobs WHERE queue = $1`

	var c Counts
	if err := q.db.GetContext(ctx, &c, query, queue, q.now()); err != nil {
		return Counts{}, fmt.Errorf("jobqueue: counts for %s: %w", queue, err)
	}
	return c, nil
}

// Purge deletes finished jobs older than JobTTL.
func (q *SQLQueue) Purge(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN ('completed', 'failed') AND updated_at < $1`,
		q.now().Add(-JobTTL),
	)
	if err != nil {
		return 0, fmt.Errorf("jobqueue: purge finished jobs: %w", err)
	}
	return res.RowsAffected()
}
