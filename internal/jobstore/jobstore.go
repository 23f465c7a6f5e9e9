// Package jobstore is the PostgreSQL-backed compile job history for
// ksc-server. Job records are batched the way the teacher's alert ingestion
// path batches writes: callers enqueue a finished job's result and the store
// flushes to the database either when the buffer fills or when the
// background ticker fires, whichever comes first.
package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// DefaultBatchSize is the maximum number of job rows held in memory
	// before an automatic flush is triggered.
	DefaultBatchSize = 50

	// DefaultFlushInterval is how often the background goroutine flushes
	// pending jobs even when the batch has not yet reached DefaultBatchSize.
	DefaultFlushInterval = 200 * time.Millisecond
)

// Status is the terminal or in-flight state of a compile job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one compile request's history row.
type Job struct {
	JobID        string
	Unit         string
	SourceHash   string
	Status       Status
	ErrorMessage string
	SubmittedAt  time.Time
	CompletedAt  *time.Time
}

// JobQuery carries the filter and pagination parameters for QueryJobs.
type JobQuery struct {
	Unit   string
	Status *Status
	Limit  int
	Offset int
}

// Store is the PostgreSQL-backed job history layer.
type Store struct {
	pool          *pgxpool.Pool
	mu            sync.Mutex
	batch         []Job
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// Open opens a pgxpool connection to connStr, pings the database, and starts
// the background flush goroutine. batchSize <= 0 and flushInterval <= 0 are
// replaced with their respective defaults.
func Open(ctx context.Context, connStr string, batchSize int, flushInterval time.Duration) (*Store, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("jobstore: pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("jobstore: pool.Ping: %w", err)
	}

	s := &Store{
		pool:          pool,
		batch:         make([]Job, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go s.flushLoop()
	return s, nil
}

func (s *Store) flushLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			_ = s.Flush(context.Background())
		}
	}
}

// Close stops the background flush goroutine, flushes any remaining
// buffered jobs, and closes the connection pool. Safe to call more than
// once.
func (s *Store) Close(ctx context.Context) {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
		<-s.doneCh
		_ = s.Flush(ctx)
	}
	s.pool.Close()
}

// Record enqueues job for deferred batch insertion. If the buffer reaches
// batchSize after appending, Flush runs synchronously before returning.
func (s *Store) Record(ctx context.Context, job Job) error {
	s.mu.Lock()
	s.batch = append(s.batch, job)
	full := len(s.batch) >= s.batchSize
	s.mu.Unlock()

	if full {
		return s.Flush(ctx)
	}
	return nil
}

// Flush drains the current job buffer and sends all rows to PostgreSQL in a
// single pgx.Batch round-trip. Safe to call concurrently.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return nil
	}
	toInsert := s.batch
	s.batch = make([]Job, 0, s.batchSize)
	s.mu.Unlock()

	const query = `
		INSERT INTO compile_jobs
			(job_id, unit, source_hash, status, error_message, submitted_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE SET
			status        = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			completed_at  = EXCLUDED.completed_at`

	b := &pgx.Batch{}
	for i := range toInsert {
		j := &toInsert[i]
		b.Queue(query, j.JobID, j.Unit, j.SourceHash, string(j.Status), j.ErrorMessage, j.SubmittedAt, j.CompletedAt)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	for range toInsert {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("jobstore: batch exec job: %w", err)
		}
	}
	return nil
}

// QueryJobs returns job history rows matching q, most recently submitted
// first.
func (s *Store) QueryJobs(ctx context.Context, q JobQuery) ([]Job, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}

	args := []any{q.Limit, q.Offset}
	where := "WHERE TRUE"
	argIdx := 3

	if q.Unit != "" {
		where += fmt.Sprintf(" AND unit = $%d", argIdx)
		args = append(args, q.Unit)
		argIdx++
	}
	if q.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*q.Status))
		argIdx++
	}

	sql := fmt.Sprintf(`
		SELECT job_id, unit, source_hash, status, error_message, submitted_at, completed_at
		FROM   compile_jobs
		%s
		ORDER  BY submitted_at DESC
		LIMIT  $1 OFFSET $2`, where)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("jobstore: query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var status string
		if err := rows.Scan(&j.JobID, &j.Unit, &j.SourceHash, &status, &j.ErrorMessage, &j.SubmittedAt, &j.CompletedAt); err != nil {
			return nil, fmt.Errorf("jobstore: scan job: %w", err)
		}
		j.Status = Status(status)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
