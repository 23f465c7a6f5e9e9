//go:build integration

// Run with:
//
//	go test -tags integration -v ./internal/jobstore/...
//
// Requires Docker (for testcontainers-go) and a reachable Docker socket.
package jobstore_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kernelscript/ksc/internal/jobstore"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "db", "migrations")
}

func applyMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool, dir string) {
	t.Helper()
	sql, err := os.ReadFile(filepath.Join(dir, "0001_init.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
}

func setupStore(t *testing.T) (*jobstore.Store, func()) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcpostgres.WithDatabase("ksc_test"),
		tcpostgres.WithUsername("ksc"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("get connection string: %v", err)
	}

	rawPool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("connect for migrations: %v", err)
	}
	applyMigrations(t, ctx, rawPool, migrationsDir(t))
	rawPool.Close()

	store, err := jobstore.Open(ctx, connStr, 2, 20*time.Millisecond)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("jobstore.Open: %v", err)
	}

	cleanup := func() {
		store.Close(ctx)
		_ = pgContainer.Terminate(ctx)
	}
	return store, cleanup
}

func TestStore_RecordFlushesAtBatchSize(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		job := jobstore.Job{
			JobID:       "job-" + string(rune('a'+i)),
			Unit:        "xdp_drop",
			SourceHash:  "hash",
			Status:      jobstore.StatusSucceeded,
			SubmittedAt: now,
			CompletedAt: &now,
		}
		if err := store.Record(ctx, job); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	jobs, err := store.QueryJobs(ctx, jobstore.JobQuery{Unit: "xdp_drop"})
	if err != nil {
		t.Fatalf("QueryJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
}

func TestStore_RecordUpsertsOnJobID(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	job := jobstore.Job{JobID: "job-x", Unit: "tc_meter", SourceHash: "h1", Status: jobstore.StatusRunning, SubmittedAt: now}
	if err := store.Record(ctx, job); err != nil {
		t.Fatalf("Record queued: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	job.Status = jobstore.StatusSucceeded
	job.CompletedAt = &now
	if err := store.Record(ctx, job); err != nil {
		t.Fatalf("Record succeeded: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	jobs, err := store.QueryJobs(ctx, jobstore.JobQuery{Unit: "tc_meter"})
	if err != nil {
		t.Fatalf("QueryJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1 (upsert, not duplicate)", len(jobs))
	}
	if jobs[0].Status != jobstore.StatusSucceeded {
		t.Errorf("Status = %q, want succeeded", jobs[0].Status)
	}
}

func TestStore_QueryJobsFiltersByStatus(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	failed := jobstore.StatusFailed
	if err := store.Record(ctx, jobstore.Job{JobID: "j1", Unit: "u", Status: jobstore.StatusSucceeded, SubmittedAt: now}); err != nil {
		t.Fatalf("Record j1: %v", err)
	}
	if err := store.Record(ctx, jobstore.Job{JobID: "j2", Unit: "u", Status: jobstore.StatusFailed, ErrorMessage: "boom", SubmittedAt: now}); err != nil {
		t.Fatalf("Record j2: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	jobs, err := store.QueryJobs(ctx, jobstore.JobQuery{Unit: "u", Status: &failed})
	if err != nil {
		t.Fatalf("QueryJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobID != "j2" {
		t.Fatalf("QueryJobs with status filter = %+v", jobs)
	}
}
