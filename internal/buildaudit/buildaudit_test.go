//go:build integration

// Run with:
//
//	go test -tags integration -v ./internal/buildaudit/...
//
// Requires Docker (for testcontainers-go) and a reachable Docker socket.
package buildaudit_test

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

	"github.com/kernelscript/ksc/internal/buildaudit"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "db", "migrations")
}

func setupLog(t *testing.T) (*buildaudit.Log, func()) {
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

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("pgxpool.New: %v", err)
	}

	sql, err := os.ReadFile(filepath.Join(migrationsDir(t), "0001_init.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return buildaudit.New(pool), cleanup
}

func TestLog_AppendChainsFromGenesis(t *testing.T) {
	log, cleanup := setupLog(t)
	defer cleanup()
	ctx := context.Background()

	e1, err := log.Append(ctx, "entry-1", "xdp_drop", buildaudit.Outcome{Unit: "xdp_drop", Status: "succeeded"})
	if err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if e1.SequenceNum != 1 {
		t.Errorf("SequenceNum = %d, want 1", e1.SequenceNum)
	}

	e2, err := log.Append(ctx, "entry-2", "xdp_drop", buildaudit.Outcome{Unit: "xdp_drop", Status: "failed", Error: "boom"})
	if err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	if e2.PrevHash != e1.EventHash {
		t.Errorf("PrevHash = %q, want %q", e2.PrevHash, e1.EventHash)
	}

	entries, err := log.Query(ctx, "xdp_drop", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if _, ok := buildaudit.Verify(entries); !ok {
		t.Error("expected chain to verify intact")
	}
}

func TestLog_VerifyDetectsTampering(t *testing.T) {
	log, cleanup := setupLog(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := log.Append(ctx, "entry-1", "tc_meter", buildaudit.Outcome{Unit: "tc_meter", Status: "succeeded"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := log.Append(ctx, "entry-2", "tc_meter", buildaudit.Outcome{Unit: "tc_meter", Status: "succeeded"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := log.Query(ctx, "tc_meter", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	entries[1].Payload = []byte(`{"unit":"tc_meter","status":"tampered"}`)

	brokenAt, ok := buildaudit.Verify(entries)
	if ok {
		t.Fatal("expected Verify to detect tampering")
	}
	if brokenAt != 1 {
		t.Errorf("brokenAt = %d, want 1", brokenAt)
	}
}

func TestLog_DifferentUnitsChainIndependently(t *testing.T) {
	log, cleanup := setupLog(t)
	defer cleanup()
	ctx := context.Background()

	e1, err := log.Append(ctx, "a-1", "unit-a", buildaudit.Outcome{Unit: "unit-a", Status: "succeeded"})
	if err != nil {
		t.Fatalf("Append unit-a: %v", err)
	}
	e2, err := log.Append(ctx, "b-1", "unit-b", buildaudit.Outcome{Unit: "unit-b", Status: "succeeded"})
	if err != nil {
		t.Fatalf("Append unit-b: %v", err)
	}
	if e1.SequenceNum != 1 || e2.SequenceNum != 1 {
		t.Errorf("expected both units to start at sequence 1, got %d and %d", e1.SequenceNum, e2.SequenceNum)
	}
}
