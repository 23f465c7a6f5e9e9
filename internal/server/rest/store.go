package rest

import (
	"context"
	"time"

	"github.com/kernelscript/ksc/internal/buildaudit"
	"github.com/kernelscript/ksc/internal/cache"
	"github.com/kernelscript/ksc/internal/jobstore"
)

// JobStore is the subset of jobstore.Store methods the REST handlers need.
// Defining an interface lets handlers be tested against a fake without a
// live PostgreSQL connection.
type JobStore interface {
	Record(ctx context.Context, job jobstore.Job) error
	QueryJobs(ctx context.Context, q jobstore.JobQuery) ([]jobstore.Job, error)
}

// AuditLog is the subset of buildaudit.Log methods the REST handlers need.
type AuditLog interface {
	Append(ctx context.Context, entryID, unit string, outcome buildaudit.Outcome) (*buildaudit.Entry, error)
	Query(ctx context.Context, unit string, from, to time.Time) ([]buildaudit.Entry, error)
}

// Cache is the subset of cache.Cache methods the REST handlers need.
type Cache interface {
	Get(ctx context.Context, sourceHash string) (cache.Artifact, bool, error)
	Put(ctx context.Context, sourceHash string, a cache.Artifact) error
}

// BuildNotifier is notified whenever a compile finishes, so the WebSocket
// layer can push a status frame without the REST handlers knowing anything
// about WebSocket framing.
type BuildNotifier interface {
	NotifyBuild(unit, status, message string)
}
