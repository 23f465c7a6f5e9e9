package rest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kernelscript/ksc/internal/buildaudit"
	"github.com/kernelscript/ksc/internal/cache"
	"github.com/kernelscript/ksc/internal/compiler"
	"github.com/kernelscript/ksc/internal/jobstore"
)

// Server holds the dependencies needed by the REST handlers.
type Server struct {
	jobs     JobStore
	audit    AuditLog
	cache    Cache
	notifier BuildNotifier
}

// NewServer creates a new Server with the provided dependencies. notifier
// may be nil, in which case compile results are not pushed over WebSocket.
func NewServer(jobs JobStore, audit AuditLog, c Cache, notifier BuildNotifier) *Server {
	return &Server{jobs: jobs, audit: audit, cache: c, notifier: notifier}
}

// handleHealthz responds to GET /healthz with no authentication required.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// compileRequest is the POST /api/v1/compile request body.
type compileRequest struct {
	Unit   string `json:"unit"`
	Source string `json:"source"`
}

// compileResponse is the POST /api/v1/compile success response body.
type compileResponse struct {
	Unit    string `json:"unit"`
	Cached  bool   `json:"cached"`
	KernelC string `json:"kernel_c"`
	UserC   string `json:"user_c"`
}

// handleCompile responds to POST /api/v1/compile. It is cache-checked by
// the SHA-256 of the submitted source: a cache hit skips the compiler
// pipeline entirely. Every invocation, hit or miss, records a job history
// row and a hash-chained audit entry.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "'source' is required")
		return
	}
	unit := req.Unit
	if unit == "" {
		unit = "program"
	}

	ctx := r.Context()
	sourceHash := sha256Hex(req.Source)
	jobID := uuid.NewString()
	submittedAt := time.Now().UTC()

	if a, hit, err := s.cache.Get(ctx, sourceHash); err == nil && hit {
		s.recordOutcome(ctx, jobID, unit, sourceHash, submittedAt, jobstore.StatusSucceeded, "")
		s.respondCompiled(w, unit, true, a.KernelC, a.UserC)
		return
	}

	out, err := compiler.Compile(unit+".ks", req.Source, compiler.WithUnitName(unit))
	if err != nil {
		s.recordOutcome(ctx, jobID, unit, sourceHash, submittedAt, jobstore.StatusFailed, err.Error())
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	_ = s.cache.Put(ctx, sourceHash, cache.Artifact{Unit: unit, KernelC: out.KernelC, UserC: out.UserC})
	s.recordOutcome(ctx, jobID, unit, sourceHash, submittedAt, jobstore.StatusSucceeded, "")
	s.respondCompiled(w, unit, false, out.KernelC, out.UserC)
}

func (s *Server) respondCompiled(w http.ResponseWriter, unit string, cached bool, kernelC, userC string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(compileResponse{Unit: unit, Cached: cached, KernelC: kernelC, UserC: userC})
}

// recordOutcome writes the job history row and the hash-chained audit entry
// for one compile attempt, then notifies WebSocket subscribers. Store errors
// are logged, not surfaced to the caller: a job-history write failure must
// not turn a successful compile into a failed HTTP response.
func (s *Server) recordOutcome(ctx context.Context, jobID, unit, sourceHash string, submittedAt time.Time, status jobstore.Status, errMsg string) {
	completedAt := time.Now().UTC()
	job := jobstore.Job{
		JobID:        jobID,
		Unit:         unit,
		SourceHash:   sourceHash,
		Status:       status,
		ErrorMessage: errMsg,
		SubmittedAt:  submittedAt,
		CompletedAt:  &completedAt,
	}
	if err := s.jobs.Record(ctx, job); err != nil {
		slog.Error("rest: failed to record job", slog.Any("error", err))
	}

	outcome := buildaudit.Outcome{Unit: unit, SourceHash: sourceHash, Status: string(status), Error: errMsg}
	if _, err := s.audit.Append(ctx, jobID, unit, outcome); err != nil {
		slog.Error("rest: failed to append audit entry", slog.Any("error", err))
	}

	if s.notifier != nil {
		s.notifier.NotifyBuild(unit, string(status), errMsg)
	}
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// handleGetJobs responds to GET /api/v1/jobs.
//
// Supported query parameters: unit, status, limit, offset.
func (s *Server) handleGetJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	jq := jobstore.JobQuery{Unit: q.Get("unit")}
	if status := q.Get("status"); status != "" {
		st := jobstore.Status(status)
		jq.Status = &st
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "'limit' must be a positive integer")
			return
		}
		jq.Limit = limit
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "'offset' must be a non-negative integer")
			return
		}
		jq.Offset = offset
	}

	jobs, err := s.jobs.QueryJobs(r.Context(), jq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query jobs")
		return
	}
	if jobs == nil {
		jobs = []jobstore.Job{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(jobs)
}

// handleGetAudit responds to GET /api/v1/audit.
//
// Supported query parameters: unit (required), from, to (RFC3339, required).
func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	unit := q.Get("unit")
	if unit == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'unit' is required")
		return
	}

	fromStr, toStr := q.Get("from"), q.Get("to")
	if fromStr == "" || toStr == "" {
		writeError(w, http.StatusBadRequest, "query parameters 'from' and 'to' are required (RFC3339)")
		return
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "'from' must be a valid RFC3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "'to' must be a valid RFC3339 timestamp")
		return
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "'to' must be after 'from'")
		return
	}

	entries, err := s.audit.Query(r.Context(), unit, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query audit entries")
		return
	}
	if entries == nil {
		entries = []buildaudit.Entry{}
	}

	if _, ok := buildaudit.Verify(entries); !ok {
		w.Header().Set("X-Audit-Chain-Intact", "false")
	} else {
		w.Header().Set("X-Audit-Chain-Intact", "true")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(entries)
}
