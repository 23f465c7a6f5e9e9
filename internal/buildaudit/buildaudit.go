// Package buildaudit is the tamper-evident, hash-chained compile audit log
// for ksc-server: every compile outcome is appended as a row whose hash
// covers its own payload and the previous row's hash, so any row altered
// after the fact breaks the chain from that point forward.
package buildaudit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one append-only audit log row.
type Entry struct {
	EntryID     string
	Unit        string
	SequenceNum int64
	EventHash   string
	PrevHash    string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// Outcome is the compile result recorded for one audit entry.
type Outcome struct {
	Unit       string `json:"unit"`
	SourceHash string `json:"source_hash"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// genesisHash is the previous-hash value recorded for the first entry of a
// unit's chain.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Log is the PostgreSQL-backed hash-chained audit log.
type Log struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. ksc-server opens this pool separately from the
// one jobstore.Open creates for itself.
func New(pool *pgxpool.Pool) *Log {
	return &Log{pool: pool}
}

// Append computes the next sequence number and hash for unit's chain and
// inserts a new entry recording outcome. It is safe for concurrent callers
// targeting different units; concurrent callers targeting the same unit must
// serialize externally, since the sequence number and prev-hash lookup are
// not performed inside a single transaction with the insert.
func (l *Log) Append(ctx context.Context, entryID, unit string, outcome Outcome) (*Entry, error) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("buildaudit: marshal outcome: %w", err)
	}

	seq, prevHash, err := l.head(ctx, unit)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		EntryID:     entryID,
		Unit:        unit,
		SequenceNum: seq + 1,
		PrevHash:    prevHash,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	e.EventHash = computeHash(e)

	_, err = l.pool.Exec(ctx, `
		INSERT INTO build_audit_entries
			(entry_id, unit, sequence_num, event_hash, prev_hash, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.EntryID, e.Unit, e.SequenceNum, e.EventHash, e.PrevHash, []byte(e.Payload), e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("buildaudit: insert entry: %w", err)
	}
	return e, nil
}

// head returns the sequence number and event hash of unit's most recent
// entry, or (0, genesisHash) if unit has no entries yet.
func (l *Log) head(ctx context.Context, unit string) (int64, string, error) {
	var seq int64
	var hash string
	err := l.pool.QueryRow(ctx, `
		SELECT sequence_num, event_hash
		FROM   build_audit_entries
		WHERE  unit = $1
		ORDER  BY sequence_num DESC
		LIMIT  1`, unit,
	).Scan(&seq, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, genesisHash, nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("buildaudit: head: %w", err)
	}
	return seq, hash, nil
}

// computeHash is the SHA-256 hex digest covering the entry's own fields and
// the previous entry's hash, forming the chain link.
func computeHash(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s", e.EntryID, e.Unit, e.SequenceNum, e.PrevHash, e.Payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Query returns unit's audit entries with created_at in [from, to), ordered
// by sequence number ascending.
func (l *Log) Query(ctx context.Context, unit string, from, to time.Time) ([]Entry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT entry_id, unit, sequence_num, event_hash, prev_hash, payload, created_at
		FROM   build_audit_entries
		WHERE  unit = $1 AND created_at >= $2 AND created_at < $3
		ORDER  BY sequence_num ASC`,
		unit, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("buildaudit: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var payload []byte
		if err := rows.Scan(&e.EntryID, &e.Unit, &e.SequenceNum, &e.EventHash, &e.PrevHash, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("buildaudit: scan entry: %w", err)
		}
		e.Payload = payload
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Verify walks entries in sequence order and reports the first index whose
// event hash does not match its recomputed value or whose prev-hash does not
// chain from the previous entry, or ok=true if the whole slice is intact.
func Verify(entries []Entry) (brokenAt int, ok bool) {
	prev := genesisHash
	for i, e := range entries {
		if e.PrevHash != prev {
			return i, false
		}
		if computeHash(&e) != e.EventHash {
			return i, false
		}
		prev = e.EventHash
	}
	return -1, true
}
