// Package ledger implements the append-only, hash-chained record that is
// the single source of truth for every trade transition, allocation, and
// run. Nothing upstream may report success before the corresponding entry
// is durable, and the chain head is the externally verifiable checkpoint.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry kinds. Trade transitions use "trade.<state>"; allocations and
// runs carry their own kinds.
const (
	KindTradeProposed  = "trade.proposed"
	KindTradeAccepted  = "trade.accepted"
	KindTradeExecuting = "trade.executing"
	KindTradeSettled   = "trade.settled"
	KindTradeAllocated = "trade.allocated"
	KindTradeRejected  = "trade.rejected"
	KindTradeFailed    = "trade.failed"
	KindAllocation     = "allocation"
	KindRunStarted     = "run.started"
	KindRunFinished    = "run.finished"
)

var (
	// ErrDuplicateEntry is returned when an idempotency key has already
	// been appended. The caller's retry is safe: the first append won.
	ErrDuplicateEntry = errors.New("ledger: duplicate entry")

	// ErrPersistence wraps storage failures. The caller must not consider
	// the preceding operation committed.
	ErrPersistence = errors.New("ledger: persistence failure")
)

// genesisHash anchors the chain before the first entry.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one immutable, hash-chained ledger record. Hash covers the
// sequence number, kind, idempotency key, payload bytes, timestamp, and
// the previous entry's hash, so a holder of the exported sequence can
// re-verify the chain without any other state.
type Entry struct {
	Seq       uint64          `json:"seq"`
	Kind      string          `json:"kind"`
	Key       string          `json:"key"` // idempotency key, e.g. "<trade-id>:settled"
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// computeHash derives the entry hash from everything except Hash itself.
func computeHash(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\n%s\n%s\n", e.Seq, e.Kind, e.Key)
	h.Write(e.Payload)
	fmt.Fprintf(h, "\n%d\n%s", e.CreatedAt.UnixNano(), e.PrevHash)
	return hex.EncodeToString(h.Sum(nil))
}

// Store is the append-only ledger contract. Appends are serialized by the
// implementation; there is exactly one valid next entry.
type Store interface {
	// Append marshals payload, chains it onto the head, and durably
	// persists the entry before returning. A repeated idempotency key
	// fails with ErrDuplicateEntry; storage trouble wraps ErrPersistence.
	Append(kind, key string, payload any) (*Entry, error)

	// Scan streams entries with Seq >= fromSeq in sequence order,
	// stopping early if fn returns an error.
	Scan(fromSeq uint64, fn func(*Entry) error) error

	// Head returns the current sequence number and head hash
	// (0, genesis hash for an empty ledger).
	Head() (uint64, string, error)

	Close() error
}

// nextEntry builds and hashes the successor of (seq, prevHash).
func nextEntry(seq uint64, prevHash, kind, key string, payload any) (*Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	e := &Entry{
		Seq:       seq + 1,
		Kind:      kind,
		Key:       key,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
		PrevHash:  prevHash,
	}
	e.Hash = computeHash(e)
	return e, nil
}
