package ledger

import (
	"fmt"
	"sync"
)

// MemoryStore keeps the chain in memory. Used in tests and as the
// fallback when no database path is configured; it still enforces the
// full append/verify contract, it just isn't durable.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	keys    map[string]struct{}

	// FailAppends makes the next N appends fail with ErrPersistence.
	// Tests use it to exercise the abort-and-replay path.
	FailAppends int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]struct{})}
}

func (s *MemoryStore) Append(kind, key string, payload any) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppends > 0 {
		s.FailAppends--
		return nil, fmt.Errorf("%w: simulated failure", ErrPersistence)
	}
	if _, dup := s.keys[key]; dup {
		return nil, fmt.Errorf("%w: key %q", ErrDuplicateEntry, key)
	}

	prevSeq, prevHash := uint64(0), genesisHash
	if n := len(s.entries); n > 0 {
		prevSeq = s.entries[n-1].Seq
		prevHash = s.entries[n-1].Hash
	}
	e, err := nextEntry(prevSeq, prevHash, kind, key, payload)
	if err != nil {
		return nil, err
	}
	s.entries = append(s.entries, *e)
	s.keys[key] = struct{}{}
	return e, nil
}

func (s *MemoryStore) Scan(fromSeq uint64, fn func(*Entry) error) error {
	s.mu.Lock()
	snapshot := make([]Entry, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	for i := range snapshot {
		if snapshot[i].Seq < fromSeq {
			continue
		}
		if err := fn(&snapshot[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Head() (uint64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.entries); n > 0 {
		return s.entries[n-1].Seq, s.entries[n-1].Hash, nil
	}
	return 0, genesisHash, nil
}

func (s *MemoryStore) Close() error { return nil }
