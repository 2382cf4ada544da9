package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists the ledger in a single SQLite file. Appends are
// serialized by a mutex (single-writer discipline): the hash chain has
// exactly one valid next entry.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger

	headSeq  uint64
	headHash string
}

// NewSQLiteStore opens (or creates) the ledger database, runs the
// migration, and loads the chain head.
func NewSQLiteStore(dbPath string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so exports and audits can read while the bot appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: log.With().Str("component", "ledger").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.loadHead(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load head: %w", err)
	}

	s.log.Info().Str("path", dbPath).Uint64("head_seq", s.headSeq).Msg("ledger opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			seq        INTEGER PRIMARY KEY,
			kind       TEXT NOT NULL,
			key        TEXT NOT NULL UNIQUE,
			payload    BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			prev_hash  TEXT NOT NULL,
			hash       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:30], err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadHead() error {
	row := s.db.QueryRow(`SELECT seq, hash FROM entries ORDER BY seq DESC LIMIT 1`)
	err := row.Scan(&s.headSeq, &s.headHash)
	if errors.Is(err, sql.ErrNoRows) {
		s.headSeq = 0
		s.headHash = genesisHash
		return nil
	}
	return err
}

// Append implements Store. The entry is durable when this returns nil.
func (s *SQLiteStore) Append(kind, key string, payload any) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE key = ?`, key).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%w: check key: %v", ErrPersistence, err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("%w: key %q", ErrDuplicateEntry, key)
	}

	e, err := nextEntry(s.headSeq, s.headHash, kind, key, payload)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`INSERT INTO entries (seq, kind, key, payload, created_at, prev_hash, hash)
		VALUES (?,?,?,?,?,?,?)`,
		e.Seq, e.Kind, e.Key, []byte(e.Payload), e.CreatedAt.UnixNano(), e.PrevHash, e.Hash)
	if err != nil {
		// The UNIQUE index is the backstop against racing writers.
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("%w: key %q", ErrDuplicateEntry, key)
		}
		return nil, fmt.Errorf("%w: insert seq %d: %v", ErrPersistence, e.Seq, err)
	}

	s.headSeq = e.Seq
	s.headHash = e.Hash
	return e, nil
}

// Scan implements Store; entries stream in sequence order from fromSeq.
func (s *SQLiteStore) Scan(fromSeq uint64, fn func(*Entry) error) error {
	rows, err := s.db.Query(`SELECT seq, kind, key, payload, created_at, prev_hash, hash
		FROM entries WHERE seq >= ? ORDER BY seq`, fromSeq)
	if err != nil {
		return fmt.Errorf("%w: scan: %v", ErrPersistence, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var payload []byte
		var createdNanos int64
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Key, &payload, &createdNanos, &e.PrevHash, &e.Hash); err != nil {
			return fmt.Errorf("%w: scan row: %v", ErrPersistence, err)
		}
		e.Payload = payload
		e.CreatedAt = time.Unix(0, createdNanos).UTC()
		if err := fn(&e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: scan rows: %v", ErrPersistence, err)
	}
	return nil
}

// Head implements Store.
func (s *SQLiteStore) Head() (uint64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headSeq, s.headHash, nil
}

func (s *SQLiteStore) Close() error {
	s.log.Info().Msg("closing ledger")
	return s.db.Close()
}
