package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteExport streams the full entry sequence as JSON lines. The export,
// together with VerifyExported, is the public transparency surface: any
// holder of the file can re-verify the chain offline.
func WriteExport(s Store, w io.Writer) (uint64, string, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	lastSeq, lastHash := uint64(0), genesisHash

	err := s.Scan(1, func(e *Entry) error {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode entry %d: %w", e.Seq, err)
		}
		lastSeq, lastHash = e.Seq, e.Hash
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	if err := bw.Flush(); err != nil {
		return 0, "", fmt.Errorf("flush export: %w", err)
	}
	return lastSeq, lastHash, nil
}

// ReadExport parses a JSONL export back into entries.
func ReadExport(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("export line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return entries, nil
}

// VerifyExported re-verifies an exported JSONL file. Returns ok and, when
// not ok, the sequence number of the first entry that fails.
func VerifyExported(path string) (bool, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, 0, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	entries, err := ReadExport(f)
	if err != nil {
		return false, 0, err
	}
	ok, seq := VerifyEntries(entries)
	return ok, seq, nil
}
