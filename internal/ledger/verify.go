package ledger

import "errors"

var errStopScan = errors.New("stop scan")

// VerifyEntries recomputes every hash in an exported entry sequence.
// It needs no access to the store, only the entries themselves; a party
// holding an export can run it offline. Entries must arrive in sequence
// order starting at 1. On the first mismatch it returns false and the
// offending sequence number.
func VerifyEntries(entries []Entry) (bool, uint64) {
	prevHash := genesisHash
	var prevSeq uint64
	for i := range entries {
		e := &entries[i]
		if e.Seq != prevSeq+1 || e.PrevHash != prevHash || computeHash(e) != e.Hash {
			return false, e.Seq
		}
		prevSeq = e.Seq
		prevHash = e.Hash
	}
	return true, prevSeq
}

// VerifyChain walks the whole store and recomputes the chain. When the
// chain is intact it returns (true, head seq, nil); otherwise the second
// value is the sequence number of the first entry that fails.
func VerifyChain(s Store) (bool, uint64, error) {
	prevHash := genesisHash
	var prevSeq uint64
	ok := true
	var badSeq uint64

	err := s.Scan(1, func(e *Entry) error {
		if e.Seq != prevSeq+1 || e.PrevHash != prevHash || computeHash(e) != e.Hash {
			ok = false
			badSeq = e.Seq
			return errStopScan
		}
		prevSeq = e.Seq
		prevHash = e.Hash
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return false, 0, err
	}
	if !ok {
		return false, badSeq, nil
	}
	return true, prevSeq, nil
}
