package auditlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// Ledger is an append-only, hash-chained sequence of audit entries scoped
// to a single tenant/pharmacy.
type Ledger struct {
	mu       sync.RWMutex
	entries  []model.AuditEntry
	headHash string
}

// NewLedger creates an empty ledger with a genesis head.
func NewLedger() *Ledger {
	return &Ledger{headHash: "genesis"}
}

// Append adds entry to the chain, computing its ContentHash over
// (sequence, entry, prevHash) and linking PrevHash to the current head.
func (l *Ledger) Append(entry model.AuditEntry) (model.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	entry.Sequence = seq
	entry.PrevHash = l.headHash

	hashInput := struct {
		Seq      uint64              `json:"seq"`
		Entry    model.AuditEntry    `json:"entry"`
		PrevHash string              `json:"prev"`
	}{seq, withoutHashes(entry), l.headHash}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("auditlog: marshal entry: %w", err)
	}
	sum := sha256.Sum256(raw)
	entry.ContentHash = "sha256:" + hex.EncodeToString(sum[:])

	l.entries = append(l.entries, entry)
	l.headHash = entry.ContentHash
	return entry, nil
}

func withoutHashes(e model.AuditEntry) model.AuditEntry {
	e.ContentHash = ""
	e.PrevHash = ""
	return e
}

// Head returns the current chain head hash ("genesis" when empty).
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries appended.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Since returns every entry appended after the given sequence number
// (0 returns everything), for `audit-export --since=...`.
func (l *Ledger) Since(seq uint64) []model.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.AuditEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Sequence > seq {
			out = append(out, e)
		}
	}
	return out
}

// Verify walks the full chain and reports whether every PrevHash/ContentHash
// link is intact.
func (l *Ledger) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := "genesis"
	for i, e := range l.entries {
		if e.PrevHash != prev {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prev, e.PrevHash)
		}
		hashInput := struct {
			Seq      uint64           `json:"seq"`
			Entry    model.AuditEntry `json:"entry"`
			PrevHash string           `json:"prev"`
		}{e.Sequence, withoutHashes(e), e.PrevHash}
		raw, err := json.Marshal(hashInput)
		if err != nil {
			return false, fmt.Sprintf("failed to marshal entry %d", i+1)
		}
		sum := sha256.Sum256(raw)
		want := "sha256:" + hex.EncodeToString(sum[:])
		if want != e.ContentHash {
			return false, fmt.Sprintf("content hash mismatch at entry %d", i+1)
		}
		prev = e.ContentHash
	}
	return true, ""
}

// LedgerSet lazily creates and retains one Ledger per tenant key.
type LedgerSet struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
}

// NewLedgerSet creates an empty LedgerSet.
func NewLedgerSet() *LedgerSet {
	return &LedgerSet{ledgers: make(map[string]*Ledger)}
}

// For returns the ledger for key, creating it on first use.
func (s *LedgerSet) For(key string) *Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[key]
	if !ok {
		l = NewLedger()
		s.ledgers[key] = l
	}
	return l
}
