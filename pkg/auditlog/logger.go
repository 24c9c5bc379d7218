// Package auditlog implements the engine's audit trail: a structured JSON
// event sink (for log aggregation) backed by a per-pharmacy hash-chained
// ledger (for tamper-evident export), per spec.md §4.8.
package auditlog

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/ridgeline-health/dispense/pkg/clock"
	"github.com/ridgeline-health/dispense/pkg/model"
)

// Recorder is the interface every core operation's decorator calls exactly
// once before acknowledging its caller, per spec.md §4.8 and §9's
// cross-cutting-concerns design note.
type Recorder interface {
	Record(ctx context.Context, entry model.AuditEntry) error
}

// Logger writes structured JSON audit lines to an io.Writer and appends the
// same entry to the hash-chained Ledger for the entry's pharmacy/tenant.
type Logger struct {
	mu      sync.Mutex
	writer  io.Writer
	clock   clock.Clock
	ledgers *LedgerSet
}

// NewLogger creates a Logger writing JSON lines to os.Stdout.
func NewLogger(clk clock.Clock) *Logger {
	return NewLoggerWithWriter(os.Stdout, clk)
}

// NewLoggerWithWriter creates a Logger writing to w (nil defaults to Stdout).
func NewLoggerWithWriter(w io.Writer, clk clock.Clock) *Logger {
	if w == nil {
		w = os.Stdout
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Logger{writer: w, clock: clk, ledgers: NewLedgerSet()}
}

// Record assigns an ID and timestamp if absent, appends the entry to the
// appropriate hash-chained ledger, and writes the structured JSON line.
func (l *Logger) Record(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.clock.Now()
	}

	tenant := tenantKey(entry)
	chained, err := l.ledgers.For(tenant).Append(entry)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	bytes, err := json.Marshal(chained)
	if err != nil {
		return err
	}
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}

// tenantKey groups ledger chains per pharmacy: by entry.Context["pharmacy_id"]
// when it is a non-empty string, otherwise into one "default" chain.
func tenantKey(e model.AuditEntry) string {
	if pid, ok := e.Context["pharmacy_id"].(string); ok && pid != "" {
		return pid
	}
	return "default"
}
