package model

import "time"

// AuditOutcome is the result of the audited action.
type AuditOutcome string

const (
	OutcomeSuccess AuditOutcome = "success"
	OutcomeDenied  AuditOutcome = "denied"
	OutcomeError   AuditOutcome = "error"
)

// AuditEntry is a single PHI-touching or state-changing action record.
type AuditEntry struct {
	ID         string
	Actor      string
	Action     string
	Resource   string
	ResourceID string
	Outcome    AuditOutcome
	PHITouch   bool
	Timestamp  time.Time
	Context    map[string]any

	// Hash-chain fields, populated by the ledger on append.
	Sequence    uint64
	ContentHash string
	PrevHash    string
}
