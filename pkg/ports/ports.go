// Package ports declares the transport-agnostic interfaces the core
// consumes (spec.md §6): Store, ClaimSwitch, PDMPProvider, RegistryClient,
// and Suggestor. Concrete Store adapters live under pkg/store and the HTTP
// adapters for the other ports under pkg/adapters, all wired by
// cmd/dispensed; callers only ever depend on these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// Store is the transactional persistence port. Every write takes the
// aggregate's expected version and returns errtax.CodeConcurrentMutation
// when it has drifted (optimistic concurrency per spec.md §6).
type Store interface {
	GetPatient(ctx context.Context, id string) (*model.Patient, error)
	FindPatientByMRNDOB(ctx context.Context, mrn string, dob time.Time) (*model.Patient, error)
	PutPatient(ctx context.Context, p *model.Patient, expectedVersion int64) error

	GetPrescription(ctx context.Context, id string) (*model.Prescription, error)
	PutPrescription(ctx context.Context, rx *model.Prescription, expectedVersion int64) error
	// ListRecentPrescriptionsByPrescriber supports the intake duplicate
	// check in spec.md §4.1: drug + quantity + prescriber within 24h.
	ListRecentPrescriptionsByPrescriber(ctx context.Context, prescriberID string, since time.Time) ([]*model.Prescription, error)

	GetFill(ctx context.Context, id string) (*model.Fill, error)
	ListFills(ctx context.Context, prescriptionID string) ([]*model.Fill, error)
	PutFill(ctx context.Context, f *model.Fill, expectedVersion int64) error

	GetClaim(ctx context.Context, id string) (*model.Claim, error)
	ListClaims(ctx context.Context, fillID string) ([]*model.Claim, error)
	PutClaim(ctx context.Context, c *model.Claim, expectedVersion int64) error

	GetVerificationSession(ctx context.Context, fillID string) (*model.VerificationSession, error)
	PutVerificationSession(ctx context.Context, vs *model.VerificationSession, expectedVersion int64) error

	GetInventoryItem(ctx context.Context, pharmacyID, ndc string) (*model.InventoryItem, error)
	PutInventoryItem(ctx context.Context, item *model.InventoryItem, expectedVersion int64) error
	AppendInventoryTransaction(ctx context.Context, tx model.InventoryTransaction) error
	ListInventoryTransactions(ctx context.Context, pharmacyID, ndc string) ([]model.InventoryTransaction, error)

	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	// ListAuditEntries returns every audit entry with Sequence > since, in
	// ascending sequence order, for cmd/dispensectl's audit-export.
	ListAuditEntries(ctx context.Context, since uint64) ([]model.AuditEntry, error)
}

// ClaimRequest is the outbound NCPDP-shaped claim submission.
type ClaimRequest struct {
	BIN, PCN, Group string
	MemberID        string
	DrugNDC         string
	Quantity        float64
	DaysSupply      int
	DAW             model.DAWCode
	PrescriberDEA   string
	PrescriberNPI   string
	OverrideCode    string
}

// ClaimResponseStatus is the outcome ClaimSwitch reports.
type ClaimResponseStatus string

const (
	ClaimResponseApproved ClaimResponseStatus = "approved"
	ClaimResponseRejected ClaimResponseStatus = "rejected"
	ClaimResponsePending  ClaimResponseStatus = "pending"
)

// ClaimResponse is ClaimSwitch's reply to a ClaimRequest.
type ClaimResponse struct {
	Status            ClaimResponseStatus
	RejectCode        string
	Message           string
	PatientPayCents   int64
	InsurancePayCents int64
	GrossPriceCents   int64
}

// ClaimSwitch sends claim requests to the insurance network. Timeout: 30s
// per spec.md §5.
type ClaimSwitch interface {
	Send(ctx context.Context, req ClaimRequest) (ClaimResponse, error)
}

// PDMPQuery requests a state registry lookup.
type PDMPQuery struct {
	PatientID string
	States    []string
	Since     time.Time
}

// PDMPProvider queries one or more state PDMP registries. Timeout: 10s,
// partial results accepted per spec.md §5.
type PDMPProvider interface {
	Query(ctx context.Context, q PDMPQuery) ([]model.DispensingRecord, error)
}

// ImmunizationSubmission is the payload sent to a state IIS registry.
type ImmunizationSubmission struct {
	PatientID string
	NDC       string
	LotNumber string
	AdministeredAt time.Time
}

// RegistryAck is the IIS registry's acknowledgement.
type RegistryAck struct {
	Accepted bool
	AckID    string
}

// RegistryClient submits immunization records to a state IIS. Timeout: 30s
// with deferred retry on timeout, per spec.md §5.
type RegistryClient interface {
	Submit(ctx context.Context, sub ImmunizationSubmission) (RegistryAck, error)
}

// ExtractedField is one field a Suggestor returns from a scanned document.
type ExtractedField struct {
	Field      string
	Value      string
	Confidence int // 0-100
	BoundingBox [4]float64
}

// Suggestor is the AI-assist port for data entry (OCR / clinical
// suggestion). It is never part of the safety-critical path: a timeout
// (15s, no retry per spec.md §5) simply returns no fields.
type Suggestor interface {
	Extract(ctx context.Context, document []byte) ([]ExtractedField, error)
}
