package model

import "time"

// SessionState is the verification session's own lifecycle.
type SessionState string

const (
	SessionInProgress SessionState = "in_progress"
	SessionPendingDUR SessionState = "pending_dur"
	SessionPendingScan SessionState = "pending_scan"
	SessionApproved    SessionState = "approved"
	SessionRejected    SessionState = "rejected"
	SessionReturnedForRework SessionState = "returned_for_rework"
)

// Checklist carries the required and controlled-substance-specific
// verification items from spec.md §4.5.
type Checklist struct {
	PatientNameVerified bool
	DOBVerified         bool
	AllergiesReviewed   bool

	DrugVerified       bool
	StrengthVerified   bool
	QuantityVerified   bool
	DaysSupplyVerified bool
	SigVerified        bool

	InteractionsCleared bool
	AllergiesCleared    bool

	NDCVerified     bool
	ExpiryValid     bool
	LabelCorrect    bool
	PackagingOK     bool
	AppearanceOK    bool

	// Controlled-substance items are nullable: nil means "not applicable".
	ScheduleVerified *bool
	PDMPReviewed     *bool
	PDMPSkipReason   string
	IDRequirementNoted *bool
}

// RequiredComplete reports whether every required boolean is true.
func (c Checklist) RequiredComplete() bool {
	return c.PatientNameVerified && c.DOBVerified && c.AllergiesReviewed &&
		c.DrugVerified && c.StrengthVerified && c.QuantityVerified &&
		c.DaysSupplyVerified && c.SigVerified &&
		c.InteractionsCleared && c.AllergiesCleared &&
		c.NDCVerified && c.ExpiryValid &&
		c.LabelCorrect && c.PackagingOK && c.AppearanceOK
}

// NDCMatchLevel is the barcode-scan equivalence level spec.md §4.5 defines.
type NDCMatchLevel string

const (
	MatchExact          NDCMatchLevel = "exact"
	MatchPackageVariant NDCMatchLevel = "package_variant"
	MatchNone           NDCMatchLevel = "no_match"
)

// ScanResult is the outcome of scanning a barcode during verification.
type ScanResult struct {
	ScannedNDC       string
	PrescribedNDC    string
	MatchLevel       NDCMatchLevel
	OperatorConsent  bool // required for package_variant acceptance
}

// VerificationDecision is the pharmacist's final disposition.
type VerificationDecision string

const (
	DecisionApproved    VerificationDecision = "approved"
	DecisionRejected    VerificationDecision = "rejected"
	DecisionReturnedForRework VerificationDecision = "returned_for_rework"
)

// VerificationSession is the pharmacist review gate for a Fill.
type VerificationSession struct {
	ID             string
	FillID         string
	PrescriptionID string
	PharmacistID   string

	State     SessionState
	Checklist Checklist
	Scan      *ScanResult

	DUROverrides []DURAlert // alerts from the fill's DUR check, with acknowledgements attached

	Decision         VerificationDecision
	Notes            string
	RejectionReason  string

	StartedAt  time.Time
	CompletedAt time.Time

	Version int64
}

// AllAlertsResolved reports whether every DUR alert is either non-high
// severity or carries a valid acknowledgement — the completion rule from
// spec.md §4.5(c).
func (vs VerificationSession) AllAlertsResolved() bool {
	for _, a := range vs.DUROverrides {
		if a.Severity >= SeverityHigh && !a.Acknowledged() {
			return false
		}
	}
	return true
}
