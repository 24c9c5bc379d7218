package model

import "time"

// ClaimState is the adjudication lifecycle of a Claim.
type ClaimState string

const (
	ClaimPending   ClaimState = "pending"
	ClaimApproved  ClaimState = "approved"
	ClaimRejected  ClaimState = "rejected"
	ClaimAppealing ClaimState = "appealing"
	ClaimReversed  ClaimState = "reversed"
	ClaimCash      ClaimState = "cash_conversion"
)

// Claim is the insurance-adjudication record for a Fill.
type Claim struct {
	ID             string
	PrescriptionID string
	FillID         string // empty until the fill exists

	BIN   string
	PCN   string
	Group string

	MemberID string

	PatientPayCents    int64
	InsurancePayCents  int64
	GrossPriceCents    int64

	State ClaimState

	RejectCode   string // NCPDP reject code, e.g. "79"
	RejectReason string

	OverrideCode   string
	OverrideReason string

	AttemptNo int

	SubmittedAt time.Time
	ResolvedAt  time.Time

	Interrupted bool // cancellation arrived after the side effect committed

	Version int64
}

// PatientPayInvariantHolds checks the adjudicator's core accounting
// invariant: patient_pay + insurance_pay == gross_price. This is one of the
// "open questions to preserve" from spec.md §9 — the source is inconsistent
// about it, so the engine computes and asserts it rather than assuming it.
func (c Claim) PatientPayInvariantHolds() bool {
	return c.PatientPayCents+c.InsurancePayCents == c.GrossPriceCents
}
