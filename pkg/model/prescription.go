package model

import "time"

// RxState enumerates the prescription lifecycle states from spec.md §4.1.
type RxState string

const (
	RxIntake               RxState = "intake"
	RxDataEntry            RxState = "data_entry"
	RxClaimPending         RxState = "claim_pending"
	RxClaimRejected        RxState = "claim_rejected"
	RxFillPending          RxState = "fill_pending"
	RxFilled               RxState = "filled"
	RxVerificationPending  RxState = "verification_pending"
	RxRework               RxState = "rework"
	RxRejected             RxState = "rejected"
	RxVerified             RxState = "verified"
	RxReadyForPickup       RxState = "ready_for_pickup"
	RxPickedUp             RxState = "picked_up"
	RxDelivered            RxState = "delivered"
	RxCancelled            RxState = "cancelled"
	RxExpired              RxState = "expired"
)

// Terminal reports whether state is a terminal prescription state.
func (s RxState) Terminal() bool {
	switch s {
	case RxRejected, RxPickedUp, RxDelivered, RxCancelled, RxExpired:
		return true
	default:
		return false
	}
}

// IntakeSource enumerates how a prescription entered the system.
type IntakeSource string

const (
	SourceERx    IntakeSource = "eRx"
	SourceFax    IntakeSource = "fax"
	SourcePhone  IntakeSource = "phone"
	SourceWalkin IntakeSource = "walkin"
)

// Priority is the prescription's fill urgency.
type Priority string

const (
	PriorityStat   Priority = "STAT"
	PriorityUrgent Priority = "URGENT"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

// DAWCode is the Dispense-As-Written substitution code, 0-9.
type DAWCode int

// Prescription is the aggregate root of the dispensing lifecycle.
type Prescription struct {
	ID              string
	RxNumber        string
	PatientID       string
	PrescriberID    string
	DrugNDC         string

	Source IntakeSource

	Quantity          float64
	DaysSupply        int
	Sig               string
	DAW               DAWCode
	RefillsAuthorized int
	RefillsRemaining  int

	WrittenDate    time.Time
	ExpirationDate time.Time

	State    RxState
	Schedule DEASchedule // snapshot at write time

	Indication string // free-text or ICD-10
	Priority   Priority

	Version int64
}

// Validate checks the structural invariants spec.md §3 names for a
// Prescription: refills_remaining <= refills_authorized, expiration after
// written, and Schedule II carries zero authorized refills.
func (p Prescription) Validate() error {
	if p.RefillsRemaining > p.RefillsAuthorized {
		return &InvariantViolation{Field: "refills_remaining", Reason: "exceeds refills_authorized"}
	}
	if !p.ExpirationDate.After(p.WrittenDate) {
		return &InvariantViolation{Field: "expiration_date", Reason: "must be after written_date"}
	}
	if p.Schedule == ScheduleII && p.RefillsAuthorized != 0 {
		return &InvariantViolation{Field: "refills_authorized", Reason: "schedule II must authorize zero refills"}
	}
	return nil
}

// InvariantViolation reports a broken data-model invariant.
type InvariantViolation struct {
	Field  string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation on " + e.Field + ": " + e.Reason
}
