package model

import "time"

// FillStatus tracks a fill attempt's own lifecycle, separate from the
// owning prescription's RxState.
type FillStatus string

const (
	FillStatusPending  FillStatus = "pending"
	FillStatusFilled   FillStatus = "filled"
	FillStatusVerified FillStatus = "verified"
	FillStatusRejected FillStatus = "rejected"
	FillStatusVoided   FillStatus = "voided"
)

// VerificationStatus tracks whether a fill has passed pharmacist review.
type VerificationStatus string

const (
	VerificationNotStarted VerificationStatus = "not_started"
	VerificationInProgress VerificationStatus = "in_progress"
	VerificationApproved   VerificationStatus = "approved"
	VerificationRejected   VerificationStatus = "rejected"
)

// Fill is a single dispensing attempt against a Prescription.
type Fill struct {
	ID             string
	PrescriptionID string
	FillNumber     int // monotonic per prescription, starting at 0

	DispensedNDC string
	Lot          string
	Expiration   time.Time

	QuantityPrescribed float64
	QuantityDispensed  float64
	DaysSupply         int
	DAW                DAWCode

	IsPartialFill     bool
	PartialReason     string
	RemainingQuantity float64

	AuxLabelCodes []string
	Packaging     string

	AcquisitionCostCents int64
	PatientCostCents     int64

	Status             FillStatus
	VerificationStatus VerificationStatus

	FilledAt time.Time

	Version int64
}

// EffectiveDispensed returns QuantityDispensed as recorded. It does not look
// at the partial-fill flag or RemainingQuantity; those are checked by fill
// validation.
func (f Fill) EffectiveDispensed() float64 {
	return f.QuantityDispensed
}
