package prescription

import (
	"github.com/ridgeline-health/dispense/pkg/model"
)

// validTransitions enumerates the allowed edges of the prescription
// lifecycle graph from spec.md §4.1.
var validTransitions = map[model.RxState][]model.RxState{
	model.RxIntake:              {model.RxDataEntry, model.RxCancelled, model.RxExpired},
	model.RxDataEntry:           {model.RxClaimPending, model.RxCancelled, model.RxExpired},
	model.RxClaimPending:        {model.RxClaimRejected, model.RxFillPending, model.RxCancelled, model.RxExpired},
	model.RxClaimRejected:       {model.RxClaimPending, model.RxCancelled, model.RxExpired},
	model.RxFillPending:         {model.RxFilled, model.RxCancelled, model.RxExpired},
	model.RxFilled:              {model.RxVerificationPending, model.RxCancelled},
	model.RxVerificationPending: {model.RxRework, model.RxRejected, model.RxVerified, model.RxCancelled},
	model.RxRework:              {model.RxDataEntry, model.RxCancelled},
	model.RxVerified:            {model.RxReadyForPickup, model.RxCancelled},
	model.RxReadyForPickup:      {model.RxPickedUp, model.RxDelivered, model.RxCancelled, model.RxExpired},
}

// canTransition reports whether the lifecycle graph permits from -> to.
func canTransition(from, to model.RxState) bool {
	for _, candidate := range validTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// requiredFieldsComplete reports the spec.md §4.1 required set for
// advancing to claim_pending: patient, drug, quantity, sig, prescriber.
func requiredFieldsComplete(rx *model.Prescription) []string {
	var missing []string
	if rx.PatientID == "" {
		missing = append(missing, "patient_id")
	}
	if rx.DrugNDC == "" {
		missing = append(missing, "drug_ndc")
	}
	if rx.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if rx.Sig == "" {
		missing = append(missing, "sig")
	}
	if rx.PrescriberID == "" {
		missing = append(missing, "prescriber_id")
	}
	return missing
}

// Acceptance is how a data-entry field's value came to be committed.
type Acceptance string

const (
	AcceptanceAuto   Acceptance = "auto"
	AcceptanceManual Acceptance = "manual"
	AcceptanceOverride Acceptance = "override"
)

// ResolveAcceptance maps a Suggestor confidence score to the acceptance
// mode the caller must use, per spec.md §4.1: >=95 may auto-accept, 85-94
// requires explicit confirmation, <85 requires manual override.
func ResolveAcceptance(confidence int, requested Acceptance) (Acceptance, error) {
	switch {
	case confidence >= 95:
		return requested, nil
	case confidence >= 85:
		if requested == AcceptanceAuto {
			return "", errtaxInvalidField("confidence", "field confidence 85-94 requires explicit confirmation, not auto-accept")
		}
		return requested, nil
	default:
		if requested != AcceptanceOverride && requested != AcceptanceManual {
			return "", errtaxInvalidField("confidence", "field confidence below 85 requires manual override")
		}
		return requested, nil
	}
}

// isDuplicateAdmission reports whether recent already carries a different,
// already admitted (past intake) prescription for the same drug and
// quantity, the spec.md §4.1 intake duplicate check (drug + quantity +
// prescriber within 24h). excludeID omits the prescription being admitted
// itself from the comparison.
func isDuplicateAdmission(recent []*model.Prescription, excludeID, drugNDC string, quantity float64) bool {
	for _, r := range recent {
		if r.ID == excludeID || r.State == model.RxIntake {
			continue
		}
		if r.DrugNDC == drugNDC && r.Quantity == quantity {
			return true
		}
	}
	return false
}

// fillPendingProof is the evidence the spec allows for entry to fill_pending:
// an approved claim, a cash-conversion record, or a documented Schedule II
// LTC emergency-partial flag.
type fillPendingProof struct {
	ApprovedClaim     bool
	CashConversion    bool
	EmergencyPartialLTC bool
	Schedule          model.DEASchedule
}

func (p fillPendingProof) satisfied() bool {
	if p.ApprovedClaim || p.CashConversion {
		return true
	}
	return p.EmergencyPartialLTC && p.Schedule == model.ScheduleII
}
