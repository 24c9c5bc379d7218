package pdmp

import "github.com/ridgeline-health/dispense/pkg/model"

// Pattern weights from spec.md §4.6. Risk score is the sum of weights for
// every pattern detected, capped at 100.
const (
	weightMultiPrescriber = 15
	weightMultiPharmacy   = 15
	weightHighMME         = 25
	weightDangerousCombo  = 30
	weightEarlyRefill     = 10
	weightCashOnly        = 5
	weightOverlap         = 10
	weightDoctorShopping  = 30
)

// Threshold counts from spec.md §4.6.
const (
	multiPrescriberThreshold = 4
	multiPharmacyThreshold   = 4
	cashOnlyThreshold        = 3
)

// riskLevel classifies a capped risk score per spec.md §4.6.
func riskLevel(score int) model.RiskLevel {
	switch {
	case score >= 60:
		return model.RiskCritical
	case score >= 40:
		return model.RiskHigh
	case score >= 20:
		return model.RiskModerate
	default:
		return model.RiskLow
	}
}

// alertTable is the fixed type -> (severity, description, recommendation)
// table spec.md §4.6 calls for; counts are interpolated at alert-build time.
type alertTemplate struct {
	severity       model.Severity
	description    string
	recommendation string
}

var alertTable = map[model.PDMPAlertType]alertTemplate{
	model.AlertMultiPrescriber: {
		severity:       model.SeverityModerate,
		description:    "patient has filled controlled substance prescriptions from multiple prescribers",
		recommendation: "contact prescribers to confirm coordinated care",
	},
	model.AlertMultiPharmacy: {
		severity:       model.SeverityModerate,
		description:    "patient has filled controlled substance prescriptions at multiple pharmacies",
		recommendation: "confirm the patient's pharmacy of record",
	},
	model.AlertHighMME: {
		severity:       model.SeverityHigh,
		description:    "total daily morphine milligram equivalents across active prescriptions exceeds the danger threshold",
		recommendation: "consider opioid tapering or naloxone co-prescription",
	},
	model.AlertDangerousCombo: {
		severity:       model.SeverityCritical,
		description:    "patient has overlapping active prescriptions for a known dangerous drug combination",
		recommendation: "contact the prescriber before dispensing",
	},
	model.AlertEarlyRefill: {
		severity:       model.SeverityModerate,
		description:    "a refill was dispensed before 80% of the prior fill's days supply had elapsed",
		recommendation: "verify medical necessity for early refill",
	},
	model.AlertCashOnly: {
		severity:       model.SeverityLow,
		description:    "patient has paid cash for controlled substance prescriptions instead of billing insurance",
		recommendation: "review for potential diversion",
	},
	model.AlertOverlap: {
		severity:       model.SeverityModerate,
		description:    "patient has overlapping days supply across two or more active prescriptions",
		recommendation: "reconcile overlapping therapy with the prescribers involved",
	},
	model.AlertDoctorShopping: {
		severity:       model.SeverityCritical,
		description:    "multiple prescribers and multiple pharmacies both exceed the doctor-shopping threshold",
		recommendation: "escalate to the pharmacist-in-charge before dispensing",
	},
}

func buildAlert(t model.PDMPAlertType) model.PDMPAlert {
	tmpl := alertTable[t]
	return model.PDMPAlert{
		Type:           t,
		Severity:       tmpl.severity,
		Description:    tmpl.description,
		Recommendation: tmpl.recommendation,
		RequiresAction: tmpl.severity == model.SeverityCritical,
	}
}
