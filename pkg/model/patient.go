package model

import "time"

// Gender is a patient's administrative sex as recorded on the prescription.
type Gender string

const (
	GenderMale    Gender = "M"
	GenderFemale  Gender = "F"
	GenderOther   Gender = "O"
	GenderUnknown Gender = "U"
)

// Patient is the minimal demographic and clinical-flag set the DUR engine
// and prescription state machine need. The full patient record is owned
// elsewhere (outside this core); this is the reference shape passed in at
// the core's boundary.
type Patient struct {
	ID        string
	MRN       string
	FirstName string
	LastName  string
	DOB       time.Time
	Gender    Gender
	Address   string

	AllergyCodes []string // normalized allergen names/classes
	Conditions   []string // normalized condition codes (e.g. "ckd", "pregnancy")

	Pregnant bool
	Nursing  bool

	CreatinineClearanceMLMin *float64 // nil when unknown
	HepaticImpairment        HepaticImpairment

	Version int64
}

// HepaticImpairment grades liver function for dose-adjustment rules.
type HepaticImpairment string

const (
	HepaticNone     HepaticImpairment = "none"
	HepaticMild     HepaticImpairment = "mild"
	HepaticModerate HepaticImpairment = "moderate"
	HepaticSevere   HepaticImpairment = "severe"
)

// AgeYears computes the patient's age in whole years as of asOf.
func (p Patient) AgeYears(asOf time.Time) int {
	years := asOf.Year() - p.DOB.Year()
	if asOf.YearDay() < p.DOB.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
