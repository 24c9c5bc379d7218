package fill

import (
	"strings"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// Auxiliary label codes, matching spec.md §4.4's keyword-derived set.
const (
	AuxCompleteCourse     = "COMPLETE_ENTIRE_COURSE"
	AuxAvoidSunlight      = "AVOID_SUNLIGHT"
	AuxTakeWithWater      = "TAKE_WITH_WATER"
	AuxTakeWithFood       = "TAKE_WITH_FOOD"
	AuxDrowsiness         = "MAY_CAUSE_DROWSINESS"
	AuxNoAlcohol          = "AVOID_ALCOHOL"
	AuxShakeWell          = "SHAKE_WELL"
	AuxDoNotCrush         = "DO_NOT_CRUSH"
	AuxRefrigerate        = "REFRIGERATE"
	AuxHighAlert          = "HIGH_ALERT_MEDICATION"
	AuxFederalTransferWarn = "FEDERAL_LAW_PROHIBITS_TRANSFER"
)

// DeriveAuxLabels derives the recommended, de-duplicated set of auxiliary
// label codes from a drug's name, class, and dosage form keywords, per
// spec.md §4.4.
func DeriveAuxLabels(drug model.Drug) []string {
	name := strings.ToLower(drug.GenericName + " " + drug.BrandName)
	class := strings.ToLower(drug.TherapeuticClass)
	form := strings.ToLower(drug.DosageForm)

	seen := map[string]bool{}
	var out []string
	add := func(code string) {
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}

	if strings.Contains(class, "antibiotic") {
		add(AuxCompleteCourse)
	}
	if strings.Contains(class, "fluoroquinolone") || strings.Contains(name, "floxacin") {
		add(AuxAvoidSunlight)
		add(AuxTakeWithWater)
	}
	if strings.Contains(class, "nsaid") {
		add(AuxTakeWithFood)
	}
	if strings.Contains(class, "opioid") || strings.Contains(class, "benzodiazepine") {
		add(AuxDrowsiness)
		add(AuxNoAlcohol)
	}
	if strings.Contains(form, "suspension") {
		add(AuxShakeWell)
	}
	if strings.Contains(name, " er ") || strings.Contains(name, " xr") || strings.Contains(name, " xl") {
		add(AuxDoNotCrush)
	}
	if strings.Contains(name, "insulin") {
		add(AuxRefrigerate)
		add(AuxHighAlert)
	}
	if drug.Schedule.Controlled() {
		add(AuxFederalTransferWarn)
	}

	return out
}
