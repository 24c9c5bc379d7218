// Package pdmp implements the prescription drug monitoring program pattern
// analyzer from spec.md §4.6: a pure function over a patient's historical
// dispensing records that detects doctor-shopping patterns and computes a
// weighted risk score.
package pdmp

import (
	"sort"
	"strings"
	"time"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// dangerousComboClasses is the fixed set of therapeutic-class pairs
// considered dangerous when prescriptions for both overlap in active days,
// per spec.md §4.6's "fixed table" of alert content.
var dangerousComboClasses = [][2]string{
	{"opioid", "benzodiazepine"},
	{"opioid", "muscle relaxant"},
	{"opioid", "gabapentinoid"},
}

func isDangerousComboPair(classA, classB string) bool {
	a, b := strings.ToLower(classA), strings.ToLower(classB)
	for _, pair := range dangerousComboClasses {
		if (a == pair[0] && b == pair[1]) || (a == pair[1] && b == pair[0]) {
			return true
		}
	}
	return false
}

// Input is the Analyzer's request: a patient's dispensing history and the
// instant the query is evaluated as of.
type Input struct {
	PatientID     string
	QueryID       string
	QueriedStates []string
	Records       []model.DispensingRecord
	Now           time.Time
}

// activeWindow returns [dispensed, dispensed+daysSupply) for r.
func activeWindow(r model.DispensingRecord) (time.Time, time.Time) {
	return r.DispensedDate, r.DispensedDate.AddDate(0, 0, r.DaysSupply)
}

func isActive(r model.DispensingRecord, now time.Time) bool {
	_, end := activeWindow(r)
	return !end.Before(now)
}

func rangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Analyze computes a PDMPResult over in.Records, per spec.md §4.6.
func Analyze(in Input) model.PDMPResult {
	var active []model.DispensingRecord
	for _, r := range in.Records {
		if isActive(r, in.Now) {
			active = append(active, r)
		}
	}

	prescribers := map[string]bool{}
	pharmacies := map[string]bool{}
	cashCount := 0
	for _, r := range in.Records {
		if r.PrescriberID != "" {
			prescribers[r.PrescriberID] = true
		}
		if r.PharmacyID != "" {
			pharmacies[r.PharmacyID] = true
		}
		if r.CashPay {
			cashCount++
		}
	}

	var totalDailyMME float64
	for _, r := range active {
		if r.DaysSupply <= 0 {
			continue
		}
		dailyDose := r.Quantity * r.StrengthMG / float64(r.DaysSupply)
		totalDailyMME += dailyDose * r.MMEFactor
	}

	overlapPairs := 0
	dangerousComboPairs := 0
	for i := 0; i < len(active); i++ {
		aStart, aEnd := activeWindow(active[i])
		for j := i + 1; j < len(active); j++ {
			if active[i].DrugNDC == active[j].DrugNDC {
				continue // same-drug overlap is an early-refill pattern, not this one
			}
			bStart, bEnd := activeWindow(active[j])
			if !rangesOverlap(aStart, aEnd, bStart, bEnd) {
				continue
			}
			overlapPairs++
			if isDangerousComboPair(active[i].DrugClass, active[j].DrugClass) {
				dangerousComboPairs++
			}
		}
	}

	earlyRefills := earlyRefillCount(in.Records)

	multiPrescriber := len(prescribers) >= multiPrescriberThreshold
	multiPharmacy := len(pharmacies) >= multiPharmacyThreshold
	highMME := totalDailyMME >= 90 // spec.md §4.2's danger threshold, reused as the PDMP flag line
	dangerousCombo := dangerousComboPairs > 0
	earlyRefill := earlyRefills > 0
	cashOnly := cashCount >= cashOnlyThreshold
	overlap := overlapPairs > 0
	doctorShopping := multiPrescriber && multiPharmacy

	var alerts []model.PDMPAlert
	score := 0
	add := func(hit bool, weight int, t model.PDMPAlertType) {
		if !hit {
			return
		}
		score += weight
		alerts = append(alerts, buildAlert(t))
	}
	add(multiPrescriber, weightMultiPrescriber, model.AlertMultiPrescriber)
	add(multiPharmacy, weightMultiPharmacy, model.AlertMultiPharmacy)
	add(highMME, weightHighMME, model.AlertHighMME)
	add(dangerousCombo, weightDangerousCombo, model.AlertDangerousCombo)
	add(earlyRefill, weightEarlyRefill, model.AlertEarlyRefill)
	add(cashOnly, weightCashOnly, model.AlertCashOnly)
	add(overlap, weightOverlap, model.AlertOverlap)
	add(doctorShopping, weightDoctorShopping, model.AlertDoctorShopping)

	if score > 100 {
		score = 100
	}

	return model.PDMPResult{
		QueryID:       in.QueryID,
		QueriedStates: in.QueriedStates,
		Prescriptions: in.Records,
		Alerts:        alerts,
		RiskScore:     score,
		RiskLevel:     riskLevel(score),
		QueriedAt:     in.Now,
	}
}

// earlyRefillCount counts, per NDC, fills dispensed before 80% of the
// preceding fill's days supply had elapsed, per spec.md §4.6.
func earlyRefillCount(records []model.DispensingRecord) int {
	byNDC := map[string][]model.DispensingRecord{}
	for _, r := range records {
		byNDC[r.DrugNDC] = append(byNDC[r.DrugNDC], r)
	}

	count := 0
	for _, recs := range byNDC {
		sort.Slice(recs, func(i, j int) bool { return recs[i].DispensedDate.Before(recs[j].DispensedDate) })
		for i := 1; i < len(recs); i++ {
			prev := recs[i-1]
			eligibleDays := int(0.8 * float64(prev.DaysSupply))
			eligibleDate := prev.DispensedDate.AddDate(0, 0, eligibleDays)
			if recs[i].DispensedDate.Before(eligibleDate) {
				count++
			}
		}
	}
	return count
}
