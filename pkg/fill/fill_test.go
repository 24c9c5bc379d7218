package fill

import (
	"testing"
	"time"

	"github.com/ridgeline-health/dispense/pkg/model"
)

func baseRx() model.Prescription {
	return model.Prescription{
		RxNumber:          "RX100",
		Quantity:          30,
		DaysSupply:        30,
		RefillsAuthorized: 3,
		RefillsRemaining:  2,
		WrittenDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpirationDate:    time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		Schedule:          model.ScheduleLegend,
		Sig:               "take 1 tablet daily",
	}
}

func TestCanRefillRejectsExpired(t *testing.T) {
	rx := baseRx()
	rx.ExpirationDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := CanRefill(rx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 30)
	if r.OK {
		t.Fatal("expected expired prescription to be rejected")
	}
}

func TestCanRefillRejectsNoRefillsRemaining(t *testing.T) {
	rx := baseRx()
	rx.RefillsRemaining = 0
	r := CanRefill(rx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 30)
	if r.OK {
		t.Fatal("expected zero refills remaining to be rejected")
	}
}

func TestCanRefillRejectsScheduleII(t *testing.T) {
	rx := baseRx()
	rx.Schedule = model.ScheduleII
	rx.RefillsAuthorized = 0
	rx.RefillsRemaining = 0
	r := CanRefill(rx, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), 30)
	if r.OK {
		t.Fatal("expected Schedule II to be outright non-refillable")
	}
}

func TestCanRefillRejectsScheduleIIIOver180Days(t *testing.T) {
	rx := baseRx()
	rx.Schedule = model.ScheduleIII
	now := rx.WrittenDate.Add(200 * 24 * time.Hour)
	r := CanRefill(rx, now, 30)
	if r.OK {
		t.Fatal("expected Schedule III written >180 days ago to be rejected")
	}
}

func TestCanRefillWarnsTooSoon(t *testing.T) {
	rx := baseRx()
	// 80% of 30 days = 24; 10 days since last fill is well under threshold.
	r := CanRefill(rx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 10)
	if len(r.Warnings) == 0 {
		t.Fatal("expected refill-too-soon warning")
	}
	if r.DaysUntilEligible != 14 {
		t.Fatalf("expected daysUntilEligible=14, got %d", r.DaysUntilEligible)
	}
}

func TestCanRefillNoWarningWhenEligible(t *testing.T) {
	rx := baseRx()
	r := CanRefill(rx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 25)
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidateFillForVerificationRequiresNDC(t *testing.T) {
	rx := baseRx()
	f := model.Fill{QuantityDispensed: 30, QuantityPrescribed: 30, DAW: 0}
	r := ValidateFillForVerification(f, rx, model.Drug{}, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	if r.Valid {
		t.Fatal("expected missing NDC to invalidate the fill")
	}
}

func TestValidateFillForVerificationRequiresLotForControlled(t *testing.T) {
	rx := baseRx()
	rx.Schedule = model.ScheduleII
	f := model.Fill{DispensedNDC: "00002143380", QuantityDispensed: 30, QuantityPrescribed: 30, DAW: 0}
	r := ValidateFillForVerification(f, rx, model.Drug{Schedule: model.ScheduleII}, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	if r.Valid {
		t.Fatal("expected missing lot to invalidate a controlled-substance fill")
	}
}

func TestValidateFillForVerificationPartialFillRequiresReasonAndRemaining(t *testing.T) {
	rx := baseRx()
	f := model.Fill{DispensedNDC: "00002143380", IsPartialFill: true, Lot: "L1"}
	r := ValidateFillForVerification(f, rx, model.Drug{}, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	if r.Valid {
		t.Fatal("expected partial fill without reason/remaining to be invalid")
	}
}

func TestValidateFillForVerificationAcceptsValidFill(t *testing.T) {
	rx := baseRx()
	f := model.Fill{
		DispensedNDC:      "00002143380",
		QuantityDispensed: 30,
		QuantityPrescribed: 30,
		DAW:               0,
		Lot:               "L1",
		Expiration:        time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	r := ValidateFillForVerification(f, rx, model.Drug{}, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	if !r.Valid {
		t.Fatalf("expected valid fill, got errors: %v", r.Errors)
	}
}

func TestDeriveAuxLabelsAntibiotic(t *testing.T) {
	drug := model.Drug{GenericName: "amoxicillin", TherapeuticClass: "antibiotic"}
	labels := DeriveAuxLabels(drug)
	if !contains(labels, AuxCompleteCourse) {
		t.Fatalf("expected complete-course label, got %v", labels)
	}
}

func TestDeriveAuxLabelsControlledSubstanceAlwaysWarns(t *testing.T) {
	drug := model.Drug{GenericName: "oxycodone", TherapeuticClass: "opioid", Schedule: model.ScheduleII}
	labels := DeriveAuxLabels(drug)
	if !contains(labels, AuxFederalTransferWarn) {
		t.Fatalf("expected federal transfer warning, got %v", labels)
	}
	if !contains(labels, AuxDrowsiness) || !contains(labels, AuxNoAlcohol) {
		t.Fatalf("expected opioid drowsiness/alcohol labels, got %v", labels)
	}
}

func TestDeriveAuxLabelsDeduplicated(t *testing.T) {
	drug := model.Drug{GenericName: "fentanyl", TherapeuticClass: "opioid", Schedule: model.ScheduleII}
	labels := DeriveAuxLabels(drug)
	seen := map[string]int{}
	for _, l := range labels {
		seen[l]++
	}
	for l, n := range seen {
		if n > 1 {
			t.Fatalf("expected de-duplicated labels, %s appeared %d times", l, n)
		}
	}
}

func TestAssembleLabelDataDiscardByUsesEarlierOfExpiryOrSupplyWindow(t *testing.T) {
	rx := baseRx()
	fillDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	f := model.Fill{
		DispensedNDC:      "00002143380",
		QuantityDispensed: 30,
		DaysSupply:        30,
		Expiration:        time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
	}
	drug := model.Drug{GenericName: "amoxicillin", TherapeuticClass: "antibiotic"}
	ld := AssembleLabelData(PharmacyIdentity{Name: "Test Pharmacy"}, "Jane Doe", rx, f, drug, fillDate)
	if !ld.DiscardBy.Equal(f.Expiration) {
		t.Fatalf("expected discard-by to be the earlier expiry, got %v", ld.DiscardBy)
	}
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
