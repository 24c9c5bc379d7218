package pdmp

import (
	"testing"
	"time"

	"github.com/ridgeline-health/dispense/pkg/model"
)

func day(n int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestAnalyzeNoPatternsIsLowRisk(t *testing.T) {
	in := Input{
		Records: []model.DispensingRecord{
			{PrescriberID: "p1", PharmacyID: "ph1", DrugNDC: "111", DrugClass: "antibiotic", Quantity: 30, DaysSupply: 10, DispensedDate: day(0)},
		},
		Now: day(5),
	}
	result := Analyze(in)
	if result.RiskScore != 0 {
		t.Fatalf("expected score 0, got %d", result.RiskScore)
	}
	if result.RiskLevel != model.RiskLow {
		t.Fatalf("expected low risk, got %s", result.RiskLevel)
	}
	if len(result.Alerts) != 0 {
		t.Fatalf("expected no alerts, got %v", result.Alerts)
	}
}

func TestAnalyzeMultiPrescriberAndPharmacyFlagsDoctorShopping(t *testing.T) {
	var records []model.DispensingRecord
	for i := 0; i < 4; i++ {
		records = append(records, model.DispensingRecord{
			PrescriberID:  "presc" + string(rune('A'+i)),
			PharmacyID:    "pharm" + string(rune('A'+i)),
			DrugNDC:       "111",
			DrugClass:     "opioid",
			Quantity:      30,
			DaysSupply:    10,
			DispensedDate: day(i * 30),
		})
	}
	in := Input{Records: records, Now: day(200)}
	result := Analyze(in)

	wantScore := weightMultiPrescriber + weightMultiPharmacy + weightDoctorShopping
	if result.RiskScore != wantScore {
		t.Fatalf("expected score %d, got %d", wantScore, result.RiskScore)
	}
	foundDoctorShopping := false
	for _, a := range result.Alerts {
		if a.Type == model.AlertDoctorShopping {
			foundDoctorShopping = true
			if !a.RequiresAction {
				t.Fatal("expected doctor-shopping alert to require action")
			}
		}
	}
	if !foundDoctorShopping {
		t.Fatal("expected a doctor-shopping alert")
	}
}

func TestAnalyzeHighMMEFlagsAlert(t *testing.T) {
	in := Input{
		Records: []model.DispensingRecord{
			{
				PrescriberID: "p1", PharmacyID: "ph1", DrugNDC: "111", DrugClass: "opioid",
				Quantity: 120, StrengthMG: 30, DaysSupply: 30, MMEFactor: 1.5,
				DispensedDate: day(0),
			},
		},
		Now: day(5),
	}
	// dailyDose = 120*30/30 = 120mg, * 1.5 factor = 180 MME/day.
	result := Analyze(in)
	if result.RiskScore < weightHighMME {
		t.Fatalf("expected high-MME weight included, got score %d", result.RiskScore)
	}
	found := false
	for _, a := range result.Alerts {
		if a.Type == model.AlertHighMME {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a high_mme alert")
	}
}

func TestAnalyzeDangerousCombo(t *testing.T) {
	in := Input{
		Records: []model.DispensingRecord{
			{PrescriberID: "p1", PharmacyID: "ph1", DrugNDC: "111", DrugClass: "opioid", Quantity: 30, DaysSupply: 30, DispensedDate: day(0)},
			{PrescriberID: "p1", PharmacyID: "ph1", DrugNDC: "222", DrugClass: "benzodiazepine", Quantity: 30, DaysSupply: 30, DispensedDate: day(5)},
		},
		Now: day(10),
	}
	result := Analyze(in)
	found := false
	for _, a := range result.Alerts {
		if a.Type == model.AlertDangerousCombo {
			found = true
			if a.Severity != model.SeverityCritical {
				t.Fatalf("expected critical severity, got %s", a.Severity)
			}
		}
	}
	if !found {
		t.Fatal("expected a dangerous_combo alert for overlapping opioid+benzodiazepine")
	}
}

func TestAnalyzeEarlyRefill(t *testing.T) {
	in := Input{
		Records: []model.DispensingRecord{
			{PrescriberID: "p1", PharmacyID: "ph1", DrugNDC: "111", DrugClass: "opioid", Quantity: 30, DaysSupply: 30, DispensedDate: day(0)},
			// refilled on day 10, well before 80% of 30 days (day 24) elapsed.
			{PrescriberID: "p1", PharmacyID: "ph1", DrugNDC: "111", DrugClass: "opioid", Quantity: 30, DaysSupply: 30, DispensedDate: day(10)},
		},
		Now: day(15),
	}
	result := Analyze(in)
	found := false
	for _, a := range result.Alerts {
		if a.Type == model.AlertEarlyRefill {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an early_refill alert")
	}
}

func TestAnalyzeCashOnlyAtThreshold(t *testing.T) {
	in := Input{
		Records: []model.DispensingRecord{
			{PrescriberID: "p1", PharmacyID: "ph1", DrugNDC: "111", DrugClass: "opioid", Quantity: 30, DaysSupply: 5, DispensedDate: day(0), CashPay: true},
			{PrescriberID: "p1", PharmacyID: "ph1", DrugNDC: "222", DrugClass: "opioid", Quantity: 30, DaysSupply: 5, DispensedDate: day(40), CashPay: true},
			{PrescriberID: "p1", PharmacyID: "ph1", DrugNDC: "333", DrugClass: "opioid", Quantity: 30, DaysSupply: 5, DispensedDate: day(80), CashPay: true},
		},
		Now: day(90),
	}
	result := Analyze(in)
	found := false
	for _, a := range result.Alerts {
		if a.Type == model.AlertCashOnly {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a cash_only alert at the 3-transaction threshold")
	}
}

func TestAnalyzeRiskLevelBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  model.RiskLevel
	}{
		{0, model.RiskLow},
		{19, model.RiskLow},
		{20, model.RiskModerate},
		{39, model.RiskModerate},
		{40, model.RiskHigh},
		{59, model.RiskHigh},
		{60, model.RiskCritical},
		{100, model.RiskCritical},
	}
	for _, c := range cases {
		if got := riskLevel(c.score); got != c.want {
			t.Errorf("riskLevel(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestAnalyzeScoreCappedAt100(t *testing.T) {
	var records []model.DispensingRecord
	for i := 0; i < 4; i++ {
		records = append(records, model.DispensingRecord{
			PrescriberID: "presc" + string(rune('A'+i)), PharmacyID: "pharm" + string(rune('A'+i)),
			DrugNDC: "opioid" + string(rune('A'+i)), DrugClass: "opioid",
			Quantity: 200, StrengthMG: 30, DaysSupply: 10, MMEFactor: 1.5,
			DispensedDate: day(i * 2), CashPay: true,
		})
	}
	records = append(records, model.DispensingRecord{
		PrescriberID: "presc1", PharmacyID: "pharmX", DrugNDC: "benzoX", DrugClass: "benzodiazepine",
		Quantity: 30, DaysSupply: 10, DispensedDate: day(0),
	})
	in := Input{Records: records, Now: day(5)}
	result := Analyze(in)
	if result.RiskScore > 100 {
		t.Fatalf("expected score capped at 100, got %d", result.RiskScore)
	}
}
