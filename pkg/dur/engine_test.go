package dur

import (
	"testing"

	"github.com/ridgeline-health/dispense/pkg/model"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestCheckNoAlertsForCleanInput(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName: "metformin",
		Quantity:      60,
		StrengthMG:    500,
		DaysSupply:    30,
		AgeYears:      40,
	})
	if !result.Passed {
		t.Fatalf("expected a clean check to pass, got alerts: %+v", result.Alerts)
	}
}

func TestCheckInteractionSerotoninSyndrome(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName: "tramadol",
		Quantity:      60,
		StrengthMG:    50,
		DaysSupply:    30,
		CurrentMedications: []CurrentMedication{
			{Name: "sertraline"},
		},
	})
	if result.Passed {
		t.Fatal("expected tramadol+sertraline interaction alert")
	}
	found := false
	for _, a := range result.Alerts {
		if a.Category == model.CategoryInteraction && a.Severity == model.SeverityHigh {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a high-severity interaction alert, got %+v", result.Alerts)
	}
}

func TestCheckContraindicationMatch(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName: "sumatriptan",
		Quantity:      9,
		StrengthMG:    50,
		DaysSupply:    30,
		Conditions:    []string{"coronary artery disease"},
	})
	found := false
	for _, a := range result.Alerts {
		if a.Category == model.CategoryContraindication {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected contraindication alert, got %+v", result.Alerts)
	}
}

func TestCheckAllergyDirectMatchNonOverridable(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName: "amoxicillin",
		Quantity:      21,
		StrengthMG:    500,
		DaysSupply:    7,
		Allergies:     []string{"amoxicillin"},
	})
	for _, a := range result.Alerts {
		if a.Category == model.CategoryAllergy && a.Overridable {
			t.Fatal("direct allergy match should not be overridable")
		}
	}
	if result.Passed {
		t.Fatal("expected allergy alert")
	}
}

func TestCheckAllergyCrossReactivity(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName: "cefazolin",
		Quantity:      28,
		StrengthMG:    500,
		DaysSupply:    7,
		Allergies:     []string{"penicillin"},
	})
	found := false
	for _, a := range result.Alerts {
		if a.Category == model.CategoryAllergy {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cross-reactivity allergy alert, got %+v", result.Alerts)
	}
}

func TestCheckPregnancyCategoryXNonOverridable(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName: "warfarin",
		Quantity:      30,
		StrengthMG:    5,
		DaysSupply:    30,
		Pregnant:      true,
	})
	for _, a := range result.Alerts {
		if a.Category == model.CategoryPregnancy && a.Overridable {
			t.Fatal("category X pregnancy alert should not be overridable")
		}
	}
}

func TestCheckRenalAdjustment(t *testing.T) {
	e := testEngine(t)
	crcl := 20.0
	result := e.Check(Input{
		CandidateName:            "metformin",
		Quantity:                 60,
		StrengthMG:               500,
		DaysSupply:               30,
		CreatinineClearanceMLMin: &crcl,
	})
	found := false
	for _, a := range result.Alerts {
		if a.Category == model.CategoryRenal {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected renal alert for low CrCl, got %+v", result.Alerts)
	}
}

func TestCheckHepaticEscalatesWithImpairment(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName: "acetaminophen",
		Quantity:      60,
		StrengthMG:    500,
		DaysSupply:    30,
		Hepatic:       model.HepaticSevere,
	})
	found := false
	for _, a := range result.Alerts {
		if a.Category == model.CategoryHepatic && a.Severity == model.SeverityCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected severe hepatic impairment to escalate to critical, got %+v", result.Alerts)
	}
}

func TestCheckMonitoringAlert(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName: "warfarin",
		Quantity:      30,
		StrengthMG:    5,
		DaysSupply:    30,
	})
	found := false
	for _, a := range result.Alerts {
		if a.Category == model.CategoryMonitoring {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected monitoring alert for warfarin, got %+v", result.Alerts)
	}
}

func TestCheckMMEAlertAtDangerLevel(t *testing.T) {
	e := testEngine(t)
	// daily dose = 180*15/30 = 90mg oxycodone * 1.5 = 135 MME (critical)
	result := e.Check(Input{
		CandidateName: "oxycodone",
		Quantity:      180,
		StrengthMG:    15,
		DaysSupply:    30,
	})
	found := false
	for _, a := range result.Alerts {
		if a.Category == model.CategoryMME {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected MME alert, got %+v dailyMME=%v", result.Alerts, result.DailyMME)
	}
}

func TestCheckAlertsAreSortedBySeverityThenCategoryThenCode(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName: "warfarin",
		Quantity:      30,
		StrengthMG:    5,
		DaysSupply:    30,
		CurrentMedications: []CurrentMedication{
			{Name: "aspirin"},
			{Name: "trimethoprim"},
		},
	})
	for i := 1; i < len(result.Alerts); i++ {
		prev, cur := result.Alerts[i-1], result.Alerts[i]
		if prev.Severity < cur.Severity {
			t.Fatalf("alerts not sorted by severity descending at index %d: %+v", i, result.Alerts)
		}
		if prev.Severity == cur.Severity && prev.Category > cur.Category {
			t.Fatalf("alerts not sorted by category within severity tier at index %d: %+v", i, result.Alerts)
		}
	}
}

func TestCheckDuplicateTherapy(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName:  "atorvastatin",
		CandidateClass: "statin",
		Quantity:       30,
		StrengthMG:     20,
		DaysSupply:     30,
		CurrentMedications: []CurrentMedication{
			{Name: "simvastatin", TherapeuticClass: "statin"},
		},
	})
	found := false
	for _, a := range result.Alerts {
		if a.Category == model.CategoryDuplicateTherapy {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected duplicate therapy alert, got %+v", result.Alerts)
	}
}

func TestCheckAgePediatricRule(t *testing.T) {
	e := testEngine(t)
	result := e.Check(Input{
		CandidateName:  "ciprofloxacin",
		CandidateClass: "fluoroquinolone",
		Quantity:       14,
		StrengthMG:     500,
		DaysSupply:     7,
		AgeYears:       10,
	})
	found := false
	for _, a := range result.Alerts {
		if a.Category == model.CategoryAge {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pediatric age alert, got %+v", result.Alerts)
	}
}
