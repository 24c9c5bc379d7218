package dur

import "testing"

func TestMethadoneFactorBoundaries(t *testing.T) {
	cases := []struct {
		dose float64
		want float64
	}{
		{20, 4},
		{25, 8},
		{40, 8},
		{41, 10},
		{60, 10},
		{61, 12},
	}
	for _, c := range cases {
		if got := methadoneFactor(c.dose); got != c.want {
			t.Errorf("methadoneFactor(%v) = %v, want %v", c.dose, got, c.want)
		}
	}
}

func TestConversionFactorKnownOpioid(t *testing.T) {
	factor, ok := ConversionFactor("oxycodone HCl", 30)
	if !ok || factor != 1.5 {
		t.Fatalf("ConversionFactor(oxycodone) = %v,%v, want 1.5,true", factor, ok)
	}
}

func TestConversionFactorUnknownDrug(t *testing.T) {
	if _, ok := ConversionFactor("lisinopril", 10); ok {
		t.Fatal("expected unknown conversion factor for non-opioid")
	}
}

func TestDailyMMEComputation(t *testing.T) {
	// 2 tablets/day of 15mg oxycodone, 30 day supply: quantity=60, strength=15.
	mme, ok := DailyMME("oxycodone", 60, 15, 30)
	if !ok {
		t.Fatal("expected ok=true for oxycodone")
	}
	// daily dose = 60*15/30 = 30mg, factor 1.5 -> 45 MME
	if mme != 45 {
		t.Fatalf("DailyMME = %v, want 45", mme)
	}
}

func TestDailyMMEZeroDaysSupply(t *testing.T) {
	if _, ok := DailyMME("oxycodone", 60, 15, 0); ok {
		t.Fatal("expected ok=false for zero days supply")
	}
}

func TestMMELevelThresholds(t *testing.T) {
	cases := []struct {
		mme  float64
		want string
	}{
		{10, "none"},
		{50, "warning"},
		{89.9, "warning"},
		{90, "danger"},
		{119.9, "danger"},
		{120, "critical"},
	}
	for _, c := range cases {
		if got := MMELevel(c.mme); got != c.want {
			t.Errorf("MMELevel(%v) = %q, want %q", c.mme, got, c.want)
		}
	}
}
