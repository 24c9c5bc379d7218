package claim

import "testing"

func TestResolveKnownCode(t *testing.T) {
	entry := Resolve("79")
	if entry.Severity != "warning" {
		t.Fatalf("expected refill-too-soon to be a warning, got %s", entry.Severity)
	}
}

func TestResolveUnknownCodeFallsBackToContactPrescriber(t *testing.T) {
	entry := Resolve("ZZ")
	if entry.Severity != "warning" {
		t.Fatalf("expected unknown code fallback to be a warning, got %s", entry.Severity)
	}
	if entry.Resolution == "" {
		t.Fatal("expected a non-empty fallback resolution")
	}
}

func TestOverridePermittedTable(t *testing.T) {
	if !OverridePermitted("76") {
		t.Fatal("expected 76 (plan limit) to permit override")
	}
	if OverridePermitted("75") {
		t.Fatal("expected 75 (prior auth) to not permit override")
	}
}
