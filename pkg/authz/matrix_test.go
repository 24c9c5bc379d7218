package authz

import "testing"

func TestAdminHasFullAccess(t *testing.T) {
	e := NewEngine()
	admin := Principal{ID: "a1", Role: RoleAdmin}
	if !e.Allowed(admin, ResourceBilling, ActionDelete, "") {
		t.Fatal("expected admin to have delete access on billing")
	}
}

func TestPatientScopedToOwnRecords(t *testing.T) {
	e := NewEngine()
	patient := Principal{ID: "patient-1", Role: RolePatient}
	if !e.Allowed(patient, ResourcePatient, ActionRead, "patient-1") {
		t.Fatal("expected patient to read their own record")
	}
	if e.Allowed(patient, ResourcePatient, ActionRead, "patient-2") {
		t.Fatal("expected patient to be denied another patient's record")
	}
}

func TestPatientCannotWrite(t *testing.T) {
	e := NewEngine()
	patient := Principal{ID: "patient-1", Role: RolePatient}
	if e.Allowed(patient, ResourcePatient, ActionUpdate, "patient-1") {
		t.Fatal("expected patient to be denied update even on own record")
	}
}

func TestNurseClinicalAccessNoSettings(t *testing.T) {
	e := NewEngine()
	nurse := Principal{ID: "n1", Role: RoleNurse}
	if !e.Allowed(nurse, ResourceMedication, ActionCreate, "") {
		t.Fatal("expected nurse to create medication records")
	}
	if e.Allowed(nurse, ResourceSettings, ActionRead, "") {
		t.Fatal("expected nurse to be denied settings access")
	}
}

func TestDefaultUserIsLowPrivilege(t *testing.T) {
	e := NewEngine()
	user := Principal{ID: "u1", Role: RoleUser}
	if e.Allowed(user, ResourcePatient, ActionRead, "") {
		t.Fatal("expected default USER role to have no patient access")
	}
	if !e.Allowed(user, ResourceReport, ActionRead, "") {
		t.Fatal("expected default USER role to read reports")
	}
}

func TestGrantAddsRuntimePermission(t *testing.T) {
	e := NewEngine()
	user := Principal{ID: "u1", Role: RoleUser}
	if e.Allowed(user, ResourceBilling, ActionRead, "") {
		t.Fatal("expected no billing access before grant")
	}
	e.Grant(RoleUser, ResourceBilling, ActionRead)
	if !e.Allowed(user, ResourceBilling, ActionRead, "") {
		t.Fatal("expected billing access after grant")
	}
}
