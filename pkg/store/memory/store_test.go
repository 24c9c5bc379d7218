package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/model"
)

func TestPutPrescriptionThenGetRoundTrips(t *testing.T) {
	s := New()
	ctx := context.Background()
	rx := &model.Prescription{ID: "rx_1", RxNumber: "RX1", DrugNDC: "00002143380", Version: 0}

	if err := s.PutPrescription(ctx, rx, 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.GetPrescription(ctx, "rx_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RxNumber != "RX1" {
		t.Fatalf("rx number = %q, want RX1", got.RxNumber)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetPrescription(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPutPrescriptionRejectsStaleVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	rx := &model.Prescription{ID: "rx_1", Version: 0}
	if err := s.PutPrescription(ctx, rx, 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	rx.Version = 1
	if err := s.PutPrescription(ctx, rx, 0); err != nil {
		t.Fatalf("second put: %v", err)
	}

	stale := &model.Prescription{ID: "rx_1", Version: 2}
	err := s.PutPrescription(ctx, stale, 0)
	cerr, ok := err.(*errtax.Error)
	if !ok || cerr.Code != errtax.CodeConcurrentMutation {
		t.Fatalf("err = %v, want CodeConcurrentMutation", err)
	}
}

func TestReturnedPointerIsACopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	rx := &model.Prescription{ID: "rx_1", RxNumber: "RX1"}
	if err := s.PutPrescription(ctx, rx, 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, _ := s.GetPrescription(ctx, "rx_1")
	got.RxNumber = "MUTATED"

	got2, _ := s.GetPrescription(ctx, "rx_1")
	if got2.RxNumber != "RX1" {
		t.Fatalf("store leaked caller mutation: rx number = %q", got2.RxNumber)
	}
}

func TestListFillsReturnsInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i, id := range []string{"fill_1", "fill_2", "fill_3"} {
		f := &model.Fill{ID: id, PrescriptionID: "rx_1", FillNumber: i}
		if err := s.PutFill(ctx, f, 0); err != nil {
			t.Fatalf("put fill %s: %v", id, err)
		}
	}
	fills, err := s.ListFills(ctx, "rx_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(fills) != 3 {
		t.Fatalf("len(fills) = %d, want 3", len(fills))
	}
	for i, id := range []string{"fill_1", "fill_2", "fill_3"} {
		if fills[i].ID != id {
			t.Fatalf("fills[%d].ID = %q, want %q", i, fills[i].ID, id)
		}
	}
}

func TestFindPatientByMRNDOB(t *testing.T) {
	s := New()
	ctx := context.Background()
	dob := time.Date(1980, 3, 4, 0, 0, 0, 0, time.UTC)
	p := &model.Patient{ID: "pat_1", MRN: "M123", DOB: dob}
	if err := s.PutPatient(ctx, p, 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.FindPatientByMRNDOB(ctx, "M123", dob)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "pat_1" {
		t.Fatalf("ID = %q, want pat_1", got.ID)
	}

	if _, err := s.FindPatientByMRNDOB(ctx, "M123", dob.AddDate(0, 0, 1)); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound for mismatched dob", err)
	}
}

func TestInventoryTransactionsAccumulatePerKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	tx1 := model.InventoryTransaction{ID: "invtx_1", PharmacyID: "ph_1", NDC: "00002143380", Type: model.TxReceive, SignedDelta: 100, RunningBalance: 100}
	tx2 := model.InventoryTransaction{ID: "invtx_2", PharmacyID: "ph_1", NDC: "00002143380", Type: model.TxDispense, SignedDelta: -30, RunningBalance: 70}
	other := model.InventoryTransaction{ID: "invtx_3", PharmacyID: "ph_1", NDC: "99999999999", Type: model.TxReceive, SignedDelta: 5, RunningBalance: 5}

	for _, tx := range []model.InventoryTransaction{tx1, tx2, other} {
		if err := s.AppendInventoryTransaction(ctx, tx); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	txs, err := s.ListInventoryTransactions(ctx, "ph_1", "00002143380")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len(txs) = %d, want 2", len(txs))
	}
	if txs[1].RunningBalance != 70 {
		t.Fatalf("running balance = %v, want 70", txs[1].RunningBalance)
	}
}

func TestAppendAuditAccumulates(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.AppendAudit(ctx, model.AuditEntry{ID: "a1", Action: "prescription:create"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendAudit(ctx, model.AuditEntry{ID: "a2", Action: "prescription:verify"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries := s.Audit()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}

func TestListAuditEntriesFiltersSinceSequence(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.AppendAudit(ctx, model.AuditEntry{ID: "a1"})
	s.AppendAudit(ctx, model.AuditEntry{ID: "a2"})
	s.AppendAudit(ctx, model.AuditEntry{ID: "a3"})

	out, err := s.ListAuditEntries(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 || out[0].ID != "a2" || out[1].ID != "a3" {
		t.Fatalf("unexpected entries: %+v", out)
	}
}
