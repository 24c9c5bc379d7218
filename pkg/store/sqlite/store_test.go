package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestPutPrescriptionThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rx := &model.Prescription{ID: "rx_1", RxNumber: "RX1", PrescriberID: "pres_1", WrittenDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

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
	s := newTestStore(t)
	if _, err := s.GetPrescription(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPutPrescriptionRejectsStaleVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rx := &model.Prescription{ID: "rx_1", PrescriberID: "pres_1", WrittenDate: time.Now().UTC()}
	if err := s.PutPrescription(ctx, rx, 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	rx.Version = 1
	if err := s.PutPrescription(ctx, rx, 0); err != nil {
		t.Fatalf("second put: %v", err)
	}
	stale := *rx
	stale.Version = 5
	err := s.PutPrescription(ctx, &stale, 0)
	cerr, ok := err.(*errtax.Error)
	if !ok || cerr.Code != errtax.CodeConcurrentMutation {
		t.Fatalf("err = %v, want CodeConcurrentMutation", err)
	}
}

func TestListRecentPrescriptionsByPrescriberFiltersByWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := &model.Prescription{ID: "rx_old", PrescriberID: "pres_1", WrittenDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	recent := &model.Prescription{ID: "rx_recent", PrescriberID: "pres_1", WrittenDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)}
	other := &model.Prescription{ID: "rx_other", PrescriberID: "pres_2", WrittenDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)}

	for _, rx := range []*model.Prescription{old, recent, other} {
		if err := s.PutPrescription(ctx, rx, 0); err != nil {
			t.Fatalf("put %s: %v", rx.ID, err)
		}
	}

	got, err := s.ListRecentPrescriptionsByPrescriber(ctx, "pres_1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "rx_recent" {
		t.Fatalf("got %+v, want only rx_recent", got)
	}
}

func TestInventoryItemRoundTripsWithVersionBump(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	item := &model.InventoryItem{PharmacyID: "ph_1", NDC: "00002143380", OnHand: 100, ReorderPoint: 20, ParLevel: 200}
	if err := s.PutInventoryItem(ctx, item, 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetInventoryItem(ctx, "ph_1", "00002143380")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.OnHand = 70
	got.Version = 1
	if err := s.PutInventoryItem(ctx, got, 0); err != nil {
		t.Fatalf("update: %v", err)
	}

	final, err := s.GetInventoryItem(ctx, "ph_1", "00002143380")
	if err != nil {
		t.Fatalf("get final: %v", err)
	}
	if final.OnHand != 70 {
		t.Fatalf("on hand = %v, want 70", final.OnHand)
	}
}

func TestInventoryTransactionsOrderBySequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, id := range []string{"invtx_1", "invtx_2", "invtx_3"} {
		tx := model.InventoryTransaction{ID: id, PharmacyID: "ph_1", NDC: "00002143380", Type: model.TxReceive, SignedDelta: float64(i + 1)}
		if err := s.AppendInventoryTransaction(ctx, tx); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	txs, err := s.ListInventoryTransactions(ctx, "ph_1", "00002143380")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 3 || txs[0].ID != "invtx_1" || txs[2].ID != "invtx_3" {
		t.Fatalf("got %+v, want ordered invtx_1..invtx_3", txs)
	}
}

func TestAppendAuditPersists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.AppendAudit(ctx, model.AuditEntry{ID: "a1", Resource: "prescription", ResourceID: "rx_1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestListAuditEntriesOrdersBySequenceAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a1", "a2", "a3"} {
		if err := s.AppendAudit(ctx, model.AuditEntry{ID: id, Resource: "prescription", ResourceID: "rx_1"}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	all, err := s.ListAuditEntries(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].ID != "a1" || all[1].ID != "a2" || all[2].ID != "a3" {
		t.Fatalf("expected ascending sequence order, got %+v", all)
	}
	if all[0].Sequence != 1 || all[2].Sequence != 3 {
		t.Fatalf("expected sequence numbers to be stamped, got %+v", all)
	}

	since, err := s.ListAuditEntries(ctx, all[0].Sequence)
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(since) != 2 || since[0].ID != "a2" {
		t.Fatalf("expected entries after first sequence, got %+v", since)
	}
}
