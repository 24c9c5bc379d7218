package prescription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ridgeline-health/dispense/pkg/clock"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/idgen"
	"github.com/ridgeline-health/dispense/pkg/model"
)

// fakeStore is a minimal ports.Store double covering only the prescription
// surface the state machine exercises; every other method is unused by
// these tests and returns an error if ever called.
type fakeStore struct {
	rx map[string]*model.Prescription
	// beforePut, when set, runs at the start of every PutPrescription.
	beforePut func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{rx: map[string]*model.Prescription{}}
}

func (s *fakeStore) GetPatient(ctx context.Context, id string) (*model.Patient, error) {
	return nil, errors.New("not implemented")
}
func (s *fakeStore) FindPatientByMRNDOB(ctx context.Context, mrn string, dob time.Time) (*model.Patient, error) {
	return nil, errors.New("not implemented")
}
func (s *fakeStore) PutPatient(ctx context.Context, p *model.Patient, expectedVersion int64) error {
	return errors.New("not implemented")
}

func (s *fakeStore) GetPrescription(ctx context.Context, id string) (*model.Prescription, error) {
	rx, ok := s.rx[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *rx
	return &cp, nil
}

func (s *fakeStore) PutPrescription(ctx context.Context, rx *model.Prescription, expectedVersion int64) error {
	if s.beforePut != nil {
		s.beforePut()
	}
	existing, ok := s.rx[rx.ID]
	if ok && existing.Version != expectedVersion {
		return errtax.New(errtax.CodeConcurrentMutation, "stale version")
	}
	cp := *rx
	s.rx[rx.ID] = &cp
	return nil
}

func (s *fakeStore) ListRecentPrescriptionsByPrescriber(ctx context.Context, prescriberID string, since time.Time) ([]*model.Prescription, error) {
	var out []*model.Prescription
	for _, rx := range s.rx {
		if rx.PrescriberID == prescriberID && !rx.WrittenDate.Before(since) {
			out = append(out, rx)
		}
	}
	return out, nil
}

func (s *fakeStore) GetFill(ctx context.Context, id string) (*model.Fill, error) { return nil, errors.New("not implemented") }
func (s *fakeStore) ListFills(ctx context.Context, prescriptionID string) ([]*model.Fill, error) {
	return nil, errors.New("not implemented")
}
func (s *fakeStore) PutFill(ctx context.Context, f *model.Fill, expectedVersion int64) error {
	return errors.New("not implemented")
}

func (s *fakeStore) GetClaim(ctx context.Context, id string) (*model.Claim, error) { return nil, errors.New("not implemented") }
func (s *fakeStore) ListClaims(ctx context.Context, fillID string) ([]*model.Claim, error) {
	return nil, errors.New("not implemented")
}
func (s *fakeStore) PutClaim(ctx context.Context, c *model.Claim, expectedVersion int64) error {
	return errors.New("not implemented")
}

func (s *fakeStore) GetVerificationSession(ctx context.Context, fillID string) (*model.VerificationSession, error) {
	return nil, errors.New("not implemented")
}
func (s *fakeStore) PutVerificationSession(ctx context.Context, vs *model.VerificationSession, expectedVersion int64) error {
	return errors.New("not implemented")
}

func (s *fakeStore) GetInventoryItem(ctx context.Context, pharmacyID, ndc string) (*model.InventoryItem, error) {
	return nil, errors.New("not implemented")
}
func (s *fakeStore) PutInventoryItem(ctx context.Context, item *model.InventoryItem, expectedVersion int64) error {
	return errors.New("not implemented")
}
func (s *fakeStore) AppendInventoryTransaction(ctx context.Context, tx model.InventoryTransaction) error {
	return errors.New("not implemented")
}
func (s *fakeStore) ListInventoryTransactions(ctx context.Context, pharmacyID, ndc string) ([]model.InventoryTransaction, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error { return nil }

func newTestMachine() (*Machine, *fakeStore) {
	store := newFakeStore()
	m := New(store, nil, clock.NewFrozen(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)), &idgen.Sequential{}, nil)
	return m, store
}

func baseRx() model.Prescription {
	return model.Prescription{
		PatientID:         "pat1",
		PrescriberID:      "presc1",
		DrugNDC:           "00002143380",
		Quantity:          30,
		DaysSupply:        30,
		Sig:               "take 1 tablet daily",
		RefillsAuthorized: 3,
		RefillsRemaining:  3,
		WrittenDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpirationDate:    time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		Schedule:          model.ScheduleLegend,
	}
}

func TestAcceptCreatesIntakePrescription(t *testing.T) {
	m, _ := newTestMachine()
	rx, err := m.Accept(context.Background(), Actor{ID: "u1", Role: "USER"}, baseRx())
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if rx.State != model.RxIntake {
		t.Fatalf("expected intake state, got %s", rx.State)
	}
}

func TestAdvanceToDataEntryRejectsDuplicate(t *testing.T) {
	m, store := newTestMachine()
	ctx := context.Background()
	rx1, _ := m.Accept(ctx, Actor{ID: "u1"}, baseRx())

	dup := baseRx()
	dup.WrittenDate = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	rx2, _ := m.Accept(ctx, Actor{ID: "u1"}, dup)
	store.rx[rx1.ID].WrittenDate = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	if _, err := m.AdvanceToDataEntry(ctx, Actor{ID: "u1"}, rx1.ID); err != nil {
		t.Fatalf("first admission should succeed: %v", err)
	}
	if _, err := m.AdvanceToDataEntry(ctx, Actor{ID: "u1"}, rx2.ID); err == nil {
		t.Fatal("expected duplicate admission to be rejected")
	}
}

func TestAdvanceToClaimPendingRequiresFields(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()
	rx := baseRx()
	rx.Sig = ""
	created, _ := m.Accept(ctx, Actor{ID: "u1"}, rx)
	if _, err := m.AdvanceToDataEntry(ctx, Actor{ID: "u1"}, created.ID); err != nil {
		t.Fatalf("AdvanceToDataEntry: %v", err)
	}
	if _, err := m.AdvanceToClaimPending(ctx, Actor{ID: "u1"}, created.ID); err == nil {
		t.Fatal("expected missing sig to block claim_pending")
	}
}

func TestFullHappyPathToPickedUp(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()
	actor := Actor{ID: "pharmacist1", Role: "pharmacist"}

	rx, err := m.Accept(ctx, actor, baseRx())
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	steps := []func() error{
		func() error { _, e := m.AdvanceToDataEntry(ctx, actor, rx.ID); return e },
		func() error { _, e := m.AdvanceToClaimPending(ctx, actor, rx.ID); return e },
		func() error {
			_, e := m.AdvanceToFillPending(ctx, actor, rx.ID, FillPendingProofInput{ApprovedClaim: true})
			return e
		},
		func() error { _, e := m.AdvanceToFilled(ctx, actor, rx.ID); return e },
		func() error { _, e := m.AdvanceToVerificationPending(ctx, actor, rx.ID, true); return e },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	session := &model.VerificationSession{
		Decision: model.DecisionApproved,
		Checklist: model.Checklist{
			PatientNameVerified: true, DOBVerified: true, AllergiesReviewed: true,
			DrugVerified: true, StrengthVerified: true, QuantityVerified: true,
			DaysSupplyVerified: true, SigVerified: true,
			InteractionsCleared: true, AllergiesCleared: true,
			NDCVerified: true, ExpiryValid: true,
			LabelCorrect: true, PackagingOK: true, AppearanceOK: true,
		},
	}
	if _, err := m.AdvanceToVerified(ctx, actor, rx.ID, session); err != nil {
		t.Fatalf("AdvanceToVerified: %v", err)
	}
	if _, err := m.AdvanceToReadyForPickup(ctx, actor, rx.ID); err != nil {
		t.Fatalf("AdvanceToReadyForPickup: %v", err)
	}
	final, err := m.PickUp(ctx, actor, rx.ID)
	if err != nil {
		t.Fatalf("PickUp: %v", err)
	}
	if final.State != model.RxPickedUp {
		t.Fatalf("expected picked_up, got %s", final.State)
	}

	// Terminal transitions are idempotent on re-invocation.
	again, err := m.PickUp(ctx, actor, rx.ID)
	if err != nil {
		t.Fatalf("idempotent PickUp: %v", err)
	}
	if again.Version != final.Version {
		t.Fatalf("idempotent re-invocation should not bump version: %d != %d", again.Version, final.Version)
	}
}

func TestUnknownTransitionFails(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()
	actor := Actor{ID: "u1"}
	rx, _ := m.Accept(ctx, actor, baseRx())
	if _, err := m.AdvanceToVerified(ctx, actor, rx.ID, &model.VerificationSession{Decision: model.DecisionApproved}); err == nil {
		t.Fatal("expected invalid transition error from intake straight to verified")
	}
}

func TestConcurrentMutationOnStaleVersion(t *testing.T) {
	m, store := newTestMachine()
	ctx := context.Background()
	actor := Actor{ID: "u1"}
	rx, _ := m.Accept(ctx, actor, baseRx())

	// Simulate a racing writer bumping the version between the machine's
	// read and its write.
	store.beforePut = func() { store.rx[rx.ID].Version = 99 }

	if _, err := m.AdvanceToDataEntry(ctx, actor, rx.ID); err == nil {
		t.Fatal("expected concurrent mutation error")
	}
}

func TestScheduleIIFillPendingRequiresLTCEmergencyProof(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()
	actor := Actor{ID: "u1"}
	rx := baseRx()
	rx.Schedule = model.ScheduleII
	rx.RefillsAuthorized = 0
	rx.RefillsRemaining = 0
	created, _ := m.Accept(ctx, actor, rx)
	m.AdvanceToDataEntry(ctx, actor, created.ID)
	m.AdvanceToClaimPending(ctx, actor, created.ID)

	if _, err := m.AdvanceToFillPending(ctx, actor, created.ID, FillPendingProofInput{}); err == nil {
		t.Fatal("expected fill_pending to be blocked without claim/cash/LTC proof")
	}
	if _, err := m.AdvanceToFillPending(ctx, actor, created.ID, FillPendingProofInput{EmergencyPartialLTC: true}); err != nil {
		t.Fatalf("expected documented Schedule II LTC emergency partial to satisfy proof: %v", err)
	}
}
