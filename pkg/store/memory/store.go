// Package memory implements ports.Store entirely in process memory, for
// tests; cmd/dispensed does not use it (its lite mode opens
// pkg/store/sqlite). Every read returns a
// defensive copy so a caller's mutation of a returned pointer never leaks
// back into the store without going through Put*.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/model"
)

// ErrNotFound is returned when a lookup key has no record.
var ErrNotFound = errors.New("memory: not found")

// Store is a thread-safe, map-backed ports.Store.
type Store struct {
	mu sync.RWMutex

	patients      map[string]*model.Patient
	prescriptions map[string]*model.Prescription
	fills         map[string]*model.Fill
	fillsByRx     map[string][]string // prescriptionID -> fill IDs, insertion order
	claims        map[string]*model.Claim
	claimsByFill  map[string][]string // fillID -> claim IDs, insertion order
	sessions      map[string]*model.VerificationSession // keyed by fillID
	items         map[string]*model.InventoryItem        // keyed by pharmacyID+":"+ndc
	invTxs        map[string][]model.InventoryTransaction
	audit         []model.AuditEntry
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		patients:      make(map[string]*model.Patient),
		prescriptions: make(map[string]*model.Prescription),
		fills:         make(map[string]*model.Fill),
		fillsByRx:     make(map[string][]string),
		claims:        make(map[string]*model.Claim),
		claimsByFill:  make(map[string][]string),
		sessions:      make(map[string]*model.VerificationSession),
		items:         make(map[string]*model.InventoryItem),
		invTxs:        make(map[string][]model.InventoryTransaction),
	}
}

func invKey(pharmacyID, ndc string) string { return pharmacyID + ":" + ndc }

func checkVersion(current, expected int64) error {
	if current != expected {
		return errtax.New(errtax.CodeConcurrentMutation, "version mismatch").WithField("version")
	}
	return nil
}

// --- patients ---

func (s *Store) GetPatient(ctx context.Context, id string) (*model.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	val := *p
	return &val, nil
}

func (s *Store) FindPatientByMRNDOB(ctx context.Context, mrn string, dob time.Time) (*model.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patients {
		if p.MRN == mrn && p.DOB.Equal(dob) {
			val := *p
			return &val, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Store) PutPatient(ctx context.Context, p *model.Patient, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.patients[p.ID]; ok {
		if err := checkVersion(existing.Version, expectedVersion); err != nil {
			return err
		}
	} else if expectedVersion != 0 {
		return errtax.New(errtax.CodeConcurrentMutation, "version mismatch").WithField("version")
	}
	val := *p
	s.patients[p.ID] = &val
	return nil
}

// --- prescriptions ---

func (s *Store) GetPrescription(ctx context.Context, id string) (*model.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rx, ok := s.prescriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	val := *rx
	return &val, nil
}

func (s *Store) PutPrescription(ctx context.Context, rx *model.Prescription, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.prescriptions[rx.ID]; ok {
		if err := checkVersion(existing.Version, expectedVersion); err != nil {
			return err
		}
	} else if expectedVersion != 0 {
		return errtax.New(errtax.CodeConcurrentMutation, "version mismatch").WithField("version")
	}
	val := *rx
	s.prescriptions[rx.ID] = &val
	return nil
}

func (s *Store) ListRecentPrescriptionsByPrescriber(ctx context.Context, prescriberID string, since time.Time) ([]*model.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Prescription
	for _, rx := range s.prescriptions {
		if rx.PrescriberID != prescriberID {
			continue
		}
		if rx.WrittenDate.Before(since) {
			continue
		}
		val := *rx
		out = append(out, &val)
	}
	return out, nil
}

// --- fills ---

func (s *Store) GetFill(ctx context.Context, id string) (*model.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fills[id]
	if !ok {
		return nil, ErrNotFound
	}
	val := *f
	return &val, nil
}

func (s *Store) ListFills(ctx context.Context, prescriptionID string) ([]*model.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Fill
	for _, id := range s.fillsByRx[prescriptionID] {
		f := s.fills[id]
		val := *f
		out = append(out, &val)
	}
	return out, nil
}

func (s *Store) PutFill(ctx context.Context, f *model.Fill, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.fills[f.ID]
	if ok {
		if err := checkVersion(existing.Version, expectedVersion); err != nil {
			return err
		}
	} else if expectedVersion != 0 {
		return errtax.New(errtax.CodeConcurrentMutation, "version mismatch").WithField("version")
	}
	val := *f
	s.fills[f.ID] = &val
	if !ok {
		s.fillsByRx[f.PrescriptionID] = append(s.fillsByRx[f.PrescriptionID], f.ID)
	}
	return nil
}

// --- claims ---

func (s *Store) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	val := *c
	return &val, nil
}

func (s *Store) ListClaims(ctx context.Context, fillID string) ([]*model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Claim
	for _, id := range s.claimsByFill[fillID] {
		c := s.claims[id]
		val := *c
		out = append(out, &val)
	}
	return out, nil
}

func (s *Store) PutClaim(ctx context.Context, c *model.Claim, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.claims[c.ID]
	if ok {
		if err := checkVersion(existing.Version, expectedVersion); err != nil {
			return err
		}
	} else if expectedVersion != 0 {
		return errtax.New(errtax.CodeConcurrentMutation, "version mismatch").WithField("version")
	}
	val := *c
	s.claims[c.ID] = &val
	if !ok {
		s.claimsByFill[c.FillID] = append(s.claimsByFill[c.FillID], c.ID)
	}
	return nil
}

// --- verification sessions ---

func (s *Store) GetVerificationSession(ctx context.Context, fillID string) (*model.VerificationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs, ok := s.sessions[fillID]
	if !ok {
		return nil, ErrNotFound
	}
	val := *vs
	return &val, nil
}

func (s *Store) PutVerificationSession(ctx context.Context, vs *model.VerificationSession, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[vs.FillID]; ok {
		if err := checkVersion(existing.Version, expectedVersion); err != nil {
			return err
		}
	} else if expectedVersion != 0 {
		return errtax.New(errtax.CodeConcurrentMutation, "version mismatch").WithField("version")
	}
	val := *vs
	s.sessions[vs.FillID] = &val
	return nil
}

// --- inventory ---

func (s *Store) GetInventoryItem(ctx context.Context, pharmacyID, ndc string) (*model.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[invKey(pharmacyID, ndc)]
	if !ok {
		return nil, ErrNotFound
	}
	val := *item
	return &val, nil
}

func (s *Store) PutInventoryItem(ctx context.Context, item *model.InventoryItem, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := invKey(item.PharmacyID, item.NDC)
	if existing, ok := s.items[key]; ok {
		if err := checkVersion(existing.Version, expectedVersion); err != nil {
			return err
		}
	} else if expectedVersion != 0 {
		return errtax.New(errtax.CodeConcurrentMutation, "version mismatch").WithField("version")
	}
	val := *item
	s.items[key] = &val
	return nil
}

func (s *Store) AppendInventoryTransaction(ctx context.Context, tx model.InventoryTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := invKey(tx.PharmacyID, tx.NDC)
	s.invTxs[key] = append(s.invTxs[key], tx)
	return nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, pharmacyID, ndc string) ([]model.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txs := s.invTxs[invKey(pharmacyID, ndc)]
	out := make([]model.InventoryTransaction, len(txs))
	copy(out, txs)
	return out, nil
}

// --- audit ---

func (s *Store) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Sequence = uint64(len(s.audit)) + 1
	s.audit = append(s.audit, entry)
	return nil
}

// ListAuditEntries returns every entry with Sequence > since, in ascending
// sequence order.
func (s *Store) ListAuditEntries(ctx context.Context, since uint64) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditEntry, 0, len(s.audit))
	for _, e := range s.audit {
		if e.Sequence > since {
			out = append(out, e)
		}
	}
	return out, nil
}

// Audit returns every recorded entry, for test assertions and local
// inspection tooling.
func (s *Store) Audit() []model.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}
