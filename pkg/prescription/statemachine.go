// Package prescription implements the dispensing lifecycle state machine
// from spec.md §4.1: a strictly ordered sequence of transitions over a
// Prescription aggregate, each serialized per-id, optimistically
// concurrency-checked, and audited exactly once before acknowledging the
// caller.
package prescription

import (
	"context"
	"fmt"
	"time"

	"github.com/ridgeline-health/dispense/pkg/auditlog"
	"github.com/ridgeline-health/dispense/pkg/clock"
	"github.com/ridgeline-health/dispense/pkg/concurrency"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/idgen"
	"github.com/ridgeline-health/dispense/pkg/model"
	"github.com/ridgeline-health/dispense/pkg/ports"
)

// Actor identifies the caller driving a transition, for audit attribution.
type Actor struct {
	ID   string
	Role string
}

// Machine orchestrates prescription lifecycle transitions against a Store,
// serializing per-prescription writes through a Locker.
type Machine struct {
	store  ports.Store
	locker concurrency.Locker
	clock  clock.Clock
	ids    idgen.IDGen
	audit  auditlog.Recorder
}

// New builds a Machine. locker, clk default to an in-process KeyedLocker and
// the system clock when nil.
func New(store ports.Store, locker concurrency.Locker, clk clock.Clock, ids idgen.IDGen, audit auditlog.Recorder) *Machine {
	if locker == nil {
		locker = concurrency.NewKeyedLocker()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Machine{store: store, locker: locker, clock: clk, ids: ids, audit: audit}
}

func (m *Machine) recordAudit(ctx context.Context, actor Actor, action string, rx *model.Prescription, outcome model.AuditOutcome) {
	if m.audit == nil {
		return
	}
	_ = m.audit.Record(ctx, model.AuditEntry{
		Actor:      actor.ID,
		Action:     action,
		Resource:   "prescription",
		ResourceID: rx.ID,
		Outcome:    outcome,
		PHITouch:   true,
		Timestamp:  m.clock.Now(),
		Context:    map[string]any{"role": actor.Role, "state": string(rx.State)},
	})
}

// withLock runs fn while holding the per-prescription lock for id.
func (m *Machine) withLock(ctx context.Context, id string, fn func() error) error {
	unlock, err := m.locker.Lock(ctx, "prescription:"+id)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// transition loads rx, checks from->to is a legal edge and the expected
// version matches, runs guard, mutates state, and persists+audits.
func (m *Machine) transition(ctx context.Context, actor Actor, id string, to model.RxState, guard func(rx *model.Prescription) error, mutate func(rx *model.Prescription)) (*model.Prescription, error) {
	var result *model.Prescription
	err := m.withLock(ctx, id, func() error {
		rx, err := m.store.GetPrescription(ctx, id)
		if err != nil {
			return err
		}

		if rx.State == to {
			// Terminal transitions are idempotent on re-invocation (spec.md
			// §4.1); non-terminal re-invocation with the same target is
			// likewise a no-op rather than an error.
			result = rx
			return nil
		}

		if !canTransition(rx.State, to) {
			return errInvalidTransition(string(rx.State), string(to))
		}
		if guard != nil {
			if err := guard(rx); err != nil {
				return err
			}
		}

		expectedVersion := rx.Version
		rx.State = to
		if mutate != nil {
			mutate(rx)
		}
		rx.Version++

		if err := m.store.PutPrescription(ctx, rx, expectedVersion); err != nil {
			if cerr, ok := err.(*errtax.Error); ok && cerr.Code == errtax.CodeConcurrentMutation {
				return errConcurrentMutation(id)
			}
			return err
		}

		m.recordAudit(ctx, actor, fmt.Sprintf("transition:%s", to), rx, model.OutcomeSuccess)
		result = rx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Accept creates a new Prescription in the intake state, per the
// Intake.Accept port (spec.md §6).
func (m *Machine) Accept(ctx context.Context, actor Actor, rx model.Prescription) (*model.Prescription, error) {
	rx.ID = m.ids.New("rx")
	rx.State = model.RxIntake
	rx.Version = 0
	if err := validateIntakeSchema(rx); err != nil {
		return nil, err
	}
	if err := rx.Validate(); err != nil {
		return nil, err
	}
	if err := m.store.PutPrescription(ctx, &rx, 0); err != nil {
		return nil, err
	}
	m.recordAudit(ctx, actor, "accept", &rx, model.OutcomeSuccess)
	return &rx, nil
}

// AdvanceToDataEntry admits an intake prescription: requires a patient link
// (by id, already resolved by the caller against MRN+DOB) and that the
// prescribing event is not a duplicate within the last 24h (drug + quantity
// + prescriber), per spec.md §4.1.
func (m *Machine) AdvanceToDataEntry(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxDataEntry, func(rx *model.Prescription) error {
		if rx.PatientID == "" {
			return errMissingRequired("patient_id")
		}
		since := m.clock.Now().Add(-24 * time.Hour)
		recent, err := m.store.ListRecentPrescriptionsByPrescriber(ctx, rx.PrescriberID, since)
		if err != nil {
			return err
		}
		if isDuplicateAdmission(recent, rx.ID, rx.DrugNDC, rx.Quantity) {
			return errtax.New(errtax.CodeDuplicateFill, "duplicate prescribing event within 24 hours")
		}
		return nil
	}, nil)
}

// AdvanceToClaimPending requires the required field set to be fully
// populated, per spec.md §4.1.
func (m *Machine) AdvanceToClaimPending(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxClaimPending, func(rx *model.Prescription) error {
		if missing := requiredFieldsComplete(rx); len(missing) > 0 {
			return errMissingRequired(missing[0])
		}
		return nil
	}, nil)
}

// RejectClaim moves a claim_pending prescription to claim_rejected.
func (m *Machine) RejectClaim(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxClaimRejected, nil, nil)
}

// ResubmitClaim moves a claim_rejected prescription back to claim_pending.
func (m *Machine) ResubmitClaim(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxClaimPending, nil, nil)
}

// FillPendingProofInput is the evidence required to enter fill_pending,
// per spec.md §4.1: an approved claim, a cash-conversion record, or a
// documented Schedule II LTC emergency-partial flag.
type FillPendingProofInput struct {
	ApprovedClaim       bool
	CashConversion      bool
	EmergencyPartialLTC bool
}

// AdvanceToFillPending requires proof satisfying fillPendingProof.
func (m *Machine) AdvanceToFillPending(ctx context.Context, actor Actor, id string, proof FillPendingProofInput) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxFillPending, func(rx *model.Prescription) error {
		p := fillPendingProof{
			ApprovedClaim:       proof.ApprovedClaim,
			CashConversion:      proof.CashConversion,
			EmergencyPartialLTC: proof.EmergencyPartialLTC,
			Schedule:            rx.Schedule,
		}
		if !p.satisfied() {
			return errtax.New(errtax.CodeInvalidField, "entry to fill_pending requires an approved claim, cash conversion, or documented Schedule II LTC emergency partial")
		}
		return nil
	}, nil)
}

// AdvanceToFilled marks the prescription filled once a Fill has been
// finalized (the Fill itself is owned by pkg/fill).
func (m *Machine) AdvanceToFilled(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxFilled, nil, nil)
}

// AdvanceToVerificationPending requires a filled Fill whose
// validateFillForVerification returned valid; the caller (pkg/fill) computes
// that boolean since the pure validation logic lives there.
func (m *Machine) AdvanceToVerificationPending(ctx context.Context, actor Actor, id string, fillValid bool) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxVerificationPending, func(rx *model.Prescription) error {
		if !fillValid {
			return errtax.New(errtax.CodeInvalidField, "fill failed validateFillForVerification")
		}
		return nil
	}, nil)
}

// SendToRework returns a verification_pending prescription to data_entry.
func (m *Machine) SendToRework(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxRework, nil, nil)
}

// ResumeDataEntryAfterRework moves a rework prescription back to
// data_entry.
func (m *Machine) ResumeDataEntryAfterRework(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxDataEntry, nil, nil)
}

// Reject terminally rejects a prescription under verification.
func (m *Machine) Reject(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxRejected, nil, nil)
}

// AdvanceToVerified requires a complete VerificationSession (its Decision
// is approved and every alert is resolved), per spec.md §4.1.
func (m *Machine) AdvanceToVerified(ctx context.Context, actor Actor, id string, session *model.VerificationSession) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxVerified, func(rx *model.Prescription) error {
		if session == nil || session.Decision != model.DecisionApproved {
			return errtax.New(errtax.CodeInvalidField, "verification session is not approved")
		}
		if !session.Checklist.RequiredComplete() {
			return errtax.New(errtax.CodeInvalidField, "verification checklist is incomplete")
		}
		if !session.AllAlertsResolved() {
			return errtax.New(errtax.CodeSafetyHold, "unresolved high-severity DUR alerts")
		}
		return nil
	}, nil)
}

// AdvanceToReadyForPickup moves a verified prescription to ready_for_pickup.
func (m *Machine) AdvanceToReadyForPickup(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxReadyForPickup, nil, nil)
}

// PickUp, Deliver, Cancel, and Expire are the terminal dispositions; all
// are idempotent on re-invocation per spec.md §4.1.
func (m *Machine) PickUp(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxPickedUp, nil, nil)
}

func (m *Machine) Deliver(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxDelivered, nil, nil)
}

func (m *Machine) Cancel(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxCancelled, nil, nil)
}

func (m *Machine) Expire(ctx context.Context, actor Actor, id string) (*model.Prescription, error) {
	return m.transition(ctx, actor, id, model.RxExpired, nil, nil)
}
