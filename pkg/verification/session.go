// Package verification implements the pharmacist verification gate from
// spec.md §4.5: a session over a finalized Fill that walks barcode scanning,
// checklist completion, and DUR alert resolution before a Decision is
// recorded against the prescription state machine.
package verification

import (
	"context"
	"fmt"

	"github.com/ridgeline-health/dispense/pkg/auditlog"
	"github.com/ridgeline-health/dispense/pkg/clock"
	"github.com/ridgeline-health/dispense/pkg/concurrency"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/idgen"
	"github.com/ridgeline-health/dispense/pkg/model"
	"github.com/ridgeline-health/dispense/pkg/ndc"
	"github.com/ridgeline-health/dispense/pkg/ports"
)

// Session orchestrates VerificationSession lifecycle transitions against a
// Store, mirroring pkg/prescription.Machine's lock-load-guard-mutate-audit
// shape.
type Session struct {
	store  ports.Store
	locker concurrency.Locker
	clock  clock.Clock
	ids    idgen.IDGen
	audit  auditlog.Recorder
}

// New builds a Session. locker, clk default to an in-process KeyedLocker and
// the system clock when nil.
func New(store ports.Store, locker concurrency.Locker, clk clock.Clock, ids idgen.IDGen, audit auditlog.Recorder) *Session {
	if locker == nil {
		locker = concurrency.NewKeyedLocker()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Session{store: store, locker: locker, clock: clk, ids: ids, audit: audit}
}

func (s *Session) recordAudit(ctx context.Context, actorID, action string, vs *model.VerificationSession, outcome model.AuditOutcome) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, model.AuditEntry{
		Actor:      actorID,
		Action:     action,
		Resource:   "verification_session",
		ResourceID: vs.ID,
		Outcome:    outcome,
		PHITouch:   true,
		Timestamp:  s.clock.Now(),
		Context:    map[string]any{"state": string(vs.State)},
	})
}

func (s *Session) withLock(ctx context.Context, fillID string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, "verification:"+fillID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Start begins a verification session for a finalized fill, carrying forward
// the DUR alerts raised against the fill so they can be resolved here.
func (s *Session) Start(ctx context.Context, pharmacistID, fillID, prescriptionID string, alerts []model.DURAlert) (*model.VerificationSession, error) {
	vs := &model.VerificationSession{
		ID:             s.ids.New("vfy"),
		FillID:         fillID,
		PrescriptionID: prescriptionID,
		PharmacistID:   pharmacistID,
		State:          model.SessionInProgress,
		DUROverrides:   alerts,
		StartedAt:      s.clock.Now(),
		Version:        0,
	}
	if err := s.store.PutVerificationSession(ctx, vs, 0); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, pharmacistID, "start", vs, model.OutcomeSuccess)
	return vs, nil
}

// load fetches the session and asserts it has not already reached a terminal
// disposition.
func (s *Session) load(ctx context.Context, fillID string) (*model.VerificationSession, error) {
	vs, err := s.store.GetVerificationSession(ctx, fillID)
	if err != nil {
		return nil, err
	}
	if vs.State == model.SessionApproved || vs.State == model.SessionRejected {
		return vs, errtax.New(errtax.CodeInvalidTransition, fmt.Sprintf("verification session already %s", vs.State))
	}
	return vs, nil
}

func (s *Session) save(ctx context.Context, vs *model.VerificationSession) error {
	expected := vs.Version
	vs.Version++
	if err := s.store.PutVerificationSession(ctx, vs, expected); err != nil {
		if cerr, ok := err.(*errtax.Error); ok && cerr.Code == errtax.CodeConcurrentMutation {
			return errtax.New(errtax.CodeConcurrentMutation, "verification session modified concurrently").WithField("fill_id")
		}
		return err
	}
	return nil
}

// SubmitChecklist records the pharmacist's checklist responses. State moves
// to pending_dur once the required checklist items are all satisfied, or
// stays in_progress otherwise.
func (s *Session) SubmitChecklist(ctx context.Context, actorID, fillID string, checklist model.Checklist) (*model.VerificationSession, error) {
	var result *model.VerificationSession
	err := s.withLock(ctx, fillID, func() error {
		vs, err := s.load(ctx, fillID)
		if err != nil {
			return err
		}
		vs.Checklist = checklist
		if checklist.RequiredComplete() {
			vs.State = model.SessionPendingDUR
		}
		if err := s.save(ctx, vs); err != nil {
			return err
		}
		s.recordAudit(ctx, actorID, "submit_checklist", vs, model.OutcomeSuccess)
		result = vs
		return nil
	})
	return result, err
}

// ResolveAlert attaches an Acknowledgement to the DUR alert matching code, or
// clears a prior acknowledgement when ack is nil. Once every high-severity
// alert is resolved, the session advances to pending_scan.
func (s *Session) ResolveAlert(ctx context.Context, actorID, fillID, code string, ack *model.Acknowledgement) (*model.VerificationSession, error) {
	var result *model.VerificationSession
	err := s.withLock(ctx, fillID, func() error {
		vs, err := s.load(ctx, fillID)
		if err != nil {
			return err
		}
		found := false
		for i := range vs.DUROverrides {
			if vs.DUROverrides[i].Code == code {
				if ack != nil && !vs.DUROverrides[i].Overridable {
					return errtax.New(errtax.CodeNonOverridable, "alert "+code+" is not overridable")
				}
				vs.DUROverrides[i].Acknowledgement = ack
				found = true
				break
			}
		}
		if !found {
			return errtax.New(errtax.CodeInvalidField, "no such alert: "+code).WithField("code")
		}
		if vs.State == model.SessionPendingDUR && vs.AllAlertsResolved() {
			vs.State = model.SessionPendingScan
		}
		if err := s.save(ctx, vs); err != nil {
			return err
		}
		s.recordAudit(ctx, actorID, "resolve_alert", vs, model.OutcomeSuccess)
		result = vs
		return nil
	})
	return result, err
}

// Scan records a barcode scan result against the prescribed NDC, per
// spec.md §4.5: an exact match or an operator-consented package_variant
// match is acceptable; a no_match or an unconsented package_variant blocks
// approval.
func (s *Session) Scan(ctx context.Context, actorID, fillID, prescribedNDC, rawBarcode string, operatorConsent bool) (*model.VerificationSession, error) {
	var result *model.VerificationSession
	err := s.withLock(ctx, fillID, func() error {
		vs, err := s.load(ctx, fillID)
		if err != nil {
			return err
		}
		scanned, parseErr := ParseBarcode(rawBarcode)
		scan := &model.ScanResult{PrescribedNDC: prescribedNDC, OperatorConsent: operatorConsent}
		if parseErr != nil {
			scan.MatchLevel = model.MatchNone
		} else {
			scan.ScannedNDC = scanned
			scan.MatchLevel = matchLevel(scanned, prescribedNDC)
		}
		vs.Scan = scan
		if err := s.save(ctx, vs); err != nil {
			return err
		}
		s.recordAudit(ctx, actorID, "scan", vs, model.OutcomeSuccess)
		result = vs
		return nil
	})
	return result, err
}

// matchLevel compares a scanned NDC to the prescribed NDC: exact equality,
// same package family (same drug, different pack size), or no match.
func matchLevel(scanned, prescribed string) model.NDCMatchLevel {
	if ndc.Equal(scanned, prescribed) {
		return model.MatchExact
	}
	if ndc.SamePackageFamily(scanned, prescribed) {
		return model.MatchPackageVariant
	}
	return model.MatchNone
}

// scanAcceptable applies spec.md §4.5(b): exact match accepted outright,
// package_variant accepted only with operator consent, no_match never
// accepted.
func scanAcceptable(scan *model.ScanResult) bool {
	if scan == nil {
		return false
	}
	switch scan.MatchLevel {
	case model.MatchExact:
		return true
	case model.MatchPackageVariant:
		return scan.OperatorConsent
	default:
		return false
	}
}

// controlledSubstancePDMPSatisfied applies spec.md §4.5(d): a controlled
// substance fill requires either a recorded PDMP review or a documented
// skip reason.
func controlledSubstancePDMPSatisfied(c model.Checklist) bool {
	if c.PDMPReviewed == nil {
		return true // not a controlled substance fill
	}
	return *c.PDMPReviewed || c.PDMPSkipReason != ""
}

// Complete reports whether vs satisfies every part of spec.md §4.5's
// completion rule: required checklist items, NDC match acceptability, every
// DUR alert resolved, and (for controlled substances) a PDMP review or
// documented skip reason.
func Complete(vs model.VerificationSession) bool {
	return vs.Checklist.RequiredComplete() &&
		scanAcceptable(vs.Scan) &&
		vs.AllAlertsResolved() &&
		controlledSubstancePDMPSatisfied(vs.Checklist)
}

// Approve finalizes the session as approved. It requires Complete(vs).
func (s *Session) Approve(ctx context.Context, actorID, fillID, notes string) (*model.VerificationSession, error) {
	var result *model.VerificationSession
	err := s.withLock(ctx, fillID, func() error {
		vs, err := s.load(ctx, fillID)
		if err != nil {
			return err
		}
		if !Complete(*vs) {
			return errtax.New(errtax.CodeSafetyHold, "verification session is not complete")
		}
		vs.State = model.SessionApproved
		vs.Decision = model.DecisionApproved
		vs.Notes = notes
		vs.CompletedAt = s.clock.Now()
		if err := s.save(ctx, vs); err != nil {
			return err
		}
		s.recordAudit(ctx, actorID, "approve", vs, model.OutcomeSuccess)
		result = vs
		return nil
	})
	return result, err
}

// Reject terminally rejects the session.
func (s *Session) Reject(ctx context.Context, actorID, fillID, reason string) (*model.VerificationSession, error) {
	if reason == "" {
		return nil, errMissingReason()
	}
	var result *model.VerificationSession
	err := s.withLock(ctx, fillID, func() error {
		vs, err := s.load(ctx, fillID)
		if err != nil {
			return err
		}
		vs.State = model.SessionRejected
		vs.Decision = model.DecisionRejected
		vs.RejectionReason = reason
		vs.CompletedAt = s.clock.Now()
		if err := s.save(ctx, vs); err != nil {
			return err
		}
		s.recordAudit(ctx, actorID, "reject", vs, model.OutcomeSuccess)
		result = vs
		return nil
	})
	return result, err
}

// ReturnForRework sends the fill back to dispensing staff without a
// terminal disposition: the session moves to returned_for_rework, which is
// not a closed state, so a corrected fill can be resubmitted.
func (s *Session) ReturnForRework(ctx context.Context, actorID, fillID, reason string) (*model.VerificationSession, error) {
	if reason == "" {
		return nil, errMissingReason()
	}
	var result *model.VerificationSession
	err := s.withLock(ctx, fillID, func() error {
		vs, err := s.load(ctx, fillID)
		if err != nil {
			return err
		}
		vs.State = model.SessionReturnedForRework
		vs.Decision = model.DecisionReturnedForRework
		vs.RejectionReason = reason
		if err := s.save(ctx, vs); err != nil {
			return err
		}
		s.recordAudit(ctx, actorID, "return_for_rework", vs, model.OutcomeSuccess)
		result = vs
		return nil
	})
	return result, err
}

func errMissingReason() error {
	return errtax.New(errtax.CodeMissingRequired, "a reason is required").WithField("reason")
}
