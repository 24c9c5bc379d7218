// Package claim implements the claim adjudicator (spec.md §4.3): submit,
// resubmit, override, cash-conversion, and reversal operations against the
// ClaimSwitch port, with exponential-backoff retry on transient transport
// failures and NCPDP-style reject-code resolution.
package claim

import (
	"context"

	"github.com/ridgeline-health/dispense/pkg/auditlog"
	"github.com/ridgeline-health/dispense/pkg/clock"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/idgen"
	"github.com/ridgeline-health/dispense/pkg/model"
	"github.com/ridgeline-health/dispense/pkg/ports"
	"github.com/ridgeline-health/dispense/pkg/resiliency"
)

// Adjudicator drives claim submission against a ClaimSwitch port.
type Adjudicator struct {
	sw     ports.ClaimSwitch
	store  ports.Store
	clock  clock.Clock
	ids    idgen.IDGen
	audit  auditlog.Recorder
	policy resiliency.BackoffPolicy
}

// New builds an Adjudicator. policy defaults to
// resiliency.DefaultClaimSwitchPolicy when nil.
func New(sw ports.ClaimSwitch, store ports.Store, clk clock.Clock, ids idgen.IDGen, audit auditlog.Recorder, policy *resiliency.BackoffPolicy) *Adjudicator {
	p := resiliency.DefaultClaimSwitchPolicy()
	if policy != nil {
		p = *policy
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Adjudicator{sw: sw, store: store, clock: clk, ids: ids, audit: audit, policy: p}
}

func (a *Adjudicator) recordAudit(ctx context.Context, actorID, action string, c *model.Claim, outcome model.AuditOutcome) {
	if a.audit == nil {
		return
	}
	_ = a.audit.Record(ctx, model.AuditEntry{
		Actor:      actorID,
		Action:     action,
		Resource:   "claim",
		ResourceID: c.ID,
		Outcome:    outcome,
		PHITouch:   true,
		Timestamp:  a.clock.Now(),
		Context:    map[string]any{"state": string(c.State)},
	})
}

// transientError wraps a transport failure so resiliency.Do retries it.
type transientError struct{ cause error }

func (e *transientError) Error() string  { return "transient claim switch error: " + e.cause.Error() }
func (e *transientError) Unwrap() error  { return e.cause }
func (e *transientError) Retryable() bool { return true }

// send transmits req through the ClaimSwitch with the configured retry
// policy, per spec.md §4.3's "transport-level errors yield a transient
// result that is retried" rule.
func (a *Adjudicator) send(ctx context.Context, req ports.ClaimRequest) (ports.ClaimResponse, error) {
	var resp ports.ClaimResponse
	err := resiliency.Do(ctx, a.policy, func(ctx context.Context) error {
		r, sendErr := a.sw.Send(ctx, req)
		if sendErr != nil {
			return &transientError{cause: sendErr}
		}
		resp = r
		return nil
	})
	if err != nil {
		return ports.ClaimResponse{}, errtax.Wrap(errtax.CodeExternalUnavail, "claim switch unavailable after retries", err)
	}
	return resp, nil
}

func buildRequest(fill *model.Fill, rx *model.Prescription, overrideCode string) ports.ClaimRequest {
	return ports.ClaimRequest{
		DrugNDC:      fill.DispensedNDC,
		Quantity:     fill.QuantityDispensed,
		DaysSupply:   fill.DaysSupply,
		DAW:          rx.DAW,
		OverrideCode: overrideCode,
	}
}

func applyResponse(c *model.Claim, resp ports.ClaimResponse) {
	c.PatientPayCents = resp.PatientPayCents
	c.InsurancePayCents = resp.InsurancePayCents
	c.GrossPriceCents = resp.GrossPriceCents
	switch resp.Status {
	case ports.ClaimResponseApproved:
		c.State = model.ClaimApproved
	case ports.ClaimResponseRejected:
		c.State = model.ClaimRejected
		c.RejectCode = resp.RejectCode
		c.RejectReason = resp.Message
	default:
		c.State = model.ClaimPending
	}
}

// Submit builds a ClaimRequest from fill and rx, transmits it, and persists
// the resulting Claim, per spec.md §4.3.
func (a *Adjudicator) Submit(ctx context.Context, actorID string, fill *model.Fill, rx *model.Prescription) (*model.Claim, error) {
	resp, err := a.send(ctx, buildRequest(fill, rx, ""))
	c := &model.Claim{
		ID:             a.ids.New("clm"),
		PrescriptionID: rx.ID,
		FillID:         fill.ID,
		AttemptNo:      1,
		SubmittedAt:    a.clock.Now(),
	}
	if err != nil {
		c.State = model.ClaimRejected
		c.RejectCode = "E0"
		c.RejectReason = err.Error()
		_ = a.store.PutClaim(ctx, c, 0)
		a.recordAudit(ctx, actorID, "submit", c, model.OutcomeError)
		return c, errtax.Wrap(errtax.CodeExternalReject, "claim submission failed", err)
	}
	applyResponse(c, resp)
	c.ResolvedAt = a.clock.Now()
	if err := a.store.PutClaim(ctx, c, 0); err != nil {
		return nil, err
	}
	if c.State == model.ClaimApproved && !c.PatientPayInvariantHolds() {
		return nil, errtax.New(errtax.CodeInvalidField, "patient_pay + insurance_pay != gross_price")
	}
	a.recordAudit(ctx, actorID, "submit", c, model.OutcomeSuccess)
	return c, nil
}

// Resubmit is allowed only when the claim is in the rejected state; it
// records a new attempt number and retains the original claim, per
// spec.md §4.3.
func (a *Adjudicator) Resubmit(ctx context.Context, actorID string, claimID string, fill *model.Fill, rx *model.Prescription) (*model.Claim, error) {
	existing, err := a.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if existing.State != model.ClaimRejected {
		return nil, errtax.New(errtax.CodeInvalidTransition, "resubmit only permitted from rejected state")
	}
	resp, sendErr := a.send(ctx, buildRequest(fill, rx, ""))
	next := &model.Claim{
		ID:             a.ids.New("clm"),
		PrescriptionID: existing.PrescriptionID,
		FillID:         existing.FillID,
		AttemptNo:      existing.AttemptNo + 1,
		SubmittedAt:    a.clock.Now(),
	}
	if sendErr != nil {
		next.State = model.ClaimRejected
		next.RejectCode = "E0"
		next.RejectReason = sendErr.Error()
		_ = a.store.PutClaim(ctx, next, 0)
		return next, sendErr
	}
	applyResponse(next, resp)
	next.ResolvedAt = a.clock.Now()
	if err := a.store.PutClaim(ctx, next, 0); err != nil {
		return nil, err
	}
	a.recordAudit(ctx, actorID, "resubmit", next, model.OutcomeSuccess)
	return next, nil
}

// SubmitWithOverride behaves like Submit but attaches an override code,
// permitted only when the reject code's resolution table entry allows it
// (spec.md §4.3).
func (a *Adjudicator) SubmitWithOverride(ctx context.Context, actorID string, claimID, overrideCode, reason string, fill *model.Fill, rx *model.Prescription) (*model.Claim, error) {
	existing, err := a.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !OverridePermitted(existing.RejectCode) {
		return nil, errtax.New(errtax.CodeNonOverridable, "reject code "+existing.RejectCode+" does not permit override")
	}
	if len(reason) < 10 {
		return nil, errtax.New(errtax.CodeInvalidField, "override reason must be at least 10 characters").WithField("reason")
	}

	resp, sendErr := a.send(ctx, buildRequest(fill, rx, overrideCode))
	next := &model.Claim{
		ID:             a.ids.New("clm"),
		PrescriptionID: existing.PrescriptionID,
		FillID:         existing.FillID,
		AttemptNo:      existing.AttemptNo + 1,
		OverrideCode:   overrideCode,
		OverrideReason: reason,
		SubmittedAt:    a.clock.Now(),
	}
	if sendErr != nil {
		next.State = model.ClaimRejected
		next.RejectCode = "E0"
		_ = a.store.PutClaim(ctx, next, 0)
		return next, sendErr
	}
	applyResponse(next, resp)
	next.ResolvedAt = a.clock.Now()
	if err := a.store.PutClaim(ctx, next, 0); err != nil {
		return nil, err
	}
	a.recordAudit(ctx, actorID, "submit_with_override", next, model.OutcomeSuccess)
	return next, nil
}

// ConvertToCash terminates the claim and emits a cash-conversion record;
// downstream Fill uses the cash price (spec.md §4.3).
func (a *Adjudicator) ConvertToCash(ctx context.Context, actorID, claimID string) (*model.Claim, error) {
	c, err := a.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	expected := c.Version
	c.State = model.ClaimCash
	c.ResolvedAt = a.clock.Now()
	c.Version++
	if err := a.store.PutClaim(ctx, c, expected); err != nil {
		return nil, err
	}
	a.recordAudit(ctx, actorID, "convert_to_cash", c, model.OutcomeSuccess)
	return c, nil
}

// Reverse is permitted only when the claim is approved and the fill has
// not yet been dispensed; it emits a B2 reversal, per spec.md §4.3.
func (a *Adjudicator) Reverse(ctx context.Context, actorID, claimID string, fillDispensed bool) (*model.Claim, error) {
	c, err := a.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c.State != model.ClaimApproved {
		return nil, errtax.New(errtax.CodeInvalidTransition, "reversal only permitted from approved state")
	}
	if fillDispensed {
		return nil, errtax.New(errtax.CodeInvalidField, "cannot reverse a claim whose fill has already been dispensed")
	}
	expected := c.Version
	c.State = model.ClaimReversed
	c.ResolvedAt = a.clock.Now()
	c.Version++
	if err := a.store.PutClaim(ctx, c, expected); err != nil {
		return nil, err
	}
	a.recordAudit(ctx, actorID, "reverse", c, model.OutcomeSuccess)
	return c, nil
}
