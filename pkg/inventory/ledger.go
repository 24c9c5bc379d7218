// Package inventory implements the inventory ledger from spec.md §4.7: an
// append-only transaction log per (pharmacy, NDC), with a cached snapshot
// updated alongside it, oversell prevention via per-NDC locking, reorder
// prioritization, and expiry surveillance.
package inventory

import (
	"context"
	"fmt"

	"github.com/ridgeline-health/dispense/pkg/auditlog"
	"github.com/ridgeline-health/dispense/pkg/clock"
	"github.com/ridgeline-health/dispense/pkg/concurrency"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/idgen"
	"github.com/ridgeline-health/dispense/pkg/model"
	"github.com/ridgeline-health/dispense/pkg/ports"
)

// adjustDownWitnessThreshold is the fraction of on-hand quantity above which
// a downward adjustment requires a witness and documentation, per
// spec.md §4.7.
const adjustDownWitnessThreshold = 0.10

// Ledger orchestrates inventory transactions against a Store, serializing
// writes per (pharmacy, NDC) through a Locker.
type Ledger struct {
	store  ports.Store
	locker concurrency.Locker
	clock  clock.Clock
	ids    idgen.IDGen
	audit  auditlog.Recorder
}

// New builds a Ledger. locker, clk default to an in-process KeyedLocker and
// the system clock when nil.
func New(store ports.Store, locker concurrency.Locker, clk clock.Clock, ids idgen.IDGen, audit auditlog.Recorder) *Ledger {
	if locker == nil {
		locker = concurrency.NewKeyedLocker()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Ledger{store: store, locker: locker, clock: clk, ids: ids, audit: audit}
}

func lockKey(pharmacyID, ndc string) string {
	return "inventory:" + pharmacyID + ":" + ndc
}

func (l *Ledger) withLock(ctx context.Context, pharmacyID, ndc string, fn func() error) error {
	unlock, err := l.locker.Lock(ctx, lockKey(pharmacyID, ndc))
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func (l *Ledger) recordAudit(ctx context.Context, actor, action string, item *model.InventoryItem, outcome model.AuditOutcome) {
	if l.audit == nil {
		return
	}
	_ = l.audit.Record(ctx, model.AuditEntry{
		Actor:      actor,
		Action:     action,
		Resource:   "inventory_item",
		ResourceID: item.PharmacyID + ":" + item.NDC,
		Outcome:    outcome,
		PHITouch:   false,
		Timestamp:  l.clock.Now(),
		Context:    map[string]any{"ndc": item.NDC},
	})
}

// mutateOnly loads the item, runs mutate, and persists it without appending
// a ledger transaction — used by Allocate/Deallocate, which move the
// allocated reservation but never change on_hand.
func (l *Ledger) mutateOnly(ctx context.Context, actor, pharmacyID, ndc, action string, mutate func(item *model.InventoryItem) error) (*model.InventoryItem, error) {
	var result *model.InventoryItem
	err := l.withLock(ctx, pharmacyID, ndc, func() error {
		item, err := l.store.GetInventoryItem(ctx, pharmacyID, ndc)
		if err != nil {
			return err
		}
		expectedVersion := item.Version
		if err := mutate(item); err != nil {
			return err
		}
		item.Version++
		if err := l.store.PutInventoryItem(ctx, item, expectedVersion); err != nil {
			return l.translatePutErr(err)
		}
		l.recordAudit(ctx, actor, action, item, model.OutcomeSuccess)
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Ledger) translatePutErr(err error) error {
	if cerr, ok := err.(*errtax.Error); ok && cerr.Code == errtax.CodeConcurrentMutation {
		return errtax.New(errtax.CodeConcurrentMutation, "inventory item modified concurrently").WithField("ndc")
	}
	return err
}

// applyTransaction loads the current item, runs mutate to compute the new
// on_hand/allocated balances, appends a transaction recording the resulting
// signed delta and running balance, and persists the item, all under the
// per-NDC lock.
func (l *Ledger) applyTransaction(ctx context.Context, actor, pharmacyID, ndc string, txType model.TransactionType, reference, reason, witness string, mutate func(item *model.InventoryItem) error) (*model.InventoryItem, error) {
	var result *model.InventoryItem
	err := l.withLock(ctx, pharmacyID, ndc, func() error {
		item, err := l.store.GetInventoryItem(ctx, pharmacyID, ndc)
		if err != nil {
			return err
		}
		expectedVersion := item.Version
		before := item.OnHand
		if err := mutate(item); err != nil {
			return err
		}
		item.Version++

		tx := model.InventoryTransaction{
			ID:             l.ids.New("invtx"),
			PharmacyID:     pharmacyID,
			NDC:            ndc,
			Type:           txType,
			SignedDelta:    item.OnHand - before,
			RunningBalance: item.OnHand,
			Reference:      reference,
			Actor:          actor,
			Reason:         reason,
			Witness:        witness,
			Timestamp:      l.clock.Now(),
		}

		if err := l.store.PutInventoryItem(ctx, item, expectedVersion); err != nil {
			return l.translatePutErr(err)
		}
		if err := l.store.AppendInventoryTransaction(ctx, tx); err != nil {
			return err
		}

		l.recordAudit(ctx, actor, fmt.Sprintf("inventory:%s", txType), item, model.OutcomeSuccess)
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Allocate reserves qty against available stock, per spec.md §4.7.
// Available must be >= qty before allocation.
func (l *Ledger) Allocate(ctx context.Context, actor, pharmacyID, ndc string, qty float64) (*model.InventoryItem, error) {
	return l.mutateOnly(ctx, actor, pharmacyID, ndc, "inventory:allocate", func(item *model.InventoryItem) error {
		if item.Available() < qty {
			return errtax.New(errtax.CodeOversold, "insufficient available quantity to allocate")
		}
		item.Allocated += qty
		return nil
	})
}

// Deallocate releases a prior allocation of qty.
func (l *Ledger) Deallocate(ctx context.Context, actor, pharmacyID, ndc string, qty float64) (*model.InventoryItem, error) {
	return l.mutateOnly(ctx, actor, pharmacyID, ndc, "inventory:deallocate", func(item *model.InventoryItem) error {
		if item.Allocated < qty {
			return errtax.New(errtax.CodeInvalidField, "cannot deallocate more than is allocated")
		}
		item.Allocated -= qty
		return nil
	})
}

// Dispense writes a dispense transaction, decrementing on_hand and
// allocated together, per spec.md §4.7.
func (l *Ledger) Dispense(ctx context.Context, actor, pharmacyID, ndc string, qty float64, fillRef string) (*model.InventoryItem, error) {
	return l.applyTransaction(ctx, actor, pharmacyID, ndc, model.TxDispense, fillRef, "", "", func(item *model.InventoryItem) error {
		if item.Allocated < qty || item.OnHand < qty {
			return errtax.New(errtax.CodeOversold, "insufficient allocated/on-hand quantity to dispense")
		}
		item.OnHand -= qty
		item.Allocated -= qty
		return nil
	})
}

// ReceiveParams is the evidence recorded by Receive, per spec.md §4.7.
type ReceiveParams struct {
	Qty                  float64
	Lot                  string
	AcquisitionCostCents int64
	OrderRef             string
}

// Receive writes a receive transaction and increments on_hand, updating the
// item's lot and cost to the received batch.
func (l *Ledger) Receive(ctx context.Context, actor, pharmacyID, ndc string, p ReceiveParams) (*model.InventoryItem, error) {
	if p.Qty <= 0 {
		return nil, errtax.New(errtax.CodeInvalidField, "receive quantity must be positive").WithField("qty")
	}
	return l.applyTransaction(ctx, actor, pharmacyID, ndc, model.TxReceive, p.OrderRef, "", "", func(item *model.InventoryItem) error {
		item.OnHand += p.Qty
		item.Lot = p.Lot
		item.AcquisitionCostCents = p.AcquisitionCostCents
		return nil
	})
}

// Adjust applies a signed manual adjustment. A downward adjustment that
// exceeds 10% of on-hand, or any adjustment to a controlled substance,
// requires a witness and a reason, per spec.md §4.7.
func (l *Ledger) Adjust(ctx context.Context, actor, pharmacyID, ndc string, delta float64, reason, witness string) (*model.InventoryItem, error) {
	txType := model.TxAdjustUp
	if delta < 0 {
		txType = model.TxAdjustDown
	}
	return l.applyTransaction(ctx, actor, pharmacyID, ndc, txType, "", reason, witness, func(item *model.InventoryItem) error {
		requiresWitness := item.Controlled
		if delta < 0 && item.OnHand > 0 && -delta > adjustDownWitnessThreshold*item.OnHand {
			requiresWitness = true
		}
		if requiresWitness && (witness == "" || reason == "") {
			return errtax.New(errtax.CodeMissingRequired, "witness and reason are required for this adjustment").WithField("witness")
		}
		newOnHand := item.OnHand + delta
		if newOnHand < 0 {
			return errtax.New(errtax.CodeInvalidField, "adjustment would drive on-hand quantity negative")
		}
		item.OnHand = newOnHand
		return nil
	})
}

// CycleCount writes the signed delta between the observed and recorded
// quantity as a cycle_count transaction.
func (l *Ledger) CycleCount(ctx context.Context, actor, pharmacyID, ndc string, observed float64) (*model.InventoryItem, error) {
	return l.applyTransaction(ctx, actor, pharmacyID, ndc, model.TxCycleCount, "", "", "", func(item *model.InventoryItem) error {
		item.OnHand = observed
		return nil
	})
}
