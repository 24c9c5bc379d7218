package httpapi

import (
	"net/http"

	"github.com/ridgeline-health/dispense/pkg/authz"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/inventory"
	"github.com/ridgeline-health/dispense/pkg/model"
)

func (s *Server) handleInventoryGet(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.inventory.get")
	defer func() { done(err) }()

	if _, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionRead, ""); !ok {
		return
	}

	var item *model.InventoryItem
	item, err = s.store.GetInventoryItem(r.Context(), r.PathValue("pharmacyID"), r.PathValue("ndc"))
	if err != nil {
		writeNotFound(w, r, "inventory item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type inventoryReceiveRequest struct {
	Qty                  float64 `json:"qty"`
	Lot                  string  `json:"lot"`
	AcquisitionCostCents int64   `json:"acquisition_cost_cents"`
	OrderRef             string  `json:"order_ref"`
}

func (s *Server) handleInventoryReceive(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.inventory.receive")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.ledger == nil {
		err = errtax.New(errtax.CodeSystemFailure, "inventory ledger not configured")
		writeInternal(w, r, err)
		return
	}
	var req inventoryReceiveRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	var item *model.InventoryItem
	item, err = s.ledger.Receive(r.Context(), principal.ID, r.PathValue("pharmacyID"), r.PathValue("ndc"), inventory.ReceiveParams{
		Qty:                  req.Qty,
		Lot:                  req.Lot,
		AcquisitionCostCents: req.AcquisitionCostCents,
		OrderRef:             req.OrderRef,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type inventoryAllocateRequest struct {
	Qty float64 `json:"qty"`
}

func (s *Server) handleInventoryAllocate(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.inventory.allocate")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.ledger == nil {
		err = errtax.New(errtax.CodeSystemFailure, "inventory ledger not configured")
		writeInternal(w, r, err)
		return
	}
	var req inventoryAllocateRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	var item *model.InventoryItem
	item, err = s.ledger.Allocate(r.Context(), principal.ID, r.PathValue("pharmacyID"), r.PathValue("ndc"), req.Qty)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type inventoryDispenseRequest struct {
	Qty     float64 `json:"qty"`
	FillRef string  `json:"fill_ref"`
}

func (s *Server) handleInventoryDispense(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.inventory.dispense")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.ledger == nil {
		err = errtax.New(errtax.CodeSystemFailure, "inventory ledger not configured")
		writeInternal(w, r, err)
		return
	}
	var req inventoryDispenseRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	var item *model.InventoryItem
	item, err = s.ledger.Dispense(r.Context(), principal.ID, r.PathValue("pharmacyID"), r.PathValue("ndc"), req.Qty, req.FillRef)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type inventoryAdjustRequest struct {
	Delta   float64 `json:"delta"`
	Reason  string  `json:"reason"`
	Witness string  `json:"witness"`
}

func (s *Server) handleInventoryAdjust(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.inventory.adjust")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.ledger == nil {
		err = errtax.New(errtax.CodeSystemFailure, "inventory ledger not configured")
		writeInternal(w, r, err)
		return
	}
	var req inventoryAdjustRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	var item *model.InventoryItem
	item, err = s.ledger.Adjust(r.Context(), principal.ID, r.PathValue("pharmacyID"), r.PathValue("ndc"), req.Delta, req.Reason, req.Witness)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
