package httpapi

import (
	"net/http"

	"github.com/ridgeline-health/dispense/pkg/authz"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/model"
)

type claimSubmitRequest struct {
	FillID         string `json:"fill_id"`
	PrescriptionID string `json:"prescription_id"`
}

func (s *Server) handleClaimSubmit(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.claim.submit")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceBilling, authz.ActionCreate, "")
	if !ok {
		return
	}
	if s.claims == nil {
		err = errtax.New(errtax.CodeSystemFailure, "claim adjudicator not configured")
		writeInternal(w, r, err)
		return
	}

	var req claimSubmitRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	var fill *model.Fill
	fill, err = s.store.GetFill(r.Context(), req.FillID)
	if err != nil {
		writeNotFound(w, r, "fill not found")
		return
	}
	var rx *model.Prescription
	rx, err = s.store.GetPrescription(r.Context(), req.PrescriptionID)
	if err != nil {
		writeNotFound(w, r, "prescription not found")
		return
	}

	var c *model.Claim
	c, err = s.claims.Submit(r.Context(), principal.ID, fill, rx)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) loadClaimOperands(r *http.Request, claimID string) (*model.Claim, *model.Fill, *model.Prescription, error) {
	c, err := s.store.GetClaim(r.Context(), claimID)
	if err != nil {
		return nil, nil, nil, err
	}
	fill, err := s.store.GetFill(r.Context(), c.FillID)
	if err != nil {
		return nil, nil, nil, err
	}
	rx, err := s.store.GetPrescription(r.Context(), c.PrescriptionID)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, fill, rx, nil
}

func (s *Server) handleClaimResubmit(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.claim.resubmit")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceBilling, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.claims == nil {
		err = errtax.New(errtax.CodeSystemFailure, "claim adjudicator not configured")
		writeInternal(w, r, err)
		return
	}

	claimID := r.PathValue("id")
	var fill *model.Fill
	var rx *model.Prescription
	_, fill, rx, err = s.loadClaimOperands(r, claimID)
	if err != nil {
		writeNotFound(w, r, "claim, fill, or prescription not found")
		return
	}

	var c *model.Claim
	c, err = s.claims.Resubmit(r.Context(), principal.ID, claimID, fill, rx)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleClaimConvertToCash(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.claim.convert_to_cash")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceBilling, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.claims == nil {
		err = errtax.New(errtax.CodeSystemFailure, "claim adjudicator not configured")
		writeInternal(w, r, err)
		return
	}

	var c *model.Claim
	c, err = s.claims.ConvertToCash(r.Context(), principal.ID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
