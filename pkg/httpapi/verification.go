package httpapi

import (
	"net/http"

	"github.com/ridgeline-health/dispense/pkg/authz"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/model"
)

type verificationStartRequest struct {
	PrescriptionID string           `json:"prescription_id"`
	Alerts         []model.DURAlert `json:"alerts"`
}

func (s *Server) handleVerificationStart(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.verification.start")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionCreate, "")
	if !ok {
		return
	}
	if s.verify == nil {
		err = errtax.New(errtax.CodeSystemFailure, "verification session not configured")
		writeInternal(w, r, err)
		return
	}

	var req verificationStartRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	var vs *model.VerificationSession
	vs, err = s.verify.Start(r.Context(), principal.ID, r.PathValue("id"), req.PrescriptionID, req.Alerts)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vs)
}

func (s *Server) handleVerificationGet(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.verification.get")
	defer func() { done(err) }()

	if _, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionRead, ""); !ok {
		return
	}

	var vs *model.VerificationSession
	vs, err = s.store.GetVerificationSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeNotFound(w, r, "verification session not found")
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleVerificationChecklist(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.verification.checklist")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.verify == nil {
		err = errtax.New(errtax.CodeSystemFailure, "verification session not configured")
		writeInternal(w, r, err)
		return
	}

	var checklist model.Checklist
	if err = decodeJSON(r, &checklist); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	var vs *model.VerificationSession
	vs, err = s.verify.SubmitChecklist(r.Context(), principal.ID, r.PathValue("id"), checklist)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

type verificationScanRequest struct {
	PrescribedNDC   string `json:"prescribed_ndc"`
	RawBarcode      string `json:"raw_barcode"`
	OperatorConsent bool   `json:"operator_consent"`
}

func (s *Server) handleVerificationScan(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.verification.scan")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.verify == nil {
		err = errtax.New(errtax.CodeSystemFailure, "verification session not configured")
		writeInternal(w, r, err)
		return
	}

	var req verificationScanRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	var vs *model.VerificationSession
	vs, err = s.verify.Scan(r.Context(), principal.ID, r.PathValue("id"), req.PrescribedNDC, req.RawBarcode, req.OperatorConsent)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

type verificationNotesRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (s *Server) handleVerificationApprove(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.verification.approve")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.verify == nil {
		err = errtax.New(errtax.CodeSystemFailure, "verification session not configured")
		writeInternal(w, r, err)
		return
	}
	var req verificationNotesRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	var vs *model.VerificationSession
	vs, err = s.verify.Approve(r.Context(), principal.ID, r.PathValue("id"), req.Notes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleVerificationReject(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.verification.reject")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.verify == nil {
		err = errtax.New(errtax.CodeSystemFailure, "verification session not configured")
		writeInternal(w, r, err)
		return
	}
	var req verificationNotesRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	var vs *model.VerificationSession
	vs, err = s.verify.Reject(r.Context(), principal.ID, r.PathValue("id"), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleVerificationRework(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.verification.rework")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionUpdate, "")
	if !ok {
		return
	}
	if s.verify == nil {
		err = errtax.New(errtax.CodeSystemFailure, "verification session not configured")
		writeInternal(w, r, err)
		return
	}
	var req verificationNotesRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	var vs *model.VerificationSession
	vs, err = s.verify.ReturnForRework(r.Context(), principal.ID, r.PathValue("id"), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}
