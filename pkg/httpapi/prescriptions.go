package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/ridgeline-health/dispense/pkg/authz"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/model"
	"github.com/ridgeline-health/dispense/pkg/prescription"
)

func actorFrom(p authz.Principal) prescription.Actor {
	return prescription.Actor{ID: p.ID, Role: string(p.Role)}
}

type prescriptionIntakeRequest struct {
	RxNumber          string    `json:"rx_number"`
	PatientID         string    `json:"patient_id"`
	PrescriberID      string    `json:"prescriber_id"`
	DrugNDC           string    `json:"drug_ndc"`
	Source            string    `json:"source"`
	Quantity          float64   `json:"quantity"`
	DaysSupply        int       `json:"days_supply"`
	Sig               string    `json:"sig"`
	DAW               int       `json:"daw"`
	RefillsAuthorized int       `json:"refills_authorized"`
	WrittenDate       time.Time `json:"written_date"`
	ExpirationDate    time.Time `json:"expiration_date"`
	Indication        string    `json:"indication"`
	Priority          string    `json:"priority"`
}

func (s *Server) handlePrescriptionIntake(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.prescription.intake")
	defer func() { done(err) }()

	principal, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionCreate, "")
	if !ok {
		return
	}
	if s.rx == nil {
		err = errtax.New(errtax.CodeSystemFailure, "prescription machine not configured")
		writeInternal(w, r, err)
		return
	}

	var req prescriptionIntakeRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	rx := model.Prescription{
		RxNumber:          req.RxNumber,
		PatientID:         req.PatientID,
		PrescriberID:      req.PrescriberID,
		DrugNDC:           req.DrugNDC,
		Source:            model.IntakeSource(req.Source),
		Quantity:          req.Quantity,
		DaysSupply:        req.DaysSupply,
		Sig:               req.Sig,
		DAW:               model.DAWCode(req.DAW),
		RefillsAuthorized: req.RefillsAuthorized,
		RefillsRemaining:  req.RefillsAuthorized,
		WrittenDate:       req.WrittenDate,
		ExpirationDate:    req.ExpirationDate,
		Indication:        req.Indication,
		Priority:          model.Priority(req.Priority),
	}

	var created *model.Prescription
	created, err = s.rx.Accept(r.Context(), actorFrom(principal), rx)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handlePrescriptionSuggest forwards a scanned document to the configured
// Suggestor for OCR-assisted field extraction. Per spec.md §5 this is never
// on the safety-critical path: a nil Suggestor or an extraction failure
// both return an empty suggestion list rather than an error.
func (s *Server) handlePrescriptionSuggest(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.prescription.suggest")
	defer func() { done(err) }()

	if _, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionCreate, ""); !ok {
		return
	}

	document, readErr := io.ReadAll(r.Body)
	if readErr != nil {
		err = readErr
		writeBadRequest(w, r, "could not read document body: "+err.Error())
		return
	}

	if s.suggestor == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	var fields any
	fields, err = s.suggestor.Extract(r.Context(), document)
	if err != nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handlePrescriptionGet(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.prescription.get")
	defer func() { done(err) }()

	id := r.PathValue("id")
	var rx *model.Prescription
	rx, err = s.store.GetPrescription(r.Context(), id)
	if err != nil {
		writeNotFound(w, r, "prescription not found")
		return
	}
	if _, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionRead, rx.PatientID); !ok {
		return
	}
	writeJSON(w, http.StatusOK, rx)
}

// transition authorizes and runs fn, writing its result or domain error. It
// returns the error so the caller's observability span records it.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, action authz.Action, fn func(principal authz.Principal, id string) (*model.Prescription, error)) error {
	principal, ok := s.authorize(w, r, authz.ResourceMedication, action, "")
	if !ok {
		return nil
	}
	if s.rx == nil {
		err := errtax.New(errtax.CodeSystemFailure, "prescription machine not configured")
		writeInternal(w, r, err)
		return err
	}
	rx, err := fn(principal, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return err
	}
	writeJSON(w, http.StatusOK, rx)
	return nil
}

func (s *Server) handlePrescriptionDataEntry(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "httpapi.prescription.data_entry")
	done(s.transition(w, r, authz.ActionUpdate, func(p authz.Principal, id string) (*model.Prescription, error) {
		return s.rx.AdvanceToDataEntry(r.Context(), actorFrom(p), id)
	}))
}

func (s *Server) handlePrescriptionClaimPending(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "httpapi.prescription.claim_pending")
	done(s.transition(w, r, authz.ActionUpdate, func(p authz.Principal, id string) (*model.Prescription, error) {
		return s.rx.AdvanceToClaimPending(r.Context(), actorFrom(p), id)
	}))
}

func (s *Server) handlePrescriptionReadyForPickup(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "httpapi.prescription.ready_for_pickup")
	done(s.transition(w, r, authz.ActionUpdate, func(p authz.Principal, id string) (*model.Prescription, error) {
		return s.rx.AdvanceToReadyForPickup(r.Context(), actorFrom(p), id)
	}))
}

func (s *Server) handlePrescriptionPickup(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "httpapi.prescription.pickup")
	done(s.transition(w, r, authz.ActionUpdate, func(p authz.Principal, id string) (*model.Prescription, error) {
		return s.rx.PickUp(r.Context(), actorFrom(p), id)
	}))
}

func (s *Server) handlePrescriptionCancel(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "httpapi.prescription.cancel")
	done(s.transition(w, r, authz.ActionUpdate, func(p authz.Principal, id string) (*model.Prescription, error) {
		return s.rx.Cancel(r.Context(), actorFrom(p), id)
	}))
}

func (s *Server) handlePrescriptionReject(w http.ResponseWriter, r *http.Request) {
	done, r := s.track(r, "httpapi.prescription.reject")
	done(s.transition(w, r, authz.ActionUpdate, func(p authz.Principal, id string) (*model.Prescription, error) {
		return s.rx.Reject(r.Context(), actorFrom(p), id)
	}))
}
