package httpapi

import (
	"net/http"
	"time"

	"github.com/ridgeline-health/dispense/pkg/authz"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/ports"
)

type registrySubmitRequest struct {
	PatientID      string    `json:"patient_id"`
	NDC            string    `json:"ndc"`
	LotNumber      string    `json:"lot_number"`
	AdministeredAt time.Time `json:"administered_at"`
}

// handleRegistrySubmit submits an immunization record to the state IIS
// registry named by the {state} path segment, per spec.md §4.7.
func (s *Server) handleRegistrySubmit(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.registry.submit")
	defer func() { done(err) }()

	if _, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionCreate, ""); !ok {
		return
	}

	state := r.PathValue("state")
	client, ok := s.registryClients[state]
	if !ok {
		err = errtax.New(errtax.CodeInvalidField, "no registry configured for state "+state).WithField("state")
		writeBadRequest(w, r, err.Error())
		return
	}

	var req registrySubmitRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	var ack ports.RegistryAck
	ack, err = client.Submit(r.Context(), ports.ImmunizationSubmission{
		PatientID:      req.PatientID,
		NDC:            req.NDC,
		LotNumber:      req.LotNumber,
		AdministeredAt: req.AdministeredAt,
	})
	if err != nil {
		err = errtax.Wrap(errtax.CodeExternalUnavail, "registry submission failed", err)
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}
