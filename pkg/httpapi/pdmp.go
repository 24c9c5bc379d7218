package httpapi

import (
	"net/http"

	"github.com/ridgeline-health/dispense/pkg/authz"
	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/pdmp"
	"github.com/ridgeline-health/dispense/pkg/ports"
)

type pdmpQueryRequest struct {
	PatientID string   `json:"patient_id"`
	States    []string `json:"states"`
}

// handlePDMPQuery queries the configured PDMP registry for a patient's
// cross-pharmacy dispensing history and runs the pattern analyzer over the
// result, per spec.md §4.6.
func (s *Server) handlePDMPQuery(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.pdmp.query")
	defer func() { done(err) }()

	if _, ok := s.authorize(w, r, authz.ResourceMedication, authz.ActionRead, ""); !ok {
		return
	}
	if s.pdmpProvider == nil {
		err = errtax.New(errtax.CodeSystemFailure, "pdmp provider not configured")
		writeInternal(w, r, err)
		return
	}

	var req pdmpQueryRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	queryID := s.ids.New("pdmpq")
	recs, qerr := s.pdmpProvider.Query(r.Context(), ports.PDMPQuery{PatientID: req.PatientID, States: req.States, Since: s.clk.Now().AddDate(-1, 0, 0)})
	if qerr != nil {
		err = errtax.Wrap(errtax.CodeExternalUnavail, "pdmp provider unavailable", qerr)
		writeDomainError(w, r, err)
		return
	}

	result := pdmp.Analyze(pdmp.Input{
		PatientID:     req.PatientID,
		QueryID:       queryID,
		QueriedStates: req.States,
		Records:       recs,
		Now:           s.clk.Now(),
	})
	writeJSON(w, http.StatusOK, result)
}
