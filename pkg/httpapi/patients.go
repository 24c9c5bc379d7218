package httpapi

import (
	"net/http"
	"time"

	"github.com/ridgeline-health/dispense/pkg/authz"
	"github.com/ridgeline-health/dispense/pkg/model"
)

type patientCreateRequest struct {
	MRN                      string     `json:"mrn"`
	FirstName                string     `json:"first_name"`
	LastName                 string     `json:"last_name"`
	DOB                      time.Time  `json:"dob"`
	Gender                   string     `json:"gender"`
	Address                  string     `json:"address"`
	AllergyCodes             []string   `json:"allergy_codes"`
	Conditions               []string   `json:"conditions"`
	Pregnant                 bool       `json:"pregnant"`
	Nursing                  bool       `json:"nursing"`
	CreatinineClearanceMLMin *float64   `json:"creatinine_clearance_ml_min"`
	HepaticImpairment        string     `json:"hepatic_impairment"`
}

func (s *Server) handlePatientCreate(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.patient.create")
	defer func() { done(err) }()

	if _, ok := s.authorize(w, r, authz.ResourcePatient, authz.ActionCreate, ""); !ok {
		return
	}

	var req patientCreateRequest
	if err = decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	p := &model.Patient{
		MRN:                      req.MRN,
		FirstName:                req.FirstName,
		LastName:                 req.LastName,
		DOB:                      req.DOB,
		Gender:                   model.Gender(req.Gender),
		Address:                  req.Address,
		AllergyCodes:             req.AllergyCodes,
		Conditions:               req.Conditions,
		Pregnant:                 req.Pregnant,
		Nursing:                  req.Nursing,
		CreatinineClearanceMLMin: req.CreatinineClearanceMLMin,
		HepaticImpairment:        model.HepaticImpairment(req.HepaticImpairment),
	}
	if p.ID == "" {
		p.ID = "pt_" + p.MRN
	}

	if err = s.store.PutPatient(r.Context(), p, 0); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePatientGet(w http.ResponseWriter, r *http.Request) {
	var err error
	done, r := s.track(r, "httpapi.patient.get")
	defer func() { done(err) }()

	id := r.PathValue("id")
	if _, ok := s.authorize(w, r, authz.ResourcePatient, authz.ActionRead, id); !ok {
		return
	}

	var p *model.Patient
	p, err = s.store.GetPatient(r.Context(), id)
	if err != nil {
		writeNotFound(w, r, "patient not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
