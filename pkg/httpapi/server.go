package httpapi

import (
	"net/http"

	"github.com/ridgeline-health/dispense/pkg/authz"
	"github.com/ridgeline-health/dispense/pkg/claim"
	"github.com/ridgeline-health/dispense/pkg/clock"
	"github.com/ridgeline-health/dispense/pkg/dur"
	"github.com/ridgeline-health/dispense/pkg/httpauth"
	"github.com/ridgeline-health/dispense/pkg/idgen"
	"github.com/ridgeline-health/dispense/pkg/inventory"
	"github.com/ridgeline-health/dispense/pkg/observability"
	"github.com/ridgeline-health/dispense/pkg/ports"
	"github.com/ridgeline-health/dispense/pkg/prescription"
	"github.com/ridgeline-health/dispense/pkg/verification"
)

// Server wires the dispensing engine's orchestration packages onto an HTTP
// surface. Every handler authenticates via the Validator passed to Routes,
// checks the caller's role against the RBAC matrix, and is wrapped in the
// observability Provider's RED instrumentation.
type Server struct {
	store ports.Store
	authz *authz.Engine
	obs   *observability.Provider

	rx       *prescription.Machine
	claims   *claim.Adjudicator
	verify   *verification.Session
	ledger   *inventory.Ledger
	durCheck *dur.Engine

	pdmpProvider    ports.PDMPProvider
	registryClients map[string]ports.RegistryClient
	suggestor       ports.Suggestor

	clk clock.Clock
	ids idgen.IDGen
}

// New builds a Server. Any nil orchestration dependency leaves the
// corresponding routes unavailable (500-ing, never panicking) so a partial
// deployment (e.g. no claim switch configured yet) can still serve the
// routes it can.
func New(
	store ports.Store,
	authzEngine *authz.Engine,
	obs *observability.Provider,
	rx *prescription.Machine,
	claims *claim.Adjudicator,
	verify *verification.Session,
	ledger *inventory.Ledger,
	durCheck *dur.Engine,
) *Server {
	return &Server{
		store:    store,
		authz:    authzEngine,
		obs:      obs,
		rx:       rx,
		claims:   claims,
		verify:   verify,
		ledger:   ledger,
		durCheck: durCheck,
		clk:      clock.System{},
		ids:      idgen.UUIDGen{},
	}
}

// WithPDMP attaches a PDMP registry port, enabling the /pdmp/query route.
// Returns s for chaining at construction time.
func (s *Server) WithPDMP(provider ports.PDMPProvider) *Server {
	s.pdmpProvider = provider
	return s
}

// WithRegistries attaches one IIS RegistryClient per state abbreviation,
// enabling the /registry/{state}/submit route.
func (s *Server) WithRegistries(clients map[string]ports.RegistryClient) *Server {
	s.registryClients = clients
	return s
}

// WithClock overrides the clock used to stamp PDMP query IDs/timestamps;
// tests use this to get a deterministic Frozen clock.
func (s *Server) WithClock(clk clock.Clock) *Server {
	s.clk = clk
	return s
}

// WithIDGen overrides the ID generator used for PDMP query IDs.
func (s *Server) WithIDGen(ids idgen.IDGen) *Server {
	s.ids = ids
	return s
}

// WithSuggestor attaches the OCR/clinical-suggestion port, enabling the
// /prescriptions/suggest route.
func (s *Server) WithSuggestor(suggestor ports.Suggestor) *Server {
	s.suggestor = suggestor
	return s
}

// Routes builds the engine's HTTP surface, wrapped in JWT auth. The caller
// mounts the returned handler directly (it is itself a ServeMux wrapped in
// middleware).
func (s *Server) Routes(validator *httpauth.Validator) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /patients", s.handlePatientCreate)
	mux.HandleFunc("GET /patients/{id}", s.handlePatientGet)

	mux.HandleFunc("POST /prescriptions", s.handlePrescriptionIntake)
	mux.HandleFunc("POST /prescriptions/suggest", s.handlePrescriptionSuggest)
	mux.HandleFunc("GET /prescriptions/{id}", s.handlePrescriptionGet)
	mux.HandleFunc("POST /prescriptions/{id}/data-entry", s.handlePrescriptionDataEntry)
	mux.HandleFunc("POST /prescriptions/{id}/claim-pending", s.handlePrescriptionClaimPending)
	mux.HandleFunc("POST /prescriptions/{id}/ready-for-pickup", s.handlePrescriptionReadyForPickup)
	mux.HandleFunc("POST /prescriptions/{id}/pickup", s.handlePrescriptionPickup)
	mux.HandleFunc("POST /prescriptions/{id}/cancel", s.handlePrescriptionCancel)
	mux.HandleFunc("POST /prescriptions/{id}/reject", s.handlePrescriptionReject)

	mux.HandleFunc("POST /claims", s.handleClaimSubmit)
	mux.HandleFunc("POST /claims/{id}/resubmit", s.handleClaimResubmit)
	mux.HandleFunc("POST /claims/{id}/cash", s.handleClaimConvertToCash)

	mux.HandleFunc("POST /fills/{id}/verification/start", s.handleVerificationStart)
	mux.HandleFunc("GET /fills/{id}/verification", s.handleVerificationGet)
	mux.HandleFunc("POST /fills/{id}/verification/checklist", s.handleVerificationChecklist)
	mux.HandleFunc("POST /fills/{id}/verification/scan", s.handleVerificationScan)
	mux.HandleFunc("POST /fills/{id}/verification/approve", s.handleVerificationApprove)
	mux.HandleFunc("POST /fills/{id}/verification/reject", s.handleVerificationReject)
	mux.HandleFunc("POST /fills/{id}/verification/rework", s.handleVerificationRework)

	mux.HandleFunc("GET /inventory/{pharmacyID}/{ndc}", s.handleInventoryGet)
	mux.HandleFunc("POST /inventory/{pharmacyID}/{ndc}/receive", s.handleInventoryReceive)
	mux.HandleFunc("POST /inventory/{pharmacyID}/{ndc}/allocate", s.handleInventoryAllocate)
	mux.HandleFunc("POST /inventory/{pharmacyID}/{ndc}/dispense", s.handleInventoryDispense)
	mux.HandleFunc("POST /inventory/{pharmacyID}/{ndc}/adjust", s.handleInventoryAdjust)

	mux.HandleFunc("POST /pdmp/query", s.handlePDMPQuery)
	mux.HandleFunc("POST /registry/{state}/submit", s.handleRegistrySubmit)

	return httpauth.Middleware(validator)(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorize checks the caller against the RBAC matrix for (resource,
// action), writing a 403 problem and returning false when denied. ownerID
// scopes patient-owned resources (a PATIENT principal may only act on their
// own record).
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, resource authz.Resource, action authz.Action, ownerID string) (authz.Principal, bool) {
	principal, ok := httpauth.PrincipalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, r, "no authenticated principal on request")
		return authz.Principal{}, false
	}
	if s.authz == nil || !s.authz.Allowed(principal, resource, action, ownerID) {
		writeForbidden(w, r, "principal is not permitted to perform this action")
		return authz.Principal{}, false
	}
	return principal, true
}

// track starts an observability span for name, returning a no-op done func
// when no Provider was configured.
func (s *Server) track(r *http.Request, name string) (func(error), *http.Request) {
	if s.obs == nil {
		return func(error) {}, r
	}
	ctx, done := s.obs.Track(r.Context(), name)
	return done, r.WithContext(ctx)
}
