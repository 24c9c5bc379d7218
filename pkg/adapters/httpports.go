// Package adapters implements the outbound ports (pkg/ports) against real
// HTTP endpoints: the claim switch, PDMP registries, state IIS registries,
// and the OCR/suggestion service. Each adapter is a thin JSON-over-HTTP
// client with no retry of its own, so these stay easy to fake in tests;
// claim submissions are retried by pkg/claim through pkg/resiliency, and
// the other ports' calls are not retried or circuit-broken.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ridgeline-health/dispense/pkg/model"
	"github.com/ridgeline-health/dispense/pkg/ports"
)

// claimSwitchRateLimit caps outbound claim submissions per pharmacy
// process; the switch's own throttling is out of band, this just keeps a
// bad retry storm from this process from tripping it.
const claimSwitchRateLimit = 20 // requests/second

// ClaimSwitchClient sends NCPDP-shaped claim requests to an insurance
// network's HTTP front door.
type ClaimSwitchClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClaimSwitchClient builds a ClaimSwitchClient with the 30s timeout
// spec.md §5 assigns the claim switch call, rate-limited client-side so a
// resiliency.Do retry burst can't itself overwhelm the switch.
func NewClaimSwitchClient(baseURL string) *ClaimSwitchClient {
	return &ClaimSwitchClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(claimSwitchRateLimit), claimSwitchRateLimit),
	}
}

type claimSwitchWireRequest struct {
	BIN, PCN, Group string
	MemberID        string
	DrugNDC         string
	Quantity        float64
	DaysSupply      int
	DAW             model.DAWCode
	PrescriberDEA   string
	PrescriberNPI   string
	OverrideCode    string
}

type claimSwitchWireResponse struct {
	Status            ports.ClaimResponseStatus
	RejectCode        string
	Message           string
	PatientPayCents   int64
	InsurancePayCents int64
	GrossPriceCents   int64
}

func (c *ClaimSwitchClient) Send(ctx context.Context, req ports.ClaimRequest) (ports.ClaimResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ports.ClaimResponse{}, err
	}
	wire := claimSwitchWireRequest{
		BIN: req.BIN, PCN: req.PCN, Group: req.Group, MemberID: req.MemberID,
		DrugNDC: req.DrugNDC, Quantity: req.Quantity, DaysSupply: req.DaysSupply,
		DAW: req.DAW, PrescriberDEA: req.PrescriberDEA, PrescriberNPI: req.PrescriberNPI,
		OverrideCode: req.OverrideCode,
	}
	var out claimSwitchWireResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/claims", wire, &out); err != nil {
		return ports.ClaimResponse{}, err
	}
	return ports.ClaimResponse{
		Status: out.Status, RejectCode: out.RejectCode, Message: out.Message,
		PatientPayCents: out.PatientPayCents, InsurancePayCents: out.InsurancePayCents,
		GrossPriceCents: out.GrossPriceCents,
	}, nil
}

// PDMPClient queries one or more state PDMP registries through a single
// aggregating endpoint.
type PDMPClient struct {
	baseURL string
	client  *http.Client
}

// NewPDMPClient builds a PDMPClient with the 10s timeout spec.md §5
// assigns PDMP queries.
func NewPDMPClient(baseURL string) *PDMPClient {
	return &PDMPClient{baseURL: baseURL, client: &http.Client{Timeout: 10 * time.Second}}
}

type pdmpWireQuery struct {
	PatientID string
	States    []string
	Since     time.Time
}

func (c *PDMPClient) Query(ctx context.Context, q ports.PDMPQuery) ([]model.DispensingRecord, error) {
	var out []model.DispensingRecord
	wire := pdmpWireQuery{PatientID: q.PatientID, States: q.States, Since: q.Since}
	if err := postJSON(ctx, c.client, c.baseURL+"/query", wire, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegistryClient submits immunization records to a single state's IIS
// HTTP endpoint, one client per registered state (cmd/dispensed builds one
// per entry in config.RegistryURLByState).
type RegistryClient struct {
	baseURL string
	client  *http.Client
}

// NewRegistryClient builds a RegistryClient with the 30s timeout spec.md
// §5 assigns IIS submissions.
func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{baseURL: baseURL, client: &http.Client{Timeout: 30 * time.Second}}
}

func (c *RegistryClient) Submit(ctx context.Context, sub ports.ImmunizationSubmission) (ports.RegistryAck, error) {
	var out ports.RegistryAck
	if err := postJSON(ctx, c.client, c.baseURL+"/submissions", sub, &out); err != nil {
		return ports.RegistryAck{}, err
	}
	return out, nil
}

// SuggestorClient sends scanned documents to an OCR/clinical-suggestion
// service. Per spec.md §5 it is never retried and a timeout degrades to no
// fields rather than failing the data-entry flow.
type SuggestorClient struct {
	baseURL string
	client  *http.Client
}

// NewSuggestorClient builds a SuggestorClient with the 15s, no-retry
// timeout spec.md §5 assigns the suggestor.
func NewSuggestorClient(baseURL string) *SuggestorClient {
	return &SuggestorClient{baseURL: baseURL, client: &http.Client{Timeout: 15 * time.Second}}
}

func (c *SuggestorClient) Extract(ctx context.Context, document []byte) ([]ports.ExtractedField, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(document))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.client.Do(req)
	if err != nil {
		// Degraded mode: a suggestor failure never blocks data entry.
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, nil
	}
	var out []ports.ExtractedField
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil
	}
	return out, nil
}

// NoopSuggestor is used when SUGGESTOR_PROVIDER=none: data entry proceeds
// with zero AI-assisted fields, never blocking on an unconfigured service.
type NoopSuggestor struct{}

func (NoopSuggestor) Extract(ctx context.Context, document []byte) ([]ports.ExtractedField, error) {
	return nil, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("adapters: %s returned %d: %s", url, resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
