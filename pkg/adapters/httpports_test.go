package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ridgeline-health/dispense/pkg/ports"
)

func TestClaimSwitchClientSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/claims" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var got claimSwitchWireRequest
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if got.DrugNDC != "00002-1234-01" {
			t.Fatalf("DrugNDC = %q", got.DrugNDC)
		}
		json.NewEncoder(w).Encode(claimSwitchWireResponse{
			Status: ports.ClaimResponseApproved, PatientPayCents: 500, InsurancePayCents: 4500, GrossPriceCents: 5000,
		})
	}))
	defer srv.Close()

	client := NewClaimSwitchClient(srv.URL)
	resp, err := client.Send(context.Background(), ports.ClaimRequest{DrugNDC: "00002-1234-01"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Status != ports.ClaimResponseApproved {
		t.Fatalf("status = %v", resp.Status)
	}
	if resp.GrossPriceCents != 5000 {
		t.Fatalf("gross = %d", resp.GrossPriceCents)
	}
}

func TestClaimSwitchClientNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClaimSwitchClient(srv.URL)
	if _, err := client.Send(context.Background(), ports.ClaimRequest{}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestPDMPClientQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"ID": "dr_1"}})
	}))
	defer srv.Close()

	client := NewPDMPClient(srv.URL)
	records, err := client.Query(context.Background(), ports.PDMPQuery{PatientID: "pt_1", States: []string{"CA"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d", len(records))
	}
}

func TestSuggestorClientDegradesOnFailure(t *testing.T) {
	client := NewSuggestorClient("http://127.0.0.1:0")
	fields, err := client.Extract(context.Background(), []byte("scan"))
	if err != nil {
		t.Fatalf("Extract should degrade, not error: %v", err)
	}
	if fields != nil {
		t.Fatalf("expected nil fields on failure, got %v", fields)
	}
}

func TestNoopSuggestorReturnsNoFields(t *testing.T) {
	fields, err := NoopSuggestor{}.Extract(context.Background(), []byte("scan"))
	if err != nil || fields != nil {
		t.Fatalf("NoopSuggestor.Extract() = %v, %v", fields, err)
	}
}
