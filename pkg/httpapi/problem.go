// Package httpapi exposes the dispensing engine's orchestration layer
// (prescription lifecycle, claim adjudication, fill verification, inventory
// ledger) over HTTP, behind JWT bearer auth and RBAC.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ridgeline-health/dispense/pkg/errtax"
)

// problemDetail is an RFC 7807 Problem Detail error response.
type problemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	Field    string `json:"field,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	p := &problemDetail{
		Type:     fmt.Sprintf("https://dispense.ridgeline.health/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusBadRequest, "Bad Request", detail)
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", detail)
}

func writeForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusForbidden, "Forbidden", detail)
}

func writeNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusNotFound, "Not Found", detail)
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", "the HTTP method is not supported for this endpoint")
}

// writeInternal logs the real error and never exposes it to the client.
func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("httpapi: internal error", "error", err, "path", r.URL.Path)
	writeProblem(w, r, http.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred")
}

// writeDomainError translates an engine error into the appropriate HTTP
// status, preferring the *errtax.Error category mapping when the error
// chain carries one.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var te *errtax.Error
	if !errors.As(err, &te) {
		writeInternal(w, r, err)
		return
	}

	status := statusForCategory(te.Category)
	p := &problemDetail{
		Type:     fmt.Sprintf("https://dispense.ridgeline.health/errors/%s", te.Code),
		Title:    string(te.Category),
		Status:   status,
		Detail:   te.Message,
		Instance: r.URL.Path,
		Code:     string(te.Code),
		Field:    te.Field,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func statusForCategory(c errtax.Category) int {
	switch c {
	case errtax.CategoryValidation:
		return http.StatusBadRequest
	case errtax.CategoryPolicy:
		return http.StatusForbidden
	case errtax.CategorySafety:
		return http.StatusUnprocessableEntity
	case errtax.CategoryConflict:
		return http.StatusConflict
	case errtax.CategoryTransient:
		return http.StatusServiceUnavailable
	case errtax.CategoryPermanentExternal:
		return http.StatusBadGateway
	case errtax.CategorySystem:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
