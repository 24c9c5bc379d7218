package fill

import (
	"time"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// ValidationResult is validateFillForVerification's output from spec.md §4.4.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateFillForVerification enforces the spec.md §4.4 structural rules a
// fill must satisfy before entering verification.
func ValidateFillForVerification(f model.Fill, rx model.Prescription, drug model.Drug, now time.Time) ValidationResult {
	var r ValidationResult
	r.Valid = true

	fail := func(msg string) {
		r.Valid = false
		r.Errors = append(r.Errors, msg)
	}
	warn := func(msg string) {
		r.Warnings = append(r.Warnings, msg)
	}

	if f.DispensedNDC == "" {
		fail("NDC is required")
	}
	if f.IsPartialFill {
		if f.PartialReason == "" {
			fail("partial fill requires a reason")
		}
		if f.RemainingQuantity <= 0 {
			fail("partial fill requires a positive remaining quantity")
		}
	} else if f.QuantityDispensed <= 0 || f.QuantityDispensed > f.QuantityPrescribed {
		fail("quantity dispensed must be in (0, prescribed] unless this is a partial fill")
	}
	if !f.Expiration.IsZero() && f.Expiration.Before(now) {
		fail("lot is expired")
	}
	if rx.Schedule.Controlled() && f.Lot == "" {
		fail("lot is required for controlled substances")
	}
	if f.DAW < 0 || f.DAW > 9 {
		fail("DAW code must be in [0,9]")
	}

	if !f.Expiration.IsZero() {
		discardWindow := now.Add(time.Duration(f.DaysSupply) * 24 * time.Hour)
		if f.Expiration.Before(discardWindow) {
			warn("expiry falls within the days-supply window")
		}
	}
	if !rx.Schedule.Controlled() && f.Lot == "" {
		warn("lot is missing (non-controlled)")
	}
	recommended := DeriveAuxLabels(drug)
	if !allPresent(recommended, f.AuxLabelCodes) {
		warn("recommended auxiliary labels are not all applied")
	}

	return r
}

func allPresent(recommended, applied []string) bool {
	set := make(map[string]bool, len(applied))
	for _, a := range applied {
		set[a] = true
	}
	for _, r := range recommended {
		if !set[r] {
			return false
		}
	}
	return true
}
