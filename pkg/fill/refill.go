// Package fill implements the fill module from spec.md §4.4: refill
// eligibility, fill-for-verification validation, auxiliary label
// derivation, and label data assembly. Every function here is pure.
package fill

import (
	"math"
	"time"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// RefillResult is canRefill's output from spec.md §4.4.
type RefillResult struct {
	OK                bool
	Errors            []string
	Warnings          []string
	DaysUntilEligible int
}

// CanRefill evaluates refill eligibility for rx as of now, given the number
// of whole days elapsed since the prescription's last fill.
func CanRefill(rx model.Prescription, now time.Time, daysSinceLastFill int) RefillResult {
	var r RefillResult
	r.OK = true

	if rx.ExpirationDate.Before(now) {
		r.OK = false
		r.Errors = append(r.Errors, "prescription has expired")
	}
	if rx.RefillsRemaining <= 0 {
		r.OK = false
		r.Errors = append(r.Errors, "no refills remaining")
	}
	switch rx.Schedule {
	case model.ScheduleII:
		r.OK = false
		r.Errors = append(r.Errors, "Schedule II prescriptions cannot be refilled")
	case model.ScheduleIII, model.ScheduleIV, model.ScheduleV:
		maxAge := 180 * 24 * time.Hour
		if now.Sub(rx.WrittenDate) > maxAge {
			r.OK = false
			r.Errors = append(r.Errors, "Schedule III/IV/V prescription written more than 180 days ago")
		}
	}
	// The Schedule II "written > 90 days ago" rule is evaluated even though
	// Schedule II is already outright non-refillable, matching spec.md
	// §4.4's rule list verbatim (the 90-day rule is a documented, if
	// redundant, precondition).
	if rx.Schedule == model.ScheduleII && now.Sub(rx.WrittenDate) > 90*24*time.Hour {
		r.Errors = append(r.Errors, "Schedule II prescription written more than 90 days ago")
	}

	threshold := 0.8 * float64(rx.DaysSupply)
	if float64(daysSinceLastFill) < threshold {
		r.Warnings = append(r.Warnings, "refill too soon")
		r.DaysUntilEligible = int(math.Ceil(threshold)) - daysSinceLastFill
	}

	return r
}
