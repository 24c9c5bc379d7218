package inventory

import (
	"time"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// expirySurveillanceWindow is the look-ahead horizon from spec.md §4.7.
const expirySurveillanceWindowDays = 90

// ExpiryEntry is a single line in the expiry surveillance report.
type ExpiryEntry struct {
	PharmacyID          string
	NDC                 string
	Lot                 string
	Expiry              time.Time
	DaysUntilExpiration int
	IsExpired           bool
}

// ExpirySurveillance filters items expiring within 90 days of now (including
// already-expired items) and reports days_until_expiration/is_expired for
// each, per spec.md §4.7.
func ExpirySurveillance(items []model.InventoryItem, now time.Time) []ExpiryEntry {
	horizon := now.AddDate(0, 0, expirySurveillanceWindowDays)
	var out []ExpiryEntry
	for _, item := range items {
		if item.Expiry.IsZero() || item.Expiry.After(horizon) {
			continue
		}
		days := int(item.Expiry.Sub(now).Hours() / 24)
		out = append(out, ExpiryEntry{
			PharmacyID:          item.PharmacyID,
			NDC:                 item.NDC,
			Lot:                 item.Lot,
			Expiry:              item.Expiry,
			DaysUntilExpiration: days,
			IsExpired:           item.Expiry.Before(now),
		})
	}
	return out
}
