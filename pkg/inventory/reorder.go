package inventory

import (
	"sort"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// ReorderEntry is a single line on the reorder list, per spec.md §4.7.
type ReorderEntry struct {
	PharmacyID string
	NDC        string
	Priority   int
	OrderQty   float64
}

// reorderPriority classifies item against its reorder point, per
// spec.md §4.7's {10, 9, 7, 5, 3} priority table.
func reorderPriority(item model.InventoryItem) int {
	available := item.Available()
	switch {
	case available <= 0:
		return 10
	case item.ReorderPoint > 0 && available < 0.25*item.ReorderPoint:
		return 9
	case item.ReorderPoint > 0 && available < 0.5*item.ReorderPoint:
		return 7
	case available <= item.ReorderPoint:
		return 5
	default:
		return 3
	}
}

// ReorderList filters items whose available quantity is at or below its
// reorder point and returns them ordered by descending priority, per
// spec.md §4.7. Order quantity is par_level - available.
func ReorderList(items []model.InventoryItem) []ReorderEntry {
	var out []ReorderEntry
	for _, item := range items {
		if item.Available() > item.ReorderPoint {
			continue
		}
		orderQty := item.ParLevel - item.Available()
		if orderQty < 0 {
			orderQty = 0
		}
		out = append(out, ReorderEntry{
			PharmacyID: item.PharmacyID,
			NDC:        item.NDC,
			Priority:   reorderPriority(item),
			OrderQty:   orderQty,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}
