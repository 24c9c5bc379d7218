package dur

import (
	"math"
	"strings"
)

// MME thresholds from spec.md §4.2.
const (
	MMEWarningThreshold  = 50.0
	MMEDangerThreshold   = 90.0
	MMECriticalThreshold = 120.0
)

// opioidConversionFactors maps a normalized opioid name to its conversion
// factor to morphine milligram equivalents. Methadone's factor is
// dose-dependent and is handled separately by methadoneFactor.
var opioidConversionFactors = map[string]float64{
	"morphine":      1.0,
	"oxycodone":     1.5,
	"hydrocodone":   1.0,
	"hydromorphone": 4.0,
	"codeine":       0.15,
	"tramadol":      0.1,
	"fentanylpatch": 2.4, // per mcg/hr, handled by callers that pass the patch's mcg/hr as "quantity"
	"oxymorphone":   3.0,
}

// methadoneFactor returns the dose-dependent conversion factor for
// methadone per spec.md §4.2: <=20mg:4, 21-40:8, 41-60:10, >60:12.
func methadoneFactor(dailyDoseMG float64) float64 {
	switch {
	case dailyDoseMG <= 20:
		return 4
	case dailyDoseMG <= 40:
		return 8
	case dailyDoseMG <= 60:
		return 10
	default:
		return 12
	}
}

// ConversionFactor resolves the MME conversion factor for a normalized
// opioid name, given the computed daily dose in mg (needed only for
// methadone's dose-dependent schedule).
func ConversionFactor(drugName string, dailyDoseMG float64) (float64, bool) {
	n := normalizeName(drugName)
	if strings.Contains(n, "methadone") {
		return methadoneFactor(dailyDoseMG), true
	}
	for key, factor := range opioidConversionFactors {
		if strings.Contains(n, key) {
			return factor, true
		}
	}
	return 0, false
}

// DailyMME computes daily_dose = quantity*strength/daysSupply and
// daily_MME = daily_dose * conversionFactor(drug), per spec.md §4.2. It
// returns ok=false when the drug carries no known opioid conversion factor
// (i.e. MME does not apply).
func DailyMME(drugName string, quantity, strengthMG float64, daysSupply int) (mme float64, ok bool) {
	if daysSupply <= 0 {
		return 0, false
	}
	dailyDose := quantity * strengthMG / float64(daysSupply)
	factor, known := ConversionFactor(drugName, dailyDose)
	if !known {
		return 0, false
	}
	return roundTo(dailyDose*factor, 2), true
}

func roundTo(v float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(v*mult) / mult
}

// MMELevel classifies a daily MME value against the warning/danger/critical
// thresholds.
func MMELevel(dailyMME float64) string {
	switch {
	case dailyMME >= MMECriticalThreshold:
		return "critical"
	case dailyMME >= MMEDangerThreshold:
		return "danger"
	case dailyMME >= MMEWarningThreshold:
		return "warning"
	default:
		return "none"
	}
}
