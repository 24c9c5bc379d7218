package model

// DEASchedule is the DEA controlled-substance category.
type DEASchedule string

const (
	ScheduleI      DEASchedule = "I"
	ScheduleII     DEASchedule = "II"
	ScheduleIII    DEASchedule = "III"
	ScheduleIV     DEASchedule = "IV"
	ScheduleV      DEASchedule = "V"
	ScheduleLegend DEASchedule = "LEGEND"
	ScheduleOTC    DEASchedule = "OTC"
)

// Controlled reports whether the schedule is a DEA-controlled category
// (I through V), as opposed to LEGEND or OTC.
func (s DEASchedule) Controlled() bool {
	switch s {
	case ScheduleI, ScheduleII, ScheduleIII, ScheduleIV, ScheduleV:
		return true
	default:
		return false
	}
}

// Drug is reference (read-mostly) drug-product data.
type Drug struct {
	NDC              string // canonical 11-digit NDC
	GenericName      string
	BrandName        string
	Strength         float64
	StrengthUnit     string
	DosageForm       string
	Route            string
	Schedule         DEASchedule
	RxNormConceptID  string
	TherapeuticClass string
	Manufacturer     string
}
