package fill

import (
	"time"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// PharmacyIdentity is the minimal pharmacy-side identity a label carries.
type PharmacyIdentity struct {
	Name    string
	Address string
	Phone   string
	NPI     string
}

// LabelData is the structured (unformatted) record spec.md §4.4's label
// assembly produces. Rendering to a physical label is a transport concern
// outside this core.
type LabelData struct {
	Pharmacy PharmacyIdentity

	PatientName string
	RxNumber    string

	DrugName     string
	Strength     float64
	StrengthUnit string
	DosageForm   string
	NDC          string

	Quantity   float64
	DaysSupply int
	Sig        string

	DiscardBy time.Time

	AuxLabels []string
	Warnings  []string
}

// AssembleLabelData builds a LabelData for f, per spec.md §4.4. fillDate is
// the date the fill was finalized; discard-by is
// min(expiry, fill_date + days_supply + 14 days).
func AssembleLabelData(pharmacy PharmacyIdentity, patientName string, rx model.Prescription, f model.Fill, drug model.Drug, fillDate time.Time) LabelData {
	plusSupply := fillDate.Add(time.Duration(f.DaysSupply+14) * 24 * time.Hour)
	discardBy := plusSupply
	if !f.Expiration.IsZero() && f.Expiration.Before(plusSupply) {
		discardBy = f.Expiration
	}

	validation := ValidateFillForVerification(f, rx, drug, fillDate)

	return LabelData{
		Pharmacy:     pharmacy,
		PatientName:  patientName,
		RxNumber:     rx.RxNumber,
		DrugName:     drug.GenericName,
		Strength:     drug.Strength,
		StrengthUnit: drug.StrengthUnit,
		DosageForm:   drug.DosageForm,
		NDC:          f.DispensedNDC,
		Quantity:     f.QuantityDispensed,
		DaysSupply:   f.DaysSupply,
		Sig:          rx.Sig,
		DiscardBy:    discardBy,
		AuxLabels:    DeriveAuxLabels(drug),
		Warnings:     validation.Warnings,
	}
}
