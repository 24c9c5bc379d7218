package dur

import (
	"sort"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// CurrentMedication is one of the patient's active medications, checked
// against the candidate drug for interactions and duplicate therapy.
type CurrentMedication struct {
	Name             string
	TherapeuticClass string
}

// Input is everything Check needs to evaluate a candidate drug against a
// patient's clinical context, per spec.md §4.2.
type Input struct {
	CandidateName  string
	CandidateClass string
	CandidateNDC   string

	Quantity     float64
	StrengthMG   float64
	DaysSupply   int
	Frequency    string
	Route        string

	CurrentMedications []CurrentMedication
	Allergies          []string // normalized or raw allergen/class names
	Conditions         []string // normalized condition codes

	AgeYears   int
	Pregnant   bool
	Nursing    bool
	HasViralIllness bool

	CreatinineClearanceMLMin *float64
	Hepatic                  model.HepaticImpairment

	Tables Tables
}

// Engine evaluates the DUR ruleset. It is stateless and safe for concurrent
// use; construct once with NewEngine and call Check per candidate drug.
type Engine struct {
	tables Tables
}

// NewEngine builds an Engine using the bundled default tables.
func NewEngine() (*Engine, error) {
	t, err := DefaultTables()
	if err != nil {
		return nil, err
	}
	return &Engine{tables: t}, nil
}

// NewEngineWithTables builds an Engine over an explicit table set (e.g. one
// loaded via LoadDir), for pharmacies running their own curated data.
func NewEngineWithTables(t Tables) *Engine {
	return &Engine{tables: t}
}

// Check runs every independent DUR rule against input and returns the
// combined, deterministically ordered result.
func (e *Engine) Check(in Input) model.DURResult {
	tables := in.Tables
	if len(tables.Interactions) == 0 && len(tables.Contraindications) == 0 {
		tables = e.tables
	}

	var alerts []model.DURAlert
	alerts = append(alerts, checkInteractions(in, tables)...)
	alerts = append(alerts, checkDuplicateTherapy(in)...)
	alerts = append(alerts, checkAllergies(in, tables)...)
	alerts = append(alerts, checkContraindications(in, tables)...)
	alerts = append(alerts, checkAge(in, tables)...)
	alerts = append(alerts, checkRenal(in, tables)...)
	alerts = append(alerts, checkHepatic(in, tables)...)
	alerts = append(alerts, checkPregnancyNursing(in, tables)...)
	alerts = append(alerts, checkMonitoring(in, tables)...)

	dailyMME, hasMME := DailyMME(in.CandidateName, in.Quantity, in.StrengthMG, in.DaysSupply)
	if hasMME {
		alerts = append(alerts, checkMME(dailyMME)...)
	}

	sortAlerts(alerts)

	hasHigh := false
	for _, a := range alerts {
		if a.Severity >= model.SeverityHigh {
			hasHigh = true
			break
		}
	}

	return model.DURResult{
		Alerts:                alerts,
		Passed:                len(alerts) == 0,
		HasHighSeverityAlerts: hasHigh,
		DailyMME:              dailyMME,
	}
}

// sortAlerts orders alerts severity descending, then category lexical, then
// code lexical, with a stable sort so ties are reproducible across runs,
// per spec.md §4.2's ordering guarantee.
func sortAlerts(alerts []model.DURAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity {
			return alerts[i].Severity > alerts[j].Severity
		}
		if alerts[i].Category != alerts[j].Category {
			return alerts[i].Category < alerts[j].Category
		}
		return alerts[i].Code < alerts[j].Code
	})
}

func checkInteractions(in Input, t Tables) []model.DURAlert {
	var out []model.DURAlert
	for _, entry := range t.Interactions {
		for _, med := range in.CurrentMedications {
			if (matches(in.CandidateName, entry.DrugA) && matches(med.Name, entry.DrugB)) ||
				(matches(in.CandidateName, entry.DrugB) && matches(med.Name, entry.DrugA)) {
				out = append(out, model.DURAlert{
					Type:                  "interaction",
					Category:              model.CategoryInteraction,
					Severity:              parseSeverity(entry.Severity),
					Code:                  "INTERACTION_" + normalizeName(entry.DrugA) + "_" + normalizeName(entry.DrugB),
					Message:               entry.Message,
					Recommendation:        entry.Recommendation,
					Overridable:           entry.Overridable,
					RequiresDocumentation: entry.RequiresDocumentation,
				})
			}
		}
	}
	return out
}

func checkDuplicateTherapy(in Input) []model.DURAlert {
	if in.CandidateClass == "" {
		return nil
	}
	for _, med := range in.CurrentMedications {
		if med.TherapeuticClass != "" && normalizeName(med.TherapeuticClass) == normalizeName(in.CandidateClass) {
			return []model.DURAlert{{
				Type:           "duplicate_therapy",
				Category:       model.CategoryDuplicateTherapy,
				Severity:       model.SeverityModerate,
				Code:           "DUPLICATE_THERAPY_" + normalizeName(in.CandidateClass),
				Message:        "Duplicate therapy",
				Recommendation: "Review for therapeutic duplication with " + med.Name,
				Overridable:    true,
			}}
		}
	}
	return nil
}

func checkAllergies(in Input, t Tables) []model.DURAlert {
	var out []model.DURAlert
	for _, allergy := range in.Allergies {
		if matches(in.CandidateName, allergy) {
			out = append(out, model.DURAlert{
				Type:        "allergy",
				Category:    model.CategoryAllergy,
				Severity:    model.SeverityHigh,
				Code:        "ALLERGY_DIRECT_" + normalizeName(allergy),
				Message:     "Direct allergy match: " + allergy,
				Overridable: false,
			})
			continue
		}
		for _, cr := range t.CrossReactivity {
			if !matches(allergy, cr.AllergyClass) {
				continue
			}
			for _, candidate := range cr.CrossReactsWith {
				if matches(in.CandidateName, candidate) {
					out = append(out, model.DURAlert{
						Type:           "allergy",
						Category:       model.CategoryAllergy,
						Severity:       parseSeverity(cr.Severity),
						Code:           "ALLERGY_CROSS_" + normalizeName(cr.AllergyClass),
						Message:        "Possible cross-reactivity with " + cr.AllergyClass + " allergy",
						Recommendation: "Confirm tolerance or select an alternative class",
						Overridable:    true,
					})
				}
			}
		}
	}
	return out
}

func checkContraindications(in Input, t Tables) []model.DURAlert {
	var out []model.DURAlert
	for _, entry := range t.Contraindications {
		if !matches(in.CandidateName, entry.Drug) && !matches(in.CandidateClass, entry.Drug) {
			continue
		}
		for _, cond := range in.Conditions {
			if matches(cond, entry.Condition) {
				out = append(out, model.DURAlert{
					Type:             "contraindication",
					Category:         model.CategoryContraindication,
					Severity:         parseSeverity(entry.Severity),
					Code:             "CONTRAINDICATION_" + normalizeName(entry.Drug) + "_" + normalizeName(entry.Condition),
					Message:          entry.Message,
					Recommendation:   entry.Recommendation,
					Overridable:      entry.Overridable,
					AlternativeDrugs: entry.AlternativeDrugs,
				})
			}
		}
	}
	return out
}

func checkAge(in Input, t Tables) []model.DURAlert {
	var out []model.DURAlert
	for _, rule := range t.AgeRules.Pediatric {
		if !matches(in.CandidateName, rule.Drug) && !matches(in.CandidateClass, rule.Drug) {
			continue
		}
		if rule.RequiresViralIllness && !in.HasViralIllness {
			continue
		}
		if rule.MaxAge > 0 && in.AgeYears < rule.MaxAge {
			out = append(out, model.DURAlert{
				Type:        "age_pediatric",
				Category:    model.CategoryAge,
				Severity:    parseSeverity(rule.Severity),
				Code:        "AGE_PEDIATRIC_" + normalizeName(rule.Drug),
				Message:     rule.Message,
				Overridable: true,
			})
		}
	}
	for _, rule := range t.AgeRules.GeriatricBeers {
		if matches(in.CandidateName, rule.Drug) && rule.MinAge > 0 && in.AgeYears >= rule.MinAge {
			out = append(out, model.DURAlert{
				Type:        "age_geriatric_beers",
				Category:    model.CategoryAge,
				Severity:    parseSeverity(rule.Severity),
				Code:        "AGE_BEERS_" + normalizeName(rule.Drug),
				Message:     rule.Message,
				Overridable: true,
			})
		}
	}
	if in.AgeYears >= 65 {
		for _, fr := range t.AgeRules.FallRisk {
			if matches(in.CandidateName, fr.Drug) {
				out = append(out, model.DURAlert{
					Type:        "age_fall_risk",
					Category:    model.CategoryAge,
					Severity:    model.SeverityLow,
					Code:        "AGE_FALL_RISK_" + normalizeName(fr.Drug),
					Message:     "Fall-risk medication in a patient 65 or older",
					Overridable: true,
				})
			}
		}
	}
	return out
}

func checkRenal(in Input, t Tables) []model.DURAlert {
	var out []model.DURAlert
	if in.CreatinineClearanceMLMin == nil {
		return out
	}
	crcl := *in.CreatinineClearanceMLMin
	for _, rule := range t.RenalRules {
		if matches(in.CandidateName, rule.Drug) && crcl < rule.MaxCrCl {
			out = append(out, model.DURAlert{
				Type:        "renal",
				Category:    model.CategoryRenal,
				Severity:    parseSeverity(rule.Severity),
				Code:        "RENAL_" + normalizeName(rule.Drug),
				Message:     rule.Message,
				Overridable: rule.Overridable,
			})
		}
	}
	if crcl < 15 {
		out = append(out, model.DURAlert{
			Type:        "renal_global",
			Category:    model.CategoryRenal,
			Severity:    model.SeverityHigh,
			Code:        "RENAL_GLOBAL_SEVERE",
			Message:     "Severe renal impairment (CrCl < 15 mL/min); review all renally-cleared medications",
			Overridable: true,
		})
	}
	return out
}

func checkHepatic(in Input, t Tables) []model.DURAlert {
	var out []model.DURAlert
	if in.Hepatic == "" || in.Hepatic == model.HepaticNone {
		return out
	}
	for _, rule := range t.HepaticRules {
		if !matches(in.CandidateName, rule.Drug) {
			continue
		}
		sev := escalateHepaticSeverity(parseSeverity(rule.BaseSeverity), in.Hepatic)
		out = append(out, model.DURAlert{
			Type:        "hepatic",
			Category:    model.CategoryHepatic,
			Severity:    sev,
			Code:        "HEPATIC_" + normalizeName(rule.Drug),
			Message:     rule.Message,
			Overridable: true,
		})
	}
	return out
}

func escalateHepaticSeverity(base model.Severity, impairment model.HepaticImpairment) model.Severity {
	bump := 0
	switch impairment {
	case model.HepaticMild:
		bump = 0
	case model.HepaticModerate:
		bump = 1
	case model.HepaticSevere:
		bump = 2
	}
	sev := int(base) + bump
	if sev > int(model.SeverityCritical) {
		sev = int(model.SeverityCritical)
	}
	return model.Severity(sev)
}

func checkPregnancyNursing(in Input, t Tables) []model.DURAlert {
	var out []model.DURAlert
	if in.Pregnant {
		for _, e := range t.PregnancyRules.CategoryX {
			if matches(in.CandidateName, e.Drug) {
				out = append(out, model.DURAlert{
					Type:        "pregnancy_category_x",
					Category:    model.CategoryPregnancy,
					Severity:    model.SeverityHigh,
					Code:        "PREGNANCY_X_" + normalizeName(e.Drug),
					Message:     e.Message,
					Overridable: false,
				})
			}
		}
		for _, e := range t.PregnancyRules.CategoryD {
			if matches(in.CandidateName, e.Drug) {
				out = append(out, model.DURAlert{
					Type:        "pregnancy_category_d",
					Category:    model.CategoryPregnancy,
					Severity:    model.SeverityHigh,
					Code:        "PREGNANCY_D_" + normalizeName(e.Drug),
					Message:     e.Message,
					Overridable: true,
				})
			}
		}
	}
	if in.Nursing {
		for _, e := range t.PregnancyRules.NursingAvoid {
			if matches(in.CandidateName, e.Drug) {
				out = append(out, model.DURAlert{
					Type:        "nursing_avoid",
					Category:    model.CategoryNursing,
					Severity:    model.SeverityHigh,
					Code:        "NURSING_AVOID_" + normalizeName(e.Drug),
					Message:     e.Message,
					Overridable: false,
				})
			}
		}
	}
	return out
}

func checkMonitoring(in Input, t Tables) []model.DURAlert {
	var out []model.DURAlert
	for _, e := range t.Monitoring {
		if matches(in.CandidateName, e.Drug) {
			out = append(out, model.DURAlert{
				Type:           "monitoring",
				Category:       model.CategoryMonitoring,
				Severity:       model.SeverityLow,
				Code:           "MONITORING_" + normalizeName(e.Drug),
				Message:        "Monitoring required: " + joinParams(e.Parameters),
				Recommendation: e.Frequency,
				Overridable:    true,
			})
		}
	}
	return out
}

func joinParams(params []string) string {
	out := ""
	for i, p := range params {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func checkMME(dailyMME float64) []model.DURAlert {
	level := MMELevel(dailyMME)
	if level == "none" {
		return nil
	}
	sev := model.SeverityLow
	switch level {
	case "warning":
		sev = model.SeverityModerate
	case "danger":
		sev = model.SeverityHigh
	case "critical":
		sev = model.SeverityCritical
	}
	return []model.DURAlert{{
		Type:           "mme",
		Category:       model.CategoryMME,
		Severity:       sev,
		Code:           "MME_" + level,
		Message:        "Daily morphine milligram equivalent is elevated",
		Recommendation: "Review opioid regimen against MME thresholds",
		Overridable:    true,
	}}
}
