// Package dur implements the Drug Utilization Review engine: a pure
// function over a candidate drug and patient clinical context that returns
// a severity-ordered, deterministic set of DURAlerts. Per spec.md §9's open
// question (b), the reference tables below are configurable data (loaded
// from YAML), not hard-coded Go literals — NewEngine loads the bundled
// defaults, and LoadDir lets a pharmacy override them from the filesystem
// without a code deployment, the same pattern the teacher's policyloader
// uses for governance rule bundles.
package dur

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ridgeline-health/dispense/pkg/model"
)

//go:embed data/*.yaml
var defaultData embed.FS

// InteractionEntry is one curated drug-drug interaction.
type InteractionEntry struct {
	DrugA                 string `yaml:"drug_a"`
	DrugB                 string `yaml:"drug_b"`
	Severity              string `yaml:"severity"`
	Message               string `yaml:"message"`
	Recommendation        string `yaml:"recommendation"`
	Overridable           bool   `yaml:"overridable"`
	RequiresDocumentation bool   `yaml:"requires_documentation"`
}

// CrossReactivityEntry is one allergy-class cross-reactivity rule.
type CrossReactivityEntry struct {
	AllergyClass     string   `yaml:"allergy_class"`
	CrossReactsWith  []string `yaml:"cross_reacts_with"`
	Severity         string   `yaml:"severity"`
}

// ContraindicationEntry is one drug+condition contraindication rule.
type ContraindicationEntry struct {
	Drug             string   `yaml:"drug"`
	Condition        string   `yaml:"condition"`
	Severity         string   `yaml:"severity"`
	Message          string   `yaml:"message"`
	Recommendation   string   `yaml:"recommendation"`
	Overridable      bool     `yaml:"overridable"`
	AlternativeDrugs []string `yaml:"alternative_drugs"`
}

// AgeRuleEntry covers pediatric and geriatric (Beers) age-based rules.
type AgeRuleEntry struct {
	Drug                string `yaml:"drug"`
	MinAge              int    `yaml:"min_age"`
	MaxAge              int    `yaml:"max_age"`
	Severity            string `yaml:"severity"`
	Message             string `yaml:"message"`
	RequiresViralIllness bool  `yaml:"requires_viral_illness"`
}

// AgeRules groups the three age-based rule lists.
type AgeRules struct {
	Pediatric     []AgeRuleEntry `yaml:"pediatric"`
	GeriatricBeers []AgeRuleEntry `yaml:"geriatric_beers"`
	FallRisk      []struct {
		Drug string `yaml:"drug"`
	} `yaml:"fall_risk"`
}

// RenalRuleEntry is a CrCl-threshold adjustment rule.
type RenalRuleEntry struct {
	Drug        string `yaml:"drug"`
	MaxCrCl     float64 `yaml:"max_crcl"`
	Severity    string `yaml:"severity"`
	Message     string `yaml:"message"`
	Overridable bool   `yaml:"overridable"`
}

// HepaticRuleEntry is a hepatic-impairment escalation rule.
type HepaticRuleEntry struct {
	Drug         string `yaml:"drug"`
	BaseSeverity string `yaml:"base_severity"`
	Message      string `yaml:"message"`
}

// PregnancyEntry is a single pregnancy/nursing list entry.
type PregnancyEntry struct {
	Drug    string `yaml:"drug"`
	Message string `yaml:"message"`
}

// PregnancyRules groups the three pregnancy/nursing lists.
type PregnancyRules struct {
	CategoryX    []PregnancyEntry `yaml:"category_x"`
	CategoryD    []PregnancyEntry `yaml:"category_d"`
	NursingAvoid []PregnancyEntry `yaml:"nursing_avoid"`
}

// MonitoringEntry is a mandatory lab-monitoring rule.
type MonitoringEntry struct {
	Drug       string   `yaml:"drug"`
	Parameters []string `yaml:"parameters"`
	Frequency  string   `yaml:"frequency"`
}

// Tables holds every curated reference table the DUR engine consults.
type Tables struct {
	Interactions     []InteractionEntry
	CrossReactivity  []CrossReactivityEntry
	Contraindications []ContraindicationEntry
	AgeRules         AgeRules
	RenalRules       []RenalRuleEntry
	HepaticRules     []HepaticRuleEntry
	PregnancyRules   PregnancyRules
	Monitoring       []MonitoringEntry
}

var (
	defaultTablesOnce sync.Once
	defaultTables     Tables
	defaultTablesErr  error
)

// DefaultTables returns the bundled reference tables, loaded once per process.
func DefaultTables() (Tables, error) {
	defaultTablesOnce.Do(func() {
		defaultTables, defaultTablesErr = loadFromFS(defaultData, "data")
	})
	return defaultTables, defaultTablesErr
}

// LoadDir loads override tables from a directory on disk, for pharmacies
// that maintain their own curated DUR reference data. Any file missing
// from dir falls back to the bundled default for that table.
func LoadDir(dir string) (Tables, error) {
	base, err := DefaultTables()
	if err != nil {
		return Tables{}, err
	}
	t := base

	load := func(name string, dest any) error {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		return yaml.Unmarshal(raw, dest)
	}

	if err := load("interactions.yaml", &t.Interactions); err != nil {
		return Tables{}, fmt.Errorf("dur: load interactions: %w", err)
	}
	if err := load("allergy_cross_reactivity.yaml", &t.CrossReactivity); err != nil {
		return Tables{}, fmt.Errorf("dur: load cross reactivity: %w", err)
	}
	if err := load("contraindications.yaml", &t.Contraindications); err != nil {
		return Tables{}, fmt.Errorf("dur: load contraindications: %w", err)
	}
	if err := load("age_rules.yaml", &t.AgeRules); err != nil {
		return Tables{}, fmt.Errorf("dur: load age rules: %w", err)
	}
	if err := load("renal_rules.yaml", &t.RenalRules); err != nil {
		return Tables{}, fmt.Errorf("dur: load renal rules: %w", err)
	}
	if err := load("hepatic_rules.yaml", &t.HepaticRules); err != nil {
		return Tables{}, fmt.Errorf("dur: load hepatic rules: %w", err)
	}
	if err := load("pregnancy_nursing.yaml", &t.PregnancyRules); err != nil {
		return Tables{}, fmt.Errorf("dur: load pregnancy rules: %w", err)
	}
	if err := load("monitoring.yaml", &t.Monitoring); err != nil {
		return Tables{}, fmt.Errorf("dur: load monitoring: %w", err)
	}
	return t, nil
}

func loadFromFS(fsys embed.FS, dir string) (Tables, error) {
	var t Tables
	readYAML := func(name string, dest any) error {
		raw, err := fsys.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("dur: read %s: %w", name, err)
		}
		return yaml.Unmarshal(raw, dest)
	}
	if err := readYAML("interactions.yaml", &t.Interactions); err != nil {
		return t, err
	}
	if err := readYAML("allergy_cross_reactivity.yaml", &t.CrossReactivity); err != nil {
		return t, err
	}
	if err := readYAML("contraindications.yaml", &t.Contraindications); err != nil {
		return t, err
	}
	if err := readYAML("age_rules.yaml", &t.AgeRules); err != nil {
		return t, err
	}
	if err := readYAML("renal_rules.yaml", &t.RenalRules); err != nil {
		return t, err
	}
	if err := readYAML("hepatic_rules.yaml", &t.HepaticRules); err != nil {
		return t, err
	}
	if err := readYAML("pregnancy_nursing.yaml", &t.PregnancyRules); err != nil {
		return t, err
	}
	if err := readYAML("monitoring.yaml", &t.Monitoring); err != nil {
		return t, err
	}
	return t, nil
}

var severityRank = map[string]model.Severity{
	"low":      model.SeverityLow,
	"moderate": model.SeverityModerate,
	"high":     model.SeverityHigh,
	"critical": model.SeverityCritical,
}

func parseSeverity(s string) model.Severity {
	if sev, ok := severityRank[s]; ok {
		return sev
	}
	return model.SeverityLow
}
