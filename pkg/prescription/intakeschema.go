package prescription

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ridgeline-health/dispense/pkg/model"
)

// intakeSchemaJSON is the structural contract every intake channel (e-Rx,
// fax, phone, walk-in) must satisfy before a prescription is accepted:
// what's literally on the prescribing document, independent of which wire
// format the channel speaks. Patient linkage, the sig transcription, and
// prescriber resolution are allowed to complete later, in data_entry
// (requiredFieldsComplete in transitions.go enforces those before
// claim_pending).
const intakeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["drug_ndc", "quantity", "days_supply", "written_date", "expiration_date"],
  "properties": {
    "rx_number": {"type": "string", "minLength": 1},
    "patient_id": {"type": "string", "minLength": 1},
    "prescriber_id": {"type": "string", "minLength": 1},
    "drug_ndc": {"type": "string", "minLength": 1},
    "source": {"type": "string", "enum": ["eRx", "fax", "phone", "walkin"]},
    "quantity": {"type": "number", "exclusiveMinimum": 0},
    "days_supply": {"type": "integer", "exclusiveMinimum": 0},
    "sig": {"type": "string", "minLength": 1},
    "daw": {"type": "integer", "minimum": 0, "maximum": 9},
    "written_date": {"type": "string", "minLength": 1},
    "expiration_date": {"type": "string", "minLength": 1},
    "priority": {"type": "string", "enum": ["STAT", "URGENT", "NORMAL", "LOW"]}
  }
}`

const intakeSchemaURL = "https://dispense.local/schemas/intake.schema.json"

var intakeSchema = compileIntakeSchema()

func compileIntakeSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(intakeSchemaURL, strings.NewReader(intakeSchemaJSON)); err != nil {
		panic(fmt.Sprintf("prescription: intake schema load failed: %v", err))
	}
	compiled, err := c.Compile(intakeSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("prescription: intake schema compile failed: %v", err))
	}
	return compiled
}

// intakeWireDoc is the schema's property shape, matching the JSON the
// httpapi intake handler decodes regardless of which Go struct eventually
// carries it. Fields resolved after intake are omitempty so an
// unresolved zero value is simply absent from the document rather than
// failing a type/enum check meant for a populated value.
type intakeWireDoc struct {
	RxNumber       string  `json:"rx_number,omitempty"`
	PatientID      string  `json:"patient_id,omitempty"`
	PrescriberID   string  `json:"prescriber_id,omitempty"`
	DrugNDC        string  `json:"drug_ndc"`
	Source         string  `json:"source,omitempty"`
	Quantity       float64 `json:"quantity"`
	DaysSupply     int     `json:"days_supply"`
	Sig            string  `json:"sig,omitempty"`
	DAW            int     `json:"daw,omitempty"`
	WrittenDate    string  `json:"written_date"`
	ExpirationDate string  `json:"expiration_date"`
	Priority       string  `json:"priority,omitempty"`
}

// validateIntakeSchema re-derives the wire document from rx and checks it
// against intakeSchema, so Accept enforces the same contract no matter
// which intake channel populated the struct.
func validateIntakeSchema(rx model.Prescription) error {
	wire := intakeWireDoc{
		RxNumber:       rx.RxNumber,
		PatientID:      rx.PatientID,
		PrescriberID:   rx.PrescriberID,
		DrugNDC:        rx.DrugNDC,
		Source:         string(rx.Source),
		Quantity:       rx.Quantity,
		DaysSupply:     rx.DaysSupply,
		Sig:            rx.Sig,
		DAW:            int(rx.DAW),
		WrittenDate:    rx.WrittenDate.Format(time.RFC3339),
		ExpirationDate: rx.ExpirationDate.Format(time.RFC3339),
		Priority:       string(rx.Priority),
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := intakeSchema.Validate(doc); err != nil {
		return errtaxInvalidField("intake", err.Error())
	}
	return nil
}
