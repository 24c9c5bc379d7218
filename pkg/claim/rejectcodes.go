package claim

// RejectCodeEntry is one NCPDP-style reject code's resolution guidance,
// surfaced to the UI, per spec.md §4.3.
type RejectCodeEntry struct {
	Code           string
	Description    string
	Severity       string // "warning" or "blocking"
	Resolution     string
	OverridePermitted bool
}

// rejectCodeTable is the illustrative non-exhaustive reject-code taxonomy
// from spec.md §4.3. Codes not present here fall back to
// genericUnknownResolution via Resolve.
var rejectCodeTable = map[string]RejectCodeEntry{
	"70": {
		Code: "70", Description: "Product/service not covered",
		Severity: "blocking", Resolution: "Verify NDC and formulary coverage; contact plan if coverage is expected.",
		OverridePermitted: false,
	},
	"75": {
		Code: "75", Description: "Prior authorization required",
		Severity: "blocking", Resolution: "Submit a prior authorization request to the plan before resubmitting.",
		OverridePermitted: false,
	},
	"76": {
		Code: "76", Description: "Plan limitations exceeded",
		Severity: "blocking", Resolution: "Review plan quantity/day-supply limits; an override may be permitted with documentation.",
		OverridePermitted: true,
	},
	"79": {
		Code: "79", Description: "Refill too soon",
		Severity: "warning", Resolution: "Check days-until-eligible; contact plan for vacation/early-refill override if traveling.",
		OverridePermitted: false,
	},
	"88": {
		Code: "88", Description: "DUR reject: drug utilization review alert",
		Severity: "blocking", Resolution: "Resolve the underlying DUR alert with the prescriber and resubmit with override code and documentation.",
		OverridePermitted: true,
	},
	"E0": {
		Code: "E0", Description: "System error",
		Severity: "blocking", Resolution: "Permanent parse/transport failure; contact the claim switch operator.",
		OverridePermitted: false,
	},
}

// genericUnknownResolution is the spec.md §4.3 pass-through fallback for
// reject codes absent from the curated table.
var genericUnknownResolution = RejectCodeEntry{
	Severity:   "warning",
	Resolution: "Contact prescriber to confirm claim details; reject code not in the local resolution table.",
}

// Resolve looks up a reject code's resolution guidance, falling back to the
// generic "contact prescriber" entry for unknown codes per spec.md §9 open
// question (c).
func Resolve(code string) RejectCodeEntry {
	if entry, ok := rejectCodeTable[code]; ok {
		return entry
	}
	fallback := genericUnknownResolution
	fallback.Code = code
	fallback.Description = "Unrecognized reject code"
	return fallback
}

// OverridePermitted reports whether code's resolution table entry allows a
// submitWithOverride attempt, per spec.md §4.3.
func OverridePermitted(code string) bool {
	return Resolve(code).OverridePermitted
}
