package verification

import (
	"fmt"
	"strings"

	"github.com/ridgeline-health/dispense/pkg/ndc"
)

// BarcodeParseError is a typed parse error for unrecognized barcode input,
// per spec.md §4.5.
type BarcodeParseError struct {
	Raw    string
	Reason string
}

func (e *BarcodeParseError) Error() string {
	return fmt.Sprintf("verification: cannot parse barcode %q: %s", e.Raw, e.Reason)
}

// ParseBarcode accepts UPC-A (12 digits, drop leading digit + check digit),
// raw NDC (10 or 11 digits, padded to 11), dashed NDC (4-4-2/5-3-2/5-4-1/
// 5-4-2), and GS1 DataMatrix (leading application identifier "01" + a
// 14-digit GTIN, indicator digit and leading zeros stripped), returning the
// canonical 11-digit NDC, per spec.md §4.5.
func ParseBarcode(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	digits := onlyDigits(trimmed)

	if strings.HasPrefix(trimmed, "01") && len(digits) >= 16 {
		return parseGS1(digits)
	}

	switch len(digits) {
	case 12:
		return parseUPCA(digits)
	case 10, 11:
		canon, err := ndc.Normalize(trimmed)
		if err != nil {
			return "", &BarcodeParseError{Raw: raw, Reason: err.Error()}
		}
		return canon, nil
	default:
		return "", &BarcodeParseError{Raw: raw, Reason: "unrecognized barcode length"}
	}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseUPCA drops the UPC-A's leading digit and trailing check digit,
// leaving a 10-digit NDC core that is then padded to 11.
func parseUPCA(digits string) (string, error) {
	core := digits[1 : len(digits)-1] // drop leading + check digit -> 10 digits
	canon, err := ndc.Normalize(core)
	if err != nil {
		return "", &BarcodeParseError{Raw: digits, Reason: err.Error()}
	}
	return canon, nil
}

// parseGS1 strips the "01" application identifier, then the GTIN-14's
// leading packaging-indicator digit and trailing check digit, leaving a
// 12-character remainder of one NDC-padding zero followed by the 11-digit
// NDC itself. Trimming every leading zero here (instead of exactly the one
// padding digit) would also eat zeros that are part of the NDC proper, so
// only the single known padding digit is dropped.
func parseGS1(digits string) (string, error) {
	gtin := digits[2:16]            // 14-digit GTIN following the "01" AI
	middle := gtin[1 : len(gtin)-1] // drop indicator digit and check digit -> 12 chars
	if len(middle) != 12 {
		return "", &BarcodeParseError{Raw: digits, Reason: "GS1 payload is not a well-formed GTIN-14"}
	}
	core := middle[1:] // drop the NDC-padding zero -> 11-digit NDC
	canon, err := ndc.Normalize(core)
	if err != nil {
		return "", &BarcodeParseError{Raw: digits, Reason: err.Error()}
	}
	return canon, nil
}
