package verification

import "testing"

func TestParseBarcodeRawNDC(t *testing.T) {
	got, err := ParseBarcode("00002143380")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "00002143380" {
		t.Fatalf("expected passthrough of an already-canonical NDC, got %s", got)
	}
}

func TestParseBarcodeDashedNDC(t *testing.T) {
	got, err := ParseBarcode("0002-1433-80")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "00002143380" {
		t.Fatalf("expected normalized dashed NDC, got %s", got)
	}
}

func TestParseBarcodeUPCA(t *testing.T) {
	// UPC-A: leading system digit + 10-digit NDC core + trailing check digit.
	got, err := ParseBarcode("300021433805")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "00002143380" {
		t.Fatalf("expected UPC-A to decode to the NDC core, got %s", got)
	}
}

func TestParseBarcodeGS1DataMatrix(t *testing.T) {
	// "01" AI + 14-digit GTIN: indicator digit "0" + padding "0" + 11-digit
	// NDC "00002143380" + a trailing check digit.
	got, err := ParseBarcode("0100000021433805")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "00002143380" {
		t.Fatalf("expected GS1 payload to decode to the NDC core, got %s", got)
	}
}

func TestParseBarcodeUnrecognizedLength(t *testing.T) {
	_, err := ParseBarcode("12345")
	if err == nil {
		t.Fatal("expected an error for an unrecognized barcode length")
	}
	var bpe *BarcodeParseError
	if !isBarcodeParseError(err, &bpe) {
		t.Fatalf("expected a *BarcodeParseError, got %T", err)
	}
}

func isBarcodeParseError(err error, target **BarcodeParseError) bool {
	if e, ok := err.(*BarcodeParseError); ok {
		*target = e
		return true
	}
	return false
}
