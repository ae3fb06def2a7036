package database

import "testing"

func TestEncodeDecodeTextRoundTrip(t *testing.T) {
	original := "a persona with \"quotes\" and\nnewlines"
	encoded := EncodeText(original)
	if encoded == original {
		t.Fatal("expected EncodeText to JSON-encode the string")
	}

	decoded := DecodeText(encoded)
	if decoded != original {
		t.Fatalf("got %q, want %q", decoded, original)
	}
}

func TestDecodeTextToleratesPlainUnencodedValues(t *testing.T) {
	if got := DecodeText("not json-encoded"); got != "not json-encoded" {
		t.Fatalf("got %q", got)
	}
}

func TestEncodeTextEmptyString(t *testing.T) {
	if got := DecodeText(EncodeText("")); got != "" {
		t.Fatalf("got %q", got)
	}
}
