package domain

import (
	"encoding/json"
	"testing"
)

func TestIDJSONRoundTrip(t *testing.T) {
	id := NewID()

	b, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got ID
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != id {
		t.Fatalf("expected round-tripped id %s, got %s", id, got)
	}
}

func TestIDNilIsNil(t *testing.T) {
	if !NilID.IsNil() {
		t.Fatal("expected NilID.IsNil() to be true")
	}
	if NewID().IsNil() {
		t.Fatal("expected a freshly generated ID to not be nil")
	}
}

func TestParseIDRoundTrip(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if parsed != id {
		t.Fatalf("expected %s, got %s", id, parsed)
	}
}

func TestParseIDInvalid(t *testing.T) {
	if _, err := ParseID("not-a-uuid"); err == nil {
		t.Fatal("expected an error parsing an invalid id")
	}
}

func TestIDValueAndScan(t *testing.T) {
	id := NewID()
	v, err := id.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var scanned ID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned != id {
		t.Fatalf("expected %s after round trip through Value/Scan, got %s", id, scanned)
	}

	var fromNil ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !fromNil.IsNil() {
		t.Fatal("expected Scan(nil) to produce NilID")
	}
}

func TestNilIDValueIsNilDriverValue(t *testing.T) {
	v, err := NilID.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != nil {
		t.Fatalf("expected NilID.Value() to be nil, got %v", v)
	}
}
