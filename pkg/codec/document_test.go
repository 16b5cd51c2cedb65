package codec

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeDocumentRoundTrip(t *testing.T) {
	rec := DocumentRecord{
		ID:        "doc-1",
		Source:    map[string]interface{}{"title": "hello world", "views": 42},
		FieldLens: map[string]int{"title": 2},
		Version:   3,
	}
	encoded, err := EncodeDocument(rec, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeDocument(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != rec.ID || decoded.Version != rec.Version {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestEncodeDocumentTooLargeReturnsSentinel(t *testing.T) {
	rec := DocumentRecord{
		ID:     "doc-big",
		Source: map[string]interface{}{"body": strings.Repeat("x", 1000)},
	}
	encoded, err := EncodeDocument(rec, 10)
	if !errors.Is(err, ErrDocumentTooLarge) {
		t.Fatalf("expected ErrDocumentTooLarge, got %v", err)
	}
	decoded, derr := DecodeDocument(encoded)
	if derr != nil {
		t.Fatalf("sentinel should still decode: %v", derr)
	}
	if !decoded.Sentinel || decoded.ID != rec.ID {
		t.Fatalf("expected sentinel record for %q, got %+v", rec.ID, decoded)
	}
}

func TestDecodeDocumentCorrupt(t *testing.T) {
	_, err := DecodeDocument([]byte("not msgpack"))
	if !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}
