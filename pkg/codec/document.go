package codec

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxDocumentBytes is the default size cap for one encoded document
// record (SPEC_FULL.md §4.1).
const MaxDocumentBytes = 10 * 1024 * 1024

// ErrDocumentTooLarge is returned when a document's encoded source
// exceeds MaxDocumentBytes.
var ErrDocumentTooLarge = errors.New("document too large")

// DocumentRecord is the stored shape of one (index, doc_id) document:
// the raw source map, per-field lengths (token counts, used by BM25 and
// stats), and a version counter incremented on each re-ingest.
type DocumentRecord struct {
	ID          string
	Source      map[string]interface{}
	FieldLens   map[string]int
	Version     int
	Sentinel    bool // true when the full source was rejected as too large
}

// EncodeDocument msgpack-encodes a document record. If the encoded
// source exceeds maxBytes, a minimal sentinel record is returned
// alongside ErrDocumentTooLarge so the caller can still persist a
// marker and reject the write at the boundary, per SPEC_FULL.md §4.1.
func EncodeDocument(rec DocumentRecord, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = MaxDocumentBytes
	}

	full, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if len(full) <= maxBytes {
		return full, nil
	}

	sentinel := DocumentRecord{ID: rec.ID, Version: rec.Version, Sentinel: true}
	sentinelBytes, serr := msgpack.Marshal(sentinel)
	if serr != nil {
		return nil, fmt.Errorf("encode sentinel document: %w", serr)
	}
	return sentinelBytes, fmt.Errorf("%w: document %q is %d bytes, cap is %d", ErrDocumentTooLarge, rec.ID, len(full), maxBytes)
}

// DecodeDocument is the inverse of a successful EncodeDocument.
func DecodeDocument(data []byte) (DocumentRecord, error) {
	var rec DocumentRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return DocumentRecord{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return rec, nil
}
