package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrCorruptRecord is returned when a serialized record fails its
// version or size check.
var ErrCorruptRecord = errors.New("corrupt record")

// MaxPostingListBytes is the default size cap for one serialized
// posting-list chunk (SPEC_FULL.md §4.1).
const MaxPostingListBytes = 10 * 1024 * 1024

const postingListVersion = byte(1)

// PostingRecord is the wire shape of one posting, used only during
// (de)serialization; pkg/posting.Posting is the live in-memory type.
type PostingRecord struct {
	DocID     string
	TermFreq  uint32
	Positions []uint32
}

// EncodePostingList serializes postings (already sorted by the caller
// per SPEC_FULL.md §4.1) into a version-tagged, delta-encoded record.
func EncodePostingList(postings []PostingRecord) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteByte(postingListVersion)

	appendUint32(buf, uint32(len(postings)))

	// doc_ids: each id carries a kind tag. An id that is a canonical
	// decimal integer (optionally negative) is kind 1 and stored as a
	// zigzag delta from the previous numeric id; any other id is kind 0
	// and stored as a length-prefixed string.
	prev := int64(0)
	for _, p := range postings {
		n, numeric := numericDocID(p.DocID)
		if numeric {
			appendUint64(buf, 1)
			delta := n - prev
			appendZigzag(buf, delta)
			prev = n
		} else {
			appendUint64(buf, 0)
			appendString(buf, p.DocID)
		}
	}

	for _, p := range postings {
		appendUint32(buf, p.TermFreq)
	}

	for _, p := range postings {
		appendUint32(buf, uint32(len(p.Positions)))
		for _, pos := range p.Positions {
			appendUint32(buf, pos)
		}
	}

	out := buf.Bytes()
	if len(out) > MaxPostingListBytes {
		return nil, fmt.Errorf("%w: posting list %d bytes exceeds cap %d", ErrCorruptRecord, len(out), MaxPostingListBytes)
	}
	return out, nil
}

// DecodePostingList is the inverse of EncodePostingList.
func DecodePostingList(data []byte) ([]PostingRecord, error) {
	if len(data) > MaxPostingListBytes {
		return nil, fmt.Errorf("%w: record %d bytes exceeds cap %d", ErrCorruptRecord, len(data), MaxPostingListBytes)
	}
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if version != postingListVersion {
		return nil, fmt.Errorf("%w: unknown version byte %d", ErrCorruptRecord, version)
	}

	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	docIDs := make([]string, count)
	prev := int64(0)
	for i := range docIDs {
		kind, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		if kind == 1 {
			delta, err := readZigzag(r)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}
			prev += delta
			docIDs[i] = fmt.Sprintf("%d", prev)
		} else {
			s, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}
			docIDs[i] = s
		}
	}

	freqs := make([]uint32, count)
	for i := range freqs {
		f, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		freqs[i] = f
	}

	result := make([]PostingRecord, count)
	for i := range result {
		n, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		positions := make([]uint32, n)
		for j := range positions {
			p, err := readUint32(r)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}
			positions[j] = p
		}
		result[i] = PostingRecord{DocID: docIDs[i], TermFreq: freqs[i], Positions: positions}
	}

	return result, nil
}

// SortPostings orders postings ascending by numeric doc id when every id
// is numeric, otherwise lexicographically on the string form, per
// SPEC_FULL.md §4.1.
func SortPostings(postings []PostingRecord) {
	allNumeric := true
	for _, p := range postings {
		if _, ok := numericDocID(p.DocID); !ok {
			allNumeric = false
			break
		}
	}
	sort.SliceStable(postings, func(i, j int) bool {
		if allNumeric {
			ni, _ := numericDocID(postings[i].DocID)
			nj, _ := numericDocID(postings[j].DocID)
			return ni < nj
		}
		return postings[i].DocID < postings[j].DocID
	})
}

// DeltaEncode produces the first-absolute, then-successive-differences
// encoding of an ascending sequence, per SPEC_FULL.md §8 property 2.
func DeltaEncode(sorted []int64) []int64 {
	out := make([]int64, len(sorted))
	var prev int64
	for i, v := range sorted {
		out[i] = v - prev
		prev = v
	}
	return out
}

// DeltaDecode reverses DeltaEncode.
func DeltaDecode(deltas []int64) []int64 {
	out := make([]int64, len(deltas))
	var acc int64
	for i, d := range deltas {
		acc += d
		out[i] = acc
	}
	return out
}

func numericDocID(id string) (int64, bool) {
	if id == "" {
		return 0, false
	}
	var n int64
	for i, c := range id {
		if c < '0' || c > '9' {
			if i == 0 && c == '-' && len(id) > 1 {
				continue
			}
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	if id[0] == '-' {
		n = -n
	}
	if strconv.FormatInt(n, 10) != id {
		return 0, false
	}
	return n, true
}

func appendUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func appendUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func appendZigzag(buf *bytes.Buffer, v int64) {
	u := uint64((v << 1) ^ (v >> 63))
	appendUint64(buf, u)
}

func appendString(buf *bytes.Buffer, s string) {
	appendUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readZigzag(r *bytes.Reader) (int64, error) {
	u, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	v := int64(u>>1) ^ -int64(u&1)
	return v, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errors.New("unexpected eof")
		}
	}
	return total, nil
}
