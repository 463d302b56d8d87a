package codec

import "github.com/klauspost/compress/s2"

// Reference format ids for the bundled Table implementation. Embedders are
// free to define their own; these exist so the compression loop has
// something concrete to drive in tests and in deployments that haven't
// generated a preprocessor table yet.
const (
	// FmtIdentity passes the argument payload through unmodified. Useful
	// for golden-master tests where compression would obscure assertions.
	FmtIdentity uint32 = 0

	// FmtS2 runs the argument payload through klauspost/compress/s2.
	FmtS2 uint32 = 1
)

// ReferenceTable is a small, real Table implementation built on
// github.com/klauspost/compress/s2. Format-id compression is meant to be
// an external collaborator generated at build time; this is a concrete
// stand-in so the compression loop can be exercised end-to-end without a
// real preprocessor.
type ReferenceTable struct{}

// Compress implements Table.
func (ReferenceTable) Compress(fmtID uint32, record []byte, out []byte) int {
	h, ok := ParseHeader(record)
	if !ok || h.EntrySize > uint32(len(record)) {
		return 0
	}
	payload := record[HeaderSize:h.EntrySize]

	switch fmtID {
	case FmtIdentity:
		return copy(out, payload)
	case FmtS2:
		scratch := make([]byte, s2.MaxEncodedLen(len(payload)))
		encoded := s2.Encode(scratch, payload)
		return copy(out, encoded)
	default:
		panic("codec: unknown fmt id in reference table")
	}
}

// CompressMetadata implements Table.
func (ReferenceTable) CompressMetadata(record []byte, out []byte, lastTimestamp uint64, lastFmtID uint32) int {
	h, ok := ParseHeader(record)
	if !ok {
		return 0
	}
	return EncodeMetadata(out, h, lastTimestamp, lastFmtID)
}
