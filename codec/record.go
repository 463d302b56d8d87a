// Package codec defines the external interfaces the compression loop
// depends on — the uncompressed record header layout, the per-format
// compression function table, and delta-encoded metadata — and ships one
// concrete Table implementation for embedders who don't yet have their own
// preprocessor-generated codec.
//
// The record format of a single uncompressed event and the format-id
// compression routines are deliberately kept out of the core: this package
// is the seam where an embedder plugs theirs in.
package codec

import "encoding/binary"

// HeaderSize is the size in bytes of the uncompressed record header: three
// uint32s and one uint64, little-endian.
const HeaderSize = 4 + 4 + 4 + 8

// Header is the bit-level contract the core depends on for every record
// sitting in a Staging Buffer.
type Header struct {
	EntrySize    uint32 // total bytes of this record, header included
	ArgMetaBytes uint32 // upper bound on growth during metadata re-encoding
	FmtID        uint32 // index into the compression table
	Timestamp    uint64 // monotonic ticks, from clock.Source
}

// ParseHeader reads a Header from the front of buf. It reports ok=false if
// buf is shorter than HeaderSize.
func ParseHeader(buf []byte) (h Header, ok bool) {
	if len(buf) < HeaderSize {
		return Header{}, false
	}
	h.EntrySize = binary.LittleEndian.Uint32(buf[0:4])
	h.ArgMetaBytes = binary.LittleEndian.Uint32(buf[4:8])
	h.FmtID = binary.LittleEndian.Uint32(buf[8:12])
	h.Timestamp = binary.LittleEndian.Uint64(buf[12:20])
	return h, true
}

// PutHeader writes h to the front of buf, which must be at least
// HeaderSize bytes long. It is provided for producers and tests that need
// to hand-assemble a record.
func PutHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.EntrySize)
	binary.LittleEndian.PutUint32(buf[4:8], h.ArgMetaBytes)
	binary.LittleEndian.PutUint32(buf[8:12], h.FmtID)
	binary.LittleEndian.PutUint64(buf[12:20], h.Timestamp)
}

// WorstCaseSize is the upper bound the compression loop must reserve in
// its output buffer before attempting to compress this record: the
// uncompressed entry size plus the declared metadata growth.
func (h Header) WorstCaseSize() uint32 {
	return h.EntrySize + h.ArgMetaBytes
}

// CompressFunc encodes the argument payload of an uncompressed record
// (everything in the record after HeaderSize) into out, returning the
// number of bytes written. Implementations must be pure with respect to
// their inputs and must never write more than the WorstCaseSize() of the
// record's Header.
type CompressFunc func(record []byte, out []byte) (n int)

// Table is the external codec table a preprocessor is assumed to generate.
// The compression loop only ever talks to this interface; its concrete
// implementation is left to the embedder.
type Table interface {
	// Compress dispatches to the CompressFunc registered for fmtID and
	// appends its output starting at out[0]. It returns the number of
	// bytes written.
	Compress(fmtID uint32, record []byte, out []byte) (n int)

	// CompressMetadata writes the delta-encoded header for record into out
	// (against lastTimestamp/lastFmtID) and returns the number of bytes
	// written.
	CompressMetadata(record []byte, out []byte, lastTimestamp uint64, lastFmtID uint32) (n int)
}
