package codec

import "encoding/binary"

// EncodeMetadata writes the delta-encoded header for h into out: fmt_id and
// timestamp are each written as the zigzag-varint difference from the
// stream's running last values. It returns the number of bytes written.
// out must have room for at least MaxMetadataSize bytes.
func EncodeMetadata(out []byte, h Header, lastTimestamp uint64, lastFmtID uint32) int {
	fmtDelta := int64(h.FmtID) - int64(lastFmtID)
	tsDelta := int64(h.Timestamp) - int64(lastTimestamp)

	n := binary.PutVarint(out, fmtDelta)
	n += binary.PutVarint(out[n:], tsDelta)
	return n
}

// MaxMetadataSize is the largest EncodeMetadata can ever write: two
// zigzag-varint-encoded int64 deltas, 10 bytes each in the worst case.
const MaxMetadataSize = 2 * binary.MaxVarintLen64

// DecodeMetadata is the inverse of EncodeMetadata; it is not used by the
// compression loop (which only ever encodes) but is provided for a
// decompression/replay tool consuming the compressed stream.
func DecodeMetadata(in []byte, lastTimestamp uint64, lastFmtID uint32) (h Header, n int) {
	fmtDelta, n1 := binary.Varint(in)
	tsDelta, n2 := binary.Varint(in[n1:])

	h.FmtID = uint32(int64(lastFmtID) + fmtDelta)
	h.Timestamp = uint64(int64(lastTimestamp) + tsDelta)
	return h, n1 + n2
}
