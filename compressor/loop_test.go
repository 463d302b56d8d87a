package compressor

import (
	"encoding/binary"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jacke/NanoLog/clock"
	"github.com/Jacke/NanoLog/codec"
	"github.com/Jacke/NanoLog/output"
	"github.com/Jacke/NanoLog/staging"
)

func newTestLoop(t *testing.T, outputSize int) (*Loop, *staging.Registry, *staging.Buffer, string) {
	t.Helper()
	loop, reg, bufs, path := newTestLoopMulti(t, outputSize, 1)
	return loop, reg, bufs[0], path
}

func newTestLoopMulti(t *testing.T, outputSize int, numBuffers int) (*Loop, *staging.Registry, []*staging.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/out.bin"

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	eng, err := output.New(f, outputSize, output.Options{})
	require.NoError(t, err)

	reg := staging.NewRegistry()
	bufs := make([]*staging.Buffer, numBuffers)
	for i := range bufs {
		bufs[i] = staging.New(int64(i+1), 65536)
		reg.Register(bufs[i])
	}

	loop := New(reg, eng, codec.ReferenceTable{}, clock.NewFake(), time.Millisecond)
	return loop, reg, bufs, path
}

func commitRecord(t *testing.T, buf *staging.Buffer, fmtID uint32, ts uint64, payload []byte) {
	t.Helper()
	size := codec.HeaderSize + len(payload)
	region, err := buf.Reserve(size)
	require.NoError(t, err)
	codec.PutHeader(region, codec.Header{
		EntrySize:    uint32(size),
		ArgMetaBytes: 16,
		FmtID:        fmtID,
		Timestamp:    ts,
	})
	copy(region[codec.HeaderSize:], payload)
	buf.Commit(size)
}

func TestSingleProducerRoundTripCounters(t *testing.T) {
	loop, _, buf, path := newTestLoop(t, 65536)

	commitRecord(t, buf, codec.FmtIdentity, 100, []byte("A"))
	commitRecord(t, buf, codec.FmtIdentity, 200, []byte("BB"))
	commitRecord(t, buf, codec.FmtIdentity, 300, []byte("CCC"))

	go loop.Run()
	loop.Sync()
	loop.RequestExit()
	<-loop.Done()

	snap := loop.Counters.Load()
	require.EqualValues(t, 3, snap.EventsProcessed)
	require.EqualValues(t, codec.HeaderSize*3+1+2+3, snap.TotalBytesRead)

	// Predict the exact output size independently, since decoding the
	// output stream is the decompressor's job (out of core scope): three
	// delta-encoded metadata blocks plus three identity-passed payloads.
	expected := 0
	var lastTS uint64
	var lastFmt uint32
	for _, rec := range []struct {
		fmtID uint32
		ts    uint64
		n     int
	}{{codec.FmtIdentity, 100, 1}, {codec.FmtIdentity, 200, 2}, {codec.FmtIdentity, 300, 3}} {
		scratch := make([]byte, codec.MaxMetadataSize)
		n := codec.EncodeMetadata(scratch, codec.Header{FmtID: rec.fmtID, Timestamp: rec.ts}, lastTS, lastFmt)
		expected += n + rec.n
		lastTS, lastFmt = rec.ts, rec.fmtID
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.EqualValues(t, expected, info.Size())
}

func TestSyncBlocksUntilFlushed(t *testing.T) {
	loop, _, buf, path := newTestLoop(t, 65536)
	go loop.Run()
	defer func() {
		loop.RequestExit()
		<-loop.Done()
	}()

	commitRecord(t, buf, codec.FmtIdentity, 1, []byte("payload"))
	loop.Sync()

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestOutputFullDefersRecordToNextBuffer(t *testing.T) {
	// Each record here has EntrySize=24, ArgMetaBytes=16, so its worst
	// case reservation is 40 bytes even though its actual compressed
	// footprint (a couple of metadata bytes plus a 4-byte identity
	// payload) is much smaller. An output buffer of 44 bytes leaves
	// enough room to admit the first record's worst case but not a
	// second one once real bytes have been written, forcing the second
	// record to be deferred to the next Submit.
	const outputSize = 44
	loop, _, buf, path := newTestLoop(t, outputSize)
	go loop.Run()
	defer func() {
		loop.RequestExit()
		<-loop.Done()
	}()

	commitRecord(t, buf, codec.FmtIdentity, 1, []byte("aaaa"))
	commitRecord(t, buf, codec.FmtIdentity, 2, []byte("bbbb"))
	loop.Sync()

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	snap := loop.Counters.Load()
	require.EqualValues(t, 2, snap.EventsProcessed)
	require.GreaterOrEqual(t, snap.NumWritesCompleted, uint64(2))
}

func TestRetiresBufferOnceEmptyAndMarked(t *testing.T) {
	loop, reg, buf, _ := newTestLoop(t, 4096)
	go loop.Run()
	defer func() {
		loop.RequestExit()
		<-loop.Done()
	}()

	commitRecord(t, buf, codec.FmtIdentity, 1, []byte("x"))
	loop.Sync()

	buf.RequestDelete()
	loop.Sync()

	require.Eventually(t, func() bool {
		reg.Lock()
		defer reg.Unlock()
		return reg.Len() == 0
	}, time.Second, time.Millisecond)
}

// buildRecord assembles a standalone record buffer identical to what
// commitRecord would have put into a staging buffer, without a buffer, so
// tests can drive the codec directly to predict exact byte counts.
func buildRecord(fmtID uint32, ts uint64, payload []byte) []byte {
	size := codec.HeaderSize + len(payload)
	record := make([]byte, size)
	codec.PutHeader(record, codec.Header{
		EntrySize:    uint32(size),
		ArgMetaBytes: 16,
		FmtID:        fmtID,
		Timestamp:    ts,
	})
	copy(record[codec.HeaderSize:], payload)
	return record
}

// decodedRecord is one entry recovered from a compressed output file by
// re-running the delta decode a real decompressor would use.
type decodedRecord struct {
	fmtID   uint32
	ts      uint64
	payload []byte
}

// decodeCompressedStream walks the compressed bytes at path back into
// records, given the fixed payload length every record in the stream was
// written with (the compressor itself never frames payload length; a real
// decompressor would recover it the same way a caller-supplied schema
// would here).
func decodeCompressedStream(t *testing.T, path string, payloadLen int) []decodedRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []decodedRecord
	var lastFmt uint32
	var lastTS uint64
	pos := 0
	for pos < len(data) {
		h, n := codec.DecodeMetadata(data[pos:], lastTS, lastFmt)
		pos += n
		require.LessOrEqual(t, pos+payloadLen, len(data), "truncated record in compressed stream")
		payload := append([]byte(nil), data[pos:pos+payloadLen]...)
		pos += payloadLen

		records = append(records, decodedRecord{fmtID: h.FmtID, ts: h.Timestamp, payload: payload})
		lastFmt, lastTS = h.FmtID, h.Timestamp
	}
	return records
}

func TestOutputExactlyFullDefersRecordToNextBuffer(t *testing.T) {
	// Size the output buffer so the second record's worst-case size lands
	// exactly on the buffer boundary after the first record's real
	// (smaller) compressed footprint: outPos+worst == len(out). That must
	// still defer, not get admitted, or the second record would corrupt
	// the tail of the first Submit.
	table := codec.ReferenceTable{}
	first := buildRecord(codec.FmtIdentity, 1, []byte("aaaa"))
	firstHeader, _ := codec.ParseHeader(first)

	scratch := make([]byte, 128)
	metaLen := table.CompressMetadata(first, scratch, 0, 0)
	payLen := table.Compress(firstHeader.FmtID, first, scratch[metaLen:])
	firstActual := metaLen + payLen

	secondWorst := int(firstHeader.WorstCaseSize())
	outputSize := firstActual + secondWorst

	loop, _, buf, path := newTestLoop(t, outputSize)
	go loop.Run()
	defer func() {
		loop.RequestExit()
		<-loop.Done()
	}()

	commitRecord(t, buf, codec.FmtIdentity, 1, []byte("aaaa"))
	commitRecord(t, buf, codec.FmtIdentity, 2, []byte("bbbb"))
	loop.Sync()

	snap := loop.Counters.Load()
	require.EqualValues(t, 2, snap.EventsProcessed)
	// The exact-boundary second record can only have been written by a
	// second Submit; one Submit sized to fit only the first record's
	// actual bytes could never also hold the second record's worst case.
	require.GreaterOrEqual(t, snap.NumWritesCompleted, uint64(2))

	records := decodeCompressedStream(t, path, 4)
	require.Len(t, records, 2)
	require.Equal(t, []byte("aaaa"), records[0].payload)
	require.Equal(t, []byte("bbbb"), records[1].payload)
}

func TestRoundRobinDrainsMultipleBuffersAndRetiresMidScan(t *testing.T) {
	loop, reg, bufs, path := newTestLoopMulti(t, 65536, 3)
	bufA, bufB, bufC := bufs[0], bufs[1], bufs[2]

	go loop.Run()
	defer func() {
		loop.RequestExit()
		<-loop.Done()
	}()

	commitRecord(t, bufA, codec.FmtIdentity, 1, []byte("A1"))
	commitRecord(t, bufA, codec.FmtIdentity, 2, []byte("A2"))
	commitRecord(t, bufC, codec.FmtIdentity, 3, []byte("C1"))
	commitRecord(t, bufC, codec.FmtIdentity, 4, []byte("C2"))

	// bufB never receives any data, so it is immediately eligible for
	// retirement; it sits between A and C in scan order.
	bufB.RequestDelete()

	loop.Sync()

	require.Eventually(t, func() bool {
		reg.Lock()
		defer reg.Unlock()
		return reg.Len() == 2
	}, time.Second, time.Millisecond, "buffer B should have been retired mid-scan")

	snap := loop.Counters.Load()
	require.EqualValues(t, 4, snap.EventsProcessed)

	records := decodeCompressedStream(t, path, 2)
	require.Len(t, records, 4)

	got := make(map[string]bool)
	for _, r := range records {
		got[string(r.payload)] = true
	}
	require.True(t, got["A1"] && got["A2"] && got["C1"] && got["C2"], "expected all four records from A and C, got %v", records)
}

func TestConcurrentProducersFanInPreservesPerProducerOrder(t *testing.T) {
	const numProducers = 4
	const recordsPerProducer = 200
	const payloadLen = 4

	loop, _, bufs, path := newTestLoopMulti(t, 1<<20, numProducers)

	go loop.Run()
	defer func() {
		loop.RequestExit()
		<-loop.Done()
	}()

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(p int, buf *staging.Buffer) {
			defer wg.Done()
			for s := 0; s < recordsPerProducer; s++ {
				ts := uint64(p)*1_000_000 + uint64(s)
				payload := make([]byte, payloadLen)
				binary.LittleEndian.PutUint32(payload, uint32(s))
				record := buildRecord(codec.FmtIdentity, ts, payload)

				region, err := buf.Reserve(len(record))
				if err != nil {
					t.Errorf("producer %d: Reserve: %v", p, err)
					return
				}
				copy(region, record)
				buf.Commit(len(record))
			}
		}(p, bufs[p])
	}
	wg.Wait()
	loop.Sync()

	records := decodeCompressedStream(t, path, payloadLen)
	require.Len(t, records, numProducers*recordsPerProducer)

	lastSeqPerProducer := make(map[int]int, numProducers)
	for p := 0; p < numProducers; p++ {
		lastSeqPerProducer[p] = -1
	}
	countPerProducer := make(map[int]int)

	for _, r := range records {
		producer := int(r.ts / 1_000_000)
		seq := int(binary.LittleEndian.Uint32(r.payload))

		require.EqualValues(t, codec.FmtIdentity, r.fmtID, "every record was written with the identity format")
		require.Equal(t, uint64(producer)*1_000_000+uint64(seq), r.ts, "timestamp must decode back to what producer %d wrote for seq %d", producer, seq)

		require.Greater(t, seq, lastSeqPerProducer[producer], "producer %d's records must stay in commit order despite round-robin interleaving", producer)
		lastSeqPerProducer[producer] = seq
		countPerProducer[producer]++
	}

	for p := 0; p < numProducers; p++ {
		require.Equal(t, recordsPerProducer, countPerProducer[p], "producer %d should have all its records present exactly once", p)
	}
}
